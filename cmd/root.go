package cmd

import (
	"fmt"
	"os"

	"OnAirFM/config"
	"OnAirFM/logger"
	"OnAirFM/server"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "onair_server",
	Short: "OnAirFM is a single-channel internet radio service.",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer()
	},
}

// Execute executes the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadConfig 加载配置并初始化日志
func loadConfig() *config.Config {
	cfg := config.Load()
	logger.InitLogger(logger.Config{
		Level:      logger.LogLevel(cfg.LogLevel),
		OutputPath: cfg.LogFile,
		MaxSize:    cfg.LogMaxSize,
		MaxBackups: cfg.LogMaxBackups,
		MaxAge:     cfg.LogMaxAge,
		Compress:   true,
	})
	return cfg
}

func runServer() error {
	cfg := loadConfig()
	defer logger.Sync()
	logger.Info("Starting OnAirFM server...", logger.String("port", cfg.Port))
	return server.Start(cfg)
}
