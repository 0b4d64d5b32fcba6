package cmd

import (
	"github.com/spf13/cobra"
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "启动电台服务器",
	Long:  `启动 OnAirFM 的 HTTP 服务器，提供播出控制 API、曲库管理和 WebSocket 同步`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer()
	},
}

func init() {
	rootCmd.AddCommand(serverCmd)
}
