package cmd

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"time"

	"OnAirFM/cache"
	"OnAirFM/core/radio"
	"OnAirFM/db"

	"github.com/spf13/cobra"
)

var redisWatch bool

var redisCmd = &cobra.Command{
	Use:   "redis",
	Short: "Redis连接测试与状态查看",
	Long:  `测试Redis连接是否成功，读取镜像到 Redis 的最新播出状态；加上 --watch 持续打印状态更新。`,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("开始测试Redis连接...")

		cfg := loadConfig()
		fmt.Printf("Redis配置: %s:%s, DB: %d\n", cfg.RedisHost, cfg.RedisPort, cfg.RedisDB)

		if err := db.ConnectRedis(cfg); err != nil {
			log.Fatalf("无法连接到Redis: %v", err)
		}
		defer func() {
			if err := db.CloseRedis(); err != nil {
				log.Printf("关闭Redis连接时发生错误: %v", err)
			}
		}()
		fmt.Println("Redis连接成功！")

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
		defer cancel()

		tctx, tcancel := context.WithTimeout(ctx, 5*time.Second)
		err := db.TestRedis(tctx)
		tcancel()
		if err != nil {
			log.Fatalf("Redis操作测试失败: %v", err)
		}
		fmt.Println("Redis基本操作测试成功！")

		statusCache := cache.NewStatusCache(db.RedisClient, cfg)
		status, err := statusCache.Latest(ctx)
		switch {
		case err == nil:
			fmt.Println("最新播出状态:", formatStatus(status))
		case errors.Is(err, cache.ErrNoStatus):
			fmt.Println("Redis 中还没有播出状态")
		default:
			log.Fatalf("读取播出状态失败: %v", err)
		}

		if !redisWatch {
			return
		}
		fmt.Printf("订阅 %s，Ctrl+C 退出...\n", cfg.StatusChannel)
		err = statusCache.Watch(ctx, func(s radio.Status) {
			fmt.Println(time.Now().Format("15:04:05"), formatStatus(s))
		})
		if err != nil && !errors.Is(err, context.Canceled) {
			log.Fatalf("订阅状态失败: %v", err)
		}
	},
}

func init() {
	rootCmd.AddCommand(redisCmd)
	redisCmd.Flags().BoolVarP(&redisWatch, "watch", "w", false, "持续打印状态更新")
}
