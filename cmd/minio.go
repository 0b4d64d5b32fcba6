package cmd

import (
	"context"
	"fmt"
	"log"
	"time"

	"OnAirFM/storage"

	"github.com/spf13/cobra"
)

var (
	mediaPrefix string
	mediaStats  bool
	mediaDelete bool
)

var mediaCmd = &cobra.Command{
	Use:     "media",
	Aliases: []string{"minio"},
	Short:   "MinIO媒体存储管理",
	Long:    `查看和管理 MinIO 中的曲目与封面文件，支持按前缀列出、统计和删除。`,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("开始连接MinIO服务器...")

		cfg := loadConfig()
		fmt.Printf("MinIO配置: %s, Bucket: %s\n", cfg.MinioEndpoint, cfg.MinioBucket)

		store, err := storage.NewMediaStore(cfg)
		if err != nil {
			log.Fatalf("创建MinIO客户端失败: %v", err)
		}

		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()

		objects, stats, err := store.List(ctx, mediaPrefix)
		if err != nil {
			log.Fatalf("列出文件失败: %v", err)
		}

		if mediaDelete {
			if mediaPrefix == "" {
				log.Fatal("删除操作需要指定目录前缀")
			}
			fmt.Printf("\n删除目录: %s (%d 个文件)\n", mediaPrefix, len(objects))
			for _, obj := range objects {
				if err := store.Delete(ctx, obj.Key); err != nil {
					log.Fatalf("删除 %s 失败: %v", obj.Key, err)
				}
				fmt.Printf("  已删除 %s\n", obj.Key)
			}
			fmt.Println("\nMinIO操作完成！")
			return
		}

		if !mediaStats {
			fmt.Printf("\n列出存储桶中的文件 (前缀: %s)...\n", mediaPrefix)
			for _, obj := range objects {
				fmt.Printf("  %-60s %10s  %s\n", obj.Key, storage.FormatSize(obj.Size), obj.LastModified.Format("2006-01-02 15:04:05"))
			}
		}

		fmt.Printf("\n存储桶: %s\n", store.Bucket())
		fmt.Printf("文件总数: %d\n", stats.TotalObjects)
		fmt.Printf("总大小: %s\n", storage.FormatSize(stats.TotalSize))
		if !stats.LastModified.IsZero() {
			fmt.Printf("最后修改: %s\n", stats.LastModified.Format("2006-01-02 15:04:05"))
		}
		fmt.Println("\nMinIO操作完成！")
	},
}

func init() {
	rootCmd.AddCommand(mediaCmd)

	mediaCmd.Flags().StringVarP(&mediaPrefix, "prefix", "p", "", "按前缀过滤文件或指定要操作的目录")
	mediaCmd.Flags().BoolVarP(&mediaStats, "stats", "s", false, "只显示统计信息")
	mediaCmd.Flags().BoolVarP(&mediaDelete, "delete", "d", false, "删除指定目录及其下的所有文件")

	mediaCmd.Example = `  # 列出所有文件
  onair_server media

  # 只看曲目
  onair_server media -p "tracks/"

  # 显示统计信息
  onair_server media -s

  # 删除封面目录
  onair_server media -d -p "artwork/"`
}
