package cmd

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"OnAirFM/core/auth"
	"OnAirFM/db"
	"OnAirFM/model"
	"OnAirFM/repository"

	"github.com/spf13/cobra"
)

var (
	seedUsername string
	seedPassword string
	seedRole     string
	seedTracks   bool
)

// sampleTracks 空曲库时的示例曲目
var sampleTracks = []model.TrackInput{
	{Title: "Summer Vibes", Artist: "DJ Cool", Genre: "House", Duration: 180},
	{Title: "Night Drive", Artist: "Midnight Cruisers", Genre: "Synthwave", Duration: 240},
	{Title: "Morning Coffee", Artist: "Chill Beats", Genre: "Lo-fi", Duration: 210},
}

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "初始化账号和示例曲目",
	Long:  `迁移数据表，创建管理员或 DJ 账号；加上 --tracks 时在曲库为空的情况下写入示例曲目。`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg := loadConfig()

		if err := db.ConnectGormDB(cfg); err != nil {
			log.Fatalf("无法连接数据库: %v", err)
		}
		defer db.CloseGormDB()
		if err := db.AutoMigrateModels(); err != nil {
			log.Fatalf("数据表迁移失败: %v", err)
		}

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if seedUsername != "" {
			if err := seedUser(ctx, repository.NewGormUserRepository(db.GormDB)); err != nil {
				log.Fatalf("创建账号失败: %v", err)
			}
		}
		if seedTracks {
			n, err := seedSampleTracks(ctx, repository.NewGormTrackRepository(db.GormDB))
			if err != nil {
				log.Fatalf("写入示例曲目失败: %v", err)
			}
			fmt.Printf("写入 %d 首示例曲目\n", n)
		}
	},
}

func seedUser(ctx context.Context, users repository.UserRepository) error {
	if !model.ValidRole(seedRole) {
		return fmt.Errorf("unknown role %q", seedRole)
	}
	if seedPassword == "" {
		return errors.New("--password is required")
	}
	hash, err := auth.HashPassword(seedPassword)
	if err != nil {
		return err
	}
	user := &model.User{Username: seedUsername, PasswordHash: hash, Role: seedRole}
	if err := users.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrUserExists) {
			fmt.Printf("账号 %s 已存在，跳过\n", seedUsername)
			return nil
		}
		return err
	}
	fmt.Printf("已创建账号 %s (%s)\n", user.Username, user.Role)
	return nil
}

// seedSampleTracks 曲库为空时写入示例曲目，返回写入数量
func seedSampleTracks(ctx context.Context, tracks repository.TrackRepository) (int, error) {
	active, err := tracks.ListActive(ctx)
	if err != nil {
		return 0, err
	}
	if len(active) > 0 {
		return 0, nil
	}
	for i, in := range sampleTracks {
		if _, err := tracks.Create(ctx, in); err != nil {
			return i, err
		}
	}
	return len(sampleTracks), nil
}

func init() {
	rootCmd.AddCommand(seedCmd)
	seedCmd.Flags().StringVar(&seedUsername, "username", "", "要创建的账号")
	seedCmd.Flags().StringVar(&seedPassword, "password", "", "账号密码")
	seedCmd.Flags().StringVar(&seedRole, "role", model.RoleAdmin, "账号角色: admin, dj, listener")
	seedCmd.Flags().BoolVar(&seedTracks, "tracks", false, "曲库为空时写入示例曲目")
}
