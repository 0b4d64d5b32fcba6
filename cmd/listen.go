package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"time"

	"OnAirFM/core/listener"
	"OnAirFM/core/radio"

	"github.com/spf13/cobra"
)

var (
	listenURL      string
	listenToken    string
	listenInterval time.Duration
)

var listenCmd = &cobra.Command{
	Use:   "listen",
	Short: "以收听端身份连接电台",
	Long:  `通过 WebSocket 连接电台，断线自动重连，并按本地时钟显示当前播放进度。`,
	RunE: func(cmd *cobra.Command, args []string) error {
		loadConfig()

		var header http.Header
		if listenToken != "" {
			header = http.Header{"Authorization": {"Bearer " + listenToken}}
		}
		client := listener.NewClient(listenURL, listener.Options{Header: header})

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
		defer cancel()

		done := make(chan error, 1)
		go func() { done <- client.Run(ctx) }()

		ticker := time.NewTicker(listenInterval)
		defer ticker.Stop()
		var lastTrack uint64
		updates := client.Updates()

		for {
			select {
			case err := <-done:
				if err == context.Canceled {
					return nil
				}
				return err
			case status, ok := <-updates:
				if !ok {
					updates = nil
					continue
				}
				id := uint64(0)
				if status.CurrentTrack != nil {
					id = status.CurrentTrack.ID
				}
				if id != lastTrack {
					lastTrack = id
					fmt.Println("♪", formatStatus(status))
				}
			case <-ticker.C:
				if status, ok := client.Now(); ok {
					fmt.Println(" ", formatStatus(status))
				}
			}
		}
	},
}

// formatStatus 单行展示播出状态
func formatStatus(s radio.Status) string {
	if s.CurrentTrack == nil {
		return "nothing playing"
	}
	state := "playing"
	if !s.IsPlaying {
		state = "paused"
	}
	line := fmt.Sprintf("[%s] %s - %s %s/%s", state,
		s.CurrentTrack.Artist, s.CurrentTrack.Title,
		formatClock(s.ElapsedMs), formatClock(s.DurationMs))
	if s.NextTrack != nil {
		line += fmt.Sprintf(" | next: %s - %s", s.NextTrack.Artist, s.NextTrack.Title)
	}
	return line
}

func formatClock(ms int64) string {
	sec := ms / 1000
	return fmt.Sprintf("%d:%02d", sec/60, sec%60)
}

func init() {
	rootCmd.AddCommand(listenCmd)
	listenCmd.Flags().StringVarP(&listenURL, "url", "u", "ws://localhost:8080/ws/radio", "电台 WebSocket 地址")
	listenCmd.Flags().StringVarP(&listenToken, "token", "t", "", "可选的 JWT")
	listenCmd.Flags().DurationVarP(&listenInterval, "interval", "i", 5*time.Second, "进度刷新间隔")
}
