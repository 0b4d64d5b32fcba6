package audio

import "context"

// Prober 读取音频文件的时长（秒）
type Prober interface {
	GetAudioDuration(ctx context.Context, inputFile string) (float64, error)
}
