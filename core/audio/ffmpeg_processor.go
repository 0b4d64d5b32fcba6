package audio

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os/exec"
	"strconv"
	"strings"
)

// FFmpegProcessor 通过 ffprobe 读取音频信息
type FFmpegProcessor struct {
	ffmpegPath string
}

// NewFFmpegProcessor creates a processor. ffprobe is looked up next to ffmpegPath.
func NewFFmpegProcessor(ffmpegPath string) *FFmpegProcessor {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	return &FFmpegProcessor{ffmpegPath: ffmpegPath}
}

func (p *FFmpegProcessor) ffprobePath() string {
	return strings.Replace(p.ffmpegPath, "ffmpeg", "ffprobe", 1)
}

// ffprobeOutput defines the structure for ffprobe JSON output.
type ffprobeOutput struct {
	Format struct {
		Duration   string `json:"duration"`
		FormatName string `json:"format_name"`
	} `json:"format"`
}

// GetAudioDuration uses ffprobe to get the duration of an audio file in seconds.
func (p *FFmpegProcessor) GetAudioDuration(ctx context.Context, inputFile string) (float64, error) {
	out, err := p.probe(ctx, inputFile, "format=duration")
	if err != nil {
		return 0, err
	}
	return parseProbeDuration(out)
}

// GetAudioFormat returns the container format name reported by ffprobe.
func (p *FFmpegProcessor) GetAudioFormat(ctx context.Context, inputFile string) (string, error) {
	out, err := p.probe(ctx, inputFile, "format=format_name")
	if err != nil {
		return "", err
	}
	var probeData ffprobeOutput
	if err := json.Unmarshal(out, &probeData); err != nil {
		return "", fmt.Errorf("failed to unmarshal ffprobe output: %w", err)
	}
	return probeData.Format.FormatName, nil
}

func (p *FFmpegProcessor) probe(ctx context.Context, inputFile, entries string) ([]byte, error) {
	args := []string{
		"-v", "error",
		"-show_entries", entries,
		"-of", "json",
		inputFile,
	}

	cmd := exec.CommandContext(ctx, p.ffprobePath(), args...)
	var out, stderr bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("ffprobe execution failed for %s: %w\nFFprobe Error: %s", inputFile, err, stderr.String())
	}
	return out.Bytes(), nil
}

func parseProbeDuration(out []byte) (float64, error) {
	var probeData ffprobeOutput
	if err := json.Unmarshal(out, &probeData); err != nil {
		return 0, fmt.Errorf("failed to unmarshal ffprobe output: %w\nFFprobe Output: %s", err, out)
	}
	if probeData.Format.Duration == "" {
		return 0, fmt.Errorf("duration not found in ffprobe output\nFFprobe Output: %s", out)
	}
	d, err := strconv.ParseFloat(probeData.Format.Duration, 64)
	if err != nil {
		return 0, fmt.Errorf("failed to parse duration %q: %w", probeData.Format.Duration, err)
	}
	if d < 0 || math.IsNaN(d) || math.IsInf(d, 0) {
		return 0, fmt.Errorf("invalid duration %q", probeData.Format.Duration)
	}
	return d, nil
}

// DurationSeconds rounds a probed duration to whole seconds.
func DurationSeconds(d float64) int {
	return int(math.Round(d))
}
