package importer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"OnAirFM/logger"
	"OnAirFM/model"
	"OnAirFM/repository"

	"github.com/fsnotify/fsnotify"
)

const (
	ManifestExt    = ".json"
	ImportedSuffix = ".imported"
	FailedSuffix   = ".failed"

	// 文件写完后静默多久才读取
	defaultSettle = 500 * time.Millisecond
)

// ErrInvalidManifest 清单无法解析或字段不合法
var ErrInvalidManifest = errors.New("invalid track manifest")

// TrackAdder 接收导入曲目的一方，通常是调度器
type TrackAdder interface {
	AddTrack(ctx context.Context, input model.TrackInput) (*model.Track, error)
}

// Watcher 监听投递目录，把 *.json 曲目清单加入轮播
type Watcher struct {
	dir    string
	adder  TrackAdder
	settle time.Duration
}

// NewWatcher 创建目录监听器
func NewWatcher(dir string, adder TrackAdder) *Watcher {
	return &Watcher{dir: dir, adder: adder, settle: defaultSettle}
}

// Dir 返回监听的目录
func (w *Watcher) Dir() string {
	return w.dir
}

// Run 先导入目录中已有的清单，然后持续监听直到 ctx 取消
func (w *Watcher) Run(ctx context.Context) error {
	if err := os.MkdirAll(w.dir, 0755); err != nil {
		return fmt.Errorf("创建导入目录失败: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("创建文件监听器失败: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(w.dir); err != nil {
		return fmt.Errorf("监听目录失败: %w", err)
	}
	logger.Info("import watcher started", logger.String("dir", w.dir))

	w.Scan(ctx)

	// 文件可能分多次写入，记录最后一次事件时间
	pending := make(map[string]time.Time)
	ticker := time.NewTicker(w.settle / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) != 0 && IsManifest(event.Name) {
				pending[event.Name] = time.Now()
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn("import watcher error", logger.ErrorField(err))

		case <-ticker.C:
			now := time.Now()
			for name, last := range pending {
				if now.Sub(last) < w.settle {
					continue
				}
				delete(pending, name)
				w.process(ctx, name)
			}
		}
	}
}

// Scan 导入目录中现有的清单，按文件名排序
func (w *Watcher) Scan(ctx context.Context) int {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		logger.Warn("failed to read import dir", logger.String("dir", w.dir), logger.ErrorField(err))
		return 0
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() && IsManifest(e.Name()) {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	imported := 0
	for _, name := range names {
		if w.process(ctx, filepath.Join(w.dir, name)) {
			imported++
		}
	}
	return imported
}

func (w *Watcher) process(ctx context.Context, path string) bool {
	track, err := w.ProcessFile(ctx, path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false
		}
		logger.Warn("track import failed", logger.String("file", filepath.Base(path)), logger.ErrorField(err))
		return false
	}
	logger.Info("track imported",
		logger.String("file", filepath.Base(path)),
		logger.Uint64("track_id", track.ID),
		logger.String("title", track.Title))
	return true
}

// ProcessFile 导入单个清单。成功后重命名为 *.imported，内容不合法时重命名为
// *.failed；其他错误保留原文件，下次扫描重试
func (w *Watcher) ProcessFile(ctx context.Context, path string) (*model.Track, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var input model.TrackInput
	if err := json.Unmarshal(data, &input); err != nil {
		w.mark(path, FailedSuffix)
		return nil, fmt.Errorf("%w: %v", ErrInvalidManifest, err)
	}
	if err := input.Validate(); err != nil {
		w.mark(path, FailedSuffix)
		return nil, fmt.Errorf("%w: %w", ErrInvalidManifest, err)
	}

	track, err := w.adder.AddTrack(ctx, input)
	if track == nil {
		if errors.Is(err, repository.ErrInvalidTrack) {
			w.mark(path, FailedSuffix)
			return nil, fmt.Errorf("%w: %w", ErrInvalidManifest, err)
		}
		return nil, err
	}
	if err != nil {
		// 曲目已入库，只是没能通知调度器
		logger.Warn("track stored but rotation not refreshed", logger.Uint64("track_id", track.ID), logger.ErrorField(err))
	}
	w.mark(path, ImportedSuffix)
	return track, nil
}

func (w *Watcher) mark(path, suffix string) {
	if err := os.Rename(path, path+suffix); err != nil {
		logger.Warn("failed to rename manifest", logger.String("file", path), logger.ErrorField(err))
	}
}

// IsManifest 是否为待导入的清单文件
func IsManifest(name string) bool {
	base := filepath.Base(name)
	return strings.HasSuffix(strings.ToLower(base), ManifestExt) && !strings.HasPrefix(base, ".")
}
