package radio

import "errors"

var (
	// ErrNoTracksAvailable 曲库为空或无法读取，调度器退回空闲状态
	ErrNoTracksAvailable = errors.New("no tracks available")
	// ErrBookkeeping 播放计数写入失败，只记录日志
	ErrBookkeeping = errors.New("play bookkeeping failed")
	// ErrStaleTrack 当前或下一首在播出前被下架
	ErrStaleTrack = errors.New("stale track reference")
	// ErrSchedulerClosed 调度器已关闭
	ErrSchedulerClosed = errors.New("scheduler closed")
	// ErrSchedulerNotRunning 调度器尚未 Initialize
	ErrSchedulerNotRunning = errors.New("scheduler not initialized")
)
