package radio

import (
	"time"

	"OnAirFM/model"
)

// State 调度器状态
type State int

const (
	StateIdle State = iota
	StatePlaying
	StatePaused
)

func (s State) String() string {
	switch s {
	case StatePlaying:
		return "playing"
	case StatePaused:
		return "paused"
	default:
		return "idle"
	}
}

// Status 对外广播的播出快照。值对象，按需重新计算，不持久化
type Status struct {
	CurrentTrack *model.Track `json:"currentTrack"`
	NextTrack    *model.Track `json:"nextTrack"`
	IsPlaying    bool         `json:"isPlaying"`
	StartTime    *time.Time   `json:"startTime"`
	ElapsedMs    int64        `json:"elapsedMs"`
	DurationMs   int64        `json:"durationMs"` // 当前曲目实际排定的时长
	ServerTime   int64        `json:"serverTime"` // 生成快照时的服务器时间（毫秒）
}

// Elapsed returns the elapsed position as a time.Duration.
func (s Status) Elapsed() time.Duration {
	return time.Duration(s.ElapsedMs) * time.Millisecond
}

// At recomputes the elapsed position for the given instant.
// Only a playing status moves; paused and idle statuses keep their frozen value.
// Elapsed is clamped to [0, DurationMs].
func (s Status) At(now time.Time) Status {
	out := s
	out.ServerTime = now.UnixMilli()
	if !s.IsPlaying || s.StartTime == nil {
		return out
	}

	elapsed := now.Sub(*s.StartTime).Milliseconds()
	if elapsed < 0 {
		elapsed = 0
	}
	if s.DurationMs > 0 && elapsed > s.DurationMs {
		elapsed = s.DurationMs
	}
	out.ElapsedMs = elapsed
	return out
}

// Idle reports whether nothing is loaded.
func (s Status) Idle() bool {
	return s.CurrentTrack == nil
}

// idleStatus 全空状态："nothing playing"
func idleStatus(now time.Time) Status {
	return Status{ServerTime: now.UnixMilli()}
}

func copyTrack(t *model.Track) *model.Track {
	if t == nil {
		return nil
	}
	c := *t
	if t.LastPlayed != nil {
		lp := *t.LastPlayed
		c.LastPlayed = &lp
	}
	return &c
}
