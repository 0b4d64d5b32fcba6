package radio

import (
	"context"
	"fmt"
	"math/rand"

	"OnAirFM/logger"
	"OnAirFM/model"
)

// TrackSource 轮播所需的只读曲库
type TrackSource interface {
	ListActive(ctx context.Context) ([]model.Track, error)
}

// Rotation 轮播顺序：一个环。取出队首后放回队尾，直到被标记为过期或为空时
// 才从当前可播放曲目重新洗牌生成。
//
// Rotation is not safe for concurrent use; the scheduler loop owns it.
type Rotation struct {
	source   TrackSource
	rng      *rand.Rand
	sequence []uint64
	tracks   map[uint64]model.Track
	stale    bool
}

// NewRotation creates an empty rotation. rng must not be shared with other goroutines.
func NewRotation(source TrackSource, rng *rand.Rand) *Rotation {
	return &Rotation{
		source: source,
		rng:    rng,
		tracks: make(map[uint64]model.Track),
	}
}

// Next pops the head of the ring and pushes it back to the tail.
// avoid is the id currently on air (0 for none): when the ring holds more than
// one track and avoid sits at the head, it is rotated past so that current and
// next differ.
func (r *Rotation) Next(ctx context.Context, avoid uint64) (model.Track, error) {
	if r.stale || len(r.sequence) == 0 {
		if err := r.regenerate(ctx); err != nil {
			return model.Track{}, err
		}
	}

	if len(r.sequence) > 1 && r.sequence[0] == avoid {
		r.sequence = append(r.sequence[1:], avoid)
	}

	id := r.sequence[0]
	r.sequence = append(r.sequence[1:], id)
	return r.tracks[id], nil
}

// Invalidate marks the sequence stale; the next call to Next rebuilds it from
// the live active set.
func (r *Rotation) Invalidate() {
	r.stale = true
}

// Evict drops id from the in-progress sequence.
func (r *Rotation) Evict(id uint64) {
	out := r.sequence[:0]
	for _, v := range r.sequence {
		if v != id {
			out = append(out, v)
		}
	}
	r.sequence = out
	delete(r.tracks, id)
}

// Peek returns a copy of the ring in play order.
func (r *Rotation) Peek() []uint64 {
	out := make([]uint64, len(r.sequence))
	copy(out, r.sequence)
	return out
}

// Len returns the ring size.
func (r *Rotation) Len() int {
	return len(r.sequence)
}

func (r *Rotation) regenerate(ctx context.Context) error {
	active, err := r.source.ListActive(ctx)
	if err != nil {
		// 读取失败视为曲库为空，保留过期标记，下次再试
		r.sequence = nil
		r.tracks = make(map[uint64]model.Track)
		r.stale = true
		return fmt.Errorf("%w: %v", ErrNoTracksAvailable, err)
	}

	r.stale = false
	r.tracks = make(map[uint64]model.Track, len(active))
	r.sequence = make([]uint64, 0, len(active))
	for _, t := range active {
		if _, dup := r.tracks[t.ID]; dup {
			continue
		}
		r.tracks[t.ID] = t
		r.sequence = append(r.sequence, t.ID)
	}

	if len(r.sequence) == 0 {
		return ErrNoTracksAvailable
	}

	// Fisher-Yates
	r.rng.Shuffle(len(r.sequence), func(i, j int) {
		r.sequence[i], r.sequence[j] = r.sequence[j], r.sequence[i]
	})

	logger.Debug("rotation regenerated", logger.Int("tracks", len(r.sequence)))
	return nil
}
