package radio

import (
	"context"
	"errors"
	"math/rand"
	"sort"
	"sync"
	"testing"
	"time"

	"OnAirFM/model"
)

// manualClock 手动推进的时钟。Advance 在锁外按到期顺序执行回调。
type manualClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*manualTimer
}

type manualTimer struct {
	clock   *manualClock
	when    time.Time
	f       func()
	stopped bool
}

func newManualClock() *manualClock {
	return &manualClock{now: time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &manualTimer{clock: c, when: c.now.Add(d), f: f}
	c.timers = append(c.timers, t)
	return t
}

func (t *manualTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	if t.stopped {
		return false
	}
	t.stopped = true
	return true
}

// pending returns the number of armed timers.
func (c *manualClock) pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, t := range c.timers {
		if !t.stopped {
			n++
		}
	}
	return n
}

func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	target := c.now.Add(d)
	c.mu.Unlock()

	for {
		c.mu.Lock()
		var live []*manualTimer
		for _, t := range c.timers {
			if !t.stopped {
				live = append(live, t)
			}
		}
		c.timers = live
		sort.SliceStable(live, func(i, j int) bool { return live[i].when.Before(live[j].when) })

		if len(live) == 0 || live[0].when.After(target) {
			c.now = target
			c.mu.Unlock()
			return
		}
		due := live[0]
		due.stopped = true
		if due.when.After(c.now) {
			c.now = due.when
		}
		c.mu.Unlock()
		due.f()
	}
}

// memCatalog 内存曲库
type memCatalog struct {
	mu        sync.Mutex
	tracks    map[uint64]*model.Track
	nextID    uint64
	listErr   error
	playErr   error
	playCalls []uint64

	// 非空时 ListActive 阻塞，直到 release 关闭；honorCtx 时 ctx 结束也会返回
	entered  chan struct{}
	release  chan struct{}
	honorCtx bool
}

func newMemCatalog(durations ...int) *memCatalog {
	c := &memCatalog{tracks: make(map[uint64]*model.Track)}
	for _, d := range durations {
		c.add(d)
	}
	return c
}

func (c *memCatalog) add(duration int) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextID++
	c.tracks[c.nextID] = &model.Track{ID: c.nextID, Title: "track", Artist: "artist", Duration: duration, IsActive: true}
	return c.nextID
}

// blockReads makes later ListActive calls hang. entered receives once a read
// is blocked.
func (c *memCatalog) blockReads(honorCtx bool) (entered <-chan struct{}, release func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entered = make(chan struct{}, 1)
	c.release = make(chan struct{})
	c.honorCtx = honorCtx
	var once sync.Once
	ch := c.release
	return c.entered, func() {
		once.Do(func() {
			c.mu.Lock()
			c.release = nil
			c.mu.Unlock()
			close(ch)
		})
	}
}

func (c *memCatalog) ListActive(ctx context.Context) ([]model.Track, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.mu.Lock()
	entered, release, honorCtx := c.entered, c.release, c.honorCtx
	c.mu.Unlock()
	if release != nil {
		select {
		case entered <- struct{}{}:
		default:
		}
		var done <-chan struct{}
		if honorCtx {
			done = ctx.Done()
		}
		select {
		case <-release:
		case <-done:
			return nil, ctx.Err()
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.listErr != nil {
		return nil, c.listErr
	}
	var out []model.Track
	for _, t := range c.tracks {
		if t.IsActive {
			out = append(out, *t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (c *memCatalog) Create(ctx context.Context, input model.TrackInput) (*model.Track, error) {
	if err := input.Validate(); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextID++
	t := input.ToTrack()
	t.ID = c.nextID
	c.tracks[t.ID] = t
	out := *t
	return &out, nil
}

func (c *memCatalog) SetInactive(ctx context.Context, id uint64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	t, ok := c.tracks[id]
	if !ok {
		return errors.New("not found")
	}
	t.IsActive = false
	return nil
}

func (c *memCatalog) IncrementPlay(ctx context.Context, id uint64, playedAt time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.playCalls = append(c.playCalls, id)
	if c.playErr != nil {
		return c.playErr
	}
	if t, ok := c.tracks[id]; ok {
		t.PlayCount++
		lp := playedAt
		t.LastPlayed = &lp
	}
	return nil
}

func (c *memCatalog) plays() []uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]uint64(nil), c.playCalls...)
}

// newTestScheduler 创建并初始化一个使用手动时钟的调度器
func newTestScheduler(t *testing.T, catalog Catalog, autoStart bool) (*Scheduler, *manualClock) {
	t.Helper()
	return newSchedulerWithOptions(t, catalog, Options{AutoStart: autoStart})
}

func newSchedulerWithOptions(t *testing.T, catalog Catalog, opts Options) (*Scheduler, *manualClock) {
	t.Helper()
	clock := newManualClock()
	opts.Clock = clock
	opts.Rand = rand.New(rand.NewSource(42))
	opts.QueueSize = 64
	s := NewScheduler(catalog, opts)
	if err := s.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = s.Shutdown(ctx)
	})
	return s, clock
}

func trackID(t *model.Track) uint64 {
	if t == nil {
		return 0
	}
	return t.ID
}
