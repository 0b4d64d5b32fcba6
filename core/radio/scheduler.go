package radio

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"OnAirFM/config"
	"OnAirFM/logger"
	"OnAirFM/model"
)

// Catalog 调度器依赖的曲库：读取可播放曲目，并写回播放计数
type Catalog interface {
	TrackSource
	Create(ctx context.Context, input model.TrackInput) (*model.Track, error)
	SetInactive(ctx context.Context, id uint64) error
	IncrementPlay(ctx context.Context, id uint64, playedAt time.Time) error
}

// Options 调度器参数，零值字段使用默认值
type Options struct {
	Clock              Clock
	Rand               *rand.Rand
	QueueSize          int
	MinTrackDuration   time.Duration
	BookkeepingTimeout time.Duration
	ReadTimeout        time.Duration // 循环内单次读取曲库的超时
	// AutoStart 为 true 时，Initialize 之后以及空闲状态下添加曲目时自动开播
	AutoStart bool
}

// OptionsFromConfig maps the scheduler section of the application config.
func OptionsFromConfig(cfg *config.Config) Options {
	seed := cfg.RandomSeed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return Options{
		Rand:               rand.New(rand.NewSource(seed)),
		QueueSize:          cfg.BroadcastQueueSize,
		MinTrackDuration:   cfg.MinTrackDuration,
		BookkeepingTimeout: cfg.BookkeepingTimeout,
		ReadTimeout:        cfg.CatalogReadTimeout,
		AutoStart:          cfg.AutoStart,
	}
}

type command struct {
	run   func() error
	reply chan error
}

// Scheduler 电台播出调度器。所有状态变更都在一个 goroutine 中串行执行，
// 该 goroutine 同时持有唯一的定时器句柄。
type Scheduler struct {
	catalog     Catalog
	rotation    *Rotation
	broadcaster *Broadcaster
	clock       Clock
	opts        Options

	commands  chan command
	done      chan struct{}
	loopDone  chan struct{}
	running   atomic.Bool
	startOnce sync.Once
	stopOnce  sync.Once

	// loop 读取曲库用的上下文，Shutdown 时取消
	baseCtx    context.Context
	cancelBase context.CancelFunc

	// 以下字段只在 loop goroutine 中访问
	state      State
	current    *model.Track
	next       *model.Track
	startTime  time.Time
	frozen     time.Duration // 暂停时冻结的进度
	timer      Timer
	generation uint64

	viewMu    sync.RWMutex
	view      Status
	viewState State

	bookkeeping sync.WaitGroup
}

// NewScheduler creates a scheduler. Call Initialize before use.
func NewScheduler(catalog Catalog, opts Options) *Scheduler {
	if opts.Clock == nil {
		opts.Clock = SystemClock()
	}
	if opts.Rand == nil {
		opts.Rand = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if opts.MinTrackDuration <= 0 {
		opts.MinTrackDuration = time.Second
	}
	if opts.BookkeepingTimeout <= 0 {
		opts.BookkeepingTimeout = 5 * time.Second
	}
	if opts.ReadTimeout <= 0 {
		opts.ReadTimeout = 5 * time.Second
	}

	baseCtx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		baseCtx:     baseCtx,
		cancelBase:  cancel,
		catalog:     catalog,
		rotation:    NewRotation(catalog, opts.Rand),
		broadcaster: NewBroadcaster(opts.QueueSize, opts.Clock),
		clock:       opts.Clock,
		opts:        opts,
		commands:    make(chan command),
		done:        make(chan struct{}),
		loopDone:    make(chan struct{}),
		view:        idleStatus(opts.Clock.Now()),
	}
}

// Initialize starts the scheduler loop, and playback as well when AutoStart is set.
func (s *Scheduler) Initialize(ctx context.Context) error {
	started := false
	s.startOnce.Do(func() {
		started = true
		s.running.Store(true)
		go s.loop()
	})
	if !started {
		return nil
	}
	logger.Info("radio scheduler initialized", logger.Bool("auto_start", s.opts.AutoStart))

	if s.opts.AutoStart {
		return s.Start(ctx)
	}
	return nil
}

// Shutdown stops the loop and the armed timer, closes every subscription and
// waits for in-flight bookkeeping until ctx expires. A catalog read still in
// progress on the loop is cancelled.
func (s *Scheduler) Shutdown(ctx context.Context) error {
	s.stopOnce.Do(func() {
		close(s.done)
		s.cancelBase()
	})
	defer s.broadcaster.Close()

	if s.running.Load() {
		select {
		case <-s.loopDone:
		case <-ctx.Done():
			logger.Warn("radio scheduler loop did not stop in time", logger.ErrorField(ctx.Err()))
			return ctx.Err()
		}
	}

	waited := make(chan struct{})
	go func() {
		s.bookkeeping.Wait()
		close(waited)
	}()
	select {
	case <-waited:
		logger.Info("radio scheduler stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Scheduler) loop() {
	defer close(s.loopDone)
	for {
		select {
		case cmd := <-s.commands:
			cmd.reply <- cmd.run()
		case <-s.done:
			s.disarm()
			return
		}
	}
}

func (s *Scheduler) ready() error {
	select {
	case <-s.done:
		return ErrSchedulerClosed
	default:
	}
	if !s.running.Load() {
		return ErrSchedulerNotRunning
	}
	return nil
}

// dispatch runs fn on the loop goroutine and waits for its result. ctx only
// bounds the handoff; reads made by fn use the scheduler's own context.
func (s *Scheduler) dispatch(ctx context.Context, fn func() error) error {
	if err := s.ready(); err != nil {
		return err
	}
	reply := make(chan error, 1)
	select {
	case s.commands <- command{run: fn, reply: reply}:
	case <-s.done:
		return ErrSchedulerClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	return <-reply
}

// ========== 控制操作 ==========

// Start begins playback. It is a no-op while playing, resumes a paused track
// for its remaining time, and leaves the scheduler idle when the catalog is empty.
func (s *Scheduler) Start(ctx context.Context) error {
	return s.dispatch(ctx, func() error {
		s.start()
		return nil
	})
}

// Pause freezes the elapsed position and disarms the timer.
func (s *Scheduler) Pause(ctx context.Context) error {
	return s.dispatch(ctx, func() error {
		if s.pause() {
			s.publish()
		}
		return nil
	})
}

// Skip forces an immediate transition to the next track.
func (s *Scheduler) Skip(ctx context.Context) error {
	return s.dispatch(ctx, func() error {
		if s.state == StateIdle {
			s.start()
			return nil
		}
		s.advance(reasonSkip, true)
		s.publish()
		return nil
	})
}

// AddTrack creates the track in the catalog and folds it into rotation.
// An idle scheduler starts playing when AutoStart is set.
func (s *Scheduler) AddTrack(ctx context.Context, input model.TrackInput) (*model.Track, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	track, err := s.catalog.Create(ctx, input)
	if err != nil {
		return nil, err
	}

	err = s.dispatch(ctx, func() error {
		s.rotation.Invalidate()
		switch s.state {
		case StateIdle:
			if s.opts.AutoStart {
				s.start()
			}
		default:
			// 单曲循环时没有下一首，新曲目加入后立即补上
			if s.next == nil {
				s.fillNext()
				if s.next != nil {
					s.publish()
				}
			}
		}
		return nil
	})
	if err != nil {
		return track, err
	}

	logger.Info("track added to rotation", logger.Uint64("track_id", track.ID), logger.String("title", track.Title))
	return track, nil
}

// RemoveTrack deactivates the track and evicts it from rotation. Removing the
// track on air skips ahead at once; removing the upcoming track recomputes it.
func (s *Scheduler) RemoveTrack(ctx context.Context, id uint64) error {
	if err := s.ready(); err != nil {
		return err
	}
	if err := s.catalog.SetInactive(ctx, id); err != nil {
		return err
	}

	return s.dispatch(ctx, func() error {
		s.rotation.Evict(id)
		s.rotation.Invalidate()

		switch {
		case s.current != nil && s.current.ID == id:
			logger.Info("track on air removed, skipping ahead",
				logger.Uint64("track_id", id), logger.ErrorField(ErrStaleTrack))
			if s.next != nil && s.next.ID == id {
				s.next = nil
			}
			paused := s.state == StatePaused
			s.advance(reasonRemoved, false)
			if paused {
				s.pause()
			}
			s.publish()
		case s.next != nil && s.next.ID == id:
			logger.Debug("upcoming track removed", logger.Uint64("track_id", id), logger.ErrorField(ErrStaleTrack))
			s.next = nil
			s.fillNext()
			s.publish()
		}
		return nil
	})
}

// Queue returns the rotation ring in play order. Its head follows the upcoming
// track; the current and upcoming ids sit at the tail.
func (s *Scheduler) Queue(ctx context.Context) ([]uint64, error) {
	var out []uint64
	err := s.dispatch(ctx, func() error {
		out = s.rotation.Peek()
		return nil
	})
	return out, err
}

// ========== 只读查询 ==========

// Status returns the latest snapshot with elapsed computed for now.
func (s *Scheduler) Status() Status {
	s.viewMu.RLock()
	view := s.view
	s.viewMu.RUnlock()
	return view.At(s.clock.Now())
}

// State returns the scheduler state as of the last transition.
func (s *Scheduler) State() State {
	s.viewMu.RLock()
	defer s.viewMu.RUnlock()
	return s.viewState
}

// Subscribe registers a listener; see Broadcaster.Subscribe.
func (s *Scheduler) Subscribe() (*Subscription, Status) {
	return s.broadcaster.Subscribe()
}

// Broadcaster exposes the fan-out topic for transport layers.
func (s *Scheduler) Broadcaster() *Broadcaster {
	return s.broadcaster
}

// ========== loop 内部 ==========

func (s *Scheduler) start() {
	switch s.state {
	case StatePlaying:
		return
	case StatePaused:
		remaining := s.remaining()
		s.startTime = s.clock.Now().Add(-s.frozen)
		s.frozen = 0
		s.state = StatePlaying
		s.arm(remaining)
		logger.Info("playback resumed", logger.Uint64("track_id", s.current.ID), logger.Duration("remaining", remaining))
		s.publish()
		return
	}

	track, err := s.nextTrack(0)
	if err != nil {
		logger.Info("radio stays idle", logger.ErrorField(err))
		return
	}
	s.load(&track)
	s.fillNext()
	s.arm(s.remaining())
	transitionsTotal.WithLabelValues(reasonStart).Inc()
	logger.Info("playback started", logger.Uint64("track_id", track.ID), logger.String("title", track.Title))
	s.publish()
}

// pause reports whether the state changed.
func (s *Scheduler) pause() bool {
	if s.state != StatePlaying {
		return false
	}
	elapsed := s.clock.Now().Sub(s.startTime)
	if elapsed < 0 {
		elapsed = 0
	}
	if d := s.effectiveDuration(s.current); elapsed > d {
		elapsed = d
	}
	s.disarm()
	s.frozen = elapsed
	s.state = StatePaused
	logger.Info("playback paused", logger.Uint64("track_id", s.current.ID), logger.Duration("elapsed", elapsed))
	return true
}

// advance swaps in the next track. Callers publish afterwards.
func (s *Scheduler) advance(reason string, bookkeep bool) {
	now := s.clock.Now()
	var previous uint64
	if s.current != nil {
		previous = s.current.ID
		if bookkeep {
			s.recordPlay(previous, now)
		}
	}

	candidate := s.next
	if candidate == nil {
		track, err := s.nextTrack(previous)
		if err != nil {
			s.goIdle(err)
			return
		}
		candidate = &track
	}

	s.load(candidate)
	s.fillNext()
	s.arm(s.remaining())
	transitionsTotal.WithLabelValues(reason).Inc()
	logger.Info("track transition",
		logger.String("reason", reason),
		logger.Uint64("from", previous),
		logger.Uint64("to", candidate.ID))
}

func (s *Scheduler) load(track *model.Track) {
	s.current = track
	s.next = nil
	s.startTime = s.clock.Now()
	s.frozen = 0
	s.state = StatePlaying
	tracksStarted.Inc()
}

// fillNext picks the upcoming track. A catalog holding only the current
// track leaves next empty.
func (s *Scheduler) fillNext() {
	s.next = nil
	if s.current == nil {
		return
	}
	track, err := s.nextTrack(s.current.ID)
	if err != nil {
		logger.Warn("no upcoming track", logger.ErrorField(err))
		return
	}
	if track.ID == s.current.ID {
		return
	}
	s.next = &track
}

// nextTrack reads the rotation under the scheduler's context, never a caller's.
func (s *Scheduler) nextTrack(avoid uint64) (model.Track, error) {
	ctx, cancel := context.WithTimeout(s.baseCtx, s.opts.ReadTimeout)
	defer cancel()
	return s.rotation.Next(ctx, avoid)
}

func (s *Scheduler) goIdle(cause error) {
	s.disarm()
	s.state = StateIdle
	s.current = nil
	s.next = nil
	s.frozen = 0
	s.startTime = time.Time{}
	logger.Warn("radio went idle", logger.ErrorField(cause))
}

func (s *Scheduler) onTimer(gen uint64) {
	err := s.dispatch(s.baseCtx, func() error {
		if gen != s.generation || s.state != StatePlaying {
			return nil
		}
		s.timer = nil
		s.advance(reasonTimer, true)
		s.publish()
		return nil
	})
	if err != nil && !errors.Is(err, ErrSchedulerClosed) && !errors.Is(err, context.Canceled) {
		logger.Warn("timer transition failed", logger.ErrorField(err))
	}
}

// arm replaces the single timer handle.
func (s *Scheduler) arm(d time.Duration) {
	s.disarm()
	gen := s.generation
	s.timer = s.clock.AfterFunc(d, func() { s.onTimer(gen) })
}

// disarm stops the armed timer and invalidates any expiry already in flight.
func (s *Scheduler) disarm() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.generation++
}

func (s *Scheduler) effectiveDuration(t *model.Track) time.Duration {
	if t == nil {
		return 0
	}
	d := t.Length()
	if d < s.opts.MinTrackDuration {
		d = s.opts.MinTrackDuration
	}
	return d
}

func (s *Scheduler) remaining() time.Duration {
	d := s.effectiveDuration(s.current) - s.frozen
	if d < 0 {
		d = 0
	}
	return d
}

func (s *Scheduler) recordPlay(id uint64, playedAt time.Time) {
	s.bookkeeping.Add(1)
	go func() {
		defer s.bookkeeping.Done()
		ctx, cancel := context.WithTimeout(context.Background(), s.opts.BookkeepingTimeout)
		defer cancel()
		if err := s.catalog.IncrementPlay(ctx, id, playedAt); err != nil {
			err = fmt.Errorf("%w: track %d: %v", ErrBookkeeping, id, err)
			bookkeepingFailures.Inc()
			logger.Warn("play count not recorded", logger.Uint64("track_id", id), logger.ErrorField(err))
		}
	}()
}

// publish snapshots the loop state and fans it out.
func (s *Scheduler) publish() {
	now := s.clock.Now()
	view := idleStatus(now)
	if s.current != nil {
		start := s.startTime
		view.CurrentTrack = copyTrack(s.current)
		view.NextTrack = copyTrack(s.next)
		view.IsPlaying = s.state == StatePlaying
		view.StartTime = &start
		view.DurationMs = s.effectiveDuration(s.current).Milliseconds()
		if view.IsPlaying {
			view = view.At(now)
		} else {
			view.ElapsedMs = s.frozen.Milliseconds()
		}
	}

	s.viewMu.Lock()
	s.view = view
	s.viewState = s.state
	s.viewMu.Unlock()

	stateGauge.Set(float64(s.state))
	s.broadcaster.Publish(view)
}
