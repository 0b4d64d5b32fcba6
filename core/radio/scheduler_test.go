package radio

import (
	"context"
	"errors"
	"math/rand"
	"testing"
	"time"

	"OnAirFM/model"
	"OnAirFM/repository"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func mustStart(t *testing.T, s *Scheduler) Status {
	t.Helper()
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	return s.Status()
}

func assertIdle(t *testing.T, st Status) {
	t.Helper()
	if st.CurrentTrack != nil || st.NextTrack != nil || st.IsPlaying || st.StartTime != nil {
		t.Fatalf("status = %+v, want all-null idle", st)
	}
}

func TestStartWithTwoTracksRingScenario(t *testing.T) {
	catalog := newMemCatalog(120, 90)
	s, clock := newTestScheduler(t, catalog, false)

	st := mustStart(t, s)
	if !st.IsPlaying || st.CurrentTrack == nil || st.NextTrack == nil {
		t.Fatalf("after Start: %+v", st)
	}
	first, second := st.CurrentTrack.ID, st.NextTrack.ID
	if first == second {
		t.Fatalf("current and next are both %d", first)
	}
	if st.ElapsedMs != 0 {
		t.Errorf("ElapsedMs at start = %d, want 0", st.ElapsedMs)
	}

	clock.Advance(st.CurrentTrack.Length())
	st = s.Status()
	if trackID(st.CurrentTrack) != second || trackID(st.NextTrack) != first {
		t.Fatalf("after first transition current=%d next=%d, want %d/%d",
			trackID(st.CurrentTrack), trackID(st.NextTrack), second, first)
	}

	clock.Advance(st.CurrentTrack.Length())
	st = s.Status()
	if trackID(st.CurrentTrack) != first || trackID(st.NextTrack) != second {
		t.Errorf("after second transition current=%d next=%d, want %d/%d",
			trackID(st.CurrentTrack), trackID(st.NextTrack), first, second)
	}
}

func TestStartIsIdempotent(t *testing.T) {
	s, clock := newTestScheduler(t, newMemCatalog(120, 90, 60), false)
	st := mustStart(t, s)
	clock.Advance(10 * time.Second)

	again := mustStart(t, s)
	if trackID(again.CurrentTrack) != trackID(st.CurrentTrack) {
		t.Errorf("second Start changed the track")
	}
	if again.ElapsedMs != 10000 {
		t.Errorf("ElapsedMs = %d, want 10000", again.ElapsedMs)
	}
	if n := clock.pending(); n != 1 {
		t.Errorf("armed timers = %d, want 1", n)
	}
}

func TestTransitionsVisitEveryTrackOnce(t *testing.T) {
	for _, seed := range []int64{1, 2, 3, 99} {
		catalog := newMemCatalog(30, 45, 60, 75, 90, 105)
		clock := newManualClock()
		s := NewScheduler(catalog, Options{Clock: clock, Rand: rand.New(rand.NewSource(seed))})
		if err := s.Initialize(context.Background()); err != nil {
			t.Fatalf("Initialize: %v", err)
		}

		st := mustStart(t, s)
		seen := map[uint64]bool{st.CurrentTrack.ID: true}
		for i := 1; i < 6; i++ {
			clock.Advance(st.CurrentTrack.Length())
			st = s.Status()
			id := trackID(st.CurrentTrack)
			if seen[id] {
				t.Fatalf("seed %d: track %d repeated after %d transitions", seed, id, i)
			}
			seen[id] = true
		}
		if len(seen) != 6 {
			t.Errorf("seed %d: visited %d tracks, want 6", seed, len(seen))
		}
		_ = s.Shutdown(context.Background())
	}
}

func TestEmptyCatalogStartStaysIdle(t *testing.T) {
	s, clock := newTestScheduler(t, newMemCatalog(), false)

	assertIdle(t, mustStart(t, s))
	if n := clock.pending(); n != 0 {
		t.Fatalf("armed timers = %d, want 0", n)
	}
	clock.Advance(time.Hour)
	assertIdle(t, s.Status())
	if s.State() != StateIdle {
		t.Errorf("State = %v, want idle", s.State())
	}
}

func TestAddTrackToIdleScheduler(t *testing.T) {
	catalog := newMemCatalog()
	s, _ := newTestScheduler(t, catalog, false)
	ctx := context.Background()

	assertIdle(t, mustStart(t, s))
	track, err := s.AddTrack(ctx, model.TrackInput{Title: "Summer Vibes", Artist: "DJ Cool", Duration: 180})
	if err != nil {
		t.Fatalf("AddTrack: %v", err)
	}
	// 未开启自动开播时保持空闲
	assertIdle(t, s.Status())

	st := mustStart(t, s)
	if trackID(st.CurrentTrack) != track.ID || !st.IsPlaying {
		t.Fatalf("current = %d playing=%v, want %d playing", trackID(st.CurrentTrack), st.IsPlaying, track.ID)
	}
	if st.NextTrack != nil {
		t.Errorf("single-track catalog next = %d, want nil", trackID(st.NextTrack))
	}
}

func TestAddTrackAutoStarts(t *testing.T) {
	s, _ := newTestScheduler(t, newMemCatalog(), true)
	assertIdle(t, s.Status())

	track, err := s.AddTrack(context.Background(), model.TrackInput{Title: "Night Drive", Artist: "Midnight Cruisers", Duration: 240})
	if err != nil {
		t.Fatalf("AddTrack: %v", err)
	}
	st := s.Status()
	if trackID(st.CurrentTrack) != track.ID || !st.IsPlaying {
		t.Errorf("after AddTrack current = %d playing=%v", trackID(st.CurrentTrack), st.IsPlaying)
	}
}

func TestAddTrackFillsMissingNext(t *testing.T) {
	s, _ := newTestScheduler(t, newMemCatalog(120), false)
	st := mustStart(t, s)
	if st.NextTrack != nil {
		t.Fatalf("next = %d, want nil", trackID(st.NextTrack))
	}

	track, err := s.AddTrack(context.Background(), model.TrackInput{Title: "Morning Coffee", Artist: "Chill Beats", Duration: 210})
	if err != nil {
		t.Fatalf("AddTrack: %v", err)
	}
	st = s.Status()
	if trackID(st.NextTrack) != track.ID {
		t.Errorf("next = %d, want %d", trackID(st.NextTrack), track.ID)
	}
	if trackID(st.CurrentTrack) == track.ID {
		t.Error("adding a track must not interrupt the current one")
	}
}

func TestAddTrackRejectsInvalidInput(t *testing.T) {
	s, _ := newTestScheduler(t, newMemCatalog(), true)
	if _, err := s.AddTrack(context.Background(), model.TrackInput{Artist: "nobody"}); !errors.Is(err, model.ErrTitleRequired) {
		t.Errorf("AddTrack = %v, want ErrTitleRequired", err)
	}
	assertIdle(t, s.Status())
}

func TestRemoveCurrentTrackSkipsAhead(t *testing.T) {
	catalog := newMemCatalog(120, 90, 60)
	s, clock := newTestScheduler(t, catalog, false)
	ctx := context.Background()

	st := mustStart(t, s)
	removed := st.CurrentTrack.ID
	expected := st.NextTrack.ID
	clock.Advance(20 * time.Second)

	if err := s.RemoveTrack(ctx, removed); err != nil {
		t.Fatalf("RemoveTrack: %v", err)
	}
	st = s.Status()
	if trackID(st.CurrentTrack) != expected {
		t.Fatalf("current = %d, want former next %d", trackID(st.CurrentTrack), expected)
	}
	if st.ElapsedMs != 0 {
		t.Errorf("ElapsedMs after forced transition = %d, want 0", st.ElapsedMs)
	}
	if n := clock.pending(); n != 1 {
		t.Errorf("armed timers = %d, want 1", n)
	}

	for i := 0; i < 10; i++ {
		if trackID(st.CurrentTrack) == removed || trackID(st.NextTrack) == removed {
			t.Fatalf("removed track %d reappeared after %d transitions", removed, i)
		}
		clock.Advance(st.CurrentTrack.Length())
		st = s.Status()
	}

	// 强制切换不计入播放次数
	s.bookkeeping.Wait()
	for _, id := range catalog.plays() {
		if id == removed {
			t.Errorf("removed track %d was counted as played", removed)
		}
	}
}

func TestRemoveNextTrackRecomputesNext(t *testing.T) {
	s, _ := newTestScheduler(t, newMemCatalog(120, 90, 60), false)
	st := mustStart(t, s)
	current, removed := st.CurrentTrack.ID, st.NextTrack.ID

	if err := s.RemoveTrack(context.Background(), removed); err != nil {
		t.Fatalf("RemoveTrack: %v", err)
	}
	st = s.Status()
	if trackID(st.CurrentTrack) != current {
		t.Errorf("current changed to %d", trackID(st.CurrentTrack))
	}
	if st.NextTrack == nil || st.NextTrack.ID == removed || st.NextTrack.ID == current {
		t.Errorf("next = %d, want the remaining track", trackID(st.NextTrack))
	}
}

func TestRemoveAllTracksGoesIdle(t *testing.T) {
	catalog := newMemCatalog(120, 90, 60)
	s, clock := newTestScheduler(t, catalog, false)
	ctx := context.Background()
	mustStart(t, s)

	sub, _ := s.Subscribe()
	defer sub.Close()

	for _, id := range []uint64{1, 2, 3} {
		if err := s.RemoveTrack(ctx, id); err != nil {
			t.Fatalf("RemoveTrack(%d): %v", id, err)
		}
	}
	assertIdle(t, s.Status())
	if n := clock.pending(); n != 0 {
		t.Errorf("armed timers = %d, want 0", n)
	}

	var last Status
	for len(sub.Updates()) > 0 {
		last = <-sub.Updates()
	}
	assertIdle(t, last)
}

func TestElapsedMonotonicAndResetsOnTransition(t *testing.T) {
	s, clock := newTestScheduler(t, newMemCatalog(60, 60), false)
	st := mustStart(t, s)
	first := st.CurrentTrack.ID

	var prev int64 = -1
	for i := 0; i < 59; i++ {
		clock.Advance(time.Second)
		st = s.Status()
		if st.ElapsedMs < prev {
			t.Fatalf("elapsed went backwards: %d -> %d", prev, st.ElapsedMs)
		}
		if st.ElapsedMs > st.DurationMs {
			t.Fatalf("elapsed %d beyond duration %d", st.ElapsedMs, st.DurationMs)
		}
		prev = st.ElapsedMs
	}
	clock.Advance(time.Second)
	st = s.Status()
	if trackID(st.CurrentTrack) == first {
		t.Fatal("no transition at track end")
	}
	if st.ElapsedMs != 0 {
		t.Errorf("ElapsedMs after transition = %d, want 0", st.ElapsedMs)
	}
}

func TestPauseAndResume(t *testing.T) {
	s, clock := newTestScheduler(t, newMemCatalog(120, 90), false)
	ctx := context.Background()
	st := mustStart(t, s)
	current := st.CurrentTrack.ID

	clock.Advance(30 * time.Second)
	if err := s.Pause(ctx); err != nil {
		t.Fatalf("Pause: %v", err)
	}
	if n := clock.pending(); n != 0 {
		t.Fatalf("armed timers while paused = %d, want 0", n)
	}

	clock.Advance(time.Hour)
	st = s.Status()
	if st.IsPlaying || trackID(st.CurrentTrack) != current || st.ElapsedMs != 30000 {
		t.Fatalf("paused status = %+v", st)
	}
	if s.State() != StatePaused {
		t.Errorf("State = %v, want paused", s.State())
	}

	st = mustStart(t, s)
	if !st.IsPlaying || st.ElapsedMs != 30000 {
		t.Fatalf("resumed status playing=%v elapsed=%d", st.IsPlaying, st.ElapsedMs)
	}

	remaining := st.CurrentTrack.Length() - 30*time.Second
	clock.Advance(remaining - time.Second)
	if trackID(s.Status().CurrentTrack) != current {
		t.Fatal("transition fired before the remaining time elapsed")
	}
	clock.Advance(time.Second)
	if trackID(s.Status().CurrentTrack) == current {
		t.Error("no transition after the remaining time elapsed")
	}
}

func TestSkipCancelsPreviousTimer(t *testing.T) {
	catalog := newMemCatalog(120, 90, 60)
	s, clock := newTestScheduler(t, catalog, false)
	ctx := context.Background()

	st := mustStart(t, s)
	skipped := st.CurrentTrack.ID
	clock.Advance(10 * time.Second)

	if err := s.Skip(ctx); err != nil {
		t.Fatalf("Skip: %v", err)
	}
	st = s.Status()
	if trackID(st.CurrentTrack) == skipped {
		t.Fatal("Skip did not advance")
	}
	if n := clock.pending(); n != 1 {
		t.Fatalf("armed timers = %d, want 1", n)
	}
	now := st.CurrentTrack.ID

	clock.Advance(st.CurrentTrack.Length() - time.Second)
	if trackID(s.Status().CurrentTrack) != now {
		t.Error("superseded timer fired early")
	}

	s.bookkeeping.Wait()
	plays := catalog.plays()
	if len(plays) != 1 || plays[0] != skipped {
		t.Errorf("plays = %v, want [%d]", plays, skipped)
	}
}

func TestSkipFromIdleStarts(t *testing.T) {
	s, _ := newTestScheduler(t, newMemCatalog(120), false)
	if err := s.Skip(context.Background()); err != nil {
		t.Fatalf("Skip: %v", err)
	}
	if !s.Status().IsPlaying {
		t.Error("Skip on an idle scheduler should start playback")
	}
}

func TestBookkeepingFailureDoesNotStall(t *testing.T) {
	catalog := newMemCatalog(60, 60)
	catalog.playErr = errors.New("deadlock found when trying to get lock")
	s, clock := newTestScheduler(t, catalog, false)

	st := mustStart(t, s)
	first := st.CurrentTrack.ID
	clock.Advance(time.Minute)
	st = s.Status()
	if trackID(st.CurrentTrack) == first || !st.IsPlaying {
		t.Fatalf("transition stalled: %+v", st)
	}
	s.bookkeeping.Wait()
	if plays := catalog.plays(); len(plays) != 1 || plays[0] != first {
		t.Errorf("plays = %v, want [%d]", plays, first)
	}
}

func TestCatalogFailureDuringTransitionGoesIdle(t *testing.T) {
	catalog := newMemCatalog(60)
	s, clock := newTestScheduler(t, catalog, false)
	mustStart(t, s)

	catalog.mu.Lock()
	catalog.listErr = errors.New("connection reset")
	catalog.mu.Unlock()

	// 单曲时 next 为空，切换需要重新读取曲库
	if _, err := s.AddTrack(context.Background(), model.TrackInput{Title: "x", Artist: "y", Duration: 30}); err != nil {
		t.Fatalf("AddTrack: %v", err)
	}
	clock.Advance(time.Minute)
	assertIdle(t, s.Status())

	catalog.mu.Lock()
	catalog.listErr = nil
	catalog.mu.Unlock()
	if st := mustStart(t, s); !st.IsPlaying {
		t.Error("Start after recovery should play")
	}
}

func TestZeroDurationTrackUsesMinimum(t *testing.T) {
	s, clock := newTestScheduler(t, newMemCatalog(0, 0), false)
	st := mustStart(t, s)
	if st.DurationMs != 1000 {
		t.Fatalf("DurationMs = %d, want 1000", st.DurationMs)
	}
	first := st.CurrentTrack.ID

	clock.Advance(999 * time.Millisecond)
	if trackID(s.Status().CurrentTrack) != first {
		t.Fatal("zero-length track ended before the minimum")
	}
	clock.Advance(time.Millisecond)
	if trackID(s.Status().CurrentTrack) == first {
		t.Error("zero-length track never ended")
	}
}

func TestSubscribersReceiveTransitions(t *testing.T) {
	s, clock := newTestScheduler(t, newMemCatalog(60, 60), false)
	sub, snap := s.Subscribe()
	defer sub.Close()
	assertIdle(t, snap)

	mustStart(t, s)
	started := <-sub.Updates()
	if !started.IsPlaying {
		t.Fatalf("first update = %+v, want playing", started)
	}

	clock.Advance(time.Minute)
	next := <-sub.Updates()
	if trackID(next.CurrentTrack) != trackID(started.NextTrack) {
		t.Errorf("update current = %d, want %d", trackID(next.CurrentTrack), trackID(started.NextTrack))
	}

	late, snap := s.Subscribe()
	defer late.Close()
	if trackID(snap.CurrentTrack) != trackID(next.CurrentTrack) {
		t.Errorf("late join snapshot = %d, want %d", trackID(snap.CurrentTrack), trackID(next.CurrentTrack))
	}
}

func TestLifecycleErrors(t *testing.T) {
	s := NewScheduler(newMemCatalog(60), Options{Clock: newManualClock()})
	if err := s.Start(context.Background()); !errors.Is(err, ErrSchedulerNotRunning) {
		t.Errorf("Start before Initialize = %v, want ErrSchedulerNotRunning", err)
	}

	if err := s.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	sub, _ := s.Subscribe()
	if err := s.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if err := s.Shutdown(context.Background()); err != nil {
		t.Errorf("second Shutdown: %v", err)
	}
	if _, ok := <-sub.Updates(); ok {
		t.Error("subscription should be closed on shutdown")
	}
	if err := s.Start(context.Background()); !errors.Is(err, ErrSchedulerClosed) {
		t.Errorf("Start after Shutdown = %v, want ErrSchedulerClosed", err)
	}
	if err := s.RemoveTrack(context.Background(), 1); !errors.Is(err, ErrSchedulerClosed) {
		t.Errorf("RemoveTrack after Shutdown = %v, want ErrSchedulerClosed", err)
	}
}

func TestInitializeAutoStart(t *testing.T) {
	s, _ := newTestScheduler(t, newMemCatalog(60, 60), true)
	if !s.Status().IsPlaying {
		t.Error("AutoStart scheduler should be playing after Initialize")
	}
	queue, err := s.Queue(context.Background())
	if err != nil {
		t.Fatalf("Queue: %v", err)
	}
	if len(queue) != 2 {
		t.Fatalf("Queue = %v, want 2 ids", queue)
	}
	st := s.Status()
	if queue[0] != trackID(st.CurrentTrack) || queue[1] != trackID(st.NextTrack) {
		t.Errorf("Queue = %v, want current %d then next %d at the tail", queue, trackID(st.CurrentTrack), trackID(st.NextTrack))
	}
}

// cancelledContext 命令交给 loop 之后请求就被取消的上下文
type cancelledContext struct{ context.Context }

func (cancelledContext) Done() <-chan struct{} { return nil }
func (cancelledContext) Err() error            { return context.Canceled }

func TestControlSurvivesCancelledRequest(t *testing.T) {
	catalog := newMemCatalog(120, 90, 60)
	s, _ := newTestScheduler(t, catalog, false)
	st := mustStart(t, s)
	gone := cancelledContext{context.Background()}

	next := trackID(st.NextTrack)
	if err := s.RemoveTrack(gone, next); err != nil {
		t.Fatalf("RemoveTrack(next): %v", err)
	}
	st = s.Status()
	if st.NextTrack == nil || trackID(st.NextTrack) == next || trackID(st.NextTrack) == trackID(st.CurrentTrack) {
		t.Fatalf("after removing next: %+v", st)
	}

	remaining := trackID(st.NextTrack)
	if err := s.RemoveTrack(gone, trackID(st.CurrentTrack)); err != nil {
		t.Fatalf("RemoveTrack(current): %v", err)
	}
	st = s.Status()
	if !st.IsPlaying || trackID(st.CurrentTrack) != remaining {
		t.Fatalf("after removing current: %+v, want %d on air", st, remaining)
	}

	added, err := s.AddTrack(gone, model.TrackInput{Title: "Night Drive", Artist: "Midnight Cruisers", Duration: 240})
	if err != nil {
		t.Fatalf("AddTrack: %v", err)
	}
	if st = s.Status(); trackID(st.NextTrack) != added.ID {
		t.Fatalf("next = %d, want added track %d", trackID(st.NextTrack), added.ID)
	}

	if err := s.Skip(gone); err != nil {
		t.Fatalf("Skip: %v", err)
	}
	if st = s.Status(); !st.IsPlaying || trackID(st.CurrentTrack) != added.ID || trackID(st.NextTrack) != remaining {
		t.Errorf("after skip: %+v", st)
	}
}

// invalidateRing removes a track that is neither current nor next so the
// following transition has to reread the catalog.
func invalidateRing(t *testing.T, s *Scheduler, catalog *memCatalog) {
	t.Helper()
	st := s.Status()
	for id := uint64(1); id <= 3; id++ {
		if id != trackID(st.CurrentTrack) && id != trackID(st.NextTrack) {
			if err := s.RemoveTrack(context.Background(), id); err != nil {
				t.Fatalf("RemoveTrack(%d): %v", id, err)
			}
			return
		}
	}
	t.Fatalf("no spare track in %+v", st)
}

func TestCatalogReadIsBounded(t *testing.T) {
	catalog := newMemCatalog(120, 90, 60)
	s, _ := newSchedulerWithOptions(t, catalog, Options{ReadTimeout: 50 * time.Millisecond})
	st := mustStart(t, s)
	invalidateRing(t, s, catalog)

	_, release := catalog.blockReads(true)
	defer release()

	begin := time.Now()
	if err := s.Skip(context.Background()); err != nil {
		t.Fatalf("Skip: %v", err)
	}
	if d := time.Since(begin); d > 2*time.Second {
		t.Fatalf("Skip took %v", d)
	}
	after := s.Status()
	if !after.IsPlaying || trackID(after.CurrentTrack) != trackID(st.NextTrack) {
		t.Errorf("after skip: %+v, want %d on air", after, trackID(st.NextTrack))
	}
	if after.NextTrack != nil {
		t.Errorf("next = %d, want none while the catalog is unreachable", trackID(after.NextTrack))
	}
}

func TestShutdownCancelsCatalogRead(t *testing.T) {
	catalog := newMemCatalog(120, 90, 60)
	s, clock := newSchedulerWithOptions(t, catalog, Options{ReadTimeout: time.Hour})
	st := mustStart(t, s)
	invalidateRing(t, s, catalog)

	entered, release := catalog.blockReads(true)
	defer release()

	// 定时器到期后的切歌卡在读取曲库上
	advanced := make(chan struct{})
	go func() {
		clock.Advance(time.Duration(st.CurrentTrack.Duration) * time.Second)
		close(advanced)
	}()
	select {
	case <-entered:
	case <-time.After(2 * time.Second):
		t.Fatal("timer transition never reached the catalog")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	select {
	case <-advanced:
	case <-time.After(time.Second):
		t.Fatal("timer callback still blocked after Shutdown")
	}
}

func TestShutdownHonorsDeadline(t *testing.T) {
	catalog := newMemCatalog(120, 90, 60)
	s, _ := newSchedulerWithOptions(t, catalog, Options{ReadTimeout: time.Hour})
	sub, _ := s.Subscribe()
	mustStart(t, s)
	invalidateRing(t, s, catalog)

	// 这次读取不理会 ctx
	entered, release := catalog.blockReads(false)
	defer release()

	go s.Skip(context.Background())
	select {
	case <-entered:
	case <-time.After(2 * time.Second):
		t.Fatal("Skip never reached the catalog")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- s.Shutdown(ctx) }()
	select {
	case err := <-done:
		if !errors.Is(err, context.DeadlineExceeded) {
			t.Errorf("Shutdown = %v, want context.DeadlineExceeded", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Shutdown ignored its deadline")
	}

	for range sub.Updates() {
	}
	if err := s.Start(context.Background()); !errors.Is(err, ErrSchedulerClosed) {
		t.Errorf("Start after Shutdown = %v, want ErrSchedulerClosed", err)
	}
}

func TestSchedulerWithGormCatalog(t *testing.T) {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Silent)})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	// :memory: 每个连接都是独立数据库
	sqlDB, _ := db.DB()
	sqlDB.SetMaxOpenConns(1)
	if err := db.AutoMigrate(&model.Track{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	repo := repository.NewGormTrackRepository(db)
	s, clock := newTestScheduler(t, repo, true)
	ctx := context.Background()

	a, err := s.AddTrack(ctx, model.TrackInput{Title: "Summer Vibes", Artist: "DJ Cool", Genre: "House", Duration: 180})
	if err != nil {
		t.Fatalf("AddTrack: %v", err)
	}
	if _, err := s.AddTrack(ctx, model.TrackInput{Title: "Night Drive", Artist: "Midnight Cruisers", Genre: "Synthwave", Duration: 240}); err != nil {
		t.Fatalf("AddTrack: %v", err)
	}
	if trackID(s.Status().CurrentTrack) != a.ID {
		t.Fatalf("current = %d, want %d", trackID(s.Status().CurrentTrack), a.ID)
	}

	clock.Advance(3 * time.Minute)
	s.bookkeeping.Wait()

	got, err := repo.GetByID(ctx, a.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.PlayCount != 1 || got.LastPlayed == nil {
		t.Errorf("PlayCount=%d LastPlayed=%v, want 1 and set", got.PlayCount, got.LastPlayed)
	}
}
