package radio

import (
	"sync"
	"sync/atomic"

	"OnAirFM/logger"

	"github.com/google/uuid"
)

// DefaultQueueSize 每个订阅者的默认队列长度
const DefaultQueueSize = 16

// Subscription 一个订阅者的更新队列
type Subscription struct {
	ID      string
	updates chan Status
	dropped atomic.Int64
	closed  bool // guarded by Broadcaster.mu
	owner   *Broadcaster
}

// Updates returns the delivery channel. It is closed when the subscription ends.
func (s *Subscription) Updates() <-chan Status {
	return s.updates
}

// Dropped returns how many updates were discarded because the queue was full.
func (s *Subscription) Dropped() int64 {
	return s.dropped.Load()
}

// Close unsubscribes. Calling it more than once is harmless.
func (s *Subscription) Close() {
	s.owner.unsubscribe(s)
}

// Broadcaster 单写者、多订阅者的状态分发。Publish 从不阻塞：
// 队列满时丢弃最旧的一条，保留最新状态。
type Broadcaster struct {
	mu        sync.Mutex
	subs      map[string]*Subscription
	last      Status
	queueSize int
	clock     Clock
	closed    bool
}

// NewBroadcaster creates a broadcaster whose snapshot starts as "nothing playing".
func NewBroadcaster(queueSize int, clock Clock) *Broadcaster {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	if clock == nil {
		clock = SystemClock()
	}
	return &Broadcaster{
		subs:      make(map[string]*Subscription),
		last:      idleStatus(clock.Now()),
		queueSize: queueSize,
		clock:     clock,
	}
}

// Publish records status as the latest snapshot and fans it out.
func (b *Broadcaster) Publish(status Status) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.last = status
	for _, sub := range b.subs {
		b.enqueue(sub, status)
	}
}

// enqueue must be called with b.mu held.
func (b *Broadcaster) enqueue(sub *Subscription, status Status) {
	for {
		select {
		case sub.updates <- status:
			return
		default:
		}
		// 队列已满，丢弃最旧的一条再重试
		select {
		case <-sub.updates:
			sub.dropped.Add(1)
			droppedUpdates.Inc()
		default:
		}
	}
}

// Subscribe registers a new subscriber and returns it together with the
// current snapshot, taken under the same lock so no update falls in between.
func (b *Broadcaster) Subscribe() (*Subscription, Status) {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub := &Subscription{
		ID:      uuid.New().String(),
		updates: make(chan Status, b.queueSize),
		owner:   b,
	}
	if b.closed {
		sub.closed = true
		close(sub.updates)
		return sub, b.last.At(b.clock.Now())
	}
	b.subs[sub.ID] = sub
	subscribersGauge.Inc()
	logger.Debug("broadcast subscriber joined", logger.String("subscription", sub.ID), logger.Int("subscribers", len(b.subs)))
	return sub, b.last.At(b.clock.Now())
}

// Snapshot returns the latest published status recomputed for now.
func (b *Broadcaster) Snapshot() Status {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.last.At(b.clock.Now())
}

// Len returns the number of live subscriptions.
func (b *Broadcaster) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

func (b *Broadcaster) unsubscribe(sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if sub.closed {
		return
	}
	sub.closed = true
	delete(b.subs, sub.ID)
	close(sub.updates)
	subscribersGauge.Dec()
}

// Close ends every subscription. Later Publish calls are ignored.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, sub := range b.subs {
		sub.closed = true
		close(sub.updates)
		delete(b.subs, id)
		subscribersGauge.Dec()
	}
}
