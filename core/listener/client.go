package listener

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"OnAirFM/core/radio"
	"OnAirFM/logger"

	"github.com/gorilla/websocket"
)

const (
	DefaultMinBackoff = 500 * time.Millisecond
	DefaultMaxBackoff = 30 * time.Second
	updateBufferSize  = 16
	closeWait         = time.Second
)

// Options 客户端配置
type Options struct {
	Header     http.Header
	Dialer     *websocket.Dialer
	MinBackoff time.Duration
	MaxBackoff time.Duration
	Now        func() time.Time
}

// Client 收听端同步适配器：连接电台 WebSocket，断线重连并重新同步，
// 在两次推送之间按本地时钟估算播放进度
type Client struct {
	url    string
	header http.Header
	dialer *websocket.Dialer

	minBackoff time.Duration
	maxBackoff time.Duration
	now        func() time.Time

	mu         sync.RWMutex
	last       radio.Status
	receivedAt time.Time
	hasStatus  bool

	updates   chan radio.Status
	connected atomic.Bool
	syncs     atomic.Int64
}

// NewClient 创建客户端，url 形如 ws://host:port/ws/radio
func NewClient(url string, opts Options) *Client {
	if opts.Dialer == nil {
		opts.Dialer = websocket.DefaultDialer
	}
	if opts.MinBackoff <= 0 {
		opts.MinBackoff = DefaultMinBackoff
	}
	if opts.MaxBackoff < opts.MinBackoff {
		opts.MaxBackoff = DefaultMaxBackoff
		if opts.MaxBackoff < opts.MinBackoff {
			opts.MaxBackoff = opts.MinBackoff
		}
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Client{
		url:        url,
		header:     opts.Header,
		dialer:     opts.Dialer,
		minBackoff: opts.MinBackoff,
		maxBackoff: opts.MaxBackoff,
		now:        opts.Now,
		updates:    make(chan radio.Status, updateBufferSize),
	}
}

// Updates 每收到一次快照推送一次。缓冲区满时丢弃最旧的，Run 返回后关闭
func (c *Client) Updates() <-chan radio.Status {
	return c.updates
}

// Connected 当前是否在线
func (c *Client) Connected() bool {
	return c.connected.Load()
}

// Syncs 已发出的同步请求次数，每次（重新）连接一次
func (c *Client) Syncs() int64 {
	return c.syncs.Load()
}

// Now 返回按本地经过时间推算的当前状态。还没收到任何快照时 ok 为 false
func (c *Client) Now() (status radio.Status, ok bool) {
	c.mu.RLock()
	status, at, ok := c.last, c.receivedAt, c.hasStatus
	c.mu.RUnlock()
	if !ok {
		return radio.Status{}, false
	}

	delta := c.now().Sub(at).Milliseconds()
	if delta < 0 {
		delta = 0
	}
	status.ServerTime += delta
	if !status.IsPlaying {
		return status, true
	}

	elapsed := status.ElapsedMs + delta
	if elapsed < 0 {
		elapsed = 0
	}
	if status.DurationMs > 0 && elapsed > status.DurationMs {
		elapsed = status.DurationMs
	}
	status.ElapsedMs = elapsed
	return status, true
}

// Run 保持连接直到 ctx 取消，断线后按指数退避重连
func (c *Client) Run(ctx context.Context) error {
	defer close(c.updates)

	backoff := c.minBackoff
	for {
		connected, err := c.session(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if connected {
			backoff = c.minBackoff
		}
		logger.Warn("radio connection lost, reconnecting",
			logger.String("url", c.url),
			logger.Duration("backoff", backoff),
			logger.ErrorField(err))

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
		backoff = nextBackoff(backoff, c.maxBackoff)
	}
}

// session 一次连接的完整生命周期，返回是否曾连接成功
func (c *Client) session(ctx context.Context) (bool, error) {
	conn, _, err := c.dialer.DialContext(ctx, c.url, c.header)
	if err != nil {
		return false, fmt.Errorf("dial %s: %w", c.url, err)
	}
	defer conn.Close()

	c.connected.Store(true)
	defer c.connected.Store(false)
	logger.Info("connected to radio", logger.String("url", c.url))

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(closeWait))
			conn.Close()
		case <-stop:
		}
	}()

	// 每次连上都重新请求快照，不依赖断线前的状态
	c.syncs.Add(1)
	if err := conn.WriteJSON(radio.Message{Type: radio.MsgTypeSync, Timestamp: c.now().UnixMilli()}); err != nil {
		return true, fmt.Errorf("request sync: %w", err)
	}

	for {
		var msg radio.Message
		if err := conn.ReadJSON(&msg); err != nil {
			return true, err
		}
		switch msg.Type {
		case radio.MsgTypeSync, radio.MsgTypeUpdate:
			status, err := msg.DecodeStatus()
			if err != nil {
				logger.Warn("invalid status from server", logger.ErrorField(err))
				continue
			}
			c.apply(status)
		case radio.MsgTypeError:
			logger.Warn("server reported error", logger.String("data", string(msg.Data)))
		}
	}
}

func (c *Client) apply(status radio.Status) {
	c.mu.Lock()
	c.last = status
	c.receivedAt = c.now()
	c.hasStatus = true
	c.mu.Unlock()

	for {
		select {
		case c.updates <- status:
			return
		default:
		}
		select {
		case <-c.updates:
		default:
		}
	}
}

func nextBackoff(cur, max time.Duration) time.Duration {
	next := cur * 2
	if next > max || next <= 0 {
		return max
	}
	return next
}

// ErrNoStatus 尚未收到快照
var ErrNoStatus = errors.New("no status received yet")

// WaitForStatus 阻塞直到收到第一份快照或 ctx 取消
func (c *Client) WaitForStatus(ctx context.Context) (radio.Status, error) {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for {
		if status, ok := c.Now(); ok {
			return status, nil
		}
		select {
		case <-ctx.Done():
			return radio.Status{}, fmt.Errorf("%w: %v", ErrNoStatus, ctx.Err())
		case <-ticker.C:
		}
	}
}
