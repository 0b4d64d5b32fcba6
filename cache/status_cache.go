package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"OnAirFM/config"
	"OnAirFM/core/radio"
	"OnAirFM/logger"

	"github.com/go-redis/redis/v8"
)

const (
	defaultStatusKey     = "radio:status"
	defaultStatusChannel = "radio:update"
	defaultStatusTTL     = 24 * time.Hour
)

// ErrNoStatus Redis 中还没有快照
var ErrNoStatus = errors.New("no status cached")

// StatusCache 把播出快照镜像到 Redis：key 保存最新快照，频道推送每次变化，
// 供其他进程或 CLI 读取
type StatusCache struct {
	client  *redis.Client
	key     string
	channel string
	ttl     time.Duration
}

// NewStatusCache 创建状态缓存
func NewStatusCache(client *redis.Client, cfg *config.Config) *StatusCache {
	c := &StatusCache{
		client:  client,
		key:     cfg.StatusCacheKey,
		channel: cfg.StatusChannel,
		ttl:     cfg.StatusCacheTTL,
	}
	if c.key == "" {
		c.key = defaultStatusKey
	}
	if c.channel == "" {
		c.channel = defaultStatusChannel
	}
	if c.ttl <= 0 {
		c.ttl = defaultStatusTTL
	}
	return c
}

// Save 写入最新快照并发布到频道
func (c *StatusCache) Save(ctx context.Context, status radio.Status) error {
	if c.client == nil {
		return fmt.Errorf("Redis client not initialized")
	}
	data, err := json.Marshal(status)
	if err != nil {
		return fmt.Errorf("failed to marshal status: %w", err)
	}

	pipe := c.client.Pipeline()
	pipe.Set(ctx, c.key, data, c.ttl)
	pipe.Publish(ctx, c.channel, data)
	_, err = pipe.Exec(ctx)
	return err
}

// Latest 读取最新快照，并按当前时间重新计算进度
func (c *StatusCache) Latest(ctx context.Context) (radio.Status, error) {
	if c.client == nil {
		return radio.Status{}, fmt.Errorf("Redis client not initialized")
	}
	data, err := c.client.Get(ctx, c.key).Bytes()
	if err == redis.Nil {
		return radio.Status{}, ErrNoStatus
	}
	if err != nil {
		return radio.Status{}, fmt.Errorf("failed to get status: %w", err)
	}
	status, err := decodeStatus(data)
	if err != nil {
		return radio.Status{}, err
	}
	return status.At(time.Now()), nil
}

// Watch 订阅状态频道，直到 ctx 结束
func (c *StatusCache) Watch(ctx context.Context, fn func(radio.Status)) error {
	if c.client == nil {
		return fmt.Errorf("Redis client not initialized")
	}
	pubsub := c.client.Subscribe(ctx, c.channel)
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("failed to subscribe %s: %w", c.channel, err)
	}

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			status, err := decodeStatus([]byte(msg.Payload))
			if err != nil {
				logger.Warn("skip malformed status message", logger.ErrorField(err))
				continue
			}
			fn(status)
		}
	}
}

func decodeStatus(data []byte) (radio.Status, error) {
	var status radio.Status
	if err := json.Unmarshal(data, &status); err != nil {
		return radio.Status{}, fmt.Errorf("failed to unmarshal status: %w", err)
	}
	return status, nil
}

// StatusSink 接收快照的存储端
type StatusSink interface {
	Save(ctx context.Context, status radio.Status) error
}

// Mirror 把订阅到的每个状态写入 sink，直到订阅关闭或 ctx 结束。
// 写入失败只记录日志。
func Mirror(ctx context.Context, sink StatusSink, sub *radio.Subscription, initial radio.Status) {
	save := func(status radio.Status) {
		wctx, cancel := context.WithTimeout(ctx, 3*time.Second)
		defer cancel()
		if err := sink.Save(wctx, status); err != nil {
			logger.Warn("status mirror write failed", logger.ErrorField(err))
		}
	}

	save(initial)
	for {
		select {
		case <-ctx.Done():
			return
		case status, ok := <-sub.Updates():
			if !ok {
				return
			}
			save(status)
		}
	}
}
