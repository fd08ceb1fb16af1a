// Package redis 提供基于Redis发布订阅的消息总线实现
package redis

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/chenxilol/hubbot/internal/bus"
)

const backend = "redis"

// Config Redis连接配置选项
type Config struct {
	// 连接地址 (单机模式、集群模式或哨兵模式)
	Addrs    []string `mapstructure:"addrs"`
	Password string   `mapstructure:"password"`
	// 数据库编号 (仅单机模式和哨兵模式有效)
	DB         int    `mapstructure:"db"`
	MasterName string `mapstructure:"master_name"`

	PoolSize     int           `mapstructure:"pool_size"`
	MinIdleConns int           `mapstructure:"min_idle_conns"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	MaxRetries   int           `mapstructure:"max_retries"`

	// 订阅断开后重新订阅前的等待
	RetryInterval time.Duration `mapstructure:"retry_interval"`
	// 发布超时，以及订阅者通道阻塞时的最长等待
	OpTimeout time.Duration `mapstructure:"op_timeout"`
	// 频道名前缀
	KeyPrefix string `mapstructure:"key_prefix"`
	// 模式: single(单机), sentinel(哨兵), cluster(集群)
	Mode string `mapstructure:"mode"`

	Metrics *bus.Metrics `mapstructure:"-"`
}

func DefaultConfig() Config {
	return Config{
		Addrs:         []string{"localhost:6379"},
		PoolSize:      10,
		MinIdleConns:  2,
		DialTimeout:   5 * time.Second,
		ReadTimeout:   3 * time.Second,
		WriteTimeout:  3 * time.Second,
		MaxRetries:    3,
		RetryInterval: 200 * time.Millisecond,
		OpTimeout:     500 * time.Millisecond,
		KeyPrefix:     "hubbot:",
		Mode:          "single",
	}
}

type RedisBus struct {
	client     redis.UniversalClient // 兼容单机、哨兵和集群模式
	cfg        Config
	mu         sync.RWMutex
	closed     bool
	subs       map[string]context.CancelFunc
	reconnects atomic.Uint64
}

// New 创建客户端并确认连接可用
func New(cfg Config) (*RedisBus, error) {
	if len(cfg.Addrs) == 0 {
		cfg.Addrs = []string{"localhost:6379"}
	}
	if cfg.OpTimeout <= 0 {
		cfg.OpTimeout = 500 * time.Millisecond
	}
	if cfg.RetryInterval <= 0 {
		cfg.RetryInterval = 200 * time.Millisecond
	}

	opts := &redis.UniversalOptions{
		Addrs:        cfg.Addrs,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		MaxRetries:   cfg.MaxRetries,
	}
	// 多个地址且未设置 MasterName 时客户端以集群模式工作
	if cfg.Mode == "sentinel" {
		opts.MasterName = cfg.MasterName
	}
	client := redis.NewUniversalClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), cfg.DialTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		slog.Error("failed to connect to redis", "addrs", cfg.Addrs, "error", err)
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	slog.Info("connected to redis", "addrs", cfg.Addrs, "mode", cfg.Mode)
	return &RedisBus{
		client: client,
		cfg:    cfg,
		subs:   make(map[string]context.CancelFunc),
	}, nil
}

func (r *RedisBus) channel(topic string) string {
	return r.cfg.KeyPrefix + topic
}

// Publish 使用 PUBLISH 发布消息，没有订阅者不视为错误
func (r *RedisBus) Publish(ctx context.Context, topic string, data []byte) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return bus.ErrBusClosed
	}
	if topic == "" {
		return bus.ErrTopicEmpty
	}

	publishCtx, cancel := context.WithTimeout(ctx, r.cfg.OpTimeout)
	defer cancel()
	if err := r.client.Publish(publishCtx, r.channel(topic), data).Err(); err != nil {
		r.cfg.Metrics.IncPublishErrors(backend)
		return fmt.Errorf("%w: %w", bus.ErrPublishFailed, err)
	}
	return nil
}

// Subscribe 在后台订阅频道，断线后自动重新订阅。ctx 取消或 Unsubscribe 后通道关闭
func (r *RedisBus) Subscribe(ctx context.Context, topic string) (<-chan []byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil, bus.ErrBusClosed
	}
	if topic == "" {
		return nil, bus.ErrTopicEmpty
	}
	if cancel, ok := r.subs[topic]; ok {
		cancel()
	}

	// 先确认订阅成功，避免订阅前发布的消息被遗漏
	pubsub := r.client.Subscribe(ctx, r.channel(topic))
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		r.cfg.Metrics.IncSubscribeErrors(backend)
		return nil, fmt.Errorf("redis subscribe %s: %w", topic, err)
	}

	outCh := make(chan []byte, 100)
	subCtx, cancel := context.WithCancel(ctx)
	r.subs[topic] = cancel
	go r.subscribeRoutine(subCtx, topic, pubsub, outCh)
	return outCh, nil
}

func (r *RedisBus) subscribeRoutine(ctx context.Context, topic string, pubsub *redis.PubSub, outCh chan<- []byte) {
	defer close(outCh)

	for {
		r.forward(ctx, topic, pubsub, outCh)
		_ = pubsub.Close()
		if ctx.Err() != nil {
			return
		}

		n := r.reconnects.Add(1)
		r.cfg.Metrics.IncReconnects(backend)
		slog.Warn("redis subscription disconnected, reconnecting", "topic", topic, "reconnects", n)

		select {
		case <-ctx.Done():
			return
		case <-time.After(r.cfg.RetryInterval):
		}
		pubsub = r.client.Subscribe(ctx, r.channel(topic))
		if _, err := pubsub.Receive(ctx); err != nil {
			r.cfg.Metrics.IncSubscribeErrors(backend)
			slog.Error("failed to resubscribe", "topic", topic, "error", err)
			continue
		}
		slog.Info("redis subscription recovered", "topic", topic)
	}
}

// forward 把收到的消息转发给订阅者，直到 pubsub 断开或 ctx 取消
func (r *RedisBus) forward(ctx context.Context, topic string, pubsub *redis.PubSub, outCh chan<- []byte) {
	msgCh := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-msgCh:
			if !ok {
				return
			}
			select {
			case outCh <- []byte(msg.Payload):
			case <-ctx.Done():
				return
			case <-time.After(r.cfg.OpTimeout):
				slog.Warn("timeout sending message to subscriber channel", "topic", topic)
				r.cfg.Metrics.IncSubscribeErrors(backend)
			}
		}
	}
}

// Unsubscribe 取消订阅，订阅通道随后关闭
func (r *RedisBus) Unsubscribe(topic string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if topic == "" {
		return bus.ErrTopicEmpty
	}
	if cancel, ok := r.subs[topic]; ok {
		cancel()
		delete(r.subs, topic)
	}
	return nil
}

func (r *RedisBus) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil
	}
	r.closed = true
	for topic, cancel := range r.subs {
		cancel()
		delete(r.subs, topic)
	}
	return r.client.Close()
}

// Reconnects 返回订阅重连次数
func (r *RedisBus) Reconnects() uint64 {
	return r.reconnects.Load()
}

var _ bus.MessageBus = (*RedisBus)(nil)
