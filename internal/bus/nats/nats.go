// Package nats 提供基于NATS的消息总线实现，可选使用JetStream持久化收件主题
package nats

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/chenxilol/hubbot/internal/bus"
)

const backend = "nats"

var ErrPublishTimeout = errors.New("publish timeout")

// Config NATS连接配置选项
type Config struct {
	// 连接地址，例如 nats://localhost:4222
	URLs []string `mapstructure:"urls"`
	// 连接名称，用于标识客户端
	Name           string        `mapstructure:"name"`
	Token          string        `mapstructure:"token"`
	ReconnectWait  time.Duration `mapstructure:"reconnect_wait"`
	MaxReconnects  int           `mapstructure:"max_reconnects"` // -1表示无限重连
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
	// 发布超时，以及订阅者通道阻塞时的最长等待
	OpTimeout time.Duration `mapstructure:"op_timeout"`

	UseJetStream bool   `mapstructure:"use_jetstream"`
	StreamName   string `mapstructure:"stream_name"`
	// 持久消费者名称，机器人重启后从上次确认的位置继续
	ConsumerName     string        `mapstructure:"consumer_name"`
	MessageRetention time.Duration `mapstructure:"message_retention"`

	Metrics *bus.Metrics `mapstructure:"-"`
}

func DefaultConfig() Config {
	return Config{
		URLs:             []string{nats.DefaultURL},
		Name:             "hubbot",
		ReconnectWait:    2 * time.Second,
		MaxReconnects:    -1,
		ConnectTimeout:   5 * time.Second,
		OpTimeout:        time.Second,
		StreamName:       "HUBBOT",
		ConsumerName:     "hubbot",
		MessageRetention: time.Hour,
	}
}

// NatsBus 基于NATS的消息总线实现
type NatsBus struct {
	conn       *nats.Conn
	js         nats.JetStreamContext
	cfg        Config
	mu         sync.RWMutex
	closed     bool
	subs       map[string]*subscription
	reconnects atomic.Uint64
}

type subscription struct {
	sub  *nats.Subscription
	stop chan struct{}
	once sync.Once
}

func (s *subscription) cancel() {
	s.once.Do(func() {
		close(s.stop)
		_ = s.sub.Unsubscribe()
	})
}

// New 连接NATS服务器，配置了JetStream时确保流存在
func New(cfg Config) (*NatsBus, error) {
	if cfg.OpTimeout <= 0 {
		cfg.OpTimeout = time.Second
	}
	nb := &NatsBus{
		cfg:  cfg,
		subs: make(map[string]*subscription),
	}

	opts := []nats.Option{
		nats.Name(cfg.Name),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.Timeout(cfg.ConnectTimeout),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			slog.Warn("nats disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			nb.reconnects.Add(1)
			nb.cfg.Metrics.IncReconnects(backend)
			slog.Info("nats reconnected")
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			slog.Info("nats connection closed")
		}),
	}
	if cfg.Token != "" {
		opts = append(opts, nats.Token(cfg.Token))
	}

	serverURL := nats.DefaultURL
	if len(cfg.URLs) > 0 {
		serverURL = strings.Join(cfg.URLs, ",")
	}
	nc, err := nats.Connect(serverURL, opts...)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}
	nb.conn = nc

	if cfg.UseJetStream {
		if err := nb.setupJetStream(); err != nil {
			nc.Close()
			return nil, fmt.Errorf("nats jetstream: %w", err)
		}
	}

	slog.Info("connected to nats", "urls", cfg.URLs, "jetstream", cfg.UseJetStream)
	return nb, nil
}

// setupJetStream 创建覆盖收件主题的流
func (n *NatsBus) setupJetStream() error {
	js, err := n.conn.JetStream()
	if err != nil {
		return err
	}

	_, err = js.StreamInfo(n.cfg.StreamName)
	if errors.Is(err, nats.ErrStreamNotFound) {
		_, err = js.AddStream(&nats.StreamConfig{
			Name:      n.cfg.StreamName,
			Subjects:  []string{bus.InboxPrefix + ">"},
			Retention: nats.WorkQueuePolicy,
			MaxAge:    n.cfg.MessageRetention,
		})
		if err == nil {
			slog.Info("created jetstream stream", "name", n.cfg.StreamName)
		}
	}
	if err != nil {
		return err
	}

	n.js = js
	return nil
}

// Reconnects 返回连接重连次数
func (n *NatsBus) Reconnects() uint64 {
	return n.reconnects.Load()
}

func (n *NatsBus) Close() error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.closed {
		return nil
	}
	n.closed = true
	for topic, s := range n.subs {
		s.cancel()
		delete(n.subs, topic)
	}
	n.conn.Close()
	return nil
}

var _ bus.MessageBus = (*NatsBus)(nil)
