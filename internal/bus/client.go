package bus

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/chenxilol/hubbot/internal/codec"
	"github.com/chenxilol/hubbot/internal/utils"
	"github.com/chenxilol/hubbot/pkg/protocol"
)

// ClientConfig 总线客户端配置
type ClientConfig struct {
	Self        protocol.User
	InboxTopic  string        // 默认 InboxTopic(Self.ID)
	OutboxTopic string        // 默认 OutboxTopic(Self.ID)
	DedupTTL    time.Duration // 事件ID去重窗口
	Backoff     utils.Backoff // 订阅重试

	// ObserveLatency 可选，收到带时间戳的消息时调用
	ObserveLatency func(time.Duration)
}

// Client 通过消息总线收发事件的 protocol.Client
type Client struct {
	bus    MessageBus
	cfg    ClientConfig
	events <-chan []byte
	dedup  *Deduplicator
	seq    atomic.Int64
	cancel context.CancelFunc
	closed sync.Once
}

// NewClient 订阅收件主题并返回客户端，订阅失败时按退避参数重试
func NewClient(ctx context.Context, b MessageBus, cfg ClientConfig) (*Client, error) {
	if cfg.Self.ID == "" {
		return nil, fmt.Errorf("%w: bus client requires a bot id", protocol.ErrSignIn)
	}
	if cfg.InboxTopic == "" {
		cfg.InboxTopic = InboxTopic(cfg.Self.ID)
	}
	if cfg.OutboxTopic == "" {
		cfg.OutboxTopic = OutboxTopic(cfg.Self.ID)
	}

	subCtx, cancel := context.WithCancel(context.Background())
	var events <-chan []byte
	err := utils.RetryWithBackoff(ctx, "subscribe "+cfg.InboxTopic, cfg.Backoff, func() error {
		ch, err := b.Subscribe(subCtx, cfg.InboxTopic)
		if err != nil {
			return err
		}
		events = ch
		return nil
	})
	if err != nil {
		cancel()
		return nil, fmt.Errorf("%w: subscribe %s: %w", protocol.ErrIO, cfg.InboxTopic, err)
	}

	slog.Info("bus client subscribed", "inbox", cfg.InboxTopic, "outbox", cfg.OutboxTopic)
	return &Client{
		bus:    b,
		cfg:    cfg,
		events: events,
		dedup:  NewDeduplicator(cfg.DedupTTL),
		cancel: cancel,
	}, nil
}

// NextEvent 读取下一个事件。无法解码的帧和重复的事件被跳过，订阅结束时返回 io.EOF
func (c *Client) NextEvent(ctx context.Context) (protocol.Event, error) {
	for {
		var raw []byte
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case data, ok := <-c.events:
			if !ok {
				return nil, io.EOF
			}
			raw = data
		}

		frame := c.unwrap(raw)
		_, eventID, err := codec.PeekType(frame)
		if err != nil {
			slog.Warn("dropping malformed bus frame", "topic", c.cfg.InboxTopic, "error", err)
			continue
		}
		if c.dedup.Seen(eventID) {
			slog.Debug("dropping duplicate event", "event_id", eventID)
			continue
		}
		ev, err := codec.DecodeEvent(frame)
		if err != nil {
			slog.Warn("dropping undecodable bus frame", "topic", c.cfg.InboxTopic, "error", err)
			continue
		}
		return ev, nil
	}
}

// unwrap 去掉带时间戳的外层；直接发布的原始帧原样返回
func (c *Client) unwrap(raw []byte) []byte {
	msg, err := UnmarshalMessage(raw)
	if err != nil || len(msg.Data) == 0 {
		return raw
	}
	if c.cfg.ObserveLatency != nil && !msg.Timestamp.IsZero() {
		c.cfg.ObserveLatency(msg.Latency())
	}
	return msg.Data
}

func (c *Client) Me(ctx context.Context) (protocol.User, error) {
	return c.cfg.Self, nil
}

// SendMessage 把消息编码为帧并发布到发件主题
func (c *Client) SendMessage(ctx context.Context, chat protocol.Chat, msg protocol.OutgoingMessage) error {
	env, err := codec.EncodeOutgoing(int(c.seq.Add(1)), chat, msg)
	if err != nil {
		return fmt.Errorf("%w: %w", protocol.ErrInvocation, err)
	}
	env.EventID = uuid.NewString()
	frame, err := env.Encode()
	if err != nil {
		return fmt.Errorf("%w: %w", protocol.ErrInvocation, err)
	}
	data, err := NewMessage(frame).Marshal()
	if err != nil {
		return fmt.Errorf("%w: %w", protocol.ErrInvocation, err)
	}
	if err := c.bus.Publish(ctx, c.cfg.OutboxTopic, data); err != nil {
		return fmt.Errorf("%w: publish %s: %w", protocol.ErrIO, c.cfg.OutboxTopic, err)
	}
	return nil
}

// Close 取消订阅，NextEvent 随后返回 io.EOF
func (c *Client) Close() error {
	var err error
	c.closed.Do(func() {
		c.cancel()
		err = c.bus.Unsubscribe(c.cfg.InboxTopic)
	})
	return err
}

var _ protocol.Client = (*Client)(nil)
