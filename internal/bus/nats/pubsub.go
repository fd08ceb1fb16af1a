package nats

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/chenxilol/hubbot/internal/bus"
)

// Publish 发布消息。收件主题在JetStream模式下等待服务端确认
func (n *NatsBus) Publish(ctx context.Context, topic string, data []byte) error {
	n.mu.RLock()
	defer n.mu.RUnlock()

	if n.closed {
		return bus.ErrBusClosed
	}
	if topic == "" {
		return bus.ErrTopicEmpty
	}

	publishCtx, cancel := context.WithTimeout(ctx, n.cfg.OpTimeout)
	defer cancel()

	var err error
	if n.useJetStream(topic) {
		_, err = n.js.Publish(topic, data, nats.Context(publishCtx))
	} else {
		err = n.conn.Publish(topic, data)
	}
	if err != nil {
		n.cfg.Metrics.IncPublishErrors(backend)
		if errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("%w: %w", bus.ErrPublishFailed, ErrPublishTimeout)
		}
		return fmt.Errorf("%w: %w", bus.ErrPublishFailed, err)
	}
	return nil
}

func (n *NatsBus) useJetStream(topic string) bool {
	return n.js != nil && strings.HasPrefix(topic, bus.InboxPrefix)
}

// Subscribe 订阅主题，ctx 取消或 Unsubscribe 后通道关闭
func (n *NatsBus) Subscribe(ctx context.Context, topic string) (<-chan []byte, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.closed {
		return nil, bus.ErrBusClosed
	}
	if topic == "" {
		return nil, bus.ErrTopicEmpty
	}
	if old, ok := n.subs[topic]; ok {
		old.cancel()
	}

	outCh := make(chan []byte, 100)
	var (
		s   *subscription
		err error
	)
	if n.useJetStream(topic) {
		s, err = n.subscribeJetStream(topic, outCh)
	} else {
		s, err = n.subscribeCore(topic, outCh)
	}
	if err != nil {
		n.cfg.Metrics.IncSubscribeErrors(backend)
		return nil, fmt.Errorf("nats subscribe %s: %w", topic, err)
	}
	n.subs[topic] = s

	go func() {
		select {
		case <-ctx.Done():
			n.drop(topic, s)
		case <-s.stop:
		}
	}()

	slog.Info("subscribed to nats topic", "topic", topic, "jetstream", n.useJetStream(topic))
	return outCh, nil
}

func (n *NatsBus) subscribeCore(topic string, outCh chan<- []byte) (*subscription, error) {
	msgCh := make(chan *nats.Msg, 100)
	sub, err := n.conn.ChanSubscribe(topic, msgCh)
	if err != nil {
		return nil, err
	}
	s := &subscription{sub: sub, stop: make(chan struct{})}

	go func() {
		defer close(outCh)
		for {
			select {
			case <-s.stop:
				return
			case msg := <-msgCh:
				n.deliver(topic, s, outCh, msg.Data)
			}
		}
	}()
	return s, nil
}

// subscribeJetStream 使用持久拉取消费者，转发成功后确认，转发超时则延迟重投
func (n *NatsBus) subscribeJetStream(topic string, outCh chan<- []byte) (*subscription, error) {
	sub, err := n.js.PullSubscribe(topic, n.cfg.ConsumerName,
		nats.AckExplicit(),
		nats.MaxDeliver(3),
		nats.AckWait(30*time.Second),
	)
	if err != nil {
		return nil, err
	}
	s := &subscription{sub: sub, stop: make(chan struct{})}

	go func() {
		defer close(outCh)
		for {
			select {
			case <-s.stop:
				return
			default:
			}

			msgs, err := sub.Fetch(10, nats.MaxWait(time.Second))
			switch {
			case errors.Is(err, nats.ErrTimeout):
				continue
			case errors.Is(err, nats.ErrConnectionClosed), errors.Is(err, nats.ErrBadSubscription):
				return
			case err != nil:
				slog.Error("error fetching messages", "topic", topic, "error", err)
				n.cfg.Metrics.IncSubscribeErrors(backend)
				time.Sleep(100 * time.Millisecond)
				continue
			}

			for _, msg := range msgs {
				if n.deliver(topic, s, outCh, msg.Data) {
					if err := msg.Ack(); err != nil {
						slog.Error("failed to ack message", "topic", topic, "error", err)
					}
				} else if err := msg.NakWithDelay(time.Second); err != nil {
					slog.Error("failed to nak message", "topic", topic, "error", err)
				}
			}
		}
	}()
	return s, nil
}

// deliver 复制数据并发送到订阅者通道，订阅者阻塞超过 OpTimeout 时放弃
func (n *NatsBus) deliver(topic string, s *subscription, outCh chan<- []byte, payload []byte) bool {
	data := make([]byte, len(payload))
	copy(data, payload)

	select {
	case outCh <- data:
		return true
	case <-s.stop:
		return false
	case <-time.After(n.cfg.OpTimeout):
		slog.Warn("timeout sending message to subscriber channel", "topic", topic)
		n.cfg.Metrics.IncSubscribeErrors(backend)
		return false
	}
}

// drop 只在 s 仍是当前订阅时移除它
func (n *NatsBus) drop(topic string, s *subscription) {
	n.mu.Lock()
	if n.subs[topic] == s {
		delete(n.subs, topic)
	}
	n.mu.Unlock()
	s.cancel()
}

func (n *NatsBus) Unsubscribe(topic string) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if topic == "" {
		return bus.ErrTopicEmpty
	}
	if s, ok := n.subs[topic]; ok {
		s.cancel()
		delete(n.subs, topic)
	}
	return nil
}
