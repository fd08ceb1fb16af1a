// Package noop 提供不连接任何后端的消息总线，用于离线运行机器人
package noop

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/chenxilol/hubbot/internal/bus"
)

// NoopBus 丢弃发布的消息，订阅永远不会收到数据。
// 订阅通道在 Unsubscribe 或 Close 时关闭，使上层客户端能正常结束事件流
type NoopBus struct {
	mu      sync.Mutex
	subs    map[string][]chan []byte
	closed  bool
	dropped atomic.Int64
}

func New() *NoopBus {
	return &NoopBus{subs: make(map[string][]chan []byte)}
}

// Publish 丢弃消息
func (n *NoopBus) Publish(ctx context.Context, topic string, data []byte) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.closed {
		return bus.ErrBusClosed
	}
	if topic == "" {
		return bus.ErrTopicEmpty
	}
	n.dropped.Add(1)
	slog.Debug("noop bus dropped message", "topic", topic, "size", len(data))
	return nil
}

// Subscribe 返回一个不会收到消息的通道
func (n *NoopBus) Subscribe(ctx context.Context, topic string) (<-chan []byte, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.closed {
		return nil, bus.ErrBusClosed
	}
	if topic == "" {
		return nil, bus.ErrTopicEmpty
	}
	ch := make(chan []byte)
	n.subs[topic] = append(n.subs[topic], ch)
	return ch, nil
}

func (n *NoopBus) Unsubscribe(topic string) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if topic == "" {
		return bus.ErrTopicEmpty
	}
	for _, ch := range n.subs[topic] {
		close(ch)
	}
	delete(n.subs, topic)
	return nil
}

func (n *NoopBus) Close() error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.closed {
		return nil
	}
	n.closed = true
	for topic, chans := range n.subs {
		for _, ch := range chans {
			close(ch)
		}
		delete(n.subs, topic)
	}
	return nil
}

// Dropped 返回被丢弃的消息数
func (n *NoopBus) Dropped() int64 {
	return n.dropped.Load()
}

var _ bus.MessageBus = (*NoopBus)(nil)
