// Package bus 提供基于消息总线的事件传输，事件从收件主题读取，回复发布到发件主题
package bus

import (
	"context"
	"errors"
)

// 定义错误类型
var (
	ErrTopicEmpty    = errors.New("topic cannot be empty")
	ErrBusClosed     = errors.New("message bus is closed")
	ErrPublishFailed = errors.New("publish message failed")
)

// MessageBus 发布订阅式的消息总线
type MessageBus interface {
	// Publish 发布消息到指定主题
	Publish(ctx context.Context, topic string, data []byte) error

	// Subscribe 订阅指定主题，返回接收channel；订阅结束时channel被关闭
	Subscribe(ctx context.Context, topic string) (<-chan []byte, error)

	// Unsubscribe 取消订阅主题
	Unsubscribe(topic string) error

	Close() error
}

// 主题前缀
const (
	InboxPrefix  = "bot.inbox."
	OutboxPrefix = "bot.outbox."
)

// InboxTopic 机器人接收事件的主题
func InboxTopic(botID string) string {
	return InboxPrefix + botID
}

// OutboxTopic 机器人发布回复的主题
func OutboxTopic(botID string) string {
	return OutboxPrefix + botID
}
