package protocol

import (
	"context"
	"errors"
)

// 错误类型
var (
	ErrIO            = errors.New("io error")
	ErrAuthorization = errors.New("authorization error")
	ErrSignIn        = errors.New("sign in error")
	ErrInvocation    = errors.New("invocation error")
)

// Client 机器人与协议连接之间的契约，实现必须可被多个goroutine并发使用
type Client interface {
	// NextEvent 阻塞直到下一个事件到达；流正常结束时返回 io.EOF
	NextEvent(ctx context.Context) (Event, error)

	// Me 返回当前登录账号的身份
	Me(ctx context.Context) (User, error)

	// SendMessage 向会话发送消息
	SendMessage(ctx context.Context, chat Chat, msg OutgoingMessage) error
}

// Reply 以回复的形式向消息所在会话发送文本
func Reply(ctx context.Context, c Client, m *Message, text string) error {
	return c.SendMessage(ctx, m.Chat, OutgoingMessage{Text: text, ReplyTo: m.ID})
}
