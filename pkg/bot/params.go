package bot

import (
	"context"
	"fmt"
	"unicode"
	"unicode/utf8"

	"github.com/chenxilol/hubbot/pkg/args"
	"github.com/chenxilol/hubbot/pkg/protocol"
)

// Text 消息文本
type Text string

// Me 当前账号的身份
type Me protocol.User

// Data 通过 AddData 注册的用户数据
type Data[T any] struct {
	Value T
}

func (d *Data[T]) FromContext(c *Context) bool {
	v, ok := Value[T](c)
	if !ok {
		return false
	}
	d.Value = v
	return true
}

// Inner 返回保存的值
func (d Data[T]) Inner() T { return d.Value }

// Args 命令之后的参数文本解析为 T，解析失败时该参数不存在
type Args[T any] struct {
	Value T
}

func (a *Args[T]) FromContext(c *Context) bool {
	input := argText(c.Text())
	v, err := args.Parse[T](input)
	if err != nil {
		c.log.Debug("argument parse failed", "input", input, "error", err)
		return false
	}
	a.Value = v
	return true
}

// ArgsResult 与 Args 相同，但总是存在，解析错误放在 Err 中
type ArgsResult[T any] struct {
	Value T
	Err   error
}

func (a *ArgsResult[T]) FromContext(c *Context) bool {
	a.Value, a.Err = args.Parse[T](argText(c.Text()))
	return true
}

// RawArgs 命令之后以空白分隔的词
type RawArgs []string

func (r *RawArgs) FromContext(c *Context) bool {
	*r = args.Fields(argText(c.Text()))
	return true
}

// QuotedArgs 命令之后按 shell 规则拆分的参数，引号不完整时不存在
type QuotedArgs []string

func (q *QuotedArgs) FromContext(c *Context) bool {
	tokens, err := args.SplitQuoted(argText(c.Text()))
	if err != nil {
		return false
	}
	*q = tokens
	return true
}

// Responder 绑定了当前消息和客户端的回复助手
type Responder struct {
	client protocol.Client
	msg    *protocol.Message
}

func (r *Responder) FromContext(c *Context) bool {
	if c.message == nil {
		return false
	}
	r.client = c.client
	r.msg = c.message
	return true
}

// Reply 回复当前消息
func (r Responder) Reply(ctx context.Context, text string) error {
	return protocol.Reply(ctx, r.client, r.msg, text)
}

func (r Responder) Replyf(ctx context.Context, format string, a ...any) error {
	return r.Reply(ctx, fmt.Sprintf(format, a...))
}

// Send 向当前会话发送消息，不引用原消息
func (r Responder) Send(ctx context.Context, text string) error {
	return r.client.SendMessage(ctx, r.msg.Chat, protocol.OutgoingMessage{Text: text})
}

// argText 返回第一个空白字符之后的文本，没有空白时为空
func argText(text string) string {
	for i, r := range text {
		if unicode.IsSpace(r) {
			return text[i+utf8.RuneLen(r):]
		}
	}
	return ""
}
