package bot

import (
	"log/slog"
	"maps"
	"reflect"

	"github.com/chenxilol/hubbot/pkg/protocol"
)

// Context 单个事件的分发上下文，创建后不可修改。拦截器通过 With* 方法得到修改后的副本
type Context struct {
	client  protocol.Client
	event   protocol.Event
	message *protocol.Message
	me      protocol.User
	data    map[reflect.Type]any
	log     *slog.Logger
}

// NewContext 为消息创建上下文，主要供测试自定义提取器使用
func NewContext(client protocol.Client, msg *protocol.Message, me protocol.User) *Context {
	return &Context{
		client:  client,
		event:   &protocol.NewMessage{Message: msg},
		message: msg,
		me:      me,
		log:     slog.Default(),
	}
}

func (c *Context) Client() protocol.Client { return c.client }
func (c *Context) Event() protocol.Event { return c.event }
func (c *Context) Message() *protocol.Message { return c.message }
func (c *Context) Me() protocol.User { return c.me }
func (c *Context) Logger() *slog.Logger { return c.log }

// Text 消息文本，没有消息时为空
func (c *Context) Text() string {
	if c.message == nil {
		return ""
	}
	return c.message.Text
}

// WithMessage 返回替换了消息的副本
func (c *Context) WithMessage(m *protocol.Message) *Context {
	cp := *c
	cp.message = m
	cp.event = &protocol.NewMessage{Message: m}
	return &cp
}

// WithText 返回替换了消息文本的副本，原消息不受影响
func (c *Context) WithText(text string) *Context {
	if c.message == nil {
		return c
	}
	m := *c.message
	m.Text = text
	return c.WithMessage(&m)
}

// WithValue 返回附加了类型为 T 的用户数据的副本，可被 Data[T] 提取
func WithValue[T any](c *Context, v T) *Context {
	cp := *c
	cp.data = maps.Clone(c.data)
	if cp.data == nil {
		cp.data = make(map[reflect.Type]any)
	}
	cp.data[reflect.TypeFor[T]()] = v
	return &cp
}

// Value 读取类型为 T 的用户数据
func Value[T any](c *Context) (T, bool) {
	v, ok := c.data[reflect.TypeFor[T]()]
	if !ok {
		var zero T
		return zero, false
	}
	t, ok := v.(T)
	return t, ok
}
