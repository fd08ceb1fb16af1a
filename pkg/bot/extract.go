package bot

import (
	"fmt"
	"reflect"
	"sync"

	"github.com/chenxilol/hubbot/pkg/protocol"
)

// FromContext 由参数类型的指针实现，返回 false 表示该参数在当前事件中不存在
type FromContext interface {
	FromContext(c *Context) bool
}

var (
	extractMu  sync.RWMutex
	extractors = make(map[reflect.Type]any)
)

// RegisterExtractor 为类型 T 注册提取函数，覆盖已有的注册。
// 提取函数必须是纯函数：相同的上下文总是得到相同的结果。
func RegisterExtractor[T any](fn func(c *Context) (T, bool)) {
	if fn == nil {
		panic("bot: nil extractor")
	}
	extractMu.Lock()
	defer extractMu.Unlock()
	extractors[reflect.TypeFor[T]()] = fn
}

// Extract 从上下文中取得类型为 T 的参数
func Extract[T any](c *Context) (T, bool) {
	fn := lookup[T]()
	if fn == nil {
		var zero T
		return zero, false
	}
	return fn(c)
}

func lookup[T any]() func(*Context) (T, bool) {
	if _, ok := any(new(T)).(FromContext); ok {
		return func(c *Context) (T, bool) {
			var v T
			ok := any(&v).(FromContext).FromContext(c)
			return v, ok
		}
	}

	extractMu.RLock()
	fn, ok := extractors[reflect.TypeFor[T]()]
	extractMu.RUnlock()
	if !ok {
		return nil
	}
	return fn.(func(*Context) (T, bool))
}

// mustLookup 在注册处理函数时解析参数类型，未知类型直接 panic
func mustLookup[T any]() func(*Context) (T, bool) {
	fn := lookup[T]()
	if fn == nil {
		panic(fmt.Sprintf("bot: no extractor for parameter type %s", reflect.TypeFor[T]()))
	}
	return fn
}

func init() {
	RegisterExtractor(func(c *Context) (protocol.Client, bool) { return c.client, true })
	RegisterExtractor(func(c *Context) (protocol.Event, bool) { return c.event, true })
	RegisterExtractor(func(c *Context) (*protocol.Message, bool) { return c.message, c.message != nil })
	RegisterExtractor(func(c *Context) (Text, bool) { return Text(c.Text()), c.message != nil })
	RegisterExtractor(func(c *Context) (Me, bool) { return Me(c.me), true })
	RegisterExtractor(func(c *Context) (*protocol.User, bool) {
		if c.message == nil || c.message.Sender == nil {
			return nil, false
		}
		return c.message.Sender, true
	})

	RegisterExtractor(func(c *Context) (protocol.Chat, bool) {
		if c.message == nil || c.message.Chat == nil {
			return nil, false
		}
		return c.message.Chat, true
	})
	RegisterExtractor(func(c *Context) (protocol.ChatKind, bool) {
		if c.message == nil || c.message.Chat == nil {
			return 0, false
		}
		return c.message.Chat.Kind(), true
	})
	RegisterExtractor(chatAs[*protocol.UserChat])
	RegisterExtractor(chatAs[*protocol.GroupChat])
	RegisterExtractor(chatAs[*protocol.ChannelChat])

	RegisterExtractor(func(c *Context) (protocol.Media, bool) {
		if c.message == nil || c.message.Media == nil {
			return nil, false
		}
		return c.message.Media, true
	})
	RegisterExtractor(mediaAs[*protocol.Photo])
	RegisterExtractor(mediaAs[*protocol.Document])
	RegisterExtractor(mediaAs[*protocol.Sticker])

	RegisterExtractor(func(c *Context) (*protocol.ReplyHeader, bool) {
		if c.message == nil || c.message.ReplyTo == nil {
			return nil, false
		}
		return c.message.ReplyTo, true
	})
	RegisterExtractor(func(c *Context) (*protocol.ForwardHeader, bool) {
		if c.message == nil || c.message.Forward == nil {
			return nil, false
		}
		return c.message.Forward, true
	})
}

func chatAs[T protocol.Chat](c *Context) (T, bool) {
	var zero T
	if c.message == nil || c.message.Chat == nil {
		return zero, false
	}
	v, ok := c.message.Chat.(T)
	return v, ok
}

func mediaAs[T protocol.Media](c *Context) (T, bool) {
	var zero T
	if c.message == nil || c.message.Media == nil {
		return zero, false
	}
	v, ok := c.message.Media.(T)
	return v, ok
}
