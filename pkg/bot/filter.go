package bot

import (
	"fmt"
	"regexp"
	"slices"

	"github.com/chenxilol/hubbot/pkg/protocol"
)

// Predicate 对消息求值的过滤函数，每次分发都会重新调用
type Predicate func(m *protocol.Message, c *Context) bool

// Filter 处理函数的过滤条件，正则模式或谓词
type Filter struct {
	pattern string
	pred    Predicate
}

// Pattern 匹配消息文本的正则表达式。表达式无效时立即 panic。
// 模式在事件循环启动时经过模式变换函数后编译。
func Pattern(expr string) Filter {
	if _, err := regexp.Compile(expr); err != nil {
		panic(fmt.Sprintf("bot: invalid pattern %q: %v", expr, err))
	}
	return Filter{pattern: expr}
}

// Func 以谓词作为过滤条件
func Func(pred Predicate) Filter {
	if pred == nil {
		panic("bot: nil predicate")
	}
	return Filter{pred: pred}
}

func (f Filter) String() string {
	if f.pred != nil {
		return "func"
	}
	return f.pattern
}

// matcher 编译后的过滤条件
type matcher struct {
	re   *regexp.Regexp
	pred Predicate
}

func (m matcher) match(c *Context) bool {
	if m.re != nil {
		return m.re.MatchString(c.Text())
	}
	return m.pred(c.message, c)
}

func compileFilters(filters []Filter, mutate func(string) string) ([]matcher, error) {
	out := make([]matcher, 0, len(filters))
	for _, f := range filters {
		if f.pred != nil {
			out = append(out, matcher{pred: f.pred})
			continue
		}
		expr := f.pattern
		if mutate != nil {
			expr = mutate(expr)
		}
		re, err := regexp.Compile(expr)
		if err != nil {
			return nil, fmt.Errorf("bot: compile pattern %q (from %q): %w", expr, f.pattern, err)
		}
		out = append(out, matcher{re: re})
	}
	return out, nil
}

// Not 取反
func Not(p Predicate) Predicate {
	return func(m *protocol.Message, c *Context) bool { return !p(m, c) }
}

// AnyOf 任一谓词成立
func AnyOf(ps ...Predicate) Predicate {
	return func(m *protocol.Message, c *Context) bool {
		for _, p := range ps {
			if p(m, c) {
				return true
			}
		}
		return false
	}
}

// AllOf 所有谓词成立
func AllOf(ps ...Predicate) Predicate {
	return func(m *protocol.Message, c *Context) bool {
		for _, p := range ps {
			if !p(m, c) {
				return false
			}
		}
		return true
	}
}

// ChatIs 消息来自指定类型的会话
func ChatIs(kinds ...protocol.ChatKind) Predicate {
	return func(m *protocol.Message, _ *Context) bool {
		return m.Chat != nil && slices.Contains(kinds, m.Chat.Kind())
	}
}

// HasMedia 消息带有媒体；给出类型时只匹配这些类型，如 "sticker"
func HasMedia(types ...string) Predicate {
	return func(m *protocol.Message, _ *Context) bool {
		if m.Media == nil {
			return false
		}
		return len(types) == 0 || slices.Contains(types, m.Media.MediaType())
	}
}

// FromUsers 发送者的用户名或ID在列表中
func FromUsers(users ...string) Predicate {
	return func(m *protocol.Message, _ *Context) bool {
		if m.Sender == nil {
			return false
		}
		return slices.Contains(users, m.Sender.Username) || slices.Contains(users, m.Sender.ID)
	}
}

// Incoming 不是自己发出的消息
func Incoming(m *protocol.Message, c *Context) bool {
	if m.Outgoing {
		return false
	}
	return m.Sender == nil || m.Sender.ID != c.me.ID
}
