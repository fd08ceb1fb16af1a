package bot

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"reflect"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/chenxilol/hubbot/pkg/protocol"
)

// EventHandler 处理非消息事件
type EventHandler func(ctx context.Context, client protocol.Client, ev protocol.Event) error

// ErrorHandler 处理分发失败，返回的错误只会被记录
type ErrorHandler func(ctx context.Context, err error, client protocol.Client, ev protocol.Event) error

// Interceptor 在匹配处理函数之前调用，可返回修改后的上下文。
// 返回错误时该事件的分发以此错误结束；返回 (nil, nil) 时丢弃该事件。
type Interceptor func(ctx context.Context, c *Context) (*Context, error)

type entry struct {
	filters  []Filter
	matchers []matcher
	handler  Handler
}

// Bot 处理函数表和事件循环
type Bot struct {
	client protocol.Client
	me     protocol.User
	logger *slog.Logger
	hooks  hooks
	data   dataStore

	mu            sync.Mutex
	entries       []*entry
	fallback      Handler
	eventFallback EventHandler
	onError       ErrorHandler
	interceptor   Interceptor
	mutator       func(string) string

	frozen     atomic.Bool
	freezeOnce sync.Once
	freezeErr  error

	wg sync.WaitGroup
}

// New 创建 Bot，并通过客户端获取当前账号身份
func New(ctx context.Context, client protocol.Client, opts ...Option) (*Bot, error) {
	me, err := client.Me(ctx)
	if err != nil {
		return nil, fmt.Errorf("bot: fetch self: %w", err)
	}
	return NewWithSelf(client, me, opts...), nil
}

// NewWithSelf 使用已知的账号身份创建 Bot
func NewWithSelf(client protocol.Client, me protocol.User, opts ...Option) *Bot {
	b := &Bot{
		client: client,
		me:     me,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(b)
	}
	b.fallback = Fn1(b.defaultFallback)
	b.eventFallback = b.defaultEventFallback
	b.onError = b.defaultErrorHandler
	return b
}

// Client 返回 Bot 使用的客户端
func (b *Bot) Client() protocol.Client { return b.client }

// Me 返回当前账号身份
func (b *Bot) Me() protocol.User { return b.me }

// Handle 追加一个处理函数，先注册的优先。过滤条件之间是与的关系
func (b *Bot) Handle(h Handler, filters ...Filter) *Bot {
	if h.invoke == nil {
		panic("bot: nil handler")
	}
	b.mutate(func() {
		b.entries = append(b.entries, &entry{filters: filters, handler: h})
	})
	return b
}

// Fallback 设置没有处理函数匹配时的回退处理函数
func (b *Bot) Fallback(h Handler) *Bot {
	if h.invoke == nil {
		panic("bot: nil handler")
	}
	b.mutate(func() { b.fallback = h })
	return b
}

// EventFallback 设置非消息事件的处理函数
func (b *Bot) EventFallback(fn EventHandler) *Bot {
	b.mutate(func() { b.eventFallback = fn })
	return b
}

// OnError 设置错误处理函数
func (b *Bot) OnError(fn ErrorHandler) *Bot {
	b.mutate(func() { b.onError = fn })
	return b
}

// Intercept 设置拦截器
func (b *Bot) Intercept(fn Interceptor) *Bot {
	b.mutate(func() { b.interceptor = fn })
	return b
}

// SetPatternMutator 设置模式变换函数，所有 Pattern 在编译前都会经过它
func (b *Bot) SetPatternMutator(fn func(string) string) *Bot {
	b.mutate(func() { b.mutator = fn })
	return b
}

func (b *Bot) mutate(fn func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	// 在锁内检查，freeze 持有同一把锁
	if b.frozen.Load() {
		panic("bot: handler table modified after dispatch started")
	}
	fn()
}

// freeze 编译所有模式并冻结处理函数表
func (b *Bot) freeze() error {
	b.freezeOnce.Do(func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		for _, e := range b.entries {
			m, err := compileFilters(e.filters, b.mutator)
			if err != nil {
				b.freezeErr = err
				return
			}
			e.matchers = m
		}
		b.frozen.Store(true)
	})
	return b.freezeErr
}

// Run 顺序读取事件并为每个事件启动一个 goroutine 进行分发，不等待分发完成。
// 事件流结束时返回 nil，ctx 取消时返回 ctx.Err()，其他读取错误原样包装返回。
func (b *Bot) Run(ctx context.Context) error {
	if err := b.freeze(); err != nil {
		return err
	}
	b.logger.Info("bot started", "id", b.me.ID, "username", b.me.Username, "handlers", len(b.entries))

	for {
		ev, err := b.client.NextEvent(ctx)
		if err != nil {
			switch {
			case errors.Is(err, io.EOF):
				b.logger.Info("event stream closed")
				return nil
			case ctx.Err() != nil:
				return ctx.Err()
			default:
				return fmt.Errorf("bot: next event: %w", err)
			}
		}
		b.hooks.fetch(ctx, ev)
		b.spawn(ctx, ev)
	}
}

// Wait 等待所有已启动的分发 goroutine 结束
func (b *Bot) Wait() {
	b.wg.Wait()
}

func (b *Bot) spawn(ctx context.Context, ev protocol.Event) {
	data := b.data.snapshot()
	b.wg.Add(1)
	b.hooks.inFlight(1)
	go func() {
		defer b.wg.Done()
		defer b.hooks.inFlight(-1)

		start := time.Now()
		err := b.safeDispatch(ctx, ev, data)
		d := time.Since(start)
		if err == nil {
			b.hooks.success(ctx, ev, d)
			return
		}
		b.hooks.failure(ctx, ev, err, d)
		if herr := b.onError(ctx, err, b.client, ev); herr != nil {
			b.logger.Error("error handler failed", "error", herr, "cause", err, "event", ev.EventType())
		}
	}()
}

// Dispatch 同步分发单个事件，返回该事件的处理结果，不经过错误处理函数。
// 与 Run 一样会冻结处理函数表，之后再注册处理函数会 panic。
func (b *Bot) Dispatch(ctx context.Context, ev protocol.Event) error {
	if err := b.freeze(); err != nil {
		return err
	}
	return b.safeDispatch(ctx, ev, b.data.snapshot())
}

func (b *Bot) safeDispatch(ctx context.Context, ev protocol.Event, data map[reflect.Type]any) (err error) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("handler panicked", "panic", r, "event", ev.EventType(), "stack", string(debug.Stack()))
			err = fmt.Errorf("%w: %v", ErrPanic, r)
		}
	}()
	return b.dispatch(ctx, ev, data)
}

func (b *Bot) dispatch(ctx context.Context, ev protocol.Event, data map[reflect.Type]any) error {
	nm, ok := ev.(*protocol.NewMessage)
	if !ok || nm.Message == nil {
		b.hooks.fallback(ctx, ev)
		return b.eventFallback(ctx, b.client, ev)
	}

	c := &Context{
		client:  b.client,
		event:   ev,
		message: nm.Message,
		me:      b.me,
		data:    data,
		log:     b.logger,
	}

	if b.interceptor != nil {
		next, err := b.interceptor(ctx, c)
		if err != nil {
			return err
		}
		if next == nil {
			return nil
		}
		c = next
	}

	for i, e := range b.entries {
		if !e.match(c) {
			continue
		}
		handled, err := e.handler.invoke(ctx, c)
		if handled {
			return err
		}
		b.logger.Debug("handler skipped, parameters unavailable", "index", i, "filters", e.filters)
	}

	b.hooks.fallback(ctx, ev)
	handled, err := b.fallback.invoke(ctx, c)
	if !handled {
		return fmt.Errorf("%w: fallback handler parameters", ErrMissingParameters)
	}
	return err
}

func (e *entry) match(c *Context) bool {
	for _, m := range e.matchers {
		if !m.match(c) {
			return false
		}
	}
	return true
}

func (b *Bot) defaultFallback(ctx context.Context, m *protocol.Message) error {
	b.logger.Warn("unhandled message", "id", m.ID, "text", m.Text)
	return nil
}

// UnimplementedEvents 可交给 EventFallback，把未路由的事件作为 ErrUnimplemented 交给错误处理函数
func UnimplementedEvents(ctx context.Context, client protocol.Client, ev protocol.Event) error {
	return fmt.Errorf("%w: event %s", ErrUnimplemented, ev.EventType())
}

func (b *Bot) defaultEventFallback(ctx context.Context, client protocol.Client, ev protocol.Event) error {
	b.logger.Info("unhandled event", "type", ev.EventType())
	return nil
}

func (b *Bot) defaultErrorHandler(ctx context.Context, err error, client protocol.Client, ev protocol.Event) error {
	b.logger.Error("event dispatch failed", "error", err, "event", ev.EventType())
	return nil
}
