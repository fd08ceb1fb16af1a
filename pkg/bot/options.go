package bot

import (
	"context"
	"log/slog"
	"time"

	"github.com/chenxilol/hubbot/pkg/protocol"
)

// Option 配置 Bot
type Option func(*Bot)

type hooks struct {
	onFetch    func(ctx context.Context, ev protocol.Event)
	onSuccess  func(ctx context.Context, ev protocol.Event, d time.Duration)
	onFailure  func(ctx context.Context, ev protocol.Event, err error, d time.Duration)
	onFallback func(ctx context.Context, ev protocol.Event)
	onInFlight func(delta int)
}

// WithLogger 设置日志记录器，默认 slog.Default()
func WithLogger(l *slog.Logger) Option {
	return func(b *Bot) {
		if l != nil {
			b.logger = l
		}
	}
}

// WithOnFetch 每读取到一个事件调用一次，在分发之前
func WithOnFetch(fn func(ctx context.Context, ev protocol.Event)) Option {
	return func(b *Bot) { b.hooks.onFetch = fn }
}

// WithOnSuccess 事件分发成功后调用
func WithOnSuccess(fn func(ctx context.Context, ev protocol.Event, d time.Duration)) Option {
	return func(b *Bot) { b.hooks.onSuccess = fn }
}

// WithOnFailure 事件分发失败后调用，在错误处理函数之前
func WithOnFailure(fn func(ctx context.Context, ev protocol.Event, err error, d time.Duration)) Option {
	return func(b *Bot) { b.hooks.onFailure = fn }
}

// WithOnFallback 事件进入回退处理函数时调用
func WithOnFallback(fn func(ctx context.Context, ev protocol.Event)) Option {
	return func(b *Bot) { b.hooks.onFallback = fn }
}

// WithOnInFlight 分发 goroutine 启动时以 +1、结束时以 -1 调用
func WithOnInFlight(fn func(delta int)) Option {
	return func(b *Bot) { b.hooks.onInFlight = fn }
}

func (h *hooks) fetch(ctx context.Context, ev protocol.Event) {
	if h.onFetch != nil {
		h.onFetch(ctx, ev)
	}
}

func (h *hooks) success(ctx context.Context, ev protocol.Event, d time.Duration) {
	if h.onSuccess != nil {
		h.onSuccess(ctx, ev, d)
	}
}

func (h *hooks) failure(ctx context.Context, ev protocol.Event, err error, d time.Duration) {
	if h.onFailure != nil {
		h.onFailure(ctx, ev, err, d)
	}
}

func (h *hooks) fallback(ctx context.Context, ev protocol.Event) {
	if h.onFallback != nil {
		h.onFallback(ctx, ev)
	}
}

func (h *hooks) inFlight(delta int) {
	if h.onInFlight != nil {
		h.onInFlight(delta)
	}
}
