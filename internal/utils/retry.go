package utils

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

var ErrRetriesExhausted = errors.New("retries exhausted")

type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent 包装不应重试的错误，RetryWithBackoff 遇到时立即返回原错误
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

func asPermanent(err error) *permanentError {
	var p *permanentError
	if errors.As(err, &p) {
		return p
	}
	return nil
}

// Backoff 指数退避参数
type Backoff struct {
	Retries int           // 首次失败后的最大重试次数
	Initial time.Duration // 第一次重试前的等待
	Max     time.Duration // 单次等待上限
	Factor  float64       // 每次重试等待的倍数，<= 1 时使用 1.5
}

// DefaultBackoff 连接类操作的默认退避参数
func DefaultBackoff() Backoff {
	return Backoff{
		Retries: 5,
		Initial: 200 * time.Millisecond,
		Max:     5 * time.Second,
		Factor:  1.5,
	}
}

// RetryWithBackoff 执行 operation，失败时按指数退避重试。
// name 用于日志记录；全部失败时返回的错误同时包装 ErrRetriesExhausted 和最后一次的错误。
func RetryWithBackoff(ctx context.Context, name string, b Backoff, operation func() error) error {
	err := operation()
	if err == nil {
		return nil
	}
	if p := asPermanent(err); p != nil {
		return p.err
	}
	if b.Retries <= 0 {
		return fmt.Errorf("%s failed (no retries): %w", name, err)
	}
	slog.Debug("initial attempt failed, will retry", "operation", name, "error", err)

	factor := b.Factor
	if factor <= 1 {
		factor = 1.5
	}
	wait := b.Initial
	for attempt := 1; attempt <= b.Retries; attempt++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}

		if err = operation(); err == nil {
			slog.Debug("operation successful after retry", "operation", name, "attempt", attempt)
			return nil
		}
		if p := asPermanent(err); p != nil {
			return p.err
		}
		slog.Debug("retry attempt failed", "operation", name, "error", err, "attempt", attempt)

		wait = time.Duration(float64(wait) * factor)
		if b.Max > 0 && wait > b.Max {
			wait = b.Max
		}
	}

	slog.Error("operation failed after all retries", "operation", name, "retries", b.Retries, "error", err)
	return fmt.Errorf("%s: %w after %d retries: %w", name, ErrRetriesExhausted, b.Retries, err)
}
