// Package metrics 提供监控指标收集功能
package metrics

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/chenxilol/hubbot/internal/bus"
	"github.com/chenxilol/hubbot/pkg/bot"
	"github.com/chenxilol/hubbot/pkg/protocol"
)

var (
	once           sync.Once
	defaultMetrics *Metrics
)

// Metrics 封装机器人的监控指标
type Metrics struct {
	registry *prometheus.Registry

	// 事件指标
	EventsFetched  *prometheus.CounterVec
	EventsHandled  *prometheus.CounterVec
	EventsFailed   *prometheus.CounterVec
	Fallbacks      *prometheus.CounterVec
	InFlight       prometheus.Gauge
	HandleDuration *prometheus.HistogramVec

	// 传输层指标
	Bus *bus.Metrics
}

// NewMetrics 在独立的注册表上创建指标
func NewMetrics(namespace string) *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(registry)

	return &Metrics{
		registry: registry,
		EventsFetched: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_fetched_total",
			Help:      "从连接读取的事件总数",
		}, []string{"type"}),
		EventsHandled: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_handled_total",
			Help:      "成功分发的事件总数",
		}, []string{"type"}),
		EventsFailed: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_failed_total",
			Help:      "分发失败的事件总数",
		}, []string{"type", "reason"}),
		Fallbacks: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fallbacks_total",
			Help:      "进入回退处理函数的事件总数",
		}, []string{"type"}),
		InFlight: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "events_in_flight",
			Help:      "正在分发的事件数",
		}),
		HandleDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "handle_duration_seconds",
			Help:      "事件分发耗时(秒)",
			Buckets:   prometheus.DefBuckets,
		}, []string{"type"}),
		Bus: bus.NewMetrics(namespace, registry),
	}
}

// Registry 获取Prometheus注册表
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Default 获取默认指标实例
func Default() *Metrics {
	once.Do(func() {
		defaultMetrics = NewMetrics("hubbot")
	})
	return defaultMetrics
}

// GetRegistry 获取默认指标实例的注册表
func GetRegistry() *prometheus.Registry {
	return Default().registry
}

// Hooks 返回把分发过程记录到指标的机器人选项
func (m *Metrics) Hooks() []bot.Option {
	return []bot.Option{
		bot.WithOnFetch(func(_ context.Context, ev protocol.Event) {
			m.EventsFetched.WithLabelValues(ev.EventType()).Inc()
		}),
		bot.WithOnSuccess(func(_ context.Context, ev protocol.Event, d time.Duration) {
			m.EventsHandled.WithLabelValues(ev.EventType()).Inc()
			m.HandleDuration.WithLabelValues(ev.EventType()).Observe(d.Seconds())
		}),
		bot.WithOnFailure(func(_ context.Context, ev protocol.Event, err error, d time.Duration) {
			m.EventsFailed.WithLabelValues(ev.EventType(), Reason(err)).Inc()
			m.HandleDuration.WithLabelValues(ev.EventType()).Observe(d.Seconds())
		}),
		bot.WithOnFallback(func(_ context.Context, ev protocol.Event) {
			m.Fallbacks.WithLabelValues(ev.EventType()).Inc()
		}),
		bot.WithOnInFlight(func(delta int) {
			m.InFlight.Add(float64(delta))
		}),
	}
}

// Reason 把分发错误归类为低基数的标签值
func Reason(err error) string {
	switch {
	case errors.Is(err, bot.ErrPanic):
		return "panic"
	case errors.Is(err, bot.ErrMissingParameters):
		return "missing_parameters"
	case errors.Is(err, bot.ErrUnimplemented):
		return "unimplemented"
	case errors.Is(err, protocol.ErrAuthorization):
		return "authorization"
	case errors.Is(err, protocol.ErrIO):
		return "io"
	case errors.Is(err, protocol.ErrInvocation):
		return "invocation"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	default:
		return "handler"
	}
}
