package bus

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics 各总线实现共用的指标，按 backend 标签区分。nil 的 *Metrics 可以安全调用
type Metrics struct {
	PublishErrors   *prometheus.CounterVec
	SubscribeErrors *prometheus.CounterVec
	Reconnects      *prometheus.CounterVec
	Latency         *prometheus.HistogramVec
}

// NewMetrics 在 reg 上注册总线指标
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	return &Metrics{
		PublishErrors: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "bus",
			Name:      "publish_errors_total",
			Help:      "消息总线发布错误总数",
		}, []string{"backend"}),
		SubscribeErrors: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "bus",
			Name:      "subscribe_errors_total",
			Help:      "消息总线订阅错误总数",
		}, []string{"backend"}),
		Reconnects: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "bus",
			Name:      "reconnects_total",
			Help:      "消息总线重连次数",
		}, []string{"backend"}),
		Latency: promauto.With(reg).NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "bus",
			Name:      "latency_seconds",
			Help:      "消息从发布到被机器人读取的延迟(秒)",
			Buckets:   prometheus.DefBuckets,
		}, []string{"backend"}),
	}
}

func (m *Metrics) IncPublishErrors(backend string) {
	if m != nil {
		m.PublishErrors.WithLabelValues(backend).Inc()
	}
}

func (m *Metrics) IncSubscribeErrors(backend string) {
	if m != nil {
		m.SubscribeErrors.WithLabelValues(backend).Inc()
	}
}

func (m *Metrics) IncReconnects(backend string) {
	if m != nil {
		m.Reconnects.WithLabelValues(backend).Inc()
	}
}

// LatencyObserver 返回可用作 ClientConfig.ObserveLatency 的函数
func (m *Metrics) LatencyObserver(backend string) func(time.Duration) {
	if m == nil {
		return nil
	}
	h := m.Latency.WithLabelValues(backend)
	return func(d time.Duration) { h.Observe(d.Seconds()) }
}
