// Package metrics 提供派生图解析流程的 Prometheus 指标。
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "anyimage"

// Collector 聚合派生流程的计数器与直方图。
type Collector struct {
	// ResolveTotal 按格式与结果统计 Resolve 调用。
	ResolveTotal *prometheus.CounterVec

	// EncodeAttempts 统计质量搜索中的编码次数。
	EncodeAttempts *prometheus.CounterVec

	// EncodeDuration 记录单次编码耗时。
	EncodeDuration *prometheus.HistogramVec

	// BytesSaved 累计派生图相对源图节省的字节数。
	BytesSaved *prometheus.CounterVec
}

// New 使用给定 Registerer 注册指标；reg 为 nil 时创建不注册的 collector。
func New(reg prometheus.Registerer) *Collector {
	factory := promauto.With(reg)
	return &Collector{
		ResolveTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "resolve_total",
				Help:      "Total number of derived image resolutions",
			},
			[]string{"format", "outcome"},
		),
		EncodeAttempts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "encode_attempts_total",
				Help:      "Total number of encoder invocations during quality search",
			},
			[]string{"format"},
		),
		EncodeDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "encode_duration_seconds",
				Help:      "Duration of a single encode attempt in seconds",
				Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
			},
			[]string{"format"},
		),
		BytesSaved: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "bytes_saved_total",
				Help:      "Bytes saved by freshly written derived images compared to their sources",
			},
			[]string{"format"},
		),
	}
}

// RecordResolve 记录一次 Resolve 的结论。
func (c *Collector) RecordResolve(format, outcome string) {
	if c == nil {
		return
	}
	c.ResolveTotal.WithLabelValues(format, outcome).Inc()
}

// RecordEncode 记录一次编码器调用及其耗时。
func (c *Collector) RecordEncode(format string, seconds float64) {
	if c == nil {
		return
	}
	c.EncodeAttempts.WithLabelValues(format).Inc()
	c.EncodeDuration.WithLabelValues(format).Observe(seconds)
}

// RecordSaved 累计被接受的派生图相对源图节省的字节数。
func (c *Collector) RecordSaved(format string, sourceSize, derivedSize int64) {
	if c == nil || derivedSize >= sourceSize {
		return
	}
	c.BytesSaved.WithLabelValues(format).Add(float64(sourceSize - derivedSize))
}
