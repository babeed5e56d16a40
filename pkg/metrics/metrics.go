// Package metrics 暴露队列与 worker 的 Prometheus 指标。
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "fitsstore"

// 处理结果标签值。
const (
	OutcomeDone     = "done"
	OutcomeFailed   = "failed"
	OutcomeDeferred = "deferred"
	OutcomeSkipped  = "skipped"
)

// Collector 是 prometheus.Collector，汇总队列长度、处理计数与导出字节数。
// nil *Collector 上的记录方法都是空操作。
type Collector struct {
	queueLength *prometheus.GaugeVec
	processed   *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	exportBytes *prometheus.CounterVec
}

// NewCollector 返回一个新的 Collector。
func NewCollector() *Collector {
	return &Collector{
		queueLength: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "queue_length",
				Help:      "Number of eligible entries in a work queue.",
			}, []string{"queue"},
		),
		processed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "queue_processed_total",
				Help:      "Queue entries handled by workers, by outcome.",
			}, []string{"queue", "outcome"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "queue_work_seconds",
				Help:      "Time spent processing one queue entry.",
				Buckets:   []float64{0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60, 300},
			}, []string{"queue"},
		),
		exportBytes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "export_bytes_total",
				Help:      "Bytes sent to export peers.",
			}, []string{"destination"},
		),
	}
}

// Describe is part of the prometheus.Collector interface.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	c.queueLength.Describe(ch)
	c.processed.Describe(ch)
	c.duration.Describe(ch)
	c.exportBytes.Describe(ch)
}

// Collect is part of the prometheus.Collector interface.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	c.queueLength.Collect(ch)
	c.processed.Collect(ch)
	c.duration.Collect(ch)
	c.exportBytes.Collect(ch)
}

// SetQueueLength 记录队列当前的可处理条目数。
func (c *Collector) SetQueueLength(queue string, n int64) {
	if c == nil {
		return
	}
	c.queueLength.WithLabelValues(queue).Set(float64(n))
}

// Processed 记录一次处理结果及耗时。
func (c *Collector) Processed(queue, outcome string, took time.Duration) {
	if c == nil {
		return
	}
	c.processed.WithLabelValues(queue, outcome).Inc()
	c.duration.WithLabelValues(queue).Observe(took.Seconds())
}

// ExportBytes 累加发送到某个对端的字节数。
func (c *Collector) ExportBytes(destination string, n int64) {
	if c == nil {
		return
	}
	c.exportBytes.WithLabelValues(destination).Add(float64(n))
}

// Handler 返回只包含给定 Collector 与 Go 运行时指标的 /metrics 处理器。
func Handler(c *Collector) (http.Handler, error) {
	reg := prometheus.NewRegistry()
	if err := reg.Register(c); err != nil {
		return nil, err
	}
	if err := reg.Register(collectors.NewGoCollector()); err != nil {
		return nil, err
	}
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{}), nil
}
