// Package metrics provides internal metrics collection for the web
// front-end. This package is internal and should not be imported by
// external projects.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// =============================================================================
// 📊 指标收集器
// =============================================================================

// Collector 指标收集器：HTTP 请求与生成任务两类指标
type Collector struct {
	// HTTP 指标
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// 生成任务指标
	jobsTotal    *prometheus.CounterVec
	jobsInflight prometheus.Gauge
	jobDuration  *prometheus.HistogramVec
	jobProgress  *prometheus.GaugeVec

	logger *zap.Logger
}

// NewCollector 创建指标收集器并注册到 reg（nil 表示默认 Registerer）
func NewCollector(namespace string, reg prometheus.Registerer, logger *zap.Logger) *Collector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	c := &Collector{
		logger: logger.With(zap.String("component", "metrics")),
	}

	c.httpRequestsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	c.httpRequestDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	c.jobsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "generation_jobs_total",
			Help:      "Total number of generation jobs by task type and outcome",
		},
		[]string{"type", "outcome"},
	)

	c.jobsInflight = factory.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "generation_jobs_inflight",
			Help:      "Number of generation jobs currently running",
		},
	)

	c.jobDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "generation_job_duration_seconds",
			Help:      "Wall time of a generation job from submit to terminal state",
			// 分钟级任务：10s ~ 20min
			Buckets: []float64{10, 30, 60, 120, 240, 480, 720, 1200},
		},
		[]string{"type"},
	)

	c.jobProgress = factory.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "generation_job_progress_percent",
			Help:      "Last reported remote progress per job",
		},
		[]string{"job_id"},
	)

	return c
}

// RecordHTTPRequest 记录一次 HTTP 请求
func (c *Collector) RecordHTTPRequest(method, path, status string, duration time.Duration) {
	c.httpRequestsTotal.WithLabelValues(method, path, status).Inc()
	c.httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// JobStarted 记录任务开始
func (c *Collector) JobStarted() {
	c.jobsInflight.Inc()
}

// JobFinished 记录任务结束（outcome: success, failed, timeout, rejected）
func (c *Collector) JobFinished(taskType, outcome string, duration time.Duration) {
	c.jobsInflight.Dec()
	c.jobsTotal.WithLabelValues(taskType, outcome).Inc()
	c.jobDuration.WithLabelValues(taskType).Observe(duration.Seconds())
}

// JobProgress 记录任务进度
func (c *Collector) JobProgress(jobID string, percent int) {
	c.jobProgress.WithLabelValues(jobID).Set(float64(percent))
}

// JobDone 清理任务进度指标，避免标签无限增长
func (c *Collector) JobDone(jobID string) {
	c.jobProgress.DeleteLabelValues(jobID)
}
