// Package metrics exposes Prometheus instrumentation for the daemon. A nil
// *Collector is valid and records nothing, so callers never guard.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector holds the metric families the daemon reports. Families live on a
// private registry so repeated construction (tests, embedded use) never
// collides with the process-wide default.
type Collector struct {
	registry *prometheus.Registry

	tasksTotal      *prometheus.CounterVec
	taskDuration    *prometheus.HistogramVec
	retriesTotal    prometheus.Counter
	fallbacksTotal  *prometheus.CounterVec
	activeTasks     prometheus.Gauge
	schedulesActive prometheus.Gauge
	httpRequests    *prometheus.CounterVec
	httpDuration    *prometheus.HistogramVec
}

// NewCollector registers the metric families under the given namespace on a
// fresh registry.
func NewCollector(namespace string) *Collector {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &Collector{
		registry: registry,
		tasksTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "tasks_total",
				Help:      "Total number of tasks by type and terminal status",
			},
			[]string{"type", "status"},
		),
		taskDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "task_duration_seconds",
				Help:      "Wall-clock task execution time in seconds",
				Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
			},
			[]string{"type"},
		),
		retriesTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "task_retries_total",
				Help:      "Total number of retried collaborator operations",
			},
		),
		fallbacksTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "fallbacks_total",
				Help:      "Total number of per-call fallbacks to the direct client",
			},
			[]string{"capability"},
		),
		activeTasks: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "active_tasks",
				Help:      "Number of tasks currently executing",
			},
		),
		schedulesActive: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "schedules_active",
				Help:      "Number of workflow schedules in the active state",
			},
		),
		httpRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of control plane HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		httpDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "Control plane HTTP request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
	}
}

// TaskStarted records a task entering the running state.
func (c *Collector) TaskStarted() {
	if c == nil {
		return
	}
	c.activeTasks.Inc()
}

// TaskFinished records a task reaching a terminal status.
func (c *Collector) TaskFinished(taskType, status string, took time.Duration) {
	if c == nil {
		return
	}
	c.activeTasks.Dec()
	c.tasksTotal.WithLabelValues(taskType, status).Inc()
	c.taskDuration.WithLabelValues(taskType).Observe(took.Seconds())
}

// RetryObserved records a failed attempt that will be retried.
func (c *Collector) RetryObserved() {
	if c == nil {
		return
	}
	c.retriesTotal.Inc()
}

// FallbackObserved records one capability call served by the direct client
// after the enhanced client was unavailable.
func (c *Collector) FallbackObserved(capability string) {
	if c == nil {
		return
	}
	c.fallbacksTotal.WithLabelValues(capability).Inc()
}

// SetSchedulesActive publishes the current number of active schedules.
func (c *Collector) SetSchedulesActive(n int) {
	if c == nil {
		return
	}
	c.schedulesActive.Set(float64(n))
}

// RecordHTTPRequest records one control plane request.
func (c *Collector) RecordHTTPRequest(method, path string, status int, took time.Duration) {
	if c == nil {
		return
	}
	c.httpRequests.WithLabelValues(method, path, statusClass(status)).Inc()
	c.httpDuration.WithLabelValues(method, path).Observe(took.Seconds())
}

// Handler returns the scrape endpoint handler. A nil collector serves an
// empty exposition.
func (c *Collector) Handler() http.Handler {
	if c == nil {
		return promhttp.HandlerFor(prometheus.NewRegistry(), promhttp.HandlerOpts{})
	}
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

func statusClass(code int) string {
	switch {
	case code >= 200 && code < 300:
		return "2xx"
	case code >= 300 && code < 400:
		return "3xx"
	case code >= 400 && code < 500:
		return "4xx"
	case code >= 500:
		return "5xx"
	default:
		return "unknown"
	}
}
