package jobs

import (
	"context"
	"sync"
	"time"

	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes Prometheus collectors for background task execution.
type Metrics struct {
	runs     *prometheus.CounterVec
	failures *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

var (
	defaultOnce    sync.Once
	defaultMetrics *Metrics
)

// NewMetrics registers the task metrics against the provided registerer.
// When the registerer is nil the default Prometheus registerer is used.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		defaultOnce.Do(func() {
			defaultMetrics = buildMetrics(prometheus.DefaultRegisterer)
		})
		return defaultMetrics
	}
	return buildMetrics(registerer)
}

// Instrument wraps a task handler with run, failure and duration recording.
func (m *Metrics) Instrument(taskType string, next asynq.HandlerFunc) asynq.HandlerFunc {
	if m == nil {
		return next
	}
	return func(ctx context.Context, t *asynq.Task) error {
		start := time.Now()
		err := next(ctx, t)
		status := "success"
		if err != nil {
			status = "failure"
			m.failures.WithLabelValues(taskType).Inc()
		}
		m.runs.WithLabelValues(taskType, status).Inc()
		m.duration.WithLabelValues(taskType).Observe(time.Since(start).Seconds())
		return err
	}
}

func buildMetrics(registerer prometheus.Registerer) *Metrics {
	runs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "darklock_tasks_total",
		Help: "Total task executions partitioned by task type and status.",
	}, []string{"task", "status"})
	failures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "darklock_task_failures_total",
		Help: "Total failures observed for background tasks.",
	}, []string{"task"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "darklock_task_duration_seconds",
		Help:    "Duration in seconds of background task executions.",
		Buckets: prometheus.DefBuckets,
	}, []string{"task"})
	registerer.MustRegister(runs, failures, duration)
	return &Metrics{runs: runs, failures: failures, duration: duration}
}
