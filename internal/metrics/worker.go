package metrics

import (
	"context"
	"errors"
	"time"

	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	workerTasksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "txproof",
			Subsystem: "worker",
			Name:      "tasks_total",
			Help:      "Total number of tasks processed by type and status",
		},
		[]string{"task_type", "status"}, // completed/skipped/failed
	)

	workerTaskDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "txproof",
			Subsystem: "worker",
			Name:      "task_duration_seconds",
			Help:      "Duration of task processing by type",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"task_type"},
	)

	workerTasksActive = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "txproof",
			Subsystem: "worker",
			Name:      "tasks_active",
			Help:      "Number of tasks currently being processed",
		},
		[]string{"task_type"},
	)

	workerLastTaskTimestamp = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "txproof",
			Subsystem: "worker",
			Name:      "last_task_timestamp",
			Help:      "Timestamp of when worker last processed a task",
		},
	)
)

type WorkerMetrics struct{}

func NewWorkerMetrics() *WorkerMetrics {
	return &WorkerMetrics{}
}

func (wm *WorkerMetrics) record(taskType, status string, duration float64) {
	workerTasksTotal.WithLabelValues(taskType, status).Inc()
	workerTaskDuration.WithLabelValues(taskType).Observe(duration)
	workerLastTaskTimestamp.SetToCurrentTime()
}

// WithWorkerMetrics wraps a task handler with worker metrics collection
func WithWorkerMetrics(handler asynq.HandlerFunc, taskType string, metrics *WorkerMetrics) asynq.HandlerFunc {
	return func(ctx context.Context, task *asynq.Task) error {
		if metrics == nil {
			return handler.ProcessTask(ctx, task)
		}

		start := time.Now()
		workerTasksActive.WithLabelValues(taskType).Inc()
		defer workerTasksActive.WithLabelValues(taskType).Dec()

		err := handler.ProcessTask(ctx, task)
		duration := time.Since(start).Seconds()

		switch {
		case err == nil:
			metrics.record(taskType, "completed", duration)
		case errors.Is(err, asynq.SkipRetry):
			metrics.record(taskType, "skipped", duration)
		default:
			metrics.record(taskType, "failed", duration)
		}
		return err
	}
}
