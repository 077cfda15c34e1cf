package worker

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	tasksReceived = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "narrative_worker_tasks_received_total",
			Help: "Total number of tasks received by the narrative worker.",
		},
	)
	tasksFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "narrative_worker_tasks_failed_total",
			Help: "Total number of tasks failed, partitioned by failure reason.",
		},
		[]string{"reason"},
	)
	tasksSucceeded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "narrative_worker_tasks_succeeded_total",
			Help: "Total number of tasks successfully processed, partitioned by task type.",
		},
		[]string{"task_type"},
	)
	taskDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "narrative_worker_task_duration_seconds",
			Help:    "Histogram of end-to-end task processing durations.",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 12),
		},
		[]string{"task_type"},
	)
)

// IncrementTasksReceived увеличивает счетчик полученных задач.
func IncrementTasksReceived() {
	tasksReceived.Inc()
}

// IncrementTaskFailed увеличивает счетчик неудачных задач для указанной причины.
func IncrementTaskFailed(reason string) {
	tasksFailed.WithLabelValues(reason).Inc()
}

// IncrementTaskSucceeded увеличивает счетчик успешно выполненных задач.
func IncrementTaskSucceeded(taskType string) {
	tasksSucceeded.WithLabelValues(taskType).Inc()
}

// RecordTaskDuration записывает общую длительность обработки задачи.
func RecordTaskDuration(taskType string, d time.Duration) {
	taskDuration.WithLabelValues(taskType).Observe(d.Seconds())
}
