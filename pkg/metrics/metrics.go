// Package metrics provides Prometheus instrumentation for sloq components.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "sloq"

// Registry holds all metric instances for sloq components.
type Registry struct {
	// Token bucket metrics
	TakeRequests *prometheus.CounterVec
	TakeAllowed  *prometheus.CounterVec
	TakeDenied   *prometheus.CounterVec
	TakeWaitTime *prometheus.HistogramVec
	Tokens       *prometheus.GaugeVec
	BucketResets *prometheus.CounterVec

	// Rate-limited queue metrics
	QueuePuts        *prometheus.CounterVec
	QueueReleases    *prometheus.CounterVec
	QueueReleaseWait *prometheus.HistogramVec
	QueueDepth       *prometheus.GaugeVec

	// Worker pool metrics
	WorkerPoolSize        *prometheus.GaugeVec
	WorkerPoolActive      *prometheus.GaugeVec
	TasksCompleted        *prometheus.CounterVec
	TasksFailed           *prometheus.CounterVec
	TaskExecutionDuration *prometheus.HistogramVec
}

// DefaultRegistry is the default metrics registry used by sloq components.
var DefaultRegistry *Registry

func init() {
	DefaultRegistry = NewRegistry(prometheus.DefaultRegisterer)
}

// NewRegistry creates a new metrics registry with the given Prometheus registerer.
// Calling it twice with the same registerer panics; use ForConfig to share.
func NewRegistry(reg prometheus.Registerer) *Registry {
	factory := promauto.With(reg)

	return &Registry{
		TakeRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "tokenbucket",
				Name:      "take_requests_total",
				Help:      "Total number of tokens requested",
			},
			[]string{"bucket_name"},
		),

		TakeAllowed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "tokenbucket",
				Name:      "take_allowed_total",
				Help:      "Total number of tokens taken",
			},
			[]string{"bucket_name"},
		),

		TakeDenied: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "tokenbucket",
				Name:      "take_denied_total",
				Help:      "Total number of tokens refused",
			},
			[]string{"bucket_name"},
		),

		TakeWaitTime: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "tokenbucket",
				Name:      "take_wait_duration_seconds",
				Help:      "Time spent inside take calls",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"bucket_name"},
		),

		Tokens: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "tokenbucket",
				Name:      "tokens",
				Help:      "Current token balance",
			},
			[]string{"bucket_name"},
		),

		BucketResets: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "tokenbucket",
				Name:      "resets_total",
				Help:      "Total number of balance resets",
			},
			[]string{"bucket_name"},
		),

		QueuePuts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "queue",
				Name:      "puts_total",
				Help:      "Total number of items put on the queue",
			},
			[]string{"queue_name"},
		),

		QueueReleases: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "queue",
				Name:      "releases_total",
				Help:      "Total number of items released to consumers",
			},
			[]string{"queue_name"},
		),

		QueueReleaseWait: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "queue",
				Name:      "release_wait_seconds",
				Help:      "Time a popped item waited for a token",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"queue_name"},
		),

		QueueDepth: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "queue",
				Name:      "depth",
				Help:      "Number of items waiting in the queue",
			},
			[]string{"queue_name"},
		),

		WorkerPoolSize: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "workerpool",
				Name:      "size",
				Help:      "Current worker pool size",
			},
			[]string{"pool_name"},
		),

		WorkerPoolActive: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "workerpool",
				Name:      "active_workers",
				Help:      "Number of workers processing an item",
			},
			[]string{"pool_name"},
		),

		TasksCompleted: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "workerpool",
				Name:      "tasks_completed_total",
				Help:      "Total number of items handled successfully",
			},
			[]string{"pool_name"},
		),

		TasksFailed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "workerpool",
				Name:      "tasks_failed_total",
				Help:      "Total number of items whose handler failed",
			},
			[]string{"pool_name"},
		),

		TaskExecutionDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "workerpool",
				Name:      "task_duration_seconds",
				Help:      "Time spent handling items",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"pool_name"},
		),
	}
}
