package workerpool

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/vnykmshr/sloq/pkg/common/validation"
	"github.com/vnykmshr/sloq/pkg/metrics"
)

// Source is what workers drain. *slowqueue.Queue satisfies it.
type Source[T any] interface {
	// Get blocks until the next item is released or ctx is done.
	// An error wrapping ErrClosed stops the worker cleanly; ErrEmpty or
	// ErrCapacityExceeded make it retry after RetryInterval. Any other
	// error stops the pool.
	Get(ctx context.Context) (T, error)

	// TaskDone marks one released item as processed.
	TaskDone() error
}

// Handler processes one item.
// It should respect context cancellation and return any error encountered.
type Handler[T any] func(ctx context.Context, item T) error

// Result represents the outcome of handling one item.
type Result[T any] struct {
	// Item is the item that was handled
	Item T

	// Error is any error returned by the handler, including recovered panics
	Error error

	// Duration is how long the handler ran
	Duration time.Duration

	// WorkerID identifies which worker handled the item
	WorkerID int
}

// Config holds configuration options for creating a worker pool.
type Config[T any] struct {
	// WorkerCount is the number of workers in the pool.
	// Must be greater than 0.
	WorkerCount int

	// Handler processes each released item. Required.
	Handler Handler[T]

	// TaskTimeout bounds each handler call. Zero means no timeout.
	TaskTimeout time.Duration

	// RetryInterval paces retries after a temporary Source error.
	// Defaults to 50ms.
	RetryInterval time.Duration

	// OnWorkerStart is called when a worker starts.
	OnWorkerStart func(workerID int)

	// OnWorkerStop is called when a worker stops.
	OnWorkerStop func(workerID int)

	// OnTaskComplete is called after a handler returns (success or failure)
	// and before the item is marked done.
	OnTaskComplete func(workerID int, result Result[T])

	// Name labels metrics and log records. Defaults to "default".
	Name string

	// Metrics enables Prometheus collection.
	Metrics metrics.Config

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// Pool runs a fixed number of workers that drain a Source.
type Pool[T any] struct {
	config   Config[T]
	source   Source[T]
	registry *metrics.Registry
	logger   *slog.Logger

	running        atomic.Bool
	activeWorkers  atomic.Int32
	totalCompleted atomic.Int64
	totalFailed    atomic.Int64
}

// New creates a pool of workerCount workers applying handler to every item
// released by source.
func New[T any](source Source[T], workerCount int, handler Handler[T]) (*Pool[T], error) {
	return NewWithConfig(source, Config[T]{
		WorkerCount: workerCount,
		Handler:     handler,
	})
}

// NewWithConfig creates a pool with the specified configuration.
// Workers start on Run.
func NewWithConfig[T any](source Source[T], config Config[T]) (*Pool[T], error) {
	if err := validation.ValidateNotNil("workerpool", "source", source); err != nil {
		return nil, err
	}
	if err := validation.ValidatePositive("workerpool", "worker count", config.WorkerCount); err != nil {
		return nil, err
	}
	if err := validation.ValidateNotNil("workerpool", "handler", config.Handler); err != nil {
		return nil, err
	}
	if config.Name == "" {
		config.Name = "default"
	}
	if config.RetryInterval <= 0 {
		config.RetryInterval = 50 * time.Millisecond
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	p := &Pool[T]{
		config: config,
		source: source,
		logger: config.Logger.With(slog.String("component", "workerpool"), slog.String("pool", config.Name)),
	}
	if config.Metrics.Enabled {
		p.registry = metrics.ForConfig(config.Metrics)
	}
	return p, nil
}

// Size returns the number of workers in the pool.
func (p *Pool[T]) Size() int {
	return p.config.WorkerCount
}

// ActiveWorkers returns the number of workers currently running a handler.
func (p *Pool[T]) ActiveWorkers() int {
	return int(p.activeWorkers.Load())
}

// TotalCompleted returns the number of items handled without error.
func (p *Pool[T]) TotalCompleted() int64 {
	return p.totalCompleted.Load()
}

// TotalFailed returns the number of items whose handler failed or panicked.
func (p *Pool[T]) TotalFailed() int64 {
	return p.totalFailed.Load()
}
