// Package slowqueue provides a blocking work queue whose consumers are
// released at a bounded long-run rate.
//
// Producers put items unconditionally. Each Get pops the next item from the
// underlying FIFO and then waits for one token from a token bucket, so the
// aggregate release rate across every consumer never exceeds one item per
// tick. Seeding the bucket with ResetTokens delays the first release
// (negative balance) or allows a short burst (positive balance).
//
// A consumer short of a token sleeps for the fraction of a token it is
// missing, read as seconds. With a tick of one second or more consecutive
// releases are therefore at least one tick apart. With a shorter tick a
// single wait accrues several tokens and the releases that follow it go out
// together; only the long-run rate is bounded.
package slowqueue

import (
	"context"
	"log/slog"
	"time"

	sqerrors "github.com/vnykmshr/sloq/pkg/common/errors"
	"github.com/vnykmshr/sloq/pkg/metrics"
	"github.com/vnykmshr/sloq/pkg/queue/fifo"
	"github.com/vnykmshr/sloq/pkg/ratelimit/tokenbucket"
)

// Config holds configuration options for creating a new Queue.
// Either Tick or Bucket must be set.
type Config[T any] struct {
	// Tick is the minimum interval between releases. It is used to build an
	// owned, already started bucket when Bucket is nil.
	Tick time.Duration

	// Bucket gates releases. A supplied bucket must already be started; the
	// queue calls Count once at construction to check that.
	Bucket tokenbucket.Bucket

	// FIFO holds the items. If nil, an in-memory queue bounded by MaxSize is used.
	FIFO fifo.Queue[T]

	// MaxSize bounds the default in-memory FIFO. <= 0 means unbounded.
	MaxSize int

	// Clock and Sleeper are handed to the owned bucket. Ignored with Bucket.
	Clock   tokenbucket.Clock
	Sleeper tokenbucket.Sleeper

	// Name labels metrics and log records. Defaults to "default".
	Name string

	// Metrics enables Prometheus collection for the queue and its bucket.
	Metrics metrics.Config

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// Queue is a rate-limited FIFO. The bucket and FIFO are fixed for the
// queue's lifetime.
type Queue[T any] struct {
	bucket   tokenbucket.Bucket
	fifo     fifo.Queue[T]
	name     string
	registry *metrics.Registry
	logger   *slog.Logger
}

// New creates a queue releasing at most one item per tick, backed by an
// in-memory FIFO holding at most maxSize items.
func New[T any](tick time.Duration, maxSize int) (*Queue[T], error) {
	return NewWithConfig(Config[T]{Tick: tick, MaxSize: maxSize})
}

// NewWithConfig creates a queue from config.
func NewWithConfig[T any](config Config[T]) (*Queue[T], error) {
	if config.Name == "" {
		config.Name = "default"
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	bucket := config.Bucket
	switch {
	case bucket != nil:
		if _, err := bucket.Count(); err != nil {
			return nil, sqerrors.NewOperationError("slowqueue", "New", err).
				WithContext("supplied bucket must be started")
		}
	case config.Tick > 0:
		tb, err := tokenbucket.NewWithConfig(tokenbucket.Config{
			Tick:    config.Tick,
			Clock:   config.Clock,
			Sleeper: config.Sleeper,
		})
		if err != nil {
			return nil, err
		}
		bucket = tb
	default:
		return nil, sqerrors.NewValidationError("slowqueue", "tick", config.Tick, "must be positive when no bucket is given").
			WithHint("provide a release tick or a started token bucket")
	}

	if config.FIFO == nil {
		config.FIFO = fifo.NewMemory[T](config.MaxSize)
	}

	q := &Queue[T]{
		bucket: bucket,
		fifo:   config.FIFO,
		name:   config.Name,
		logger: config.Logger.With(slog.String("component", "slowqueue"), slog.String("queue", config.Name)),
	}
	if config.Metrics.Enabled {
		q.registry = metrics.ForConfig(config.Metrics)
		q.bucket = tokenbucket.NewWithMetrics(bucket, config.Name, config.Metrics)
	}
	return q, nil
}

// Put adds item to the FIFO, blocking while a bounded FIFO is full.
// Producers are never rate limited.
func (q *Queue[T]) Put(ctx context.Context, item T) error {
	if err := q.fifo.Put(ctx, item); err != nil {
		return err
	}
	q.recordPut()
	return nil
}

// PutNowait adds item or fails with ErrCapacityExceeded.
func (q *Queue[T]) PutNowait(item T) error {
	if err := q.fifo.TryPut(item); err != nil {
		return err
	}
	q.recordPut()
	return nil
}

// Get pops the next item, blocking while the FIFO is empty, then waits for
// one token before returning it. ctx bounds only the wait for an item: once
// an item has been popped the token wait runs to completion, so an item is
// never dropped between the two steps.
func (q *Queue[T]) Get(ctx context.Context) (T, error) {
	item, err := q.fifo.Get(ctx)
	if err != nil {
		var zero T
		return zero, err
	}

	start := time.Now()
	if err := q.bucket.Take(1); err != nil {
		return item, sqerrors.NewOperationError("slowqueue", "Get", err)
	}
	waited := time.Since(start)

	q.logger.Debug("released item", slog.Duration("token_wait", waited))
	if q.registry != nil {
		q.registry.QueueReleases.WithLabelValues(q.name).Inc()
		q.registry.QueueReleaseWait.WithLabelValues(q.name).Observe(waited.Seconds())
		q.registry.QueueDepth.WithLabelValues(q.name).Set(float64(q.fifo.Len()))
	}
	return item, nil
}

// GetWith is Get for callers that pass dequeue options. Non-blocking and
// timed dequeues are not supported: NoWait or a non-zero WithTimeout fail
// with ErrInvalidArgument before the FIFO is touched.
func (q *Queue[T]) GetWith(ctx context.Context, opts ...GetOption) (T, error) {
	var o getOptions
	for _, opt := range opts {
		opt(&o)
	}
	if err := o.validate(); err != nil {
		var zero T
		return zero, err
	}
	return q.Get(ctx)
}

// GetNowait always fails with ErrInvalidArgument.
func (q *Queue[T]) GetNowait() (T, error) {
	return q.GetWith(context.Background(), NoWait())
}

// TaskDone marks one released item as processed.
func (q *Queue[T]) TaskDone() error {
	return q.fifo.TaskDone()
}

// Join blocks until every put item has been marked done.
func (q *Queue[T]) Join(ctx context.Context) error {
	return q.fifo.Join(ctx)
}

// QSize returns the number of items waiting in the FIFO.
func (q *Queue[T]) QSize() int {
	return q.fifo.Len()
}

// Empty reports whether the FIFO holds no items.
func (q *Queue[T]) Empty() bool {
	return q.fifo.Empty()
}

// Full reports whether a bounded FIFO is at capacity.
func (q *Queue[T]) Full() bool {
	return q.fifo.Full()
}

// ResetTokens re-seeds the bucket balance. A negative balance delays the
// next release by that many ticks; a positive one allows a burst.
func (q *Queue[T]) ResetTokens(tokens float64) {
	q.bucket.Reset(tokens)
	q.logger.Debug("reset tokens", slog.Float64("tokens", tokens))
}

// Bucket returns the bucket gating releases.
func (q *Queue[T]) Bucket() tokenbucket.Bucket {
	return q.bucket
}

// Name returns the queue's metrics and logging label.
func (q *Queue[T]) Name() string {
	return q.name
}

func (q *Queue[T]) recordPut() {
	if q.registry == nil {
		return
	}
	q.registry.QueuePuts.WithLabelValues(q.name).Inc()
	q.registry.QueueDepth.WithLabelValues(q.name).Set(float64(q.fifo.Len()))
}
