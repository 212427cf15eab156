package workerpool

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"golang.org/x/sync/errgroup"

	sqerrors "github.com/vnykmshr/sloq/pkg/common/errors"
)

// Run starts the workers and blocks until ctx is done and every worker has
// returned. Cancellation is the normal way to stop a pool and yields nil.
// A Source failure other than cancellation stops all workers and is returned.
func (p *Pool[T]) Run(ctx context.Context) error {
	if !p.running.CompareAndSwap(false, true) {
		return sqerrors.NewOperationError("workerpool", "Run", fmt.Errorf("pool %q is already running", p.config.Name))
	}
	defer p.running.Store(false)

	if p.registry != nil {
		p.registry.WorkerPoolSize.WithLabelValues(p.config.Name).Set(float64(p.config.WorkerCount))
	}

	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < p.config.WorkerCount; i++ {
		id := i
		g.Go(func() error {
			return p.work(gctx, id)
		})
	}

	err := g.Wait()
	if err != nil && ctx.Err() != nil {
		return nil
	}
	return err
}

// work is the main loop for a worker.
func (p *Pool[T]) work(ctx context.Context, id int) error {
	if p.config.OnWorkerStart != nil {
		p.config.OnWorkerStart(id)
	}
	if p.config.OnWorkerStop != nil {
		defer p.config.OnWorkerStop(id)
	}

	for {
		item, err := p.source.Get(ctx)
		if err != nil {
			switch {
			case ctx.Err() != nil:
				return nil
			case errors.Is(err, sqerrors.ErrClosed):
				p.logger.Info("source closed", slog.Int("worker", id))
				return nil
			case sqerrors.IsTemporary(err):
				p.logger.Debug("source not ready", slog.Int("worker", id), slog.Any("error", err))
				if !p.pause(ctx) {
					return nil
				}
				continue
			}
			p.logger.Error("worker stopped", slog.Int("worker", id), slog.Any("error", err))
			return err
		}

		result := p.execute(ctx, id, item)
		if p.config.OnTaskComplete != nil {
			p.config.OnTaskComplete(id, result)
		}

		if err := p.source.TaskDone(); err != nil {
			return sqerrors.NewOperationError("workerpool", "TaskDone", err)
		}
	}
}

// pause waits RetryInterval before a worker retries its Source. It reports
// false if ctx ended first.
func (p *Pool[T]) pause(ctx context.Context) bool {
	t := time.NewTimer(p.config.RetryInterval)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}

// execute runs the handler for one item, recovering panics.
func (p *Pool[T]) execute(ctx context.Context, id int, item T) (result Result[T]) {
	start := time.Now()
	p.activeWorkers.Add(1)
	p.recordActive()

	defer func() {
		if r := recover(); r != nil {
			result.Error = fmt.Errorf("task panicked: %v\nStack trace:\n%s", r, debug.Stack())
		}
		result.Item = item
		result.WorkerID = id
		result.Duration = time.Since(start)

		p.activeWorkers.Add(-1)
		p.recordActive()
		p.recordResult(result)
	}()

	if p.config.TaskTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.config.TaskTimeout)
		defer cancel()
	}

	result.Error = p.config.Handler(ctx, item)
	return result
}

func (p *Pool[T]) recordActive() {
	if p.registry != nil {
		p.registry.WorkerPoolActive.WithLabelValues(p.config.Name).Set(float64(p.activeWorkers.Load()))
	}
}

func (p *Pool[T]) recordResult(result Result[T]) {
	if result.Error != nil {
		p.totalFailed.Add(1)
		p.logger.Warn("task failed",
			slog.Int("worker", result.WorkerID),
			slog.Duration("duration", result.Duration),
			slog.Any("error", result.Error),
		)
	} else {
		p.totalCompleted.Add(1)
	}

	if p.registry == nil {
		return
	}
	p.registry.TaskExecutionDuration.WithLabelValues(p.config.Name).Observe(result.Duration.Seconds())
	if result.Error != nil {
		p.registry.TasksFailed.WithLabelValues(p.config.Name).Inc()
	} else {
		p.registry.TasksCompleted.WithLabelValues(p.config.Name).Inc()
	}
}
