package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/subcommands"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	sqerrors "github.com/vnykmshr/sloq/pkg/common/errors"
	"github.com/vnykmshr/sloq/pkg/metrics"
	"github.com/vnykmshr/sloq/pkg/queue/fifo"
	"github.com/vnykmshr/sloq/pkg/queue/redisfifo"
	"github.com/vnykmshr/sloq/pkg/scheduling/reseed"
	"github.com/vnykmshr/sloq/pkg/scheduling/workerpool"
	"github.com/vnykmshr/sloq/pkg/slowqueue"
)

type demoCmd struct {
	tasks       int
	tick        time.Duration
	workers     int
	duration    time.Duration
	slam        float64
	metricsAddr string
	redisAddr   string
	redisKey    string
	reseed      string
}

func (*demoCmd) Name() string     { return "demo" }
func (*demoCmd) Synopsis() string { return "drain tasks through a rate-limited queue" }
func (*demoCmd) Usage() string {
	return `demo [flags]:
  Queue -n tasks and release them to -w workers at most one per -t.
`
}

func (c *demoCmd) SetFlags(f *flag.FlagSet) {
	f.IntVar(&c.tasks, "n", 10, "number of tasks")
	f.DurationVar(&c.tick, "t", time.Second, "minimum interval between releases")
	f.IntVar(&c.workers, "w", 3, "number of workers")
	f.DurationVar(&c.duration, "d", 0, "time each task takes")
	f.Float64Var(&c.slam, "slam", 0, "initial token balance; positive allows a burst, negative delays the first release")
	f.StringVar(&c.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")
	f.StringVar(&c.redisAddr, "redis-addr", "", "keep the queue in Redis at this address")
	f.StringVar(&c.redisKey, "redis-key", "sloq:demo", "key prefix for the Redis queue")
	f.StringVar(&c.reseed, "reseed", "", "cron spec for re-seeding the balance with -slam, e.g. \"@every 10s\"")
}

func (c *demoCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...any) subcommands.ExitStatus {
	if err := c.run(ctx); err != nil {
		slog.Error("demo failed", slog.Any("error", err))
		if sqerrors.IsValidationError(err) {
			return subcommands.ExitUsageError
		}
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}

func (c *demoCmd) run(ctx context.Context) error {
	logger := slog.Default()
	mcfg := metrics.Config{Enabled: c.metricsAddr != ""}

	backing, closeFIFO, err := c.newFIFO(ctx, logger)
	if err != nil {
		return err
	}
	defer closeFIFO()

	q, err := slowqueue.NewWithConfig(slowqueue.Config[int]{
		Tick:    c.tick,
		FIFO:    backing,
		Name:    "demo",
		Metrics: mcfg,
		Logger:  logger,
	})
	if err != nil {
		return err
	}
	if c.slam != 0 {
		q.ResetTokens(c.slam)
	}

	if c.reseed != "" {
		r, err := reseed.New(q, reseed.WithLogger(logger))
		if err != nil {
			return err
		}
		if _, err := r.Schedule(c.reseed, c.slam); err != nil {
			return err
		}
		r.Start()
		defer r.Stop()
	}

	for i := 1; i <= c.tasks; i++ {
		if err := q.Put(ctx, i); err != nil {
			return err
		}
	}
	logger.Info("tasks queued", slog.Int("tasks", c.tasks), slog.Duration("tick", c.tick), slog.Int("workers", c.workers))

	start := time.Now()
	pool, err := workerpool.NewWithConfig[int](q, workerpool.Config[int]{
		WorkerCount: c.workers,
		Name:        "demo",
		Metrics:     mcfg,
		Logger:      logger,
		Handler: func(ctx context.Context, task int) error {
			select {
			case <-time.After(c.duration):
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		},
		OnTaskComplete: func(workerID int, result workerpool.Result[int]) {
			logger.Info("task done",
				slog.Int("worker", workerID),
				slog.Int("task", result.Item),
				slog.Duration("elapsed", time.Since(start).Round(time.Millisecond)),
			)
		},
	})
	if err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(runCtx)
	g.Go(func() error { return pool.Run(gctx) })
	if c.metricsAddr != "" {
		srv := &http.Server{Addr: c.metricsAddr, Handler: promhttp.Handler(), ReadHeaderTimeout: 5 * time.Second}
		g.Go(func() error { return serveUntil(gctx, srv) })
		logger.Info("serving metrics", slog.String("addr", c.metricsAddr))
	}
	g.Go(func() error {
		defer cancel()
		return q.Join(gctx)
	})

	if err := g.Wait(); err != nil && ctx.Err() == nil {
		return err
	}
	logger.Info("all tasks done",
		slog.Int64("completed", pool.TotalCompleted()),
		slog.Int64("failed", pool.TotalFailed()),
		slog.Duration("elapsed", time.Since(start).Round(time.Millisecond)),
	)
	return ctx.Err()
}

func (c *demoCmd) newFIFO(ctx context.Context, logger *slog.Logger) (fifo.Queue[int], func(), error) {
	if c.redisAddr == "" {
		return nil, func() {}, nil
	}

	client := redis.NewClient(&redis.Options{Addr: c.redisAddr})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, nil, fmt.Errorf("connect to redis at %s: %w", c.redisAddr, err)
	}
	q, err := redisfifo.New(redisfifo.Config[int]{Client: client, Key: c.redisKey, Logger: logger})
	if err != nil {
		client.Close()
		return nil, nil, err
	}
	if err := q.Clear(ctx); err != nil {
		client.Close()
		return nil, nil, err
	}
	return q, func() { client.Close() }, nil
}

// serveUntil runs srv until ctx is done, then shuts it down.
func serveUntil(ctx context.Context, srv *http.Server) error {
	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}
