package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/subcommands"
	"golang.org/x/sync/errgroup"

	"github.com/vnykmshr/sloq/internal/eventtimer"
	sqerrors "github.com/vnykmshr/sloq/pkg/common/errors"
	"github.com/vnykmshr/sloq/pkg/scheduling/workerpool"
	"github.com/vnykmshr/sloq/pkg/slowqueue"
)

type measureCmd struct {
	tasks     int
	tick      time.Duration
	workers   int
	tolerance time.Duration
}

func (*measureCmd) Name() string     { return "measure" }
func (*measureCmd) Synopsis() string { return "measure the gaps between releases" }
func (*measureCmd) Usage() string {
	return `measure [flags]:
  Release -n items to -w workers and report the observed gaps.
  Exits non-zero if any gap is shorter than -t minus -tolerance.
`
}

func (c *measureCmd) SetFlags(f *flag.FlagSet) {
	f.IntVar(&c.tasks, "n", 5, "number of items")
	f.DurationVar(&c.tick, "t", time.Second, "minimum interval between releases (one second or more)")
	f.IntVar(&c.workers, "w", 4, "number of workers")
	f.DurationVar(&c.tolerance, "tolerance", 5*time.Millisecond, "allowed timer jitter")
}

func (c *measureCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...any) subcommands.ExitStatus {
	stats, err := measure(ctx, c.tick, c.workers, c.tasks)
	if err != nil {
		slog.Error("measure failed", slog.Any("error", err))
		if sqerrors.IsValidationError(err) {
			return subcommands.ExitUsageError
		}
		return subcommands.ExitFailure
	}
	fmt.Println(stats)

	if stats.Count > 0 && stats.Min < c.tick-c.tolerance {
		slog.Error("release gap below tick", slog.Duration("min", stats.Min), slog.Duration("tick", c.tick))
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}

// measure releases items to workerCount workers and times each release.
// The bucket starts workerCount/2 tokens in debt so that every worker is
// already waiting when the first item comes out.
func measure(ctx context.Context, tick time.Duration, workerCount, items int) (eventtimer.Stats, error) {
	logger := slog.Default()

	q, err := slowqueue.NewWithConfig(slowqueue.Config[int]{Tick: tick, Name: "measure", Logger: logger})
	if err != nil {
		return eventtimer.Stats{}, err
	}
	q.ResetTokens(-float64(workerCount / 2))

	timer := eventtimer.New(eventtimer.WithLogger(logger))
	pool, err := workerpool.New[int](q, workerCount, func(_ context.Context, item int) error {
		timer.Tick(item)
		return nil
	})
	if err != nil {
		return eventtimer.Stats{}, err
	}

	for i := 0; i < items; i++ {
		if err := q.Put(ctx, i); err != nil {
			return eventtimer.Stats{}, err
		}
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(runCtx)
	g.Go(func() error { return pool.Run(gctx) })
	g.Go(func() error {
		defer cancel()
		return q.Join(gctx)
	})
	if err := g.Wait(); err != nil {
		return timer.Stats(), err
	}
	return timer.Stats(), ctx.Err()
}
