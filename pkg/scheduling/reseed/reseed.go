// Package reseed re-seeds a rate-limited queue's token balance on a cron
// schedule, for example to open a burst window every hour or to impose a
// pause at a fixed time of day.
package reseed

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	sqerrors "github.com/vnykmshr/sloq/pkg/common/errors"
	"github.com/vnykmshr/sloq/pkg/common/validation"
)

// Target is anything whose token balance can be re-seeded.
// *slowqueue.Queue satisfies it.
type Target interface {
	ResetTokens(tokens float64)
}

// Entry describes one scheduled re-seed.
type Entry struct {
	ID     cron.EntryID
	Spec   string
	Tokens float64
	Next   time.Time
}

// Option configures a Reseeder.
type Option func(*options)

type options struct {
	logger   *slog.Logger
	location *time.Location
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// WithLocation evaluates schedules in loc. Defaults to time.Local.
func WithLocation(loc *time.Location) Option {
	return func(o *options) {
		o.location = loc
	}
}

// Reseeder runs re-seed jobs against a single Target.
type Reseeder struct {
	target Target
	cron   *cron.Cron
	parser cron.Parser
	logger *slog.Logger

	mu      sync.Mutex
	entries map[cron.EntryID]Entry
	resets  atomic.Int64
}

// New creates a stopped Reseeder for target.
func New(target Target, opts ...Option) (*Reseeder, error) {
	if err := validation.ValidateNotNil("reseed", "target", target); err != nil {
		return nil, err
	}

	o := options{logger: slog.Default(), location: time.Local}
	for _, opt := range opts {
		opt(&o)
	}

	// Seconds are optional so both "*/10 * * * * *" and "0 * * * *" parse.
	parser := cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

	return &Reseeder{
		target: target,
		parser: parser,
		cron: cron.New(
			cron.WithParser(parser),
			cron.WithLocation(o.location),
			cron.WithChain(cron.Recover(cron.DiscardLogger)),
		),
		logger:  o.logger.With(slog.String("component", "reseed")),
		entries: make(map[cron.EntryID]Entry),
	}, nil
}

// Schedule re-seeds the balance to tokens whenever spec fires.
func (r *Reseeder) Schedule(spec string, tokens float64) (cron.EntryID, error) {
	if err := validation.ValidateNotEmpty("reseed", "spec", spec); err != nil {
		return 0, err
	}
	if _, err := r.parser.Parse(spec); err != nil {
		return 0, sqerrors.NewValidationError("reseed", "spec", spec, err.Error()).
			WithHint(`use a cron expression or a descriptor such as "@every 30s"`)
	}

	id, err := r.cron.AddFunc(spec, func() {
		r.target.ResetTokens(tokens)
		n := r.resets.Add(1)
		r.logger.Info("reseeded tokens", slog.String("spec", spec), slog.Float64("tokens", tokens), slog.Int64("resets", n))
	})
	if err != nil {
		return 0, sqerrors.NewOperationError("reseed", "Schedule", err)
	}

	r.mu.Lock()
	r.entries[id] = Entry{ID: id, Spec: spec, Tokens: tokens}
	r.mu.Unlock()

	r.logger.Debug("scheduled reseed", slog.String("spec", spec), slog.Float64("tokens", tokens))
	return id, nil
}

// Remove cancels a scheduled re-seed.
func (r *Reseeder) Remove(id cron.EntryID) {
	r.cron.Remove(id)

	r.mu.Lock()
	delete(r.entries, id)
	r.mu.Unlock()
}

// Entries lists scheduled re-seeds ordered by ID, with their next run time
// once the Reseeder is started.
func (r *Reseeder) Entries() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Entry, 0, len(r.entries))
	for id, e := range r.entries {
		e.Next = r.cron.Entry(id).Next
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Resets returns how many re-seeds have run.
func (r *Reseeder) Resets() int64 {
	return r.resets.Load()
}

// Start begins running scheduled re-seeds in the background.
func (r *Reseeder) Start() {
	r.cron.Start()
}

// Stop halts the scheduler. The returned context is done once any running
// re-seed has finished.
func (r *Reseeder) Stop() context.Context {
	return r.cron.Stop()
}

// RunNow runs a scheduled re-seed immediately in the calling goroutine.
// It reports false for an unknown id.
func (r *Reseeder) RunNow(id cron.EntryID) bool {
	e := r.cron.Entry(id)
	if !e.Valid() {
		return false
	}
	e.Job.Run()
	return true
}
