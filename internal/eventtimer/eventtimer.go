// Package eventtimer tracks the time between successive events and reports
// the minimum, maximum and average gap.
package eventtimer

import (
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"
)

// Clock provides the current time.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// Stats is a snapshot of the gaps recorded so far. Count is the number of
// gaps, one less than the number of counted events.
type Stats struct {
	Count int
	Sum   time.Duration
	Min   time.Duration
	Max   time.Duration
}

// Avg returns the mean gap, or 0 when no gap has been recorded.
func (s Stats) Avg() time.Duration {
	if s.Count == 0 {
		return 0
	}
	return s.Sum / time.Duration(s.Count)
}

func (s Stats) String() string {
	if s.Count == 0 {
		return fmt.Sprintf("EventTimer(count=0, sum=%s, max=undefined, min=undefined, avg=undefined)", s.Sum)
	}
	return fmt.Sprintf("EventTimer(count=%d, sum=%s, max=%s, min=%s, avg=%s)", s.Count, s.Sum, s.Max, s.Min, s.Avg())
}

// Timer records events. It is safe for concurrent use.
type Timer struct {
	mu      sync.Mutex
	clock   Clock
	logger  *slog.Logger
	discard int
	last    time.Time
	stats   Stats
}

// Option configures a Timer.
type Option func(*Timer)

// WithDiscard ignores the first n events entirely.
func WithDiscard(n int) Option {
	return func(t *Timer) {
		t.discard = n
	}
}

// WithClock replaces the system clock.
func WithClock(c Clock) Option {
	return func(t *Timer) {
		t.clock = c
	}
}

// WithLogger logs every event at debug level.
func WithLogger(l *slog.Logger) Option {
	return func(t *Timer) {
		t.logger = l
	}
}

// New creates a Timer.
func New(opts ...Option) *Timer {
	t := &Timer{
		clock: systemClock{},
		stats: Stats{Min: time.Duration(math.MaxInt64), Max: time.Duration(math.MinInt64)},
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Tick records an event labelled msg.
func (t *Timer) Tick(msg any) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.discard > 0 {
		t.discard--
		t.debug("event discarded", msg, 0)
		return
	}

	now := t.clock.Now()
	if t.last.IsZero() {
		t.last = now
		t.debug("first event", msg, 0)
		return
	}

	diff := now.Sub(t.last)
	t.last = now
	t.stats.Count++
	t.stats.Sum += diff
	t.stats.Min = min(t.stats.Min, diff)
	t.stats.Max = max(t.stats.Max, diff)
	t.debug("event", msg, diff)
}

// Stats returns a snapshot of the recorded gaps.
func (t *Timer) Stats() Stats {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stats
}

func (t *Timer) String() string {
	return t.Stats().String()
}

func (t *Timer) debug(event string, msg any, gap time.Duration) {
	if t.logger == nil {
		return
	}
	t.logger.Debug(event,
		slog.Any("msg", msg),
		slog.Duration("gap", gap),
		slog.Int("count", t.stats.Count),
		slog.Int("discard_left", t.discard),
	)
}
