package tokenbucket

import (
	"sync"
	"time"

	"github.com/vnykmshr/sloq/pkg/common/validation"
)

// Bucket is the token accounting capability consumed by rate-limited queues.
// TokenBucket and MetricsBucket both satisfy it.
type Bucket interface {
	// Count accrues tokens for the time elapsed since the last call and
	// returns the balance.
	Count() (float64, error)

	// TryTake removes n tokens if they are available now. It never blocks
	// and consumes nothing on failure.
	TryTake(n float64) (bool, error)

	// Take blocks until n tokens have been removed.
	Take(n float64) error

	// TakeTimeout blocks until n tokens have been removed or reports false
	// as soon as it can tell the wait would exceed timeout.
	TakeTimeout(n float64, timeout time.Duration) (bool, error)

	// Reset sets the balance to tokens and restarts accrual from now.
	Reset(tokens float64)
}

// Clock provides the current time. It can be mocked for testing.
type Clock interface {
	Now() time.Time
}

// Sleeper pauses the calling goroutine. It can be mocked for testing.
type Sleeper interface {
	Sleep(d time.Duration)
}

// SystemClock implements Clock and Sleeper using the system time.
type SystemClock struct{}

// Now returns the current system time.
func (SystemClock) Now() time.Time {
	return time.Now()
}

// Sleep calls time.Sleep.
func (SystemClock) Sleep(d time.Duration) {
	time.Sleep(d)
}

// Config holds configuration options for creating a new TokenBucket.
type Config struct {
	// Tick is the time it takes to accrue one token. Must be positive.
	Tick time.Duration

	// Deferred leaves the bucket unstarted. Count and the take family fail
	// with ErrNotStarted until Reset is called.
	Deferred bool

	// InitialTokens is the starting balance when the bucket is started at
	// construction. Negative values delay the first release; positive
	// values allow an initial burst.
	InitialTokens float64

	// Clock provides the current time. If nil, SystemClock is used.
	Clock Clock

	// Sleeper is used while blocking for tokens. If nil, SystemClock is used.
	Sleeper Sleeper
}

// TokenBucket accrues fractional tokens at one per Tick and hands them out
// to callers. All accounting happens under a single mutex, which is also
// held while a blocking take sleeps; waiters on one bucket are therefore
// served one at a time.
type TokenBucket struct {
	mu       sync.Mutex
	tick     time.Duration
	tokens   float64
	lastTick time.Time
	clock    Clock
	sleeper  Sleeper
}

var _ Bucket = (*TokenBucket)(nil)

// New creates a started bucket with an empty balance.
func New(tick time.Duration) (*TokenBucket, error) {
	return NewWithConfig(Config{Tick: tick})
}

// NewWithConfig creates a bucket from config. It returns a ValidationError
// when Tick is not positive.
func NewWithConfig(config Config) (*TokenBucket, error) {
	if err := validation.ValidatePositiveDuration("tokenbucket", "tick", config.Tick); err != nil {
		return nil, err
	}
	if config.Clock == nil {
		config.Clock = SystemClock{}
	}
	if config.Sleeper == nil {
		config.Sleeper = SystemClock{}
	}

	tb := &TokenBucket{
		tick:    config.Tick,
		clock:   config.Clock,
		sleeper: config.Sleeper,
	}
	if !config.Deferred {
		tb.Reset(config.InitialTokens)
	}
	return tb, nil
}
