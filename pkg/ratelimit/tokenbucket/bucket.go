package tokenbucket

import (
	"math"
	"time"

	sqerrors "github.com/vnykmshr/sloq/pkg/common/errors"
)

// timeoutTolerance keeps a bounded take from sleeping into a near miss.
const timeoutTolerance = 10 * time.Millisecond

// Count accrues tokens for the time elapsed since the last call and returns
// the balance.
func (tb *TokenBucket) Count() (float64, error) {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	return tb.count()
}

// TryTake removes n tokens if they are available now.
func (tb *TokenBucket) TryTake(n float64) (bool, error) {
	return tb.take(n, false, 0)
}

// Take blocks until n tokens have been removed. The only error is
// ErrNotStarted.
func (tb *TokenBucket) Take(n float64) error {
	_, err := tb.take(n, true, 0)
	return err
}

// TakeTimeout blocks for at most roughly timeout. It returns false without
// consuming anything when the next wait would not fit in what is left of
// the budget, so a negative timeout fails at once. A zero timeout waits
// indefinitely.
func (tb *TokenBucket) TakeTimeout(n float64, timeout time.Duration) (bool, error) {
	return tb.take(n, true, timeout)
}

// Reset sets the balance to tokens and restarts accrual from now.
// It also starts a deferred bucket.
func (tb *TokenBucket) Reset(tokens float64) {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	tb.tokens = tokens
	tb.lastTick = tb.clock.Now()
}

// Tick returns the time it takes to accrue one token.
func (tb *TokenBucket) Tick() time.Duration {
	return tb.tick
}

// Started reports whether Reset has been called, explicitly or at construction.
func (tb *TokenBucket) Started() bool {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	return !tb.lastTick.IsZero()
}

func (tb *TokenBucket) take(n float64, block bool, timeout time.Duration) (bool, error) {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	remaining := timeout
	for {
		count, err := tb.count()
		if err != nil {
			return false, err
		}
		if n <= count {
			tb.tokens -= n
			return true, nil
		}
		if !block {
			return false, nil
		}

		wait := tb.waitFor()
		if timeout != 0 {
			if wait > remaining-timeoutTolerance {
				return false, nil
			}
			remaining -= wait
		}
		tb.sleeper.Sleep(wait)
	}
}

// count must be called with mu held.
func (tb *TokenBucket) count() (float64, error) {
	if tb.lastTick.IsZero() {
		return 0, sqerrors.ErrNotStarted
	}

	now := tb.clock.Now()
	elapsed := now.Sub(tb.lastTick)
	tb.lastTick = now

	tb.tokens += float64(elapsed) / float64(tb.tick)
	return tb.tokens, nil
}

// waitFor returns the token-unit remainder to the next whole token, slept
// as that many seconds. The remainder is not scaled by tick: a tick above
// one second re-checks before the token is due, and a tick below one
// second accrues several tokens per wait.
func (tb *TokenBucket) waitFor() time.Duration {
	frac := tb.tokens - math.Floor(tb.tokens)
	wait := time.Duration((1 - frac) * float64(time.Second))
	if wait <= 0 {
		wait = time.Nanosecond
	}
	return wait
}
