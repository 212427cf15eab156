package tokenbucket

import (
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/vnykmshr/sloq/internal/testutil"
	sqerrors "github.com/vnykmshr/sloq/pkg/common/errors"
)

func newMockBucket(t *testing.T, tick time.Duration) (*TokenBucket, *testutil.MockClock) {
	t.Helper()
	clock := testutil.NewMockClock(time.Time{})
	tb, err := NewWithConfig(Config{Tick: tick, Clock: clock, Sleeper: clock})
	testutil.AssertNoError(t, err)
	return tb, clock
}

func approxEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		tick    time.Duration
		wantErr bool
	}{
		{"one second", time.Second, false},
		{"fifty millis", 50 * time.Millisecond, false},
		{"zero tick", 0, true},
		{"negative tick", -time.Second, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tb, err := New(tt.tick)
			if tt.wantErr {
				if !errors.Is(err, sqerrors.ErrInvalidArgument) {
					t.Fatalf("expected ErrInvalidArgument, got %v", err)
				}
				if tb != nil {
					t.Error("expected nil bucket on error")
				}
				return
			}
			testutil.AssertNoError(t, err)
			testutil.AssertEqual(t, tb.Tick(), tt.tick)
			testutil.AssertEqual(t, tb.Started(), true)
		})
	}
}

func TestCountAccrues(t *testing.T) {
	tb, clock := newMockBucket(t, 50*time.Millisecond)

	clock.Advance(200 * time.Millisecond)
	count, err := tb.Count()
	testutil.AssertNoError(t, err)
	if !approxEqual(count, 4) {
		t.Errorf("count = %v, want 4", count)
	}

	clock.Advance(25 * time.Millisecond)
	count, err = tb.Count()
	testutil.AssertNoError(t, err)
	if !approxEqual(count, 4.5) {
		t.Errorf("count = %v, want 4.5", count)
	}

	// No time passed, no accrual.
	count, _ = tb.Count()
	if !approxEqual(count, 4.5) {
		t.Errorf("count = %v, want 4.5", count)
	}
}

func TestCountRealClock(t *testing.T) {
	tb, err := New(50 * time.Millisecond)
	testutil.AssertNoError(t, err)

	time.Sleep(200 * time.Millisecond)

	count, err := tb.Count()
	testutil.AssertNoError(t, err)
	testutil.AssertInRange(t, count, 4, 5)
}

func TestNotStarted(t *testing.T) {
	tb, err := NewWithConfig(Config{Tick: 50 * time.Millisecond, Deferred: true})
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, tb.Started(), false)

	if _, err := tb.Count(); !errors.Is(err, sqerrors.ErrNotStarted) {
		t.Errorf("Count: expected ErrNotStarted, got %v", err)
	}
	if _, err := tb.TryTake(1); !errors.Is(err, sqerrors.ErrNotStarted) {
		t.Errorf("TryTake: expected ErrNotStarted, got %v", err)
	}
	if err := tb.Take(1); !errors.Is(err, sqerrors.ErrNotStarted) {
		t.Errorf("Take: expected ErrNotStarted, got %v", err)
	}
	if _, err := tb.TakeTimeout(1, time.Second); !errors.Is(err, sqerrors.ErrNotStarted) {
		t.Errorf("TakeTimeout: expected ErrNotStarted, got %v", err)
	}

	tb.Reset(3)
	testutil.AssertEqual(t, tb.Started(), true)
	ok, err := tb.TryTake(3)
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, ok, true)
}

func TestInitialTokens(t *testing.T) {
	clock := testutil.NewMockClock(time.Time{})
	tb, err := NewWithConfig(Config{Tick: time.Second, InitialTokens: 2, Clock: clock, Sleeper: clock})
	testutil.AssertNoError(t, err)

	for i := 0; i < 2; i++ {
		ok, err := tb.TryTake(1)
		testutil.AssertNoError(t, err)
		if !ok {
			t.Fatalf("take %d should succeed from the initial burst", i+1)
		}
	}
	ok, _ := tb.TryTake(1)
	testutil.AssertEqual(t, ok, false)
}

func TestTryTakeDoesNotConsumeOnFailure(t *testing.T) {
	tb, clock := newMockBucket(t, time.Second)

	clock.Advance(500 * time.Millisecond)
	ok, err := tb.TryTake(1)
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, ok, false)

	count, _ := tb.Count()
	if !approxEqual(count, 0.5) {
		t.Errorf("balance after failed take = %v, want 0.5", count)
	}

	ok, _ = tb.TryTake(0.5)
	testutil.AssertEqual(t, ok, true)
	testutil.AssertEqual(t, len(clock.Sleeps()), 0)
}

func TestTakeBlocksUntilWholeToken(t *testing.T) {
	tb, clock := newMockBucket(t, time.Second)

	clock.Advance(250 * time.Millisecond)
	testutil.AssertNoError(t, tb.Take(1))

	sleeps := clock.Sleeps()
	testutil.AssertEqual(t, len(sleeps), 1)
	testutil.AssertEqual(t, sleeps[0], 750*time.Millisecond)

	count, _ := tb.Count()
	if !approxEqual(count, 0) {
		t.Errorf("balance after take = %v, want 0", count)
	}
}

func TestTakeNegativeBalance(t *testing.T) {
	tb, clock := newMockBucket(t, time.Second)

	// -0.5 is half a token short of zero, then one more token is needed.
	tb.Reset(-0.5)
	testutil.AssertNoError(t, tb.Take(1))

	sleeps := clock.Sleeps()
	if len(sleeps) != 2 {
		t.Fatalf("sleeps = %v, want two waits", sleeps)
	}
	testutil.AssertEqual(t, sleeps[0], 500*time.Millisecond)
	testutil.AssertEqual(t, sleeps[1], time.Second)
	testutil.AssertEqual(t, clock.Slept(), 1500*time.Millisecond)
}

func TestTakeMultipleTokens(t *testing.T) {
	tb, clock := newMockBucket(t, time.Second)

	testutil.AssertNoError(t, tb.Take(3))
	testutil.AssertEqual(t, clock.Slept(), 3*time.Second)
	testutil.AssertEqual(t, len(clock.Sleeps()), 3)
}

func TestWaitIsTokenRemainderInSeconds(t *testing.T) {
	t.Run("short tick accrues several tokens per wait", func(t *testing.T) {
		tb, clock := newMockBucket(t, 100*time.Millisecond)

		testutil.AssertNoError(t, tb.Take(1))
		sleeps := clock.Sleeps()
		if len(sleeps) != 1 || sleeps[0] != time.Second {
			t.Fatalf("sleeps = %v, want [1s]", sleeps)
		}

		count, _ := tb.Count()
		if !approxEqual(count, 9) {
			t.Errorf("balance after take = %v, want 9", count)
		}
	})

	t.Run("long tick re-checks before the token is due", func(t *testing.T) {
		tb, clock := newMockBucket(t, 2*time.Second)

		testutil.AssertNoError(t, tb.Take(1))
		sleeps := clock.Sleeps()
		if len(sleeps) < 3 {
			t.Fatalf("sleeps = %v, want repeated shrinking waits", sleeps)
		}
		testutil.AssertEqual(t, sleeps[0], time.Second)
		testutil.AssertEqual(t, sleeps[1], 500*time.Millisecond)
		testutil.AssertEqual(t, sleeps[2], 250*time.Millisecond)
		if slept := clock.Slept(); slept < 2*time.Second-10*time.Nanosecond || slept > 2*time.Second+10*time.Nanosecond {
			t.Errorf("slept %v, want about 2s", slept)
		}
	})
}

func TestTakeTimeout(t *testing.T) {
	tests := []struct {
		name      string
		tick      time.Duration
		timeout   time.Duration
		want      bool
		wantSlept time.Duration
	}{
		{"budget too short", 10 * time.Second, 100 * time.Millisecond, false, 0},
		{"budget fits", time.Second, 2 * time.Second, true, time.Second},
		{"short tick still waits a second", 100 * time.Millisecond, 500 * time.Millisecond, false, 0},
		{"short tick with a second of budget", 100 * time.Millisecond, 1500 * time.Millisecond, true, time.Second},
		{"within tolerance is a miss", time.Second, 1005 * time.Millisecond, false, 0},
		{"zero timeout waits", time.Second, 0, true, time.Second},
		{"negative timeout fails at once", time.Second, -time.Second, false, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tb, clock := newMockBucket(t, tt.tick)

			ok, err := tb.TakeTimeout(1, tt.timeout)
			testutil.AssertNoError(t, err)
			testutil.AssertEqual(t, ok, tt.want)
			testutil.AssertEqual(t, clock.Slept(), tt.wantSlept)
		})
	}
}

func TestTakeTimeoutBudgetAcrossIterations(t *testing.T) {
	tb, clock := newMockBucket(t, time.Second)

	// Three tokens need three 1s waits; 2.5s only covers two.
	ok, err := tb.TakeTimeout(3, 2500*time.Millisecond)
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, ok, false)
	testutil.AssertEqual(t, clock.Slept(), 2*time.Second)

	// Nothing was consumed: the accrued tokens are still there.
	count, _ := tb.Count()
	if !approxEqual(count, 2) {
		t.Errorf("balance = %v, want 2", count)
	}
}

func TestTakeTimeoutRealClock(t *testing.T) {
	tb, err := New(10 * time.Second)
	testutil.AssertNoError(t, err)

	start := time.Now()
	ok, err := tb.TakeTimeout(1, 100*time.Millisecond)
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, ok, false)
	if elapsed := time.Since(start); elapsed > 100*time.Millisecond {
		t.Errorf("TakeTimeout blocked for %v", elapsed)
	}
}

func TestTakeBlockRealClock(t *testing.T) {
	tb, err := New(time.Second)
	testutil.AssertNoError(t, err)

	ok, err := tb.TryTake(1)
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, ok, false)

	start := time.Now()
	testutil.AssertNoError(t, tb.Take(1))
	elapsed := time.Since(start)
	if elapsed < 900*time.Millisecond || elapsed > 1500*time.Millisecond {
		t.Errorf("Take returned after %v, want about 1s", elapsed)
	}
}

func TestConcurrentTakesNeverOverspend(t *testing.T) {
	tb, clock := newMockBucket(t, time.Second)

	const takers = 20
	var wg sync.WaitGroup
	for i := 0; i < takers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := tb.Take(1); err != nil {
				t.Errorf("Take: %v", err)
			}
		}()
	}
	wg.Wait()

	// Every token came from accrual driven by the sleeps.
	if got := clock.Slept(); got != takers*time.Second {
		t.Errorf("slept %v, want %v", got, takers*time.Second)
	}
	count, _ := tb.Count()
	if math.Abs(count) > 1e-9 {
		t.Errorf("balance = %v, want 0", count)
	}
}

func TestReset(t *testing.T) {
	tb, clock := newMockBucket(t, time.Second)

	clock.Advance(3 * time.Second)
	tb.Reset(-2)

	count, _ := tb.Count()
	if !approxEqual(count, -2) {
		t.Errorf("count after reset = %v, want -2", count)
	}

	clock.Advance(2 * time.Second)
	count, _ = tb.Count()
	if !approxEqual(count, 0) {
		t.Errorf("count = %v, want 0", count)
	}
}
