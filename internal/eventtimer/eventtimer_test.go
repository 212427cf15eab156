package eventtimer

import (
	"strings"
	"testing"
	"time"

	"github.com/vnykmshr/sloq/internal/testutil"
)

func TestTimerStats(t *testing.T) {
	clock := testutil.NewMockClock(time.Time{})
	timer := New(WithClock(clock))

	timer.Tick("a")
	clock.Advance(100 * time.Millisecond)
	timer.Tick("b")
	clock.Advance(300 * time.Millisecond)
	timer.Tick("c")
	clock.Advance(200 * time.Millisecond)
	timer.Tick("d")

	s := timer.Stats()
	testutil.AssertEqual(t, s.Count, 3)
	testutil.AssertEqual(t, s.Sum, 600*time.Millisecond)
	testutil.AssertEqual(t, s.Min, 100*time.Millisecond)
	testutil.AssertEqual(t, s.Max, 300*time.Millisecond)
	testutil.AssertEqual(t, s.Avg(), 200*time.Millisecond)
}

func TestTimerDiscard(t *testing.T) {
	clock := testutil.NewMockClock(time.Time{})
	timer := New(WithClock(clock), WithDiscard(2))

	timer.Tick(nil)
	clock.Advance(time.Millisecond)
	timer.Tick(nil)
	clock.Advance(time.Second)
	timer.Tick(nil)
	clock.Advance(50 * time.Millisecond)
	timer.Tick(nil)

	s := timer.Stats()
	testutil.AssertEqual(t, s.Count, 1)
	testutil.AssertEqual(t, s.Min, 50*time.Millisecond)
}

func TestTimerString(t *testing.T) {
	timer := New()
	if got := timer.String(); got != "EventTimer(count=0, sum=0s, max=undefined, min=undefined, avg=undefined)" {
		t.Errorf("String() = %q, want undefined gaps", got)
	}

	clock := testutil.NewMockClock(time.Time{})
	timer = New(WithClock(clock))
	timer.Tick(1)
	clock.Advance(time.Second)
	timer.Tick(2)
	if got := timer.String(); !strings.Contains(got, "count=1") || !strings.Contains(got, "avg=1s") {
		t.Errorf("String() = %q", got)
	}
}
