package clock

import (
	"testing"
	"time"
)

func TestFake_SleepAdvances(t *testing.T) {
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	f := NewFake(start)

	var seen []time.Time
	f.OnAdvance(func(now time.Time) { seen = append(seen, now) })

	f.Sleep(120 * time.Millisecond)
	f.Sleep(0)
	f.Advance(30 * time.Millisecond)

	if got := f.Now().Sub(start); got != 150*time.Millisecond {
		t.Fatalf("elapsed=%s want 150ms", got)
	}
	if f.Slept() != 120*time.Millisecond {
		t.Fatalf("slept=%s want 120ms", f.Slept())
	}
	if len(seen) != 2 {
		t.Fatalf("hook calls=%d want 2", len(seen))
	}
}
