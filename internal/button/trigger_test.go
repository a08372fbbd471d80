package button

import (
	"testing"
	"time"

	"sos-beacon/internal/clock"
	"sos-beacon/internal/gpio"
)

type sample struct {
	at    time.Duration
	level gpio.Level
	want  Event
}

func runSamples(t *testing.T, tr *Trigger, clk *clock.Fake, samples []sample) {
	t.Helper()
	start := clk.Now()
	for i, s := range samples {
		clk.Advance(start.Add(s.at).Sub(clk.Now()))
		if got := tr.Poll(s.level); got != s.want {
			t.Fatalf("sample %d at %s level=%s: got %s want %s", i, s.at, s.level, got, s.want)
		}
	}
}

func TestTrigger_RefractoryWindow(t *testing.T) {
	clk := clock.NewFake(time.Unix(100, 0))
	tr := NewTrigger(Config{ActiveLow: true, Debounce: 300 * time.Millisecond, Clock: clk})

	runSamples(t, tr, clk, []sample{
		{at: 0, level: gpio.Low, want: Activated},
		{at: 50 * time.Millisecond, level: gpio.High, want: Idle},
		{at: 100 * time.Millisecond, level: gpio.Low, want: Idle},
		{at: 200 * time.Millisecond, level: gpio.High, want: Idle},
		{at: 350 * time.Millisecond, level: gpio.Low, want: Activated},
	})
}

func TestTrigger_HeldButtonFiresOnce(t *testing.T) {
	clk := clock.NewFake(time.Unix(100, 0))
	tr := NewTrigger(Config{ActiveLow: true, Clock: clk})

	var samples []sample
	for ms := 0; ms <= 2000; ms += 50 {
		want := Idle
		if ms == 0 {
			want = Activated
		}
		samples = append(samples, sample{at: time.Duration(ms) * time.Millisecond, level: gpio.Low, want: want})
	}
	runSamples(t, tr, clk, samples)
}

func TestTrigger_WindowBoundaryIsExclusive(t *testing.T) {
	clk := clock.NewFake(time.Unix(100, 0))
	tr := NewTrigger(Config{ActiveLow: true, Debounce: 300 * time.Millisecond, Clock: clk})

	runSamples(t, tr, clk, []sample{
		{at: 0, level: gpio.Low, want: Activated},
		{at: 100 * time.Millisecond, level: gpio.High, want: Idle},
		{at: 300 * time.Millisecond, level: gpio.Low, want: Idle},
		{at: 310 * time.Millisecond, level: gpio.High, want: Idle},
		{at: 320 * time.Millisecond, level: gpio.Low, want: Activated},
	})
}

func TestTrigger_ActiveHighPolarity(t *testing.T) {
	clk := clock.NewFake(time.Unix(100, 0))
	tr := NewTrigger(Config{ActiveLow: false, Clock: clk})

	runSamples(t, tr, clk, []sample{
		{at: 0, level: gpio.Low, want: Idle},
		{at: 50 * time.Millisecond, level: gpio.High, want: Activated},
		{at: 100 * time.Millisecond, level: gpio.Low, want: Idle},
	})
}

func TestTrigger_ActiveAtStartCountsAsEdge(t *testing.T) {
	clk := clock.NewFake(time.Unix(0, 0))
	tr := NewTrigger(Config{ActiveLow: true, Clock: clk})
	if got := tr.Poll(gpio.Low); got != Activated {
		t.Fatalf("got %s want activated", got)
	}
}
