// Package button turns sampled input levels into debounced activations.
package button

import (
	"time"

	"sos-beacon/internal/clock"
	"sos-beacon/internal/gpio"
)

type Event int

const (
	Idle Event = iota
	Activated
)

func (e Event) String() string {
	if e == Activated {
		return "activated"
	}
	return "idle"
}

type Config struct {
	// ActiveLow means a pressed button reads low (pull-up wiring).
	ActiveLow bool
	// Debounce is the minimum spacing between two reported activations.
	// Defaults to 300ms.
	Debounce time.Duration

	Clock clock.Clock
}

// Trigger is a rising-edge detector with a refractory window. It never
// reports releases.
type Trigger struct {
	activeLevel gpio.Level
	window      time.Duration
	clk         clock.Clock

	wasActive      bool
	lastActivation time.Time
	activated      bool
}

func NewTrigger(cfg Config) *Trigger {
	if cfg.Debounce <= 0 {
		cfg.Debounce = 300 * time.Millisecond
	}
	clk := cfg.Clock
	if clk == nil {
		clk = clock.Real()
	}
	return &Trigger{
		activeLevel: gpio.Level(!cfg.ActiveLow),
		window:      cfg.Debounce,
		clk:         clk,
	}
}

// Poll feeds one raw sample. It returns Activated when the input has just
// become active and more than the debounce window has passed since the last
// activation.
func (t *Trigger) Poll(raw gpio.Level) Event {
	active := raw == t.activeLevel
	rising := active && !t.wasActive
	t.wasActive = active
	if !rising {
		return Idle
	}

	now := t.clk.Now()
	if t.activated && now.Sub(t.lastActivation) <= t.window {
		return Idle
	}
	t.activated = true
	t.lastActivation = now
	return Activated
}
