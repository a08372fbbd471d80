// Package led drives the single feedback light with named blink patterns.
package led

import (
	"fmt"
	"time"

	"sos-beacon/internal/clock"
	"sos-beacon/internal/gpio"
)

type State int

const (
	StateIdle State = iota
	StateAcquiring
	StateSuccess
	StateFailure
	StateStartupFailure
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAcquiring:
		return "acquiring"
	case StateSuccess:
		return "success"
	case StateFailure:
		return "failure"
	case StateStartupFailure:
		return "startup_failure"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Pattern is Cycles repetitions of On then Off.
type Pattern struct {
	Cycles int
	On     time.Duration
	Off    time.Duration
}

func (p Pattern) Period() time.Duration { return p.On + p.Off }

func (p Pattern) Total() time.Duration { return time.Duration(p.Cycles) * p.Period() }

var (
	DefaultSuccess        = Pattern{Cycles: 3, On: 120 * time.Millisecond, Off: 120 * time.Millisecond}
	DefaultFailure        = Pattern{Cycles: 4, On: 500 * time.Millisecond, Off: 500 * time.Millisecond}
	DefaultStartupFailure = Pattern{Cycles: 3, On: 400 * time.Millisecond, Off: 400 * time.Millisecond}
)

type Patterns struct {
	Success        Pattern
	Failure        Pattern
	StartupFailure Pattern
}

func DefaultPatterns() Patterns {
	return Patterns{
		Success:        DefaultSuccess,
		Failure:        DefaultFailure,
		StartupFailure: DefaultStartupFailure,
	}
}

// Validate checks that each pattern is well formed and that success is
// visibly distinct from failure: shorter overall and blinking faster.
func (p Patterns) Validate() error {
	named := []struct {
		name string
		pat  Pattern
	}{
		{"success", p.Success},
		{"failure", p.Failure},
		{"startup_failure", p.StartupFailure},
	}
	for _, n := range named {
		if n.pat.Cycles <= 0 {
			return fmt.Errorf("led.%s.cycles must be > 0", n.name)
		}
		if n.pat.On <= 0 || n.pat.Off <= 0 {
			return fmt.Errorf("led.%s.on and led.%s.off must be > 0", n.name, n.name)
		}
	}
	if p.Success.Total() >= p.Failure.Total() {
		return fmt.Errorf("led.success total (%s) must be shorter than led.failure total (%s)", p.Success.Total(), p.Failure.Total())
	}
	if p.Success.Period() >= p.Failure.Period() {
		return fmt.Errorf("led.success cycle (%s) must be faster than led.failure cycle (%s)", p.Success.Period(), p.Failure.Period())
	}
	return nil
}

type Config struct {
	// ActiveHigh means driving the pin high lights the LED.
	ActiveHigh bool
	Patterns   Patterns
	Clock      clock.Clock
}

// Indicator is not safe for concurrent use; the control loop owns it.
type Indicator struct {
	out      gpio.Output
	on       gpio.Level
	patterns Patterns
	clk      clock.Clock
	state    State
}

func NewIndicator(out gpio.Output, cfg Config) (*Indicator, error) {
	if out == nil {
		return nil, fmt.Errorf("led: output is nil")
	}
	if err := cfg.Patterns.Validate(); err != nil {
		return nil, err
	}
	clk := cfg.Clock
	if clk == nil {
		clk = clock.Real()
	}
	return &Indicator{
		out:      out,
		on:       gpio.Level(cfg.ActiveHigh),
		patterns: cfg.Patterns,
		clk:      clk,
	}, nil
}

func (i *Indicator) State() State { return i.state }

func (i *Indicator) ShowIdle() error {
	i.state = StateIdle
	return i.out.Set(!i.on)
}

// ShowAcquiring lights the LED steadily and returns immediately.
func (i *Indicator) ShowAcquiring() error {
	i.state = StateAcquiring
	return i.out.Set(i.on)
}

func (i *Indicator) ShowSuccess() error {
	return i.blink(StateSuccess, i.patterns.Success)
}

func (i *Indicator) ShowFailure() error {
	return i.blink(StateFailure, i.patterns.Failure)
}

func (i *Indicator) ShowStartupFailure() error {
	return i.blink(StateStartupFailure, i.patterns.StartupFailure)
}

// blink runs the whole pattern even if a write fails, so its duration stays
// predictable, and reports the first error. The output ends at rest.
func (i *Indicator) blink(s State, p Pattern) error {
	i.state = s
	var first error
	set := func(l gpio.Level) {
		if err := i.out.Set(l); err != nil && first == nil {
			first = fmt.Errorf("led %s: %w", s, err)
		}
	}
	for n := 0; n < p.Cycles; n++ {
		set(i.on)
		i.clk.Sleep(p.On)
		set(!i.on)
		i.clk.Sleep(p.Off)
	}
	return first
}
