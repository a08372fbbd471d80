// Package beacon runs the device control loop: wait for a press, acquire a
// position, send the alert, show the outcome.
package beacon

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"sos-beacon/internal/alert"
	"sos-beacon/internal/button"
	"sos-beacon/internal/clock"
	"sos-beacon/internal/gpio"
	"sos-beacon/internal/gps"
	"sos-beacon/internal/logging"
)

type State int32

const (
	Idle State = iota
	Acquiring
	Sending
	Reporting
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Acquiring:
		return "acquiring"
	case Sending:
		return "sending"
	case Reporting:
		return "reporting"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

type Acquirer interface {
	Acquire(ctx context.Context, s gps.Stream, deadline time.Duration) (gps.Coordinate, bool)
}

type Sender interface {
	Send(ctx context.Context, ts time.Time, coord *gps.Coordinate) alert.Outcome
}

type Indicator interface {
	ShowIdle() error
	ShowAcquiring() error
	ShowSuccess() error
	ShowFailure() error
}

type Config struct {
	Input     gpio.Input
	Trigger   *button.Trigger
	Indicator Indicator
	Acquirer  Acquirer
	Stream    gps.Stream
	Sender    Sender

	// AcquireTimeout bounds position acquisition. Defaults to 5s.
	AcquireTimeout time.Duration
	// PollInterval is the input sampling period while idle. Defaults to 50ms.
	PollInterval time.Duration

	Clock clock.Clock
}

// Stats are cumulative counters since the loop was created.
type Stats struct {
	Activations uint64 `json:"activations"`
	Fixes       uint64 `json:"fixes"`
	Deliveries  uint64 `json:"deliveries"`
	Failures    uint64 `json:"failures"`
	InputErrors uint64 `json:"input_errors"`
}

// Loop is driven by a single goroutine. Only State and Stats may be called
// from elsewhere.
type Loop struct {
	cfg Config
	clk clock.Clock
	log zerolog.Logger

	state       atomic.Int32
	activations atomic.Uint64
	fixes       atomic.Uint64
	deliveries  atomic.Uint64
	failures    atomic.Uint64
	inputErrors atomic.Uint64
}

func New(cfg Config) (*Loop, error) {
	switch {
	case cfg.Input == nil:
		return nil, errors.New("beacon: input is nil")
	case cfg.Trigger == nil:
		return nil, errors.New("beacon: trigger is nil")
	case cfg.Indicator == nil:
		return nil, errors.New("beacon: indicator is nil")
	case cfg.Acquirer == nil:
		return nil, errors.New("beacon: acquirer is nil")
	case cfg.Stream == nil:
		return nil, errors.New("beacon: stream is nil")
	case cfg.Sender == nil:
		return nil, errors.New("beacon: sender is nil")
	}
	if cfg.AcquireTimeout <= 0 {
		cfg.AcquireTimeout = 5 * time.Second
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 50 * time.Millisecond
	}
	clk := cfg.Clock
	if clk == nil {
		clk = clock.Real()
	}
	return &Loop{cfg: cfg, clk: clk, log: logging.Module("beacon")}, nil
}

func (l *Loop) State() State { return State(l.state.Load()) }

func (l *Loop) Stats() Stats {
	return Stats{
		Activations: l.activations.Load(),
		Fixes:       l.fixes.Load(),
		Deliveries:  l.deliveries.Load(),
		Failures:    l.failures.Load(),
		InputErrors: l.inputErrors.Load(),
	}
}

// Run samples the input every poll interval until ctx is done.
func (l *Loop) Run(ctx context.Context) error {
	l.log.Info().
		Dur("poll_interval", l.cfg.PollInterval).
		Dur("acquire_timeout", l.cfg.AcquireTimeout).
		Msg("control loop started")
	for {
		if err := ctx.Err(); err != nil {
			l.log.Info().Interface("stats", l.Stats()).Msg("control loop stopped")
			return nil
		}
		l.Step(ctx)
		l.clk.Sleep(l.cfg.PollInterval)
	}
}

// Step samples the input once and, on activation, runs the whole alert
// workflow before returning.
func (l *Loop) Step(ctx context.Context) {
	raw, err := l.cfg.Input.Read()
	if err != nil {
		// Treated as an idle sample.
		l.inputErrors.Add(1)
		l.log.Warn().Err(err).Msg("button read failed")
		return
	}
	if l.cfg.Trigger.Poll(raw) != button.Activated {
		return
	}
	l.activations.Add(1)
	l.log.Info().Msg("button activated")
	l.runAlert(ctx)
}

func (l *Loop) runAlert(ctx context.Context) {
	start := l.clk.Now()

	l.setState(Acquiring)
	l.show("acquiring", l.cfg.Indicator.ShowAcquiring)
	var coord *gps.Coordinate
	if c, ok := l.cfg.Acquirer.Acquire(ctx, l.cfg.Stream, l.cfg.AcquireTimeout); ok {
		l.fixes.Add(1)
		coord = &c
	} else {
		l.log.Warn().Msg("no position fix; sending without location")
	}

	l.setState(Sending)
	outcome := l.cfg.Sender.Send(ctx, l.clk.Now(), coord)

	l.setState(Reporting)
	if outcome == alert.Delivered {
		l.deliveries.Add(1)
		l.show("success", l.cfg.Indicator.ShowSuccess)
	} else {
		l.failures.Add(1)
		l.show("failure", l.cfg.Indicator.ShowFailure)
	}
	l.show("idle", l.cfg.Indicator.ShowIdle)
	l.setState(Idle)

	l.log.Info().
		Str("outcome", outcome.String()).
		Bool("location", coord != nil).
		Dur("elapsed", l.clk.Now().Sub(start)).
		Interface("stats", l.Stats()).
		Msg("alert finished")
}

func (l *Loop) setState(s State) {
	prev := State(l.state.Swap(int32(s)))
	l.log.Debug().Str("from", prev.String()).Str("to", s.String()).Msg("state")
}

func (l *Loop) show(name string, fn func() error) {
	if err := fn(); err != nil {
		l.log.Warn().Err(err).Str("pattern", name).Msg("indicator write failed")
	}
}
