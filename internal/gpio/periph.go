package gpio

import (
	"fmt"
	"sync"

	pgpio "periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"
)

var (
	periphOnce sync.Once
	periphErr  error
)

func periphPin(pin int) (pgpio.PinIO, error) {
	periphOnce.Do(func() {
		_, periphErr = host.Init()
	})
	if periphErr != nil {
		return nil, fmt.Errorf("gpio: periph host init: %w", periphErr)
	}
	p := gpioreg.ByName(lineName(pin))
	if p == nil {
		return nil, fmt.Errorf("gpio: periph pin %q not found", lineName(pin))
	}
	return p, nil
}

type periphLine struct {
	pin  pgpio.PinIO
	rest *pgpio.Level
}

func openPeriphInput(cfg InputConfig) (Input, error) {
	p, err := periphPin(cfg.Pin)
	if err != nil {
		return nil, err
	}
	pull := pgpio.Float
	if cfg.PullUp {
		pull = pgpio.PullUp
	}
	if err := p.In(pull, pgpio.NoEdge); err != nil {
		return nil, fmt.Errorf("gpio: configure %s as input: %w", p.Name(), err)
	}
	return &periphLine{pin: p}, nil
}

func openPeriphOutput(cfg OutputConfig) (Output, error) {
	p, err := periphPin(cfg.Pin)
	if err != nil {
		return nil, err
	}
	rest := pgpio.Level(cfg.Initial)
	if err := p.Out(rest); err != nil {
		return nil, fmt.Errorf("gpio: configure %s as output: %w", p.Name(), err)
	}
	return &periphLine{pin: p, rest: &rest}, nil
}

func (g *periphLine) Read() (Level, error) {
	return Level(g.pin.Read()), nil
}

func (g *periphLine) Set(l Level) error {
	return g.pin.Out(pgpio.Level(l))
}

func (g *periphLine) Close() error {
	if g.rest != nil {
		_ = g.pin.Out(*g.rest)
	}
	return g.pin.Halt()
}
