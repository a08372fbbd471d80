//go:build linux && (arm || arm64)

package gpio

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/warthog618/go-gpiocdev"
)

const consumer = "sos-beacon"

// requestLine finds the named header line on any gpiochip and claims it.
func requestLine(pin int, opts ...gpiocdev.LineReqOption) (*gpiocdev.Chip, *gpiocdev.Line, error) {
	name := lineName(pin)

	// Pi 5 kernel variants can expose header GPIOs on gpiochip0 or gpiochip4,
	// so try those first and then anything else under /dev.
	chipCandidates := []string{"/dev/gpiochip0", "/dev/gpiochip4"}
	entries, _ := os.ReadDir("/dev")
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), "gpiochip") {
			chipCandidates = append(chipCandidates, filepath.Join("/dev", e.Name()))
		}
	}

	opts = append(opts, gpiocdev.WithConsumer(consumer))
	for _, chipPath := range chipCandidates {
		chip, err := gpiocdev.NewChip(chipPath)
		if err != nil {
			continue
		}
		offset, err := chip.FindLine(name)
		if err != nil {
			_ = chip.Close()
			continue
		}
		line, err := chip.RequestLine(offset, opts...)
		if err != nil {
			_ = chip.Close()
			continue
		}
		return chip, line, nil
	}
	return nil, nil, fmt.Errorf("gpio: line %q not found (or busy)", name)
}

type cdevLine struct {
	chip *gpiocdev.Chip
	line *gpiocdev.Line
	// rest is driven before release on outputs.
	rest *int
}

func openCdevInput(cfg InputConfig) (Input, error) {
	opts := []gpiocdev.LineReqOption{gpiocdev.AsInput}
	if cfg.PullUp {
		opts = append(opts, gpiocdev.WithPullUp)
	} else {
		opts = append(opts, gpiocdev.WithBiasDisabled)
	}
	chip, line, err := requestLine(cfg.Pin, opts...)
	if err != nil {
		return nil, err
	}
	return &cdevLine{chip: chip, line: line}, nil
}

func openCdevOutput(cfg OutputConfig) (Output, error) {
	v := 0
	if cfg.Initial {
		v = 1
	}
	chip, line, err := requestLine(cfg.Pin, gpiocdev.AsOutput(v))
	if err != nil {
		return nil, err
	}
	return &cdevLine{chip: chip, line: line, rest: &v}, nil
}

func (g *cdevLine) Read() (Level, error) {
	if g == nil || g.line == nil {
		return Low, fmt.Errorf("gpio: line not initialized")
	}
	v, err := g.line.Value()
	if err != nil {
		return Low, err
	}
	return Level(v != 0), nil
}

func (g *cdevLine) Set(l Level) error {
	if g == nil || g.line == nil {
		return fmt.Errorf("gpio: line not initialized")
	}
	v := 0
	if l {
		v = 1
	}
	return g.line.SetValue(v)
}

func (g *cdevLine) Close() error {
	if g == nil || g.line == nil {
		return nil
	}
	if g.rest != nil {
		_ = g.line.SetValue(*g.rest)
	}
	err := g.line.Close()
	g.line = nil
	if g.chip != nil {
		_ = g.chip.Close()
		g.chip = nil
	}
	return err
}
