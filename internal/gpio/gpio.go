// Package gpio exposes the two digital lines the beacon needs: a sampled
// input for the button and an output for the indicator LED.
//
// Backends:
//   - "gpiocdev": Linux GPIO character device (default, linux/arm and arm64)
//   - "periph":   periph.io host drivers
package gpio

import (
	"fmt"
	"strings"
)

// Level is a raw electrical level; true is high.
type Level bool

const (
	Low  Level = false
	High Level = true
)

func (l Level) String() string {
	if l {
		return "high"
	}
	return "low"
}

type Input interface {
	Read() (Level, error)
	Close() error
}

type Output interface {
	Set(Level) error
	Close() error
}

type InputConfig struct {
	Backend string
	// Pin is BCM GPIO numbering.
	Pin    int
	PullUp bool
}

type OutputConfig struct {
	Backend string
	Pin     int
	// Initial is the level driven when the line is claimed.
	Initial Level
}

var (
	openCdevInputFn    = openCdevInput
	openCdevOutputFn   = openCdevOutput
	openPeriphInputFn  = openPeriphInput
	openPeriphOutputFn = openPeriphOutput
)

func OpenInput(cfg InputConfig) (Input, error) {
	if cfg.Pin < 0 {
		return nil, fmt.Errorf("gpio: invalid input pin %d", cfg.Pin)
	}
	switch backendName(cfg.Backend) {
	case "gpiocdev":
		return openCdevInputFn(cfg)
	case "periph":
		return openPeriphInputFn(cfg)
	default:
		return nil, fmt.Errorf("gpio: unknown backend %q", cfg.Backend)
	}
}

func OpenOutput(cfg OutputConfig) (Output, error) {
	if cfg.Pin < 0 {
		return nil, fmt.Errorf("gpio: invalid output pin %d", cfg.Pin)
	}
	switch backendName(cfg.Backend) {
	case "gpiocdev":
		return openCdevOutputFn(cfg)
	case "periph":
		return openPeriphOutputFn(cfg)
	default:
		return nil, fmt.Errorf("gpio: unknown backend %q", cfg.Backend)
	}
}

func backendName(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return "gpiocdev"
	}
	return s
}

// lineName is the conventional Raspberry Pi header line name, e.g. "GPIO14".
func lineName(pin int) string {
	return fmt.Sprintf("GPIO%d", pin)
}

// NopOutput discards writes. It stands in for an LED that failed to open.
type NopOutput struct{}

func (NopOutput) Set(Level) error { return nil }
func (NopOutput) Close() error    { return nil }
