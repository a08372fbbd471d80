//go:build !linux || (!arm && !arm64)

package gpio

import "fmt"

func openCdevInput(cfg InputConfig) (Input, error) {
	return nil, fmt.Errorf("gpio: gpiocdev unsupported on this platform")
}

func openCdevOutput(cfg OutputConfig) (Output, error) {
	return nil, fmt.Errorf("gpio: gpiocdev unsupported on this platform")
}
