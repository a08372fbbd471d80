package gps

import (
	"fmt"
	"io"
	"os"
	"time"

	"sos-beacon/internal/clock"
)

// Stream is the byte channel from the positioning receiver.
//
// ReadTimeout returns whatever bytes are buffered, waiting at most wait for
// the first one. (0, nil) means nothing arrived in time.
type Stream interface {
	ReadTimeout(p []byte, wait time.Duration) (int, error)
}

// Port is an opened receiver.
type Port interface {
	Stream
	io.Closer
}

// discarder is implemented by streams that can drop pending input.
type discarder interface {
	Discard() error
}

// OpenSerial opens the receiver UART in raw mode. An empty device is
// auto-detected; a zero baud means 9600.
func OpenSerial(device string, baud int) (Port, error) {
	if device == "" {
		device = autoDetectDevice()
		if device == "" {
			return nil, fmt.Errorf("gps auto-detect failed: no /dev/serial0, /dev/ttyACM* or /dev/ttyUSB* found")
		}
	}
	if baud == 0 {
		baud = 9600
	}
	p, err := openSerial(device, baud)
	if err != nil {
		return nil, fmt.Errorf("gps open failed device=%s baud=%d: %w", device, baud, err)
	}
	return p, nil
}

func autoDetectDevice() string {
	candidates := []string{"/dev/serial0", "/dev/ttyS0", "/dev/ttyAMA0"}
	for i := 0; i < 10; i++ {
		candidates = append(candidates, fmt.Sprintf("/dev/ttyACM%d", i))
	}
	for i := 0; i < 10; i++ {
		candidates = append(candidates, fmt.Sprintf("/dev/ttyUSB%d", i))
	}
	for _, p := range candidates {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// silentStream never produces data. It stands in for a receiver that could
// not be opened so alerts still go out, just without a position.
type silentStream struct {
	clk clock.Clock
}

func NewSilentStream(clk clock.Clock) Port {
	if clk == nil {
		clk = clock.Real()
	}
	return silentStream{clk: clk}
}

func (s silentStream) ReadTimeout(p []byte, wait time.Duration) (int, error) {
	s.clk.Sleep(wait)
	return 0, nil
}

func (silentStream) Close() error { return nil }
