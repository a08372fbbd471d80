//go:build !linux

package gps

import (
	"time"

	serial "go.bug.st/serial"
)

type serialPort struct {
	port serial.Port
}

func openSerial(path string, baud int) (*serialPort, error) {
	p, err := serial.Open(path, &serial.Mode{BaudRate: baud, DataBits: 8, Parity: serial.NoParity, StopBits: serial.OneStopBit})
	if err != nil {
		return nil, err
	}
	return &serialPort{port: p}, nil
}

func (p *serialPort) ReadTimeout(b []byte, wait time.Duration) (int, error) {
	if wait < time.Millisecond {
		wait = time.Millisecond
	}
	if err := p.port.SetReadTimeout(wait); err != nil {
		return 0, err
	}
	return p.port.Read(b)
}

func (p *serialPort) Discard() error {
	return p.port.ResetInputBuffer()
}

func (p *serialPort) Close() error {
	return p.port.Close()
}
