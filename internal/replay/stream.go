package replay

import (
	"errors"
	"io"
	"time"

	"github.com/rs/zerolog"

	"sos-beacon/internal/clock"
	"sos-beacon/internal/logging"
)

// Player serves recorded chunks as a positioning stream. Chunks become
// readable once their recorded offset, divided by speed, has elapsed since
// the player was created.
type Player struct {
	recs  []Record
	speed float64
	loop  bool
	clk   clock.Clock

	origin  time.Time
	next    int
	pending []byte
}

func NewPlayer(recs []Record, speed float64, loop bool, clk clock.Clock) (*Player, error) {
	if len(recs) == 0 {
		return nil, errors.New("replay: no records")
	}
	if speed <= 0 {
		return nil, errors.New("gps.replay.speed must be > 0")
	}
	if clk == nil {
		clk = clock.Real()
	}
	return &Player{recs: recs, speed: speed, loop: loop, clk: clk, origin: clk.Now()}, nil
}

func (p *Player) due(i int) time.Duration {
	return time.Duration(float64(p.recs[i].At) / p.speed)
}

// advance moves to the next record, wrapping when looping. It reports false
// once a non-looping capture is exhausted.
func (p *Player) advance() bool {
	p.next++
	if p.next < len(p.recs) {
		return true
	}
	if !p.loop {
		return false
	}
	p.next = 0
	p.origin = p.clk.Now()
	return true
}

func (p *Player) ReadTimeout(b []byte, wait time.Duration) (int, error) {
	if len(p.pending) > 0 {
		n := copy(b, p.pending)
		p.pending = p.pending[n:]
		return n, nil
	}
	if p.next >= len(p.recs) {
		// Exhausted: behave like a receiver that went quiet.
		p.clk.Sleep(wait)
		return 0, nil
	}

	elapsed := p.clk.Now().Sub(p.origin)
	if d := p.due(p.next); d > elapsed {
		gap := d - elapsed
		if gap > wait {
			p.clk.Sleep(wait)
			return 0, nil
		}
		p.clk.Sleep(gap)
	}

	data := p.recs[p.next].Data
	n := copy(b, data)
	p.pending = data[n:]
	if !p.advance() {
		p.next = len(p.recs)
	}
	return n, nil
}

// Discard skips every chunk that is already due, so the first read after it
// returns live data.
func (p *Player) Discard() error {
	p.pending = nil
	elapsed := p.clk.Now().Sub(p.origin)
	for p.next < len(p.recs) && p.due(p.next) <= elapsed {
		if !p.advance() {
			p.next = len(p.recs)
			break
		}
		if p.next == 0 {
			break
		}
	}
	return nil
}

func (p *Player) Close() error { return nil }

// Port is what Tap wraps; it matches the receiver port shape.
type Port interface {
	ReadTimeout(p []byte, wait time.Duration) (int, error)
	io.Closer
}

// Tap copies every chunk read from a receiver into a capture file.
type Tap struct {
	port Port
	w    *Writer
	clk  clock.Clock
	log  zerolog.Logger

	// writeFailed is set after the first capture error; later ones are
	// not logged.
	writeFailed bool
}

func NewTap(port Port, w *Writer, clk clock.Clock) *Tap {
	if clk == nil {
		clk = clock.Real()
	}
	return &Tap{port: port, w: w, clk: clk, log: logging.Module("replay")}
}

func (t *Tap) ReadTimeout(b []byte, wait time.Duration) (int, error) {
	n, err := t.port.ReadTimeout(b, wait)
	if n > 0 {
		if werr := t.w.WriteChunk(t.clk.Now(), b[:n]); werr != nil && !t.writeFailed {
			t.writeFailed = true
			t.log.Error().Err(werr).Msg("gps capture write failed")
		}
	}
	return n, err
}

// Discard forwards to the wrapped port when it supports dropping input.
func (t *Tap) Discard() error {
	if d, ok := t.port.(interface{ Discard() error }); ok {
		return d.Discard()
	}
	return nil
}

func (t *Tap) Close() error {
	err := t.port.Close()
	if werr := t.w.Close(); err == nil {
		err = werr
	}
	return err
}
