package gps

import (
	"bytes"
	"context"
	"time"

	"github.com/rs/zerolog"

	"sos-beacon/internal/clock"
	"sos-beacon/internal/logging"
)

type AcquirerConfig struct {
	// PollInterval caps a single stream wait and therefore how far past the
	// deadline Acquire may return. Defaults to 20ms.
	PollInterval time.Duration
	// MaxLineBytes bounds the unterminated fragment kept between reads.
	// NMEA sentences are typically < 82 chars. Defaults to 4096.
	MaxLineBytes int

	Clock clock.Clock
}

// Acquirer reads a positioning stream until a fix arrives or time runs out.
type Acquirer struct {
	cfg AcquirerConfig
	clk clock.Clock
	log zerolog.Logger
}

func NewAcquirer(cfg AcquirerConfig) *Acquirer {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 20 * time.Millisecond
	}
	if cfg.MaxLineBytes <= 0 {
		cfg.MaxLineBytes = 4096
	}
	clk := cfg.Clock
	if clk == nil {
		clk = clock.Real()
	}
	return &Acquirer{cfg: cfg, clk: clk, log: logging.Module("gps")}
}

// Acquire returns the first position decoded from s, or false once deadline
// has elapsed. It never returns later than deadline plus one poll interval.
// ctx is only consulted for process shutdown.
func (a *Acquirer) Acquire(ctx context.Context, s Stream, deadline time.Duration) (Coordinate, bool) {
	start := a.clk.Now()

	if d, ok := s.(discarder); ok {
		if err := d.Discard(); err != nil {
			a.log.Debug().Err(err).Msg("discard stale input failed")
		}
	}

	var (
		acc      = make([]byte, 0, 512)
		chunk    = make([]byte, 256)
		lines    int
		rejected int
	)
	for {
		if ctx.Err() != nil {
			return Coordinate{}, false
		}
		elapsed := a.clk.Now().Sub(start)
		remaining := deadline - elapsed
		if remaining <= 0 {
			ev := a.log.Info().Dur("elapsed", elapsed).Int("lines", lines).Int("rejected", rejected)
			if ts, ok := s.(*TCPStream); ok {
				ev = ev.Interface("feed", ts.Snapshot())
			}
			ev.Msg("no fix before deadline")
			return Coordinate{}, false
		}
		wait := a.cfg.PollInterval
		if remaining < wait {
			wait = remaining
		}

		readStart := a.clk.Now()
		n, err := s.ReadTimeout(chunk, wait)
		if err != nil {
			a.log.Debug().Err(err).Msg("gps read failed")
		}
		if n <= 0 {
			// Streams that return immediately must still yield.
			if spent := a.clk.Now().Sub(readStart); spent < wait {
				a.clk.Sleep(wait - spent)
			}
			continue
		}

		acc = append(acc, chunk[:n]...)
		consumed := 0
		for {
			i := bytes.IndexByte(acc[consumed:], '\n')
			if i < 0 {
				break
			}
			line := string(bytes.TrimSpace(acc[consumed : consumed+i]))
			consumed += i + 1
			if line == "" {
				continue
			}
			lines++
			c, perr := ParseFix(line)
			if perr != nil {
				rejected++
				continue
			}
			a.log.Info().Stringer("fix", c).Dur("elapsed", a.clk.Now().Sub(start)).Int("lines", lines).Msg("gps fix acquired")
			return c, true
		}
		acc = acc[:copy(acc, acc[consumed:])]
		if len(acc) > a.cfg.MaxLineBytes {
			a.log.Debug().Int("bytes", len(acc)).Msg("dropping unterminated fragment")
			acc = acc[:0]
		}
	}
}
