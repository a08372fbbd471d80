package sim

import (
	"time"

	"sos-beacon/internal/clock"
)

// Receiver emulates a GNSS module on a UART: every Interval it queues one
// RMC and one GGA sentence for the current track position.
//
// It satisfies gps.Port.
type Receiver struct {
	Track    Track
	Interval time.Duration

	clk     clock.Clock
	next    time.Time
	pending []byte
}

func NewReceiver(track Track, interval time.Duration, clk clock.Clock) *Receiver {
	if interval <= 0 {
		interval = time.Second
	}
	if clk == nil {
		clk = clock.Real()
	}
	return &Receiver{Track: track, Interval: interval, clk: clk, next: clk.Now()}
}

func (r *Receiver) ReadTimeout(p []byte, wait time.Duration) (int, error) {
	if len(r.pending) == 0 {
		now := r.clk.Now()
		if until := r.next.Sub(now); until > 0 {
			if until > wait {
				r.clk.Sleep(wait)
				return 0, nil
			}
			r.clk.Sleep(until)
			now = r.clk.Now()
		}
		lat, lon, trk := r.Track.Position(now)
		r.pending = append(r.pending, RMC(now, lat, lon, trk)...)
		r.pending = append(r.pending, GGA(now, lat, lon)...)
		r.next = now.Add(r.Interval)
	}
	n := copy(p, r.pending)
	r.pending = r.pending[n:]
	return n, nil
}

// Discard drops queued sentences, like flushing a UART input buffer.
func (r *Receiver) Discard() error {
	r.pending = nil
	return nil
}

func (r *Receiver) Close() error { return nil }
