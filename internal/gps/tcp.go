package gps

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"sos-beacon/internal/logging"
)

// ErrStreamClosed is returned by reads on a closed network stream.
var ErrStreamClosed = errors.New("gps stream closed")

type TCPConfig struct {
	// Addr is host:port of a raw NMEA feed (ser2net, a receiver's TCP
	// output, or a bench forwarder).
	Addr string

	ReconnectDelay time.Duration
	DialTimeout    time.Duration
	// BufferBytes bounds data received but not yet read; the oldest bytes
	// are dropped first.
	BufferBytes int
}

// TCPStream keeps a connection to a network NMEA source in the background
// and serves its bytes through the Stream interface.
type TCPStream struct {
	cfg TCPConfig
	log zerolog.Logger

	closed atomic.Bool

	mu      sync.Mutex
	buf     []byte
	state   string
	lastErr string
	dropped uint64

	notify chan struct{}
	cancel context.CancelFunc
	done   chan struct{}
}

type TCPSnapshot struct {
	Addr      string `json:"addr"`
	State     string `json:"state"`
	LastError string `json:"last_error,omitempty"`
	Buffered  int    `json:"buffered"`
	Dropped   uint64 `json:"dropped"`
}

// DialTCP starts the background connection loop. It does not wait for the
// first connection; a source that is down simply yields no data.
func DialTCP(ctx context.Context, cfg TCPConfig) (*TCPStream, error) {
	if cfg.Addr == "" {
		return nil, fmt.Errorf("gps.address is required")
	}
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = 1 * time.Second
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = 2 * time.Second
	}
	if cfg.BufferBytes <= 0 {
		cfg.BufferBytes = 16 * 1024
	}

	runCtx, cancel := context.WithCancel(ctx)
	s := &TCPStream{
		cfg:    cfg,
		log:    logging.Module("gps").With().Str("addr", cfg.Addr).Logger(),
		state:  "connecting",
		notify: make(chan struct{}, 1),
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go func() {
		defer close(s.done)
		s.runLoop(runCtx)
	}()
	return s, nil
}

func (s *TCPStream) ReadTimeout(p []byte, wait time.Duration) (int, error) {
	timer := time.NewTimer(wait)
	defer timer.Stop()
	for {
		if s.closed.Load() {
			return 0, ErrStreamClosed
		}
		s.mu.Lock()
		if len(s.buf) > 0 {
			n := copy(p, s.buf)
			s.buf = append(s.buf[:0], s.buf[n:]...)
			s.mu.Unlock()
			return n, nil
		}
		s.mu.Unlock()

		select {
		case <-s.notify:
		case <-timer.C:
			return 0, nil
		}
	}
}

// Discard drops everything received so far.
func (s *TCPStream) Discard() error {
	s.mu.Lock()
	s.buf = s.buf[:0]
	s.mu.Unlock()
	return nil
}

func (s *TCPStream) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	s.cancel()
	<-s.done
	return nil
}

func (s *TCPStream) Snapshot() TCPSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return TCPSnapshot{
		Addr:      s.cfg.Addr,
		State:     s.state,
		LastError: s.lastErr,
		Buffered:  len(s.buf),
		Dropped:   s.dropped,
	}
}

func (s *TCPStream) runLoop(ctx context.Context) {
	dialer := &net.Dialer{Timeout: s.cfg.DialTimeout}
	chunk := make([]byte, 1024)

	for {
		if ctx.Err() != nil {
			s.setState("stopped", "")
			return
		}

		s.setState("connecting", "")
		conn, err := dialer.DialContext(ctx, "tcp", s.cfg.Addr)
		if err != nil {
			s.setState("error", err.Error())
			if !sleepCtx(ctx, s.cfg.ReconnectDelay) {
				s.setState("stopped", "")
				return
			}
			continue
		}

		s.setState("connected", "")
		s.log.Info().Msg("gps feed connected")
		stop := context.AfterFunc(ctx, func() { _ = conn.Close() })

		for {
			n, err := conn.Read(chunk)
			if n > 0 {
				s.push(chunk[:n])
			}
			if err != nil {
				if ctx.Err() == nil {
					s.setState("disconnected", err.Error())
					s.log.Warn().Err(err).Msg("gps feed disconnected")
				}
				break
			}
		}
		stop()
		_ = conn.Close()

		if !sleepCtx(ctx, s.cfg.ReconnectDelay) {
			s.setState("stopped", "")
			return
		}
	}
}

func (s *TCPStream) push(b []byte) {
	s.mu.Lock()
	s.buf = append(s.buf, b...)
	if over := len(s.buf) - s.cfg.BufferBytes; over > 0 {
		s.buf = append(s.buf[:0], s.buf[over:]...)
		s.dropped += uint64(over)
	}
	s.mu.Unlock()

	select {
	case s.notify <- struct{}{}:
	default:
	}
}

func (s *TCPStream) setState(state string, lastErr string) {
	s.mu.Lock()
	s.state = state
	if lastErr != "" {
		s.lastErr = lastErr
	} else if state == "connected" || state == "stopped" {
		// A healthy connection clears the last error.
		s.lastErr = ""
	}
	s.mu.Unlock()
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
