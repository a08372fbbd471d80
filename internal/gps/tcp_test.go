package gps

import (
	"bytes"
	"context"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func listen(t *testing.T) net.Listener {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	t.Cleanup(func() { _ = ln.Close() })
	return ln
}

func TestTCPStream_FeedsAcquirer(t *testing.T) {
	ln := listen(t)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		time.Sleep(50 * time.Millisecond)
		_, _ = conn.Write([]byte("$GPGSV,3,1,11*00\r\n" + nmeaLine("GPRMC,123519,A,4807.038,N,01131.000,E,022.4,084.4,230394,003.1,W") + "\r\n"))
		time.Sleep(time.Second)
	}()

	s, err := DialTCP(context.Background(), TCPConfig{Addr: ln.Addr().String(), ReconnectDelay: 20 * time.Millisecond})
	if err != nil {
		t.Fatalf("DialTCP: %v", err)
	}
	defer s.Close()

	a := NewAcquirer(AcquirerConfig{})
	c, ok := a.Acquire(context.Background(), s, 2*time.Second)
	if !ok {
		t.Fatalf("no fix; snapshot=%+v", s.Snapshot())
	}
	if !near(c.Lat(), 48.1173) || !near(c.Lon(), 11.516667) {
		t.Fatalf("coord=%s", c)
	}
}

func TestTCPStream_NoServerYieldsNoData(t *testing.T) {
	ln := listen(t)
	addr := ln.Addr().String()
	_ = ln.Close()

	s, err := DialTCP(context.Background(), TCPConfig{Addr: addr, ReconnectDelay: 10 * time.Millisecond})
	if err != nil {
		t.Fatalf("DialTCP: %v", err)
	}
	defer s.Close()

	start := time.Now()
	n, err := s.ReadTimeout(make([]byte, 64), 100*time.Millisecond)
	if n != 0 || err != nil {
		t.Fatalf("n=%d err=%v", n, err)
	}
	if el := time.Since(start); el < 90*time.Millisecond || el > time.Second {
		t.Fatalf("read waited %s", el)
	}
}

func TestTCPStream_BufferBoundAndDiscard(t *testing.T) {
	s := &TCPStream{cfg: TCPConfig{BufferBytes: 8}, notify: make(chan struct{}, 1)}
	s.push([]byte("0123456789"))
	if snap := s.Snapshot(); snap.Buffered != 8 || snap.Dropped != 2 {
		t.Fatalf("snapshot=%+v", snap)
	}
	p := make([]byte, 4)
	n, _ := s.ReadTimeout(p, time.Millisecond)
	if string(p[:n]) != "2345" {
		t.Fatalf("read %q want oldest bytes dropped", p[:n])
	}
	_ = s.Discard()
	if n, _ := s.ReadTimeout(p, time.Millisecond); n != 0 {
		t.Fatalf("read %d bytes after discard", n)
	}
}

func TestTCPStream_ClosedReadFails(t *testing.T) {
	ln := listen(t)
	s, err := DialTCP(context.Background(), TCPConfig{Addr: ln.Addr().String()})
	if err != nil {
		t.Fatalf("DialTCP: %v", err)
	}
	_ = s.Close()
	if _, err := s.ReadTimeout(make([]byte, 4), time.Millisecond); err != ErrStreamClosed {
		t.Fatalf("err=%v want ErrStreamClosed", err)
	}
}

func TestTCPStream_RequiresAddr(t *testing.T) {
	if _, err := DialTCP(context.Background(), TCPConfig{}); err == nil {
		t.Fatalf("expected error")
	}
}

func TestAcquire_NoFixReportsFeedState(t *testing.T) {
	s := &TCPStream{
		cfg:     TCPConfig{Addr: "gps.local:4001", BufferBytes: 64},
		state:   "error",
		lastErr: "connection refused",
		notify:  make(chan struct{}, 1),
	}
	var buf bytes.Buffer
	a := NewAcquirer(AcquirerConfig{PollInterval: 10 * time.Millisecond})
	a.log = zerolog.New(&buf)

	if _, ok := a.Acquire(context.Background(), s, 40*time.Millisecond); ok {
		t.Fatalf("unexpected fix")
	}
	out := buf.String()
	for _, want := range []string{`"message":"no fix before deadline"`, `"addr":"gps.local:4001"`, `"state":"error"`, `"last_error":"connection refused"`} {
		if !strings.Contains(out, want) {
			t.Fatalf("log %q missing %s", out, want)
		}
	}
}
