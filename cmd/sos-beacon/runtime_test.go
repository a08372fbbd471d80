package main

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"sos-beacon/internal/clock"
	"sos-beacon/internal/config"
	"sos-beacon/internal/gpio"
	"sos-beacon/internal/gps"
	"sos-beacon/internal/identity"
	"sos-beacon/internal/replay"
	"sos-beacon/internal/sim"
	"sos-beacon/internal/wifi"
)

type stubInput struct{ closed bool }

func (s *stubInput) Read() (gpio.Level, error) { return gpio.High, nil }
func (s *stubInput) Close() error              { s.closed = true; return nil }

type stubOutput struct {
	sets   []gpio.Level
	closed bool
}

func (s *stubOutput) Set(l gpio.Level) error { s.sets = append(s.sets, l); return nil }
func (s *stubOutput) Close() error           { s.closed = true; return nil }

type stubPort struct{ closed bool }

func (s *stubPort) ReadTimeout([]byte, time.Duration) (int, error) { return 0, nil }
func (s *stubPort) Close() error                                   { s.closed = true; return nil }

type hooks struct {
	input   *stubInput
	output  *stubOutput
	port    *stubPort
	clk     *clock.Fake
	wifiErr error
	wifiHit int
	wifiUp  bool
}

func installHooks(t *testing.T) *hooks {
	t.Helper()
	h := &hooks{
		input:  &stubInput{},
		output: &stubOutput{},
		port:   &stubPort{},
		clk:    clock.NewFake(time.Unix(1_700_000_000, 0)),
	}
	oldIn, oldOut, oldSerial, oldTCP := openInputFn, openOutputFn, openSerialFn, dialTCPFn
	oldUp, oldWifi, oldID, oldClock := wifiConnectedFn, wifiConnectFn, resolveIDFn, newClockFn
	t.Cleanup(func() {
		openInputFn, openOutputFn, openSerialFn, dialTCPFn = oldIn, oldOut, oldSerial, oldTCP
		wifiConnectedFn, wifiConnectFn, resolveIDFn, newClockFn = oldUp, oldWifi, oldID, oldClock
	})
	openInputFn = func(gpio.InputConfig) (gpio.Input, error) { return h.input, nil }
	openOutputFn = func(gpio.OutputConfig) (gpio.Output, error) { return h.output, nil }
	openSerialFn = func(string, int) (gps.Port, error) { return h.port, nil }
	dialTCPFn = func(context.Context, gps.TCPConfig) (gps.Port, error) { return h.port, nil }
	wifiConnectedFn = func(context.Context, string) (bool, error) { return h.wifiUp, nil }
	wifiConnectFn = func(context.Context, wifi.Config) error {
		h.wifiHit++
		return h.wifiErr
	}
	resolveIDFn = func(string) (identity.ID, identity.Source, error) {
		return "cafe", identity.SourceOverride, nil
	}
	newClockFn = func() clock.Clock { return h.clk }
	return h
}

func testConfig() config.Config {
	cfg := config.Defaults()
	cfg.Alert.URL = "http://relay.local:5000/sos"
	cfg.GPS.Sim.Interval = time.Second
	cfg.GPS.Sim.RadiusNm = 0.5
	cfg.GPS.Sim.Period = time.Minute
	return cfg
}

func TestNewRuntime_OpensHardware(t *testing.T) {
	h := installHooks(t)
	rt, err := newRuntime(context.Background(), testConfig())
	if err != nil {
		t.Fatalf("newRuntime: %v", err)
	}
	if rt.stream != h.port {
		t.Fatalf("stream=%T want serial port", rt.stream)
	}
	if h.wifiHit != 0 {
		t.Fatalf("wifi connect called while disabled")
	}
	rt.Close()
	if !h.input.closed || !h.output.closed || !h.port.closed {
		t.Fatalf("close: input=%v output=%v port=%v", h.input.closed, h.output.closed, h.port.closed)
	}
}

func TestNewRuntime_MissingButtonIsFatal(t *testing.T) {
	installHooks(t)
	openInputFn = func(gpio.InputConfig) (gpio.Input, error) { return nil, errors.New("no chip") }
	if _, err := newRuntime(context.Background(), testConfig()); err == nil {
		t.Fatalf("expected error")
	}
}

func TestNewRuntime_MissingLEDAndGPSDegrade(t *testing.T) {
	installHooks(t)
	openOutputFn = func(gpio.OutputConfig) (gpio.Output, error) { return nil, errors.New("busy") }
	openSerialFn = func(string, int) (gps.Port, error) { return nil, errors.New("no tty") }

	rt, err := newRuntime(context.Background(), testConfig())
	if err != nil {
		t.Fatalf("newRuntime: %v", err)
	}
	defer rt.Close()
	if _, ok := rt.output.(gpio.NopOutput); !ok {
		t.Fatalf("output=%T want NopOutput", rt.output)
	}
	n, err := rt.stream.ReadTimeout(make([]byte, 16), 10*time.Millisecond)
	if n != 0 || err != nil {
		t.Fatalf("silent stream read n=%d err=%v", n, err)
	}
}

func TestNewRuntime_SimSource(t *testing.T) {
	installHooks(t)
	openSerialFn = func(string, int) (gps.Port, error) {
		t.Fatalf("serial must not be opened for sim source")
		return nil, nil
	}
	cfg := testConfig()
	cfg.GPS.Source = "sim"
	rt, err := newRuntime(context.Background(), cfg)
	if err != nil {
		t.Fatalf("newRuntime: %v", err)
	}
	defer rt.Close()
	if _, ok := rt.stream.(*sim.Receiver); !ok {
		t.Fatalf("stream=%T want *sim.Receiver", rt.stream)
	}
}

func TestNewRuntime_WiFiFailureBlinksAndContinues(t *testing.T) {
	h := installHooks(t)
	h.wifiErr = errors.New("no network")
	cfg := testConfig()
	cfg.WiFi.Enable = true
	cfg.WiFi.SSID = "home"

	rt, err := newRuntime(context.Background(), cfg)
	if err != nil {
		t.Fatalf("newRuntime: %v", err)
	}
	defer rt.Close()
	if h.wifiHit != 1 {
		t.Fatalf("wifi attempts=%d want 1", h.wifiHit)
	}
	if got := h.clk.Slept(); got != 2400*time.Millisecond {
		t.Fatalf("startup failure pattern slept %s want 2.4s", got)
	}
	// 3 cycles of on/off, then the idle level.
	if len(h.output.sets) != 7 {
		t.Fatalf("led writes=%d want 7", len(h.output.sets))
	}
}

func TestNewRuntime_WiFiAlreadyConnectedIsLeftAlone(t *testing.T) {
	h := installHooks(t)
	h.wifiUp = true
	var queried string
	wifiConnectedFn = func(_ context.Context, iface string) (bool, error) {
		queried = iface
		return true, nil
	}
	cfg := testConfig()
	cfg.WiFi.Enable = true
	cfg.WiFi.SSID = "home"
	cfg.WiFi.Interface = "wlan0"

	rt, err := newRuntime(context.Background(), cfg)
	if err != nil {
		t.Fatalf("newRuntime: %v", err)
	}
	defer rt.Close()
	if queried != "wlan0" {
		t.Fatalf("status queried for %q want wlan0", queried)
	}
	if h.wifiHit != 0 {
		t.Fatalf("wifi connect ran %d times on an active link", h.wifiHit)
	}
	if got := h.clk.Slept(); got != 0 {
		t.Fatalf("slept %s; no failure pattern expected", got)
	}
}

func TestNewRuntime_WiFiStatusErrorStillConnects(t *testing.T) {
	h := installHooks(t)
	wifiConnectedFn = func(context.Context, string) (bool, error) { return false, errors.New("nmcli missing") }
	cfg := testConfig()
	cfg.WiFi.Enable = true
	cfg.WiFi.SSID = "home"

	rt, err := newRuntime(context.Background(), cfg)
	if err != nil {
		t.Fatalf("newRuntime: %v", err)
	}
	defer rt.Close()
	if h.wifiHit != 1 {
		t.Fatalf("wifi attempts=%d want 1", h.wifiHit)
	}
}

func TestNewRuntime_IdentityFailure(t *testing.T) {
	installHooks(t)
	resolveIDFn = func(string) (identity.ID, identity.Source, error) {
		return "", "", errors.New("no id")
	}
	if _, err := newRuntime(context.Background(), testConfig()); err == nil {
		t.Fatalf("expected error")
	}
}

func TestNewRuntime_TCPSource(t *testing.T) {
	h := installHooks(t)
	var gotAddr string
	dialTCPFn = func(_ context.Context, cfg gps.TCPConfig) (gps.Port, error) {
		gotAddr = cfg.Addr
		return h.port, nil
	}
	cfg := testConfig()
	cfg.GPS.Source = "tcp"
	cfg.GPS.Address = "10.0.0.5:4001"
	rt, err := newRuntime(context.Background(), cfg)
	if err != nil {
		t.Fatalf("newRuntime: %v", err)
	}
	defer rt.Close()
	if gotAddr != "10.0.0.5:4001" || rt.stream != h.port {
		t.Fatalf("addr=%q stream=%T", gotAddr, rt.stream)
	}
}

func TestNewRuntime_ReplaySource(t *testing.T) {
	installHooks(t)
	path := filepath.Join(t.TempDir(), "capture.log")
	if err := os.WriteFile(path, []byte("START\n0,24475052\n"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	cfg := testConfig()
	cfg.GPS.Source = "replay"
	cfg.GPS.Replay.Path = path
	cfg.GPS.Replay.Speed = 1
	rt, err := newRuntime(context.Background(), cfg)
	if err != nil {
		t.Fatalf("newRuntime: %v", err)
	}
	defer rt.Close()
	if _, ok := rt.stream.(*replay.Player); !ok {
		t.Fatalf("stream=%T want *replay.Player", rt.stream)
	}
}

func TestNewRuntime_MissingReplayFallsBackToSilent(t *testing.T) {
	installHooks(t)
	cfg := testConfig()
	cfg.GPS.Source = "replay"
	cfg.GPS.Replay.Path = filepath.Join(t.TempDir(), "missing.log")
	cfg.GPS.Replay.Speed = 1
	rt, err := newRuntime(context.Background(), cfg)
	if err != nil {
		t.Fatalf("newRuntime: %v", err)
	}
	defer rt.Close()
	if _, ok := rt.stream.(*replay.Player); ok {
		t.Fatalf("stream is a player despite missing capture")
	}
}

func TestNewRuntime_RecordWrapsSerial(t *testing.T) {
	h := installHooks(t)
	cfg := testConfig()
	cfg.GPS.Record.Enable = true
	cfg.GPS.Record.Path = filepath.Join(t.TempDir(), "capture.log")
	rt, err := newRuntime(context.Background(), cfg)
	if err != nil {
		t.Fatalf("newRuntime: %v", err)
	}
	if _, ok := rt.stream.(*replay.Tap); !ok {
		t.Fatalf("stream=%T want *replay.Tap", rt.stream)
	}
	rt.Close()
	if !h.port.closed {
		t.Fatalf("tapped port not closed")
	}
	if _, err := os.Stat(cfg.GPS.Record.Path); err != nil {
		t.Fatalf("capture file: %v", err)
	}
}
