package main

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"sos-beacon/internal/alert"
	"sos-beacon/internal/beacon"
	"sos-beacon/internal/button"
	"sos-beacon/internal/clock"
	"sos-beacon/internal/config"
	"sos-beacon/internal/gpio"
	"sos-beacon/internal/gps"
	"sos-beacon/internal/identity"
	"sos-beacon/internal/led"
	"sos-beacon/internal/logging"
	"sos-beacon/internal/replay"
	"sos-beacon/internal/sim"
	"sos-beacon/internal/wifi"
)

// Hardware and platform hooks; swapped in tests.
var (
	openInputFn     = gpio.OpenInput
	openOutputFn    = gpio.OpenOutput
	openSerialFn    = gps.OpenSerial
	dialTCPFn       = dialTCP
	wifiConnectedFn = wifi.Connected
	wifiConnectFn   = wifi.Connect
	resolveIDFn     = resolveID
	newClockFn      = clock.Real
)

func dialTCP(ctx context.Context, cfg gps.TCPConfig) (gps.Port, error) {
	s, err := gps.DialTCP(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return s, nil
}

func resolveID(override string) (identity.ID, identity.Source, error) {
	r := identity.Resolver{Override: override}
	return r.Resolve()
}

type runtime struct {
	log zerolog.Logger

	input  gpio.Input
	output gpio.Output
	stream gps.Port

	indicator *led.Indicator
	loop      *beacon.Loop
}

func newRuntime(ctx context.Context, cfg config.Config) (*runtime, error) {
	rt := &runtime{log: logging.Module("main")}
	clk := newClockFn()

	id, src, err := resolveIDFn(cfg.Device.ID)
	if err != nil {
		return nil, fmt.Errorf("device identity: %w", err)
	}
	rt.log.Info().Str("device_id", id.String()).Str("source", string(src)).Msg("device identity")

	transport, err := alert.NewTransport(alert.TransportConfig{
		Kind:    cfg.Alert.Transport,
		URL:     cfg.Alert.URL,
		Timeout: cfg.Alert.Timeout,
		MQTT: alert.MQTTConfig{
			Broker:   cfg.Alert.MQTT.Broker,
			Topic:    cfg.Alert.MQTT.Topic,
			ClientID: cfg.Alert.MQTT.ClientID,
			QoS:      byte(cfg.Alert.MQTT.QoS),
		},
		NATS: alert.NATSConfig{URL: cfg.Alert.NATS.URL, Subject: cfg.Alert.NATS.Subject},
	})
	if err != nil {
		return nil, err
	}
	sender, err := alert.NewClient(id, transport, cfg.Alert.Timeout)
	if err != nil {
		return nil, err
	}

	// A missing button is fatal: nothing could ever trigger an alert.
	rt.input, err = openInputFn(gpio.InputConfig{
		Backend: cfg.Button.Backend,
		Pin:     cfg.Button.Pin,
		PullUp:  cfg.Button.PullUp,
	})
	if err != nil {
		return nil, fmt.Errorf("button open failed: %w", err)
	}

	rest := gpio.Level(!cfg.LED.ActiveHigh)
	rt.output, err = openOutputFn(gpio.OutputConfig{Backend: cfg.LED.Backend, Pin: cfg.LED.Pin, Initial: rest})
	if err != nil {
		rt.log.Error().Err(err).Int("pin", cfg.LED.Pin).Msg("led open failed; continuing without indicator")
		rt.output = gpio.NopOutput{}
	}

	rt.indicator, err = led.NewIndicator(rt.output, led.Config{
		ActiveHigh: cfg.LED.ActiveHigh,
		Patterns: led.Patterns{
			Success:        pattern(cfg.LED.Success),
			Failure:        pattern(cfg.LED.Failure),
			StartupFailure: pattern(cfg.LED.StartupFailure),
		},
		Clock: clk,
	})
	if err != nil {
		rt.Close()
		return nil, err
	}

	rt.stream = rt.openStream(ctx, cfg.GPS, clk)

	if cfg.WiFi.Enable {
		rt.bringUpWiFi(ctx, cfg.WiFi)
	}

	rt.loop, err = beacon.New(beacon.Config{
		Input:     rt.input,
		Trigger:   button.NewTrigger(button.Config{ActiveLow: cfg.Button.ActiveLow, Debounce: cfg.Button.Debounce, Clock: clk}),
		Indicator: rt.indicator,
		Acquirer: gps.NewAcquirer(gps.AcquirerConfig{
			PollInterval: cfg.GPS.PollInterval,
			MaxLineBytes: cfg.GPS.MaxLineBytes,
			Clock:        clk,
		}),
		Stream:         rt.stream,
		Sender:         sender,
		AcquireTimeout: cfg.GPS.AcquireTimeout,
		PollInterval:   cfg.Button.PollInterval,
		Clock:          clk,
	})
	if err != nil {
		rt.Close()
		return nil, err
	}
	if err := rt.indicator.ShowIdle(); err != nil {
		rt.log.Warn().Err(err).Msg("indicator write failed")
	}
	return rt, nil
}

// openStream never fails: without a receiver, alerts go out without a
// location.
func (rt *runtime) openStream(ctx context.Context, cfg config.GPSConfig, clk clock.Clock) gps.Port {
	port, err := rt.openSource(ctx, cfg, clk)
	if err != nil {
		rt.log.Error().Err(err).Str("source", cfg.Source).Msg("gps open failed; alerts will be sent without location")
		return gps.NewSilentStream(clk)
	}
	if !cfg.Record.Enable {
		return port
	}
	w, err := replay.CreateWriter(cfg.Record.Path)
	if err != nil {
		rt.log.Error().Err(err).Str("path", cfg.Record.Path).Msg("gps capture disabled")
		return port
	}
	rt.log.Info().Str("path", cfg.Record.Path).Msg("recording gps stream")
	return replay.NewTap(port, w, clk)
}

func (rt *runtime) openSource(ctx context.Context, cfg config.GPSConfig, clk clock.Clock) (gps.Port, error) {
	switch cfg.Source {
	case "sim":
		rt.log.Info().
			Float64("center_lat_deg", cfg.Sim.CenterLatDeg).
			Float64("center_lon_deg", cfg.Sim.CenterLonDeg).
			Msg("using simulated gps receiver")
		return sim.NewReceiver(sim.Track{
			CenterLatDeg: cfg.Sim.CenterLatDeg,
			CenterLonDeg: cfg.Sim.CenterLonDeg,
			RadiusNm:     cfg.Sim.RadiusNm,
			Period:       cfg.Sim.Period,
		}, cfg.Sim.Interval, clk), nil
	case "replay":
		recs, err := replay.Load(cfg.Replay.Path)
		if err != nil {
			return nil, fmt.Errorf("gps replay load: %w", err)
		}
		rt.log.Info().Str("path", cfg.Replay.Path).Int("chunks", len(recs)).Float64("speed", cfg.Replay.Speed).Msg("replaying gps capture")
		p, err := replay.NewPlayer(recs, cfg.Replay.Speed, cfg.Replay.Loop, clk)
		if err != nil {
			return nil, err
		}
		return p, nil
	case "tcp":
		rt.log.Info().Str("addr", cfg.Address).Msg("using network gps feed")
		return dialTCPFn(ctx, gps.TCPConfig{Addr: cfg.Address, ReconnectDelay: cfg.ReconnectDelay})
	default:
		port, err := openSerialFn(cfg.Device, cfg.Baud)
		if err != nil {
			return nil, err
		}
		rt.log.Info().Str("device", cfg.Device).Int("baud", cfg.Baud).Msg("gps receiver opened")
		return port, nil
	}
}

func (rt *runtime) bringUpWiFi(ctx context.Context, cfg config.WiFiConfig) {
	// An uplink that is already up is left alone; reconnecting would drop it.
	up, err := wifiConnectedFn(ctx, cfg.Interface)
	if err != nil {
		rt.log.Warn().Err(err).Msg("wifi status query failed")
	}
	if up {
		rt.log.Info().Str("interface", cfg.Interface).Msg("wifi already connected")
		return
	}
	err = wifiConnectFn(ctx, wifi.Config{
		SSID:       cfg.SSID,
		Passphrase: cfg.Passphrase,
		Interface:  cfg.Interface,
		Timeout:    cfg.Timeout,
	})
	if err == nil {
		rt.log.Info().Str("ssid", cfg.SSID).Msg("wifi connected")
		return
	}
	rt.log.Error().Err(err).Str("ssid", cfg.SSID).Msg("wifi connect failed; starting anyway")
	if err := rt.indicator.ShowStartupFailure(); err != nil {
		rt.log.Warn().Err(err).Msg("indicator write failed")
	}
}

func pattern(p config.PatternConfig) led.Pattern {
	return led.Pattern{Cycles: p.Cycles, On: p.On, Off: p.Off}
}

func (rt *runtime) Close() {
	if rt.output != nil {
		if rt.indicator != nil {
			_ = rt.indicator.ShowIdle()
		}
		_ = rt.output.Close()
	}
	if rt.input != nil {
		_ = rt.input.Close()
	}
	if rt.stream != nil {
		_ = rt.stream.Close()
	}
}
