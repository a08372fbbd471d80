package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Device DeviceConfig `yaml:"device"`
	Button ButtonConfig `yaml:"button"`
	LED    LEDConfig    `yaml:"led"`
	GPS    GPSConfig    `yaml:"gps"`
	Alert  AlertConfig  `yaml:"alert"`
	WiFi   WiFiConfig   `yaml:"wifi"`
	Log    LogConfig    `yaml:"log"`
}

type DeviceConfig struct {
	// ID overrides the hardware-derived identifier.
	ID string `yaml:"id"`
}

type ButtonConfig struct {
	Backend      string        `yaml:"backend"`
	Pin          int           `yaml:"pin"`
	ActiveLow    bool          `yaml:"active_low"`
	PullUp       bool          `yaml:"pull_up"`
	Debounce     time.Duration `yaml:"debounce"`
	PollInterval time.Duration `yaml:"poll_interval"`
}

type PatternConfig struct {
	Cycles int           `yaml:"cycles"`
	On     time.Duration `yaml:"on"`
	Off    time.Duration `yaml:"off"`
}

type LEDConfig struct {
	Backend        string        `yaml:"backend"`
	Pin            int           `yaml:"pin"`
	ActiveHigh     bool          `yaml:"active_high"`
	Success        PatternConfig `yaml:"success"`
	Failure        PatternConfig `yaml:"failure"`
	StartupFailure PatternConfig `yaml:"startup_failure"`
}

type GPSConfig struct {
	// Source is "serial" (default), "tcp", "replay", or "sim".
	Source         string        `yaml:"source"`
	Device         string        `yaml:"device"`
	Baud           int           `yaml:"baud"`
	Address        string        `yaml:"address"`
	ReconnectDelay time.Duration `yaml:"reconnect_delay"`
	AcquireTimeout time.Duration `yaml:"acquire_timeout"`
	PollInterval   time.Duration `yaml:"poll_interval"`
	MaxLineBytes   int           `yaml:"max_line_bytes"`
	Sim            GPSSimConfig  `yaml:"sim"`
	Record         RecordConfig  `yaml:"record"`
	Replay         ReplayConfig  `yaml:"replay"`
}

type RecordConfig struct {
	Enable bool   `yaml:"enable"`
	Path   string `yaml:"path"`
}

type ReplayConfig struct {
	Path  string  `yaml:"path"`
	Speed float64 `yaml:"speed"`
	Loop  bool    `yaml:"loop"`
}

type GPSSimConfig struct {
	CenterLatDeg float64       `yaml:"center_lat_deg"`
	CenterLonDeg float64       `yaml:"center_lon_deg"`
	RadiusNm     float64       `yaml:"radius_nm"`
	Period       time.Duration `yaml:"period"`
	Interval     time.Duration `yaml:"interval"`
}

type AlertConfig struct {
	// Transport is "http" (default), "mqtt", or "nats".
	Transport string          `yaml:"transport"`
	URL       string          `yaml:"url"`
	Timeout   time.Duration   `yaml:"timeout"`
	MQTT      AlertMQTTConfig `yaml:"mqtt"`
	NATS      AlertNATSConfig `yaml:"nats"`
}

type AlertMQTTConfig struct {
	Broker   string `yaml:"broker"`
	Topic    string `yaml:"topic"`
	ClientID string `yaml:"client_id"`
	QoS      int    `yaml:"qos"`
}

type AlertNATSConfig struct {
	URL     string `yaml:"url"`
	Subject string `yaml:"subject"`
}

type WiFiConfig struct {
	Enable     bool          `yaml:"enable"`
	SSID       string        `yaml:"ssid"`
	Passphrase string        `yaml:"passphrase"`
	Interface  string        `yaml:"interface"`
	Timeout    time.Duration `yaml:"timeout"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Defaults returns the configuration used for keys absent from the file.
func Defaults() Config {
	return Config{
		Button: ButtonConfig{
			Backend:      "gpiocdev",
			Pin:          14,
			ActiveLow:    true,
			PullUp:       true,
			Debounce:     300 * time.Millisecond,
			PollInterval: 50 * time.Millisecond,
		},
		LED: LEDConfig{
			Backend:        "gpiocdev",
			Pin:            2,
			ActiveHigh:     true,
			Success:        PatternConfig{Cycles: 3, On: 120 * time.Millisecond, Off: 120 * time.Millisecond},
			Failure:        PatternConfig{Cycles: 4, On: 500 * time.Millisecond, Off: 500 * time.Millisecond},
			StartupFailure: PatternConfig{Cycles: 3, On: 400 * time.Millisecond, Off: 400 * time.Millisecond},
		},
		GPS: GPSConfig{
			Source:         "serial",
			Baud:           9600,
			AcquireTimeout: 5 * time.Second,
			PollInterval:   20 * time.Millisecond,
			MaxLineBytes:   4096,
		},
		Alert: AlertConfig{
			Transport: "http",
			Timeout:   10 * time.Second,
			MQTT:      AlertMQTTConfig{QoS: 1},
		},
		WiFi: WiFiConfig{
			Interface: "wlan0",
			Timeout:   15 * time.Second,
		},
	}
}

var hexID = regexp.MustCompile(`^[0-9a-f]+$`)

func Load(path string) (Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}

	cfg := Defaults()
	if err := decodeStrict(b, &cfg); err != nil {
		return Config{}, err
	}

	if cfg.Device.ID != "" && !hexID.MatchString(cfg.Device.ID) {
		return Config{}, fmt.Errorf("device.id must be lowercase hexadecimal")
	}

	// Button.
	if err := validateBackend("button", &cfg.Button.Backend); err != nil {
		return Config{}, err
	}
	if cfg.Button.Pin < 0 {
		return Config{}, fmt.Errorf("button.pin must be >= 0")
	}
	if cfg.Button.Debounce <= 0 {
		cfg.Button.Debounce = 300 * time.Millisecond
	}
	if cfg.Button.PollInterval <= 0 {
		cfg.Button.PollInterval = 50 * time.Millisecond
	}

	// LED.
	if err := validateBackend("led", &cfg.LED.Backend); err != nil {
		return Config{}, err
	}
	if cfg.LED.Pin < 0 {
		return Config{}, fmt.Errorf("led.pin must be >= 0")
	}
	if cfg.LED.Pin == cfg.Button.Pin {
		return Config{}, fmt.Errorf("led.pin must differ from button.pin")
	}

	// GPS.
	cfg.GPS.Source = strings.ToLower(strings.TrimSpace(cfg.GPS.Source))
	switch cfg.GPS.Source {
	case "":
		cfg.GPS.Source = "serial"
	case "serial", "sim":
	case "tcp":
		if cfg.GPS.Address == "" {
			return Config{}, fmt.Errorf("gps.address is required when gps.source is 'tcp'")
		}
	case "replay":
		if cfg.GPS.Replay.Path == "" {
			return Config{}, fmt.Errorf("gps.replay.path is required when gps.source is 'replay'")
		}
		if cfg.GPS.Replay.Speed == 0 {
			cfg.GPS.Replay.Speed = 1
		}
		if cfg.GPS.Replay.Speed < 0 {
			return Config{}, fmt.Errorf("gps.replay.speed must be > 0")
		}
	default:
		return Config{}, fmt.Errorf("gps.source must be 'serial', 'tcp', 'replay', or 'sim'")
	}
	if cfg.GPS.Record.Enable {
		if cfg.GPS.Source == "replay" || cfg.GPS.Source == "sim" {
			return Config{}, fmt.Errorf("gps.record cannot be used with gps.source=%s", cfg.GPS.Source)
		}
		if cfg.GPS.Record.Path == "" {
			return Config{}, fmt.Errorf("gps.record.path is required when gps.record.enable is true")
		}
	}
	if cfg.GPS.ReconnectDelay <= 0 {
		cfg.GPS.ReconnectDelay = 1 * time.Second
	}
	if cfg.GPS.Baud <= 0 {
		cfg.GPS.Baud = 9600
	}
	if cfg.GPS.AcquireTimeout <= 0 {
		return Config{}, fmt.Errorf("gps.acquire_timeout must be > 0")
	}
	if cfg.GPS.PollInterval <= 0 {
		cfg.GPS.PollInterval = 20 * time.Millisecond
	}
	if cfg.GPS.PollInterval > cfg.GPS.AcquireTimeout {
		return Config{}, fmt.Errorf("gps.poll_interval must not exceed gps.acquire_timeout")
	}
	if cfg.GPS.MaxLineBytes <= 0 {
		cfg.GPS.MaxLineBytes = 4096
	}
	if cfg.GPS.MaxLineBytes < 128 {
		return Config{}, fmt.Errorf("gps.max_line_bytes must be >= 128")
	}
	// Simulator defaults (safe even if source is serial).
	if cfg.GPS.Sim.Period <= 0 {
		cfg.GPS.Sim.Period = 120 * time.Second
	}
	if cfg.GPS.Sim.RadiusNm <= 0 {
		cfg.GPS.Sim.RadiusNm = 0.5
	}
	if cfg.GPS.Sim.Interval <= 0 {
		cfg.GPS.Sim.Interval = 1 * time.Second
	}
	if cfg.GPS.Sim.CenterLatDeg < -90 || cfg.GPS.Sim.CenterLatDeg > 90 {
		return Config{}, fmt.Errorf("gps.sim.center_lat_deg must be within [-90, 90]")
	}
	if cfg.GPS.Sim.CenterLonDeg < -180 || cfg.GPS.Sim.CenterLonDeg > 180 {
		return Config{}, fmt.Errorf("gps.sim.center_lon_deg must be within [-180, 180]")
	}

	// Alert.
	if cfg.Alert.Timeout <= 0 {
		return Config{}, fmt.Errorf("alert.timeout must be > 0")
	}
	cfg.Alert.Transport = strings.ToLower(strings.TrimSpace(cfg.Alert.Transport))
	switch cfg.Alert.Transport {
	case "", "http":
		cfg.Alert.Transport = "http"
		if cfg.Alert.URL == "" {
			return Config{}, fmt.Errorf("alert.url is required")
		}
		if !strings.HasPrefix(cfg.Alert.URL, "http://") && !strings.HasPrefix(cfg.Alert.URL, "https://") {
			return Config{}, fmt.Errorf("alert.url must start with http:// or https://")
		}
	case "mqtt":
		if cfg.Alert.MQTT.Broker == "" {
			return Config{}, fmt.Errorf("alert.mqtt.broker is required when alert.transport is 'mqtt'")
		}
		if cfg.Alert.MQTT.Topic == "" {
			cfg.Alert.MQTT.Topic = "sos/alerts"
		}
		if cfg.Alert.MQTT.ClientID == "" {
			cfg.Alert.MQTT.ClientID = "sos-beacon"
		}
		if cfg.Alert.MQTT.QoS < 0 || cfg.Alert.MQTT.QoS > 2 {
			return Config{}, fmt.Errorf("alert.mqtt.qos must be 0, 1, or 2")
		}
	case "nats":
		if cfg.Alert.NATS.URL == "" {
			return Config{}, fmt.Errorf("alert.nats.url is required when alert.transport is 'nats'")
		}
		if cfg.Alert.NATS.Subject == "" {
			cfg.Alert.NATS.Subject = "sos.alerts"
		}
	default:
		return Config{}, fmt.Errorf("alert.transport must be 'http', 'mqtt', or 'nats'")
	}

	// WiFi.
	if cfg.WiFi.Enable && strings.TrimSpace(cfg.WiFi.SSID) == "" {
		return Config{}, fmt.Errorf("wifi.ssid is required when wifi.enable is true")
	}
	if strings.ContainsAny(cfg.WiFi.Passphrase, "\r\n\t\x00") {
		return Config{}, fmt.Errorf("wifi.passphrase must not contain control characters")
	}
	if cfg.WiFi.Interface == "" {
		cfg.WiFi.Interface = "wlan0"
	}
	if cfg.WiFi.Timeout <= 0 {
		cfg.WiFi.Timeout = 15 * time.Second
	}

	if err := validateLog(cfg.Log); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func validateBackend(section string, backend *string) error {
	v := strings.ToLower(strings.TrimSpace(*backend))
	switch v {
	case "":
		v = "gpiocdev"
	case "gpiocdev", "periph":
	default:
		return fmt.Errorf("%s.backend must be 'gpiocdev' or 'periph'", section)
	}
	*backend = v
	return nil
}

func validateLog(l LogConfig) error {
	switch strings.ToLower(strings.TrimSpace(l.Format)) {
	case "", "console", "json":
	default:
		return fmt.Errorf("log.format must be 'json' or 'console'")
	}
	return nil
}

var lineRef = regexp.MustCompile(`^line \d+: `)

// decodeStrict unmarshals b into out and rejects keys that do not map to a
// struct field.
func decodeStrict(b []byte, out any) error {
	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	err := dec.Decode(out)
	if err == nil || errors.Is(err, io.EOF) {
		return nil
	}
	var te *yaml.TypeError
	if errors.As(err, &te) {
		unknown := make([]string, 0, len(te.Errors))
		for _, e := range te.Errors {
			if strings.Contains(e, "not found in type") {
				unknown = append(unknown, lineRef.ReplaceAllString(e, ""))
			}
		}
		if len(unknown) == len(te.Errors) {
			return fmt.Errorf("config contains unknown fields: %s", strings.Join(unknown, "; "))
		}
	}
	return err
}
