package config

import (
	"fmt"
	"os"
	"strings"
)

type RelayConfig struct {
	Listen          string       `yaml:"listen"`
	Path            string       `yaml:"path"`
	Recent          int          `yaml:"recent"`
	Notifier        string       `yaml:"notifier"`
	Twilio          TwilioConfig `yaml:"twilio"`
	Recipients      []string     `yaml:"recipients"`
	EmergencyNumber string       `yaml:"emergency_number"`
	Ingest          IngestConfig `yaml:"ingest"`
	Log             LogConfig    `yaml:"log"`
}

type TwilioConfig struct {
	AccountSID string `yaml:"account_sid"`
	AuthToken  string `yaml:"auth_token"`
	From       string `yaml:"from"`
	// BaseURL defaults to the public API; tests point it at a local server.
	BaseURL string `yaml:"base_url"`
}

type IngestConfig struct {
	MQTT IngestMQTTConfig `yaml:"mqtt"`
	NATS IngestNATSConfig `yaml:"nats"`
}

type IngestMQTTConfig struct {
	Enable   bool   `yaml:"enable"`
	Broker   string `yaml:"broker"`
	Topic    string `yaml:"topic"`
	ClientID string `yaml:"client_id"`
}

type IngestNATSConfig struct {
	Enable  bool   `yaml:"enable"`
	URL     string `yaml:"url"`
	Subject string `yaml:"subject"`
}

// Secrets may come from the environment instead of the file.
var lookupEnvFn = os.LookupEnv

func LoadRelay(path string) (RelayConfig, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return RelayConfig{}, err
	}

	var cfg RelayConfig
	if err := decodeStrict(b, &cfg); err != nil {
		return RelayConfig{}, err
	}

	if v, ok := lookupEnvFn("TWILIO_SID"); ok && v != "" {
		cfg.Twilio.AccountSID = v
	}
	if v, ok := lookupEnvFn("TWILIO_TOKEN"); ok && v != "" {
		cfg.Twilio.AuthToken = v
	}
	if v, ok := lookupEnvFn("TWILIO_FROM"); ok && v != "" {
		cfg.Twilio.From = v
	}

	if cfg.Listen == "" {
		cfg.Listen = ":5000"
	}
	if cfg.Path == "" {
		cfg.Path = "/sos"
	}
	if !strings.HasPrefix(cfg.Path, "/") {
		return RelayConfig{}, fmt.Errorf("path must start with '/'")
	}
	if cfg.Recent <= 0 {
		cfg.Recent = 50
	}

	cfg.Notifier = strings.ToLower(strings.TrimSpace(cfg.Notifier))
	switch cfg.Notifier {
	case "", "twilio":
		cfg.Notifier = "twilio"
		if cfg.Twilio.AccountSID == "" || cfg.Twilio.AuthToken == "" || cfg.Twilio.From == "" {
			return RelayConfig{}, fmt.Errorf("twilio.account_sid, twilio.auth_token and twilio.from are required when notifier is 'twilio'")
		}
		if cfg.Twilio.BaseURL == "" {
			cfg.Twilio.BaseURL = "https://api.twilio.com"
		}
	case "log":
	default:
		return RelayConfig{}, fmt.Errorf("notifier must be 'twilio' or 'log'")
	}

	recips := cfg.Recipients[:0]
	for _, r := range cfg.Recipients {
		if r = strings.TrimSpace(r); r != "" {
			recips = append(recips, r)
		}
	}
	cfg.Recipients = recips
	cfg.EmergencyNumber = strings.TrimSpace(cfg.EmergencyNumber)
	if len(cfg.Recipients) == 0 && cfg.EmergencyNumber == "" {
		return RelayConfig{}, fmt.Errorf("recipients or emergency_number is required")
	}

	if m := &cfg.Ingest.MQTT; m.Enable {
		if m.Broker == "" {
			return RelayConfig{}, fmt.Errorf("ingest.mqtt.broker is required when ingest.mqtt.enable is true")
		}
		if m.Topic == "" {
			m.Topic = "sos/alerts"
		}
		if m.ClientID == "" {
			m.ClientID = "sos-relay"
		}
	}
	if n := &cfg.Ingest.NATS; n.Enable {
		if n.URL == "" {
			return RelayConfig{}, fmt.Errorf("ingest.nats.url is required when ingest.nats.enable is true")
		}
		if n.Subject == "" {
			n.Subject = "sos.alerts"
		}
	}

	if err := validateLog(cfg.Log); err != nil {
		return RelayConfig{}, err
	}
	return cfg, nil
}
