package alert

import (
	"fmt"
	"strings"
	"time"
)

type TransportConfig struct {
	Kind    string
	URL     string
	Timeout time.Duration
	MQTT    MQTTConfig
	NATS    NATSConfig
}

// NewTransport selects the delivery adapter named by cfg.Kind. An empty kind
// means http.
func NewTransport(cfg TransportConfig) (Transport, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Kind)) {
	case "", "http":
		if cfg.URL == "" {
			return nil, fmt.Errorf("alert.url is required")
		}
		return NewHTTPTransport(cfg.URL, cfg.Timeout), nil
	case "mqtt":
		if cfg.MQTT.Broker == "" || cfg.MQTT.Topic == "" {
			return nil, fmt.Errorf("alert.mqtt.broker and alert.mqtt.topic are required")
		}
		return NewMQTTTransport(cfg.MQTT), nil
	case "nats":
		if cfg.NATS.URL == "" || cfg.NATS.Subject == "" {
			return nil, fmt.Errorf("alert.nats.url and alert.nats.subject are required")
		}
		return NewNATSTransport(cfg.NATS), nil
	default:
		return nil, fmt.Errorf("alert.transport must be 'http', 'mqtt', or 'nats'")
	}
}
