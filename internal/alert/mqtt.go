package alert

import (
	"context"
	"errors"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

type MQTTConfig struct {
	Broker   string
	Topic    string
	ClientID string
	QoS      byte
}

// MQTTTransport connects for each delivery and disconnects afterwards, so
// an unreachable broker costs one failed attempt and nothing lingers.
type MQTTTransport struct {
	cfg       MQTTConfig
	newClient func(*mqtt.ClientOptions) mqtt.Client
}

func NewMQTTTransport(cfg MQTTConfig) *MQTTTransport {
	return &MQTTTransport{cfg: cfg, newClient: mqtt.NewClient}
}

func (t *MQTTTransport) Deliver(ctx context.Context, payload []byte) error {
	wait := waitBudget(ctx)
	opts := mqtt.NewClientOptions().
		AddBroker(t.cfg.Broker).
		SetClientID(t.cfg.ClientID).
		SetConnectTimeout(wait).
		SetAutoReconnect(false).
		SetConnectRetry(false)

	client := t.newClient(opts)
	tok := client.Connect()
	if err := waitToken(tok, wait); err != nil {
		return fmt.Errorf("mqtt connect %s: %w", t.cfg.Broker, err)
	}
	defer client.Disconnect(250)

	tok = client.Publish(t.cfg.Topic, t.cfg.QoS, false, payload)
	if err := waitToken(tok, waitBudget(ctx)); err != nil {
		return fmt.Errorf("mqtt publish %s: %w", t.cfg.Topic, err)
	}
	return nil
}

func waitToken(tok mqtt.Token, wait time.Duration) error {
	if !tok.WaitTimeout(wait) {
		return errors.New("timed out")
	}
	return tok.Error()
}

// waitBudget converts the context deadline into a wait duration for APIs
// that do not take a context.
func waitBudget(ctx context.Context) time.Duration {
	dl, ok := ctx.Deadline()
	if !ok {
		return 10 * time.Second
	}
	d := time.Until(dl)
	if d < time.Millisecond {
		d = time.Millisecond
	}
	return d
}
