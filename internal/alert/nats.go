package alert

import (
	"context"
	"fmt"

	"github.com/nats-io/nats.go"
)

type NATSConfig struct {
	URL     string
	Subject string
}

type NATSTransport struct {
	cfg NATSConfig
}

func NewNATSTransport(cfg NATSConfig) *NATSTransport {
	return &NATSTransport{cfg: cfg}
}

// Deliver publishes and flushes so a dead server is reported instead of the
// message sitting in the client buffer.
func (t *NATSTransport) Deliver(ctx context.Context, payload []byte) error {
	wait := waitBudget(ctx)
	nc, err := nats.Connect(t.cfg.URL,
		nats.Name("sos-beacon"),
		nats.Timeout(wait),
		nats.NoReconnect(),
	)
	if err != nil {
		return fmt.Errorf("nats connect %s: %w", t.cfg.URL, err)
	}
	defer nc.Close()

	if err := nc.Publish(t.cfg.Subject, payload); err != nil {
		return fmt.Errorf("nats publish %s: %w", t.cfg.Subject, err)
	}
	if err := nc.FlushTimeout(waitBudget(ctx)); err != nil {
		return fmt.Errorf("nats flush: %w", err)
	}
	return nil
}
