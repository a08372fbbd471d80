package relay

import (
	"context"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"sos-beacon/internal/logging"
)

// Ingest feeds payloads arriving over message brokers into the same
// dispatch pipeline as the HTTP route.
type Ingest struct {
	svc *Service
	dec *Decoder
	log zerolog.Logger

	mqttClient mqtt.Client
	natsConn   *nats.Conn
}

func NewIngest(svc *Service) *Ingest {
	return &Ingest{svc: svc, dec: NewDecoder(), log: logging.Module("ingest")}
}

// handle decodes one broker message and dispatches it. Invalid messages
// are logged and dropped since there is nobody to answer.
func (in *Ingest) handle(ctx context.Context, source string, body []byte) (Alert, bool) {
	p, err := in.dec.Decode(body)
	if err != nil {
		in.log.Warn().Err(err).Str("source", source).Int("bytes", len(body)).Msg("dropping invalid alert")
		return Alert{}, false
	}
	return in.svc.Dispatch(ctx, source, p), true
}

type MQTTIngestConfig struct {
	Broker   string
	Topic    string
	ClientID string
}

func (in *Ingest) StartMQTT(ctx context.Context, cfg MQTTIngestConfig) error {
	opts := mqtt.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetAutoReconnect(true).
		SetConnectTimeout(10 * time.Second)
	client := mqtt.NewClient(opts)
	if tok := client.Connect(); !tok.WaitTimeout(15*time.Second) || tok.Error() != nil {
		return fmt.Errorf("mqtt connect %s: %v", cfg.Broker, tok.Error())
	}
	tok := client.Subscribe(cfg.Topic, 1, func(_ mqtt.Client, msg mqtt.Message) {
		in.handle(ctx, "mqtt", msg.Payload())
	})
	if !tok.WaitTimeout(10*time.Second) || tok.Error() != nil {
		client.Disconnect(250)
		return fmt.Errorf("mqtt subscribe %s: %v", cfg.Topic, tok.Error())
	}
	in.mqttClient = client
	in.log.Info().Str("broker", cfg.Broker).Str("topic", cfg.Topic).Msg("mqtt ingest started")
	return nil
}

type NATSIngestConfig struct {
	URL     string
	Subject string
}

func (in *Ingest) StartNATS(ctx context.Context, cfg NATSIngestConfig) error {
	nc, err := nats.Connect(cfg.URL, nats.Name("sos-relay"), nats.MaxReconnects(-1))
	if err != nil {
		return fmt.Errorf("nats connect %s: %w", cfg.URL, err)
	}
	if _, err := nc.Subscribe(cfg.Subject, func(msg *nats.Msg) {
		in.handle(ctx, "nats", msg.Data)
	}); err != nil {
		nc.Close()
		return fmt.Errorf("nats subscribe %s: %w", cfg.Subject, err)
	}
	in.natsConn = nc
	in.log.Info().Str("url", cfg.URL).Str("subject", cfg.Subject).Msg("nats ingest started")
	return nil
}

func (in *Ingest) Close() {
	if in.mqttClient != nil {
		in.mqttClient.Disconnect(250)
		in.mqttClient = nil
	}
	if in.natsConn != nil {
		in.natsConn.Close()
		in.natsConn = nil
	}
}
