package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"sos-beacon/internal/config"
	"sos-beacon/internal/logging"
	"sos-beacon/internal/relay"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "./relay.yaml", "Path to YAML config")
	flag.Parse()

	cfg, err := config.LoadRelay(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load failed: %v\n", err)
		os.Exit(1)
	}
	if err := logging.Setup(logging.Config{Level: cfg.Log.Level, Format: cfg.Log.Format}); err != nil {
		fmt.Fprintf(os.Stderr, "logging setup failed: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg); err != nil {
		log.Fatal().Err(err).Msg("sos-relay failed")
	}
	log.Info().Msg("sos-relay stopped")
}

func newService(cfg config.RelayConfig) *relay.Service {
	var n relay.Notifier
	switch cfg.Notifier {
	case "log":
		n = relay.NewLogNotifier()
	default:
		n = relay.NewTwilioNotifier(relay.TwilioConfig{
			AccountSID: cfg.Twilio.AccountSID,
			AuthToken:  cfg.Twilio.AuthToken,
			From:       cfg.Twilio.From,
			BaseURL:    cfg.Twilio.BaseURL,
		})
	}
	return relay.NewService(relay.ServiceConfig{
		Notifier:        n,
		Recipients:      cfg.Recipients,
		EmergencyNumber: cfg.EmergencyNumber,
		Recent:          cfg.Recent,
	})
}

func run(ctx context.Context, cfg config.RelayConfig) error {
	svc := newService(cfg)

	ingest := relay.NewIngest(svc)
	defer ingest.Close()
	if m := cfg.Ingest.MQTT; m.Enable {
		if err := ingest.StartMQTT(ctx, relay.MQTTIngestConfig{Broker: m.Broker, Topic: m.Topic, ClientID: m.ClientID}); err != nil {
			return err
		}
	}
	if n := cfg.Ingest.NATS; n.Enable {
		if err := ingest.StartNATS(ctx, relay.NATSIngestConfig{URL: n.URL, Subject: n.Subject}); err != nil {
			return err
		}
	}

	e := relay.NewServer(relay.NewHandler(svc), cfg.Path)
	s := &http.Server{
		Addr:              cfg.Listen,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().
			Str("listen", cfg.Listen).
			Str("path", cfg.Path).
			Str("notifier", cfg.Notifier).
			Int("recipients", len(cfg.Recipients)).
			Bool("emergency", cfg.EmergencyNumber != "").
			Msg("sos-relay listening")
		if err := e.StartServer(s); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return e.Shutdown(shutdownCtx)
}
