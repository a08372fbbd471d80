package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"

	"sos-beacon/internal/config"
	"sos-beacon/internal/logging"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "./beacon.yaml", "Path to YAML config")
	flag.Parse()

	cfg, err := config.Load(configPath)
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

	log.Info().Str("config", configPath).Msg("sos-beacon starting")

	rt, err := newRuntime(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("startup failed")
	}
	defer rt.Close()

	if err := rt.loop.Run(ctx); err != nil {
		log.Error().Err(err).Msg("control loop stopped")
	}
	log.Info().Msg("sos-beacon stopping")
}
