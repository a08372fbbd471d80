// Package logging configures the process-wide zerolog logger.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type Config struct {
	// Level is a zerolog level name; empty means info.
	Level string
	// Format is "json" or "console"; empty means console.
	Format string
}

// Setup installs the global logger. It is called once from main.
func Setup(cfg Config) error {
	return setup(cfg, os.Stderr)
}

func setup(cfg Config, out io.Writer) error {
	lvl := zerolog.InfoLevel
	if s := strings.TrimSpace(cfg.Level); s != "" {
		parsed, err := zerolog.ParseLevel(strings.ToLower(s))
		if err != nil {
			return fmt.Errorf("log.level: %w", err)
		}
		lvl = parsed
	}
	zerolog.SetGlobalLevel(lvl)
	zerolog.TimeFieldFormat = time.RFC3339Nano

	switch strings.ToLower(strings.TrimSpace(cfg.Format)) {
	case "", "console":
		log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}).With().Timestamp().Logger()
	case "json":
		log.Logger = zerolog.New(out).With().Timestamp().Logger()
	default:
		return fmt.Errorf("log.format must be 'json' or 'console'")
	}
	return nil
}

// Module returns a child of the global logger tagged with the module name.
func Module(name string) zerolog.Logger {
	return log.With().Str("module", name).Logger()
}
