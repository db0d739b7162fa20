package logger

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Logger wraps a zerolog.Logger pre-stamped with service identity fields.
type Logger struct {
	zerolog.Logger
}

// Config controls log level, output format and the identity fields attached
// to every event.
type Config struct {
	Level       string
	Environment string
	ServiceName string
	Version     string
}

// New builds the service logger. Unknown or empty levels fall back to info.
// Development environments get a human-readable console writer; everything
// else logs JSON to stdout.
func New(cfg Config) *Logger {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}

	var out io.Writer = os.Stdout
	if cfg.Environment == "development" || cfg.Environment == "local" {
		out = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	}

	l := zerolog.New(out).
		Level(level).
		With().
		Timestamp().
		Str("service", cfg.ServiceName).
		Str("version", cfg.Version).
		Str("environment", cfg.Environment).
		Logger()

	return &Logger{Logger: l}
}
