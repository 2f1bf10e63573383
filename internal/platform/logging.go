package platform

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// NewLogger builds a structured zerolog.Logger: JSON in production
// (consumed by whatever log shipper the deployment uses), a
// console writer in development. Callers derive component sub-loggers
// with .With().Str("component", "pipeline").Logger() rather than reaching
// for a package-level global, so every collaborator's logger can be
// swapped for a test-capturing one.
func NewLogger(level, format string) zerolog.Logger {
	var out io.Writer = os.Stdout
	if format == "pretty" {
		out = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	}

	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)

	return zerolog.New(out).With().Timestamp().Str("service", "warden").Logger()
}
