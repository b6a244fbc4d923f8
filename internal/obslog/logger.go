// Package obslog builds the bridge's structured logger, the same shape the
// teacher's internal/shared/monitoring package builds for ws_poc: a
// zerolog.Logger with a fixed set of base fields, JSON by default and a
// console writer for local/pretty output.
package obslog

import (
	"io"
	"os"
	"runtime/debug"
	"time"

	"github.com/rs/zerolog"
)

// Config selects the logger's minimum level and output format.
type Config struct {
	// Level is one of "debug", "info", "warn", "error" (lower case; anything
	// else is treated as info).
	Level string
	// Format is "json", "text", or "pretty". Anything else is treated as json.
	Format string
}

// New builds a zerolog.Logger tagged with service="bridged", timestamped,
// and filtered to cfg.Level.
func New(cfg Config) zerolog.Logger {
	var output io.Writer = os.Stdout
	if cfg.Format == "text" || cfg.Format == "pretty" {
		output = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	}

	zerolog.SetGlobalLevel(ParseLevel(cfg.Level))

	return zerolog.New(output).With().Timestamp().Str("service", "bridged").Logger()
}

// ParseLevel maps a configuration level string to a zerolog.Level, defaulting
// to InfoLevel for unrecognized values.
func ParseLevel(level string) zerolog.Level {
	switch level {
	case "debug":
		return zerolog.DebugLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// RecoverPanic is a deferred helper for goroutine bodies: it logs a
// recovered panic with its stack trace at Error level rather than letting
// it crash the process, mirroring the teacher's monitoring.RecoverPanic.
func RecoverPanic(logger zerolog.Logger, goroutine string) {
	if r := recover(); r != nil {
		logger.Error().
			Str("goroutine", goroutine).
			Interface("panic", r).
			Str("stack", string(debug.Stack())).
			Msg("goroutine panic recovered")
	}
}
