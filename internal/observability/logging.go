package observability

import (
	"os"
	"time"

	"github.com/rs/zerolog"
)

func init() {
	zerolog.TimeFieldFormat = time.RFC3339Nano
	zerolog.DurationFieldUnit = time.Millisecond
}

// NewLogger creates a structured JSON logger writing to stdout, tagged with
// the emitting component. The level comes from PERPTRADE_LOG_LEVEL and
// defaults to info; unknown values fall back to info rather than failing,
// so a typo in the environment never silences the service.
func NewLogger(component string) zerolog.Logger {
	level := zerolog.InfoLevel
	if raw := os.Getenv("PERPTRADE_LOG_LEVEL"); raw != "" {
		if parsed, err := zerolog.ParseLevel(raw); err == nil && parsed != zerolog.NoLevel {
			level = parsed
		}
	}
	return NewLoggerWithLevel(component, level)
}

// NewLoggerWithLevel creates a logger with an explicit level. Tests use this
// to silence components without touching the environment.
func NewLoggerWithLevel(component string, level zerolog.Level) zerolog.Logger {
	return zerolog.New(os.Stdout).
		Level(level).
		With().
		Timestamp().
		Str("component", component).
		Logger()
}
