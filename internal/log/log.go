// Package log configures the process-wide zerolog logger and hands out
// component-scoped child loggers.
package log

import (
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Init configures the global zerolog logger. In development it writes a
// human-readable console stream; in production it writes structured JSON to
// stdout, matching the teacher's dev/prod logging split.
func Init(environment string, level string) {
	zerolog.TimeFieldFormat = time.RFC3339
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)

	if environment == "production" {
		log.Logger = zerolog.New(os.Stdout).With().Timestamp().Logger()
		return
	}
	writer := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.Kitchen}
	log.Logger = zerolog.New(writer).With().Timestamp().Logger()
}

// Component returns a child logger tagged with the given component name, the
// way every subsystem in this codebase derives its own logger at
// construction time rather than logging through the bare global logger.
func Component(name string) zerolog.Logger {
	return log.With().Str("component", name).Logger()
}
