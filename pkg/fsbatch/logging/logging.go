// Package logging builds the zerolog loggers used by the engine and the CLI.
package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// New creates a logger writing human-readable lines to w at level.
func New(w io.Writer, level zerolog.Level) zerolog.Logger {
	output := zerolog.ConsoleWriter{
		Out:        w,
		TimeFormat: time.RFC3339,
		NoColor:    true,
	}
	return zerolog.New(output).
		Level(level).
		With().
		Timestamp().
		Str("lib", "fsbatch").
		Logger()
}

// LevelForVerbosity maps a -v count to a level: 0 warn, 1 info, 2 debug,
// anything above trace.
func LevelForVerbosity(verbose int) zerolog.Level {
	switch verbose {
	case 0:
		return zerolog.WarnLevel
	case 1:
		return zerolog.InfoLevel
	case 2:
		return zerolog.DebugLevel
	default:
		return zerolog.TraceLevel
	}
}

// NewTest creates a logger for tests with a specified verbosity.
func NewTest(w io.Writer, verbose int) zerolog.Logger {
	return New(w, LevelForVerbosity(verbose))
}

// LevelFromString parses a string to a zerolog.Level.
func LevelFromString(levelStr string) (zerolog.Level, error) {
	return zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(levelStr)))
}

// Default returns a warn-level logger on stderr.
func Default() zerolog.Logger {
	return New(os.Stderr, zerolog.WarnLevel)
}
