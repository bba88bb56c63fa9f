// Package logging configures the process-wide debug logger. Regular user
// output goes through internal/ux; this logger carries diagnostic events
// (subprocess launches, loop transitions) on stderr.
package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

var root zerolog.Logger = zerolog.New(io.Discard)

// Config controls logger construction.
type Config struct {
	Level  string // "debug", "info", "warn", "error"; empty disables output
	Format string // "console" (default) or "json"
}

// Init builds the root logger. Called once from main before any Component
// loggers are created.
func Init(cfg Config) {
	if cfg.Level == "" {
		root = zerolog.New(io.Discard)
		return
	}

	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil {
		level = zerolog.InfoLevel
	}

	var out io.Writer = os.Stderr
	if cfg.Format != "json" {
		out = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}
	}

	root = zerolog.New(out).Level(level).With().Timestamp().Logger()
}

// Component returns a logger tagged with a component name.
func Component(name string) zerolog.Logger {
	return root.With().Str("component", name).Logger()
}
