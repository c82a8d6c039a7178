// Package log configures the process-wide slog logger.
package log

import (
	"log/slog"
	"os"
	"strings"
)

// Setup installs the default text handler at the given level. Unknown level
// strings fall back to info.
func Setup(logLevel string) {
	var level slog.Level

	err := level.UnmarshalText([]byte(strings.ToUpper(logLevel)))
	if err != nil {
		level = slog.LevelInfo
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})))
}

// WithModule returns the default logger tagged with a module attribute. Every
// package logs through one of these so lines are filterable by subsystem.
func WithModule(module string) *slog.Logger {
	return slog.With("module", module)
}
