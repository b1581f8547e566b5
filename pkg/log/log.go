// Package log configures the process-wide slog logger.
package log

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// ParseLevel maps a --log-level value (debug, info, warn, error, any case) to a slog level.
// "warning" is accepted as an alias of warn.
func ParseLevel(name string) (slog.Level, error) {
	normalized := strings.ToLower(strings.TrimSpace(name))

	switch normalized {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", name)
	}
}

// Setup installs a text handler on stderr as the default logger. An unknown level
// falls back to info and is reported through the returned error.
func Setup(levelName string) error {
	return setup(os.Stderr, levelName)
}

func setup(w io.Writer, levelName string) error {
	level, err := ParseLevel(levelName)

	slog.SetDefault(slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{
		Level: level,
	})))

	return err
}

func WithModule(module string) *slog.Logger {
	return slog.With("module", module)
}
