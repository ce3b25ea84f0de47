// Package logging wires the recall core to log/slog with level and format
// controlled by the config snapshot, matching the ambient conventions the
// rest of the retrieved pack converges on for library-shaped modules.
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"sync/atomic"
)

var def atomic.Pointer[slog.Logger]

func init() {
	def.Store(New("info", "console", os.Stderr))
}

// New builds a slog.Logger for the given level ("debug"|"info"|"warn"|"error")
// and format ("json"|"console").
func New(level, format string, w io.Writer) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: lvl}
	var h slog.Handler
	if format == "json" {
		h = slog.NewJSONHandler(w, opts)
	} else {
		h = slog.NewTextHandler(w, opts)
	}
	return slog.New(h)
}

// Default returns the process-wide logger. Safe for concurrent use.
func Default() *slog.Logger { return def.Load() }

// SetDefault swaps the process-wide logger, e.g. after a config reload.
func SetDefault(l *slog.Logger) { def.Store(l) }

// With is a convenience wrapper over Default().With.
func With(args ...any) *slog.Logger { return Default().With(args...) }

// ForUser scopes a logger to a user/character pair, used throughout the
// engine facade so every log line carries the tenant that produced it.
func ForUser(ctx context.Context, userID, characterID string) *slog.Logger {
	return Default().With(slog.String("user_id", userID), slog.String("character_id", characterID))
}
