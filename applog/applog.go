// Package applog is the logging seam shared by queue, registry, worker,
// and httpapi. It mirrors core.Logger so the teacher's hooks.SlogLogger
// backs every subsystem without a new adapter type per package.
package applog

import (
	"log/slog"
	"os"

	"github.com/Skryldev/imageflow/core"
	"github.com/Skryldev/imageflow/hooks"
)

// Logger is the dependency every subsystem takes instead of reaching for a
// package-global logger.
type Logger = core.Logger

// New builds a JSON-structured slog.Logger and wraps it as a Logger, the
// same construction jorgemgr94's cmd/advanced/main.go uses for its worker
// pool demo.
func New(level slog.Level) Logger {
	h := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	l := slog.New(h)
	slog.SetDefault(l)
	return hooks.NewSlogLogger(l)
}

// NewFromEnv resolves a level from a "debug"/"info"/"warn"/"error" string,
// defaulting to info on anything else.
func NewFromEnv(levelName string) Logger {
	switch levelName {
	case "debug":
		return New(slog.LevelDebug)
	case "warn":
		return New(slog.LevelWarn)
	case "error":
		return New(slog.LevelError)
	default:
		return New(slog.LevelInfo)
	}
}
