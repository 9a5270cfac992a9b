// Package logging provides structured logging for skyshard.
//
// It wraps log/slog so every component logs through the same handler
// with a consistent attribute vocabulary. Components obtain their own
// logger via Component:
//
//	log := logging.Component("datastore")
//	log.Info("reload complete", "catalogs", n)
package logging

import (
	"log/slog"
	"os"
)

// Logger is the process-wide logger instance.
var Logger *slog.Logger

// Init initializes the global logger with the specified level and format.
// If jsonFormat is true, logs are emitted as JSON; otherwise as text.
func Init(level slog.Level, jsonFormat bool) {
	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: level == slog.LevelDebug,
	}

	var handler slog.Handler
	if jsonFormat {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}

	Logger = slog.New(handler)
	slog.SetDefault(Logger)
}

// InitWithHandler installs a custom handler. Used by tests to capture
// log output.
func InitWithHandler(handler slog.Handler) {
	Logger = slog.New(handler)
	slog.SetDefault(Logger)
}

// Component returns a logger for a named component. The component name
// is attached to every entry.
func Component(name string) *slog.Logger {
	if Logger == nil {
		Init(slog.LevelInfo, false)
	}
	return Logger.With("component", name)
}

// Catalog returns a component logger scoped to one catalog namespace.
func Catalog(component, namespace string) *slog.Logger {
	return Component(component).With("catalog", namespace)
}
