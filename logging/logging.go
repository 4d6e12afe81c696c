// Package logging builds the structured logger shared by both services.
package logging

import (
	"log/slog"
	"os"
	"strings"
)

// Options configures logging behavior.
type Options struct {
	Level   string
	Format  string
	Service string
}

// NewLogger builds a slog.Logger with sane defaults. The service name is
// attached to every record so interleaved logs from both services stay
// attributable.
func NewLogger(options Options) *slog.Logger {
	level := slog.LevelInfo
	switch strings.ToLower(options.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	handlerOptions := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if strings.ToLower(options.Format) == "json" {
		handler = slog.NewJSONHandler(os.Stdout, handlerOptions)
	} else {
		handler = slog.NewTextHandler(os.Stdout, handlerOptions)
	}

	logger := slog.New(handler)
	if options.Service != "" {
		logger = logger.With("service", options.Service)
	}
	return logger
}
