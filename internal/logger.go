package internal

import (
	"io"
	"log/slog"
)

// NewLogger builds the process-wide slog logger. Development gets the
// text handler for readable terminal output; every other environment
// logs JSON for the aggregator.
func NewLogger(w io.Writer, env string, level string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(level)}

	var handler slog.Handler
	if env == "development" {
		handler = slog.NewTextHandler(w, opts)
	} else {
		handler = slog.NewJSONHandler(w, opts)
	}
	return slog.New(handler)
}

// parseLevel maps the configured level name, defaulting to info so a
// typo in LOG_LEVEL never silences the service.
func parseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
