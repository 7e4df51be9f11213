package observability

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

const (
	serviceName = "batch-transcriber"
	attrService = "service"
)

// LogConfig selects the slog handler.
type LogConfig struct {
	Level  string
	JSON   bool
	Output io.Writer
}

// ParseLevel maps debug, info, warn and error onto slog levels. Unknown values yield info.
func ParseLevel(raw string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// NewLogger builds a text or JSON logger with the service attribute pre-attached.
func NewLogger(cfg LogConfig) *slog.Logger {
	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}

	handlerOpts := &slog.HandlerOptions{Level: ParseLevel(cfg.Level)}

	var inner slog.Handler
	if cfg.JSON {
		inner = slog.NewJSONHandler(out, handlerOpts)
	} else {
		inner = slog.NewTextHandler(out, handlerOpts)
	}

	return slog.New(inner.WithAttrs([]slog.Attr{slog.String(attrService, serviceName)}))
}
