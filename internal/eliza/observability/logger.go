// Package observability configures structured logging for Eliza.
//
// Logs go through log/slog. Setup installs the process-wide logger; every
// handler is wrapped so that configured secrets never reach the output, and
// WithTrace tags a logger with the turn ID carried by a context.
package observability

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/bdobrica/Eliza/common/redact"
	"github.com/bdobrica/Eliza/common/trace"
)

// ParseLevel maps "debug", "info", "warn" and "error" to a slog.Level. The
// empty string is info.
func ParseLevel(level string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", level)
	}
}

// New builds a logger writing to w in "text" or "json" format.
func New(w io.Writer, level, format string, secrets ...string) (*slog.Logger, error) {
	lvl, err := ParseLevel(level)
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: lvl}

	var handler slog.Handler
	switch strings.ToLower(format) {
	case "json":
		handler = slog.NewJSONHandler(w, opts)
	case "", "text":
		handler = slog.NewTextHandler(w, opts)
	default:
		return nil, fmt.Errorf("unknown log format %q", format)
	}
	return slog.New(redact.NewHandler(handler, secrets...)), nil
}

// Setup builds a logger with New and installs it as the slog default.
func Setup(w io.Writer, level, format string, secrets ...string) (*slog.Logger, error) {
	logger, err := New(w, level, format, secrets...)
	if err != nil {
		return nil, err
	}
	slog.SetDefault(logger)
	return logger, nil
}

// WithTrace returns logger tagged with the turn ID in ctx, or logger itself
// when ctx carries none. A nil logger means slog.Default().
func WithTrace(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if logger == nil {
		logger = slog.Default()
	}
	if id := trace.FromContext(ctx); id != "" {
		return logger.With("turn_id", id)
	}
	return logger
}
