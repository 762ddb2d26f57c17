// Package redact keeps secrets such as the Matrix access token out of log
// output.
package redact

import (
	"context"
	"log/slog"
	"strings"
)

// Placeholder replaces redacted values.
const Placeholder = "[REDACTED]"

// String replaces every occurrence of each secret in s with Placeholder.
// Secrets shorter than 4 characters are ignored.
func String(s string, secrets ...string) string {
	for _, v := range secrets {
		if len(v) < 4 {
			continue
		}
		s = strings.ReplaceAll(s, v, Placeholder)
	}
	return s
}

// SensitiveKey reports whether an attribute or field name suggests it holds
// a secret.
func SensitiveKey(key string) bool {
	lower := strings.ToLower(key)
	for _, word := range []string{"password", "passwd", "token", "secret", "credential", "apikey"} {
		if strings.Contains(lower, word) {
			return true
		}
	}
	return false
}

// Handler is a slog.Handler that redacts string attributes before passing
// records on: values under sensitive keys are replaced outright and known
// secrets are masked wherever they appear.
type Handler struct {
	next    slog.Handler
	secrets []string
}

// NewHandler wraps next.
func NewHandler(next slog.Handler, secrets ...string) *Handler {
	return &Handler{next: next, secrets: secrets}
}

func (h *Handler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

func (h *Handler) Handle(ctx context.Context, r slog.Record) error {
	out := slog.NewRecord(r.Time, r.Level, String(r.Message, h.secrets...), r.PC)
	r.Attrs(func(a slog.Attr) bool {
		out.AddAttrs(h.attr(a))
		return true
	})
	return h.next.Handle(ctx, out)
}

func (h *Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	clean := make([]slog.Attr, len(attrs))
	for i, a := range attrs {
		clean[i] = h.attr(a)
	}
	return &Handler{next: h.next.WithAttrs(clean), secrets: h.secrets}
}

func (h *Handler) WithGroup(name string) slog.Handler {
	return &Handler{next: h.next.WithGroup(name), secrets: h.secrets}
}

func (h *Handler) attr(a slog.Attr) slog.Attr {
	v := a.Value.Resolve()
	switch v.Kind() {
	case slog.KindGroup:
		group := v.Group()
		clean := make([]any, len(group))
		for i, g := range group {
			clean[i] = h.attr(g)
		}
		return slog.Group(a.Key, clean...)
	case slog.KindString:
		if SensitiveKey(a.Key) && v.String() != "" {
			return slog.String(a.Key, Placeholder)
		}
		return slog.String(a.Key, String(v.String(), h.secrets...))
	default:
		return slog.Attr{Key: a.Key, Value: v}
	}
}
