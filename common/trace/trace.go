// Package trace tags a context with a turn ID so that every log line written
// while answering one message can be correlated.
package trace

import (
	"context"
	"strings"

	"github.com/google/uuid"
)

type turnKey struct{}

// NewID returns a fresh turn ID of the form "turn_<32 hex digits>".
func NewID() string {
	return "turn_" + strings.ReplaceAll(uuid.NewString(), "-", "")
}

// WithID returns a child context carrying id.
func WithID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, turnKey{}, id)
}

// FromContext returns the turn ID stored in ctx, or "".
func FromContext(ctx context.Context) string {
	id, _ := ctx.Value(turnKey{}).(string)
	return id
}

// Ensure returns ctx unchanged when it already carries a turn ID and a child
// context with a new one otherwise. The ID in effect is returned as well.
func Ensure(ctx context.Context) (context.Context, string) {
	if id := FromContext(ctx); id != "" {
		return ctx, id
	}
	id := NewID()
	return WithID(ctx, id), id
}
