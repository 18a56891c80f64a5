// Package correlate carries a correlation id through context so that every
// log line of one pipeline run (or one consumed event) can be tied together.
package correlate

import (
	"context"

	"github.com/google/uuid"
)

type key int

const correlationKey key = 0

// WithID returns a context carrying the given correlation id. An empty id is
// replaced with a freshly generated one.
func WithID(ctx context.Context, id string) context.Context {
	if id == "" {
		id = uuid.New().String()
	}
	return context.WithValue(ctx, correlationKey, id)
}

// NewContext returns a context carrying a freshly generated correlation id.
func NewContext(ctx context.Context) context.Context {
	return WithID(ctx, uuid.New().String())
}

func ID(ctx context.Context) string {
	if id, ok := ctx.Value(correlationKey).(string); ok {
		return id
	}
	return "unknown"
}
