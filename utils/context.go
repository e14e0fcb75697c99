package utils

import (
	"context"
	"time"
)

const (
	// DefaultTimeout is the default timeout for most store operations
	DefaultTimeout = 10 * time.Second

	// LongTimeout is for operations that may take longer (persisting a scrape, exports)
	LongTimeout = 30 * time.Second

	// ShortTimeout is for quick operations (cache lookups, health checks)
	ShortTimeout = 2 * time.Second
)

type requestIDKey struct{}

// WithTimeout creates a context with default timeout
func WithTimeout(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, DefaultTimeout)
}

// WithLongTimeout creates a context with long timeout for operations that may take longer
func WithLongTimeout(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, LongTimeout)
}

// WithShortTimeout creates a context with short timeout for quick operations
func WithShortTimeout(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, ShortTimeout)
}

// Detached returns a context that keeps parent's values but is not cancelled
// with it, bounded by duration.
func Detached(parent context.Context, duration time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(parent), duration)
}

// WithRequestID attaches a request ID so that services can log it
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestIDFromContext returns the request ID, or "" if none was attached
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}
