package utils

import (
	"context"
	"time"
)

const (
	// DefaultTimeout bounds single-document store operations
	DefaultTimeout = 10 * time.Second

	// LongTimeout is for log scans behind exports
	LongTimeout = 30 * time.Second
)

// WithTimeout creates a context with default timeout
func WithTimeout(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, DefaultTimeout)
}

// WithLongTimeout creates a context with long timeout for operations that may take longer
func WithLongTimeout(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, LongTimeout)
}
