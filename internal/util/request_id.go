package util

import (
	"context"
	"log/slog"
	"strings"
)

type requestIDContextKey string

const (
	// RequestIDHeader carries the request id to the backend.
	RequestIDHeader = "X-Request-Id"
	requestIDCtxKey = requestIDContextKey("request_id")
)

// WithRequestID returns a context carrying a request id and a child logger
// tagged with it. An id already present in ctx is kept.
func WithRequestID(ctx context.Context, base *slog.Logger) (context.Context, string) {
	if id := RequestIDFromContext(ctx); id != "" {
		return ctx, id
	}
	id := NewID()
	ctx = context.WithValue(ctx, requestIDCtxKey, id)
	ctx = ContextWithLogger(ctx, LoggerFromContext(ctx, base).With("request_id", id))
	return ctx, id
}

// ContextWithRequestID stores a caller-chosen request id.
func ContextWithRequestID(ctx context.Context, id string) context.Context {
	id = strings.TrimSpace(id)
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDCtxKey, id)
}

// RequestIDFromContext returns request id from context.
func RequestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(requestIDCtxKey).(string)
	return id
}
