package middleware

import (
	"context"
)

// Context key type to avoid collisions
type contextKey string

const (
	// RequestIDKey is the context key for request ID
	RequestIDKey contextKey = "request_id"

	// CallerIDKey is the context key for the rate-limit caller identity
	CallerIDKey contextKey = "caller_id"
)

// GetRequestIDFromContext retrieves the request ID from context
func GetRequestIDFromContext(ctx context.Context) string {
	if val := ctx.Value(RequestIDKey); val != nil {
		if requestID, ok := val.(string); ok {
			return requestID
		}
	}
	return ""
}

// WithRequestID adds a request ID to the context
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

// GetCallerIDFromContext retrieves the caller identity from context
func GetCallerIDFromContext(ctx context.Context) string {
	if val := ctx.Value(CallerIDKey); val != nil {
		if callerID, ok := val.(string); ok {
			return callerID
		}
	}
	return ""
}

// WithCallerID adds the caller identity to the context
func WithCallerID(ctx context.Context, callerID string) context.Context {
	return context.WithValue(ctx, CallerIDKey, callerID)
}
