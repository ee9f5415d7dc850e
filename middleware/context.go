package middleware

import (
	"context"

	"github.com/tokenops/capguard/models"
)

// Context key type to avoid collisions
type contextKey string

const (
	// CallerKey is the context key for the authenticated caller identity
	CallerKey contextKey = "caller"

	// RequestIDKey is the context key for request ID
	RequestIDKey contextKey = "request_id"
)

// GetCallerFromContext retrieves the authenticated caller identity from
// context. The second return is false when the request is unauthenticated.
func GetCallerFromContext(ctx context.Context) (models.Identity, bool) {
	if val := ctx.Value(CallerKey); val != nil {
		if caller, ok := val.(models.Identity); ok {
			return caller, true
		}
	}
	return models.Identity{}, false
}

// WithCaller adds the authenticated caller identity to the context
func WithCaller(ctx context.Context, caller models.Identity) context.Context {
	return context.WithValue(ctx, CallerKey, caller)
}

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
