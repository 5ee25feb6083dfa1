// Package context carries request-scoped values between HTTP middleware and
// the operation pipeline.
package context

import (
	"context"

	"github.com/armelgeek/better-query/internal/orm/hooks"
)

// contextKey is a custom type for context keys to avoid collisions
type contextKey int

const (
	requestIDKey contextKey = iota
	userKey
)

// GetRequestID extracts the request ID from the context
func GetRequestID(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey).(string); ok {
		return id
	}
	return ""
}

// SetRequestID adds the request ID to the context
func SetRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// GetUser returns the authenticated user or nil
func GetUser(ctx context.Context) *hooks.User {
	if u, ok := ctx.Value(userKey).(*hooks.User); ok {
		return u
	}
	return nil
}

// SetUser adds the authenticated user to the context
func SetUser(ctx context.Context, user *hooks.User) context.Context {
	return context.WithValue(ctx, userKey, user)
}
