// Package ctxutil holds the request-scoped values shared by the HTTP server
// and the MCP tools: the caller's token claims and the request id.
//
// Both server and mcp read these, and server imports mcp, so the accessors
// live here rather than in either package.
package ctxutil

import (
	"context"

	"github.com/google/uuid"

	"github.com/lifelonglearners/tortoise/internal/auth"
	"github.com/lifelonglearners/tortoise/internal/model"
)

type contextKey string

const (
	keyClaims    contextKey = "claims"
	keyRequestID contextKey = "request_id"
)

// WithClaims returns a context carrying the caller's claims.
func WithClaims(ctx context.Context, claims *auth.Claims) context.Context {
	return context.WithValue(ctx, keyClaims, claims)
}

// ClaimsFromContext returns the caller's claims, or nil for anonymous requests.
func ClaimsFromContext(ctx context.Context) *auth.Claims {
	if v, ok := ctx.Value(keyClaims).(*auth.Claims); ok {
		return v
	}
	return nil
}

// UserIDFromContext returns the authenticated user's id, or nil.
func UserIDFromContext(ctx context.Context) *uuid.UUID {
	c := ClaimsFromContext(ctx)
	if c == nil {
		return nil
	}
	id := c.UserID
	return &id
}

// CanActFor reports whether the caller may read or change userID's data:
// they are that user or an admin.
func CanActFor(ctx context.Context, userID uuid.UUID) bool {
	c := ClaimsFromContext(ctx)
	if c == nil {
		return false
	}
	return c.UserID == userID || c.Role == model.RoleAdmin
}

// WithRequestID returns a context carrying the request id.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, keyRequestID, id)
}

// RequestIDFromContext returns the request id, or "".
func RequestIDFromContext(ctx context.Context) string {
	v, _ := ctx.Value(keyRequestID).(string)
	return v
}
