package handlers

import "context"

type contextKey string

const (
	identityKey  contextKey = "identity"
	requestIDKey contextKey = "request_id"
)

// Identity is the authenticated caller. Anonymous is set when auth is disabled.
type Identity struct {
	UserID    string
	Role      string
	Admin     bool
	Anonymous bool
}

// CanAccessUser reports whether the caller may read or spend userID's quota.
func (id Identity) CanAccessUser(userID string) bool {
	return id.Anonymous || id.Admin || id.UserID == userID
}

// WithIdentity stores id in ctx.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

// GetIdentity returns the caller identity, or an anonymous one.
func GetIdentity(ctx context.Context) Identity {
	if v, ok := ctx.Value(identityKey).(Identity); ok {
		return v
	}
	return Identity{Anonymous: true}
}

// GetRequestID returns the request id assigned by the request id middleware.
func GetRequestID(ctx context.Context) string {
	if v, ok := ctx.Value(requestIDKey).(string); ok {
		return v
	}
	return ""
}
