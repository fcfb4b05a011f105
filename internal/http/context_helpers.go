package httpx

import (
	"context"

	domainauth "github.com/target/tokengate/internal/domain/auth"
)

// identityKey is an unexported context key type to avoid collisions across packages.
// Centralized in this file so all handlers/middleware use the same key.
type identityKey struct{}

// requestIDKey carries the per-request correlation id.
type requestIDKey struct{}

// WithIdentity returns a child context that carries the given identity.
// If identity is nil, the original ctx is returned unchanged.
func WithIdentity(ctx context.Context, identity *domainauth.Identity) context.Context {
	if identity == nil {
		return ctx
	}
	return context.WithValue(ctx, identityKey{}, identity)
}

// IdentityFromContext returns the authenticated identity and a boolean indicating presence.
func IdentityFromContext(ctx context.Context) (*domainauth.Identity, bool) {
	if identity, ok := ctx.Value(identityKey{}).(*domainauth.Identity); ok && identity != nil {
		return identity, true
	}
	return nil, false
}

// WithRequestID returns a child context carrying id.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestIDFromContext returns the request id, or "" when none was set.
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}
