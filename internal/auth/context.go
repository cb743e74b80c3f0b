// ABOUTME: Authenticated identity propagated through request handlers
// ABOUTME: Provides WithIdentity/FromContext for passing token claims via context

package auth

import (
	"context"
)

// identityKey is the key type for storing Claims in context.Context.
type identityKey struct{}

// WithIdentity returns a new context with the verified claims attached.
func WithIdentity(ctx context.Context, claims *Claims) context.Context {
	return context.WithValue(ctx, identityKey{}, claims)
}

// FromContext retrieves the claims from the context, returning nil if not present.
func FromContext(ctx context.Context) *Claims {
	claims, ok := ctx.Value(identityKey{}).(*Claims)
	if !ok {
		return nil
	}
	return claims
}

// MustFromContext retrieves the claims from the context, panicking if not present.
func MustFromContext(ctx context.Context) *Claims {
	claims := FromContext(ctx)
	if claims == nil {
		panic("auth: identity not found in context")
	}
	return claims
}
