// ABOUTME: Authenticated identity for tracking the caller through request handlers
// ABOUTME: Provides WithIdentity/FromContext for propagating auth info via context

package auth

import (
	"context"
)

// Method identifies how the caller authenticated.
type Method string

const (
	// MethodJWT means an ordinary-session bearer JWT.
	MethodJWT Method = "jwt"
	// MethodIdentityToken means the opaque token issued by /login-dni/.
	MethodIdentityToken Method = "identity_token"
)

// Identity holds the authenticated caller information extracted from a request.
// This is populated by the auth middleware and can be retrieved from context in handlers.
type Identity struct {
	DNI    string
	Method Method
}

// identityContextKey is the key type for storing Identity in context.Context.
type identityContextKey struct{}

// WithIdentity returns a new context with the Identity attached.
func WithIdentity(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, identityContextKey{}, id)
}

// FromContext retrieves the Identity from the context, returning nil if not present.
func FromContext(ctx context.Context) *Identity {
	val := ctx.Value(identityContextKey{})
	if val == nil {
		return nil
	}
	id, ok := val.(*Identity)
	if !ok {
		return nil
	}
	return id
}
