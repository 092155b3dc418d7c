// ABOUTME: HTTP middleware authenticating requests via bearer JWT or identity token
// ABOUTME: Resolves either credential to a DNI and adds Identity to the request context

package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/padron/dni-gateway/internal/store"
)

// IdentityTokenResolver resolves an opaque identity token back to its DNI.
type IdentityTokenResolver interface {
	GetIdentityTokenByToken(ctx context.Context, token string) (*store.IdentityToken, error)
}

// extractBearerToken extracts a bearer token from the Authorization header.
// Returns the token and an error message (empty if successful).
func extractBearerToken(authHeader string) (string, string) {
	if authHeader == "" {
		return "", "missing authorization header"
	}
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return "", "invalid authorization header format"
	}
	token := strings.TrimPrefix(authHeader, "Bearer ")
	if token == "" {
		return "", "empty token"
	}
	return token, ""
}

// resolveIdentity turns a presented bearer value into a caller identity.
// An HS256 JWT is tried first (when a verifier is configured); any other
// value is treated as an opaque identity token and looked up in the store.
func resolveIdentity(ctx context.Context, verifier TokenVerifier, tokens IdentityTokenResolver, bearer string) (*Identity, error) {
	if verifier != nil {
		if dni, err := verifier.Verify(bearer); err == nil {
			return &Identity{DNI: dni, Method: MethodJWT}, nil
		}
	}

	tok, err := tokens.GetIdentityTokenByToken(ctx, bearer)
	if err != nil {
		return nil, err
	}
	return &Identity{DNI: tok.DNI, Method: MethodIdentityToken}, nil
}

// HTTPAuthMiddleware creates an HTTP middleware that authenticates requests.
// It accepts either an ordinary-session JWT or the opaque identity token
// issued by /login-dni/, and adds the resolved Identity to the request
// context using the same WithIdentity/FromContext pattern throughout.
func HTTPAuthMiddleware(verifier TokenVerifier, tokens IdentityTokenResolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			bearer, errMsg := extractBearerToken(r.Header.Get("Authorization"))
			if errMsg != "" {
				writeAuthError(w, errMsg)
				return
			}

			id, err := resolveIdentity(r.Context(), verifier, tokens, bearer)
			if errors.Is(err, store.ErrNotFound) {
				writeAuthError(w, "invalid token")
				return
			}
			if err != nil {
				http.Error(w, `{"error":{"code":"internal","message":"token lookup failed"}}`, http.StatusInternalServerError)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
		})
	}
}

func writeAuthError(w http.ResponseWriter, msg string) {
	http.Error(w, `{"error":{"code":"auth_required","message":"`+msg+`"}}`, http.StatusUnauthorized)
}
