// ABOUTME: Tests for the HTTP auth middleware
// ABOUTME: Covers JWT and identity-token resolution and rejection paths

package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/padron/dni-gateway/internal/store"
)

// fakeTokenResolver maps opaque tokens to DNIs in memory.
type fakeTokenResolver struct {
	tokens map[string]string
}

func (f *fakeTokenResolver) GetIdentityTokenByToken(_ context.Context, token string) (*store.IdentityToken, error) {
	dni, ok := f.tokens[token]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &store.IdentityToken{DNI: dni, Token: token, CreatedAt: time.Now()}, nil
}

func authProbe(t *testing.T) (http.Handler, *Identity) {
	t.Helper()
	captured := &Identity{}
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if id := FromContext(r.Context()); id != nil {
			*captured = *id
		}
		w.WriteHeader(http.StatusOK)
	})
	return handler, captured
}

func TestHTTPAuthMiddleware_IdentityToken(t *testing.T) {
	resolver := &fakeTokenResolver{tokens: map[string]string{"opaque-token": "12345678"}}
	verifier := NewJWTVerifier([]byte("test-secret"))

	probe, captured := authProbe(t)
	handler := HTTPAuthMiddleware(verifier, resolver)(probe)

	req := httptest.NewRequest(http.MethodGet, "/dni/", nil)
	req.Header.Set("Authorization", "Bearer opaque-token")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "12345678", captured.DNI)
	assert.Equal(t, MethodIdentityToken, captured.Method)
}

func TestHTTPAuthMiddleware_JWT(t *testing.T) {
	resolver := &fakeTokenResolver{tokens: map[string]string{}}
	verifier := NewJWTVerifier([]byte("test-secret"))

	jwt, err := verifier.Generate("87654321", time.Hour)
	require.NoError(t, err)

	probe, captured := authProbe(t)
	handler := HTTPAuthMiddleware(verifier, resolver)(probe)

	req := httptest.NewRequest(http.MethodGet, "/dni/", nil)
	req.Header.Set("Authorization", "Bearer "+jwt)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "87654321", captured.DNI)
	assert.Equal(t, MethodJWT, captured.Method)
}

func TestHTTPAuthMiddleware_NilVerifier(t *testing.T) {
	// No jwt_secret configured: identity tokens still work.
	resolver := &fakeTokenResolver{tokens: map[string]string{"opaque-token": "12345678"}}

	probe, captured := authProbe(t)
	handler := HTTPAuthMiddleware(nil, resolver)(probe)

	req := httptest.NewRequest(http.MethodGet, "/dni/", nil)
	req.Header.Set("Authorization", "Bearer opaque-token")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "12345678", captured.DNI)
}

func TestHTTPAuthMiddleware_Rejections(t *testing.T) {
	resolver := &fakeTokenResolver{tokens: map[string]string{}}
	verifier := NewJWTVerifier([]byte("test-secret"))

	tests := []struct {
		name   string
		header string
	}{
		{"missing header", ""},
		{"wrong scheme", "Token abc"},
		{"empty token", "Bearer "},
		{"unknown token", "Bearer not-a-real-token"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			probe, _ := authProbe(t)
			handler := HTTPAuthMiddleware(verifier, resolver)(probe)

			req := httptest.NewRequest(http.MethodGet, "/dni/", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			assert.Equal(t, http.StatusUnauthorized, rec.Code)
		})
	}
}

func TestHTTPAuthMiddleware_ExpiredJWTFallsThrough(t *testing.T) {
	resolver := &fakeTokenResolver{tokens: map[string]string{}}
	verifier := NewJWTVerifier([]byte("test-secret"))

	expired, err := verifier.Generate("87654321", -time.Hour)
	require.NoError(t, err)

	probe, _ := authProbe(t)
	handler := HTTPAuthMiddleware(verifier, resolver)(probe)

	req := httptest.NewRequest(http.MethodGet, "/dni/", nil)
	req.Header.Set("Authorization", "Bearer "+expired)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	// Expired JWT is not a valid identity token either.
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
