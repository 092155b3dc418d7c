// ABOUTME: Gateway orchestrator wiring store, registry proxy, sessions, and ceremonies
// ABOUTME: Owns the HTTP server lifecycle and route registration

package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/padron/dni-gateway/internal/auth"
	"github.com/padron/dni-gateway/internal/ceremony"
	"github.com/padron/dni-gateway/internal/config"
	"github.com/padron/dni-gateway/internal/face"
	"github.com/padron/dni-gateway/internal/registry"
	"github.com/padron/dni-gateway/internal/session"
	"github.com/padron/dni-gateway/internal/store"
)

// Gateway coordinates the identity gateway's components: the token and
// credential store, the external registry proxy, the session-backed
// challenge manager, and the passkey ceremony service.
type Gateway struct {
	config     *config.Config
	store      store.Store
	registry   *registry.Client
	sessions   *session.Manager
	ceremonies *ceremony.Service
	verifier   auth.TokenVerifier
	httpServer *http.Server
	logger     *slog.Logger

	// faceComparator is the optional selfie-vs-document boundary.
	// Nil means the endpoint answers 501.
	faceComparator face.Comparator
}

// New creates a Gateway instance with the given configuration.
func New(cfg *config.Config, logger *slog.Logger) (*Gateway, error) {
	s, err := store.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}

	var verifier auth.TokenVerifier
	if cfg.Auth.JWTSecret != "" {
		verifier = auth.NewJWTVerifier([]byte(cfg.Auth.JWTSecret))
	} else {
		logger.Warn("no jwt_secret configured, only identity tokens accepted")
	}

	var origins []string
	if cfg.WebAuthn.BaseURL != "" {
		origins = []string{strings.TrimRight(cfg.WebAuthn.BaseURL, "/")}
	}

	return &Gateway{
		config:   cfg,
		store:    s,
		registry: registry.New(cfg.Registry.URL, cfg.Registry.Token, cfg.Registry.Timeout),
		sessions: session.NewManager(cfg.WebAuthn.SessionTTL),
		ceremonies: ceremony.New(s, ceremony.Config{
			RPDisplayName: cfg.WebAuthn.RPDisplayName,
			Origins:       origins,
			Timeout:       cfg.WebAuthn.CeremonyTimeout,
		}),
		verifier: verifier,
		logger:   logger,
	}, nil
}

// SetFaceComparator wires a face comparison implementation into the
// /face-verify/ endpoint. Must be called before Run.
func (g *Gateway) SetFaceComparator(c face.Comparator) {
	g.faceComparator = c
}

// Handler builds the HTTP routing table. Everything except login and the
// liveness probe sits behind the auth middleware.
func (g *Gateway) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", g.handleHealthz)
	mux.HandleFunc("/login-dni/", g.handleLoginDNI)

	authMiddleware := auth.HTTPAuthMiddleware(g.verifier, g.store)
	mux.Handle("/dni/", authMiddleware(http.HandlerFunc(g.handleDNILookup)))
	mux.Handle("/webauthn/register/options/", authMiddleware(http.HandlerFunc(g.handleRegisterOptions)))
	mux.Handle("/webauthn/register/verify/", authMiddleware(http.HandlerFunc(g.handleRegisterVerify)))
	mux.Handle("/webauthn/authenticate/options/", authMiddleware(http.HandlerFunc(g.handleAuthenticateOptions)))
	mux.Handle("/webauthn/authenticate/verify/", authMiddleware(http.HandlerFunc(g.handleAuthenticateVerify)))
	mux.Handle("/face-verify/", authMiddleware(http.HandlerFunc(g.handleFaceVerify)))

	return g.withRequestID(mux)
}

// withRequestID tags every request with a generated id for log correlation.
func (g *Gateway) withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := uuid.NewString()
		w.Header().Set("X-Request-ID", requestID)
		g.logger.Debug("request", "id", requestID, "method", r.Method, "path", r.URL.Path)
		next.ServeHTTP(w, r)
	})
}

// Run starts the HTTP server and blocks until the context is cancelled or
// the server fails.
func (g *Gateway) Run(ctx context.Context) error {
	g.httpServer = &http.Server{
		Addr:              g.config.Server.HTTPAddr,
		Handler:           g.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		g.logger.Info("HTTP server listening", "addr", g.config.Server.HTTPAddr)
		if err := g.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		g.logger.Info("shutdown signal received")
		return g.gracefulShutdown()
	}
}

// gracefulShutdown drains in-flight requests before closing components.
func (g *Gateway) gracefulShutdown() error {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var firstErr error
	if err := g.httpServer.Shutdown(shutdownCtx); err != nil {
		g.logger.Error("HTTP server shutdown failed", "error", err)
		firstErr = err
	}

	g.sessions.Close()
	if err := g.store.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

// Close releases resources without draining. Used by tests and error paths.
func (g *Gateway) Close() error {
	g.sessions.Close()
	return g.store.Close()
}

// handleHealthz returns 200 OK if the server is alive.
func (g *Gateway) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// rpIDFromRequest derives the relying-party id from the request host,
// stripping any port.
func rpIDFromRequest(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.Host); err == nil {
		return host
	}
	return r.Host
}
