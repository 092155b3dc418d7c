// ABOUTME: HTTP API handlers for login, registry lookups, and passkey ceremonies
// ABOUTME: Maps component errors onto the structured error envelope

package gateway

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"regexp"
	"strings"

	"github.com/padron/dni-gateway/internal/auth"
	"github.com/padron/dni-gateway/internal/ceremony"
	"github.com/padron/dni-gateway/internal/registry"
	"github.com/padron/dni-gateway/internal/session"
)

// dniPattern is the identity-number gate: 8 to 12 decimal digits after
// trimming surrounding whitespace. Checked before any storage access.
var dniPattern = regexp.MustCompile(`^\d{8,12}$`)

// maxImageBytes bounds each uploaded face image.
const maxImageBytes = 10 << 20

// LoginRequest is the JSON request body for POST /login-dni/.
type LoginRequest struct {
	DNI string `json:"dni"`
}

// LoginResponse is the JSON response for POST /login-dni/.
type LoginResponse struct {
	Token string `json:"token"`
	DNI   string `json:"dni"`
}

// lookupRequest is the JSON request body for POST /dni/.
type lookupRequest struct {
	Numero string `json:"numero"`
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (g *Gateway) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (g *Gateway) writeError(w http.ResponseWriter, status int, code, message string) {
	g.writeJSON(w, status, map[string]any{"error": errorBody{Code: code, Message: message}})
}

// handleLoginDNI handles POST /login-dni/ requests. No auth required; this is
// where callers obtain their persistent identity token. Issuing is
// idempotent, the same DNI always gets the same token back.
func (g *Gateway) handleLoginDNI(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		g.writeError(w, http.StatusBadRequest, "validation_error", "invalid JSON body")
		return
	}

	dni := strings.TrimSpace(req.DNI)
	if !dniPattern.MatchString(dni) {
		g.writeError(w, http.StatusBadRequest, "invalid_identity_number", "dni must be 8 to 12 digits")
		return
	}

	tok, err := g.store.IssueIdentityToken(r.Context(), dni)
	if err != nil {
		g.logger.Error("issuing identity token", "error", err)
		g.writeError(w, http.StatusInternalServerError, "internal_error", "internal server error")
		return
	}

	g.writeJSON(w, http.StatusOK, LoginResponse{Token: tok.Token, DNI: tok.DNI})
}

// handleDNILookup handles GET and POST /dni/ requests. The identity number
// comes from the `numero` query parameter or, on POST, a JSON body. The
// upstream registry's JSON is passed through unmodified.
func (g *Gateway) handleDNILookup(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	numero := strings.TrimSpace(r.URL.Query().Get("numero"))
	if numero == "" && r.Method == http.MethodPost {
		var req lookupRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err == nil {
			numero = strings.TrimSpace(req.Numero)
		}
	}
	if !dniPattern.MatchString(numero) {
		g.writeError(w, http.StatusBadRequest, "invalid_identity_number", "numero must be 8 to 12 digits")
		return
	}

	body, err := g.registry.Lookup(r.Context(), numero)
	if err != nil {
		g.writeRegistryError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

// writeRegistryError maps registry proxy failures onto upstream error codes.
// A RejectedError propagates the upstream's own status so callers can tell a
// stale shared secret apart from gateway trouble.
func (g *Gateway) writeRegistryError(w http.ResponseWriter, err error) {
	var netErr *registry.NetworkError
	var formatErr *registry.FormatError
	var rejected *registry.RejectedError

	switch {
	case errors.As(err, &netErr):
		g.writeError(w, http.StatusBadGateway, "upstream_network_error", "registry unreachable")
	case errors.As(err, &formatErr):
		g.writeError(w, http.StatusBadGateway, "upstream_format_error", "registry returned an unparseable body")
	case errors.As(err, &rejected):
		status := rejected.Status
		if status < 400 {
			status = http.StatusBadGateway
		}
		g.writeJSON(w, status, map[string]any{
			"error":      errorBody{Code: "upstream_rejected", Message: "registry rejected all auth strategies"},
			"status":     rejected.Status,
			"details":    rejected.Detail,
			"token_hint": rejected.SecretHint,
		})
	default:
		g.logger.Error("registry lookup failed", "error", err)
		g.writeError(w, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}

// handleRegisterOptions handles POST /webauthn/register/options/. It issues a
// fresh registration challenge bound to the caller's session.
func (g *Gateway) handleRegisterOptions(w http.ResponseWriter, r *http.Request) {
	identity, ok := g.requirePost(w, r)
	if !ok {
		return
	}

	sessionID, err := g.sessions.Ensure(w, r)
	if err != nil {
		g.logger.Error("creating session", "error", err)
		g.writeError(w, http.StatusInternalServerError, "internal_error", "internal server error")
		return
	}

	opts, ch, err := g.ceremonies.BeginRegistration(identity.DNI, rpIDFromRequest(r))
	if err != nil {
		g.logger.Error("beginning registration", "error", err)
		g.writeError(w, http.StatusInternalServerError, "internal_error", "internal server error")
		return
	}

	g.sessions.PutChallenge(sessionID, ch)
	g.writeJSON(w, http.StatusOK, opts)
}

// handleRegisterVerify handles POST /webauthn/register/verify/. The session's
// registration challenge is consumed before verification, so any attempt,
// pass or fail, burns it.
func (g *Gateway) handleRegisterVerify(w http.ResponseWriter, r *http.Request) {
	identity, ok := g.requirePost(w, r)
	if !ok {
		return
	}

	var resp ceremony.RegistrationResponse
	if err := json.NewDecoder(r.Body).Decode(&resp); err != nil {
		g.writeError(w, http.StatusBadRequest, "validation_error", "invalid JSON body")
		return
	}

	ch := g.consumeChallenge(r, session.PurposeRegistration)
	if err := g.ceremonies.FinishRegistration(r.Context(), identity.DNI, ch, &resp); err != nil {
		g.writeCeremonyError(w, err)
		return
	}

	g.writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// handleAuthenticateOptions handles POST /webauthn/authenticate/options/.
func (g *Gateway) handleAuthenticateOptions(w http.ResponseWriter, r *http.Request) {
	identity, ok := g.requirePost(w, r)
	if !ok {
		return
	}

	sessionID, err := g.sessions.Ensure(w, r)
	if err != nil {
		g.logger.Error("creating session", "error", err)
		g.writeError(w, http.StatusInternalServerError, "internal_error", "internal server error")
		return
	}

	opts, ch, err := g.ceremonies.BeginAuthentication(r.Context(), identity.DNI, rpIDFromRequest(r))
	if err != nil {
		g.writeCeremonyError(w, err)
		return
	}

	g.sessions.PutChallenge(sessionID, ch)
	g.writeJSON(w, http.StatusOK, opts)
}

// handleAuthenticateVerify handles POST /webauthn/authenticate/verify/.
func (g *Gateway) handleAuthenticateVerify(w http.ResponseWriter, r *http.Request) {
	identity, ok := g.requirePost(w, r)
	if !ok {
		return
	}

	var resp ceremony.AssertionResponse
	if err := json.NewDecoder(r.Body).Decode(&resp); err != nil {
		g.writeError(w, http.StatusBadRequest, "validation_error", "invalid JSON body")
		return
	}

	ch := g.consumeChallenge(r, session.PurposeAuthentication)
	if err := g.ceremonies.FinishAuthentication(r.Context(), identity.DNI, ch, &resp); err != nil {
		g.writeCeremonyError(w, err)
		return
	}

	g.writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// handleFaceVerify handles POST /face-verify/ with multipart `selfie` and
// `dni` image files. Without a wired comparator the endpoint is a stub.
func (g *Gateway) handleFaceVerify(w http.ResponseWriter, r *http.Request) {
	if _, ok := g.requirePost(w, r); !ok {
		return
	}

	if g.faceComparator == nil {
		g.writeError(w, http.StatusNotImplemented, "not_implemented", "no face comparator configured")
		return
	}

	if err := r.ParseMultipartForm(2 * maxImageBytes); err != nil {
		g.writeError(w, http.StatusBadRequest, "validation_error", "expected multipart form with selfie and dni files")
		return
	}

	selfie, err := readFormImage(r, "selfie")
	if err != nil {
		g.writeError(w, http.StatusBadRequest, "validation_error", "missing or unreadable selfie file")
		return
	}
	document, err := readFormImage(r, "dni")
	if err != nil {
		g.writeError(w, http.StatusBadRequest, "validation_error", "missing or unreadable dni file")
		return
	}

	result, err := g.faceComparator.Compare(r.Context(), selfie, document)
	if err != nil {
		g.logger.Error("face comparison failed", "error", err)
		g.writeError(w, http.StatusBadGateway, "comparison_failed", "face comparison failed")
		return
	}

	g.writeJSON(w, http.StatusOK, result)
}

// readFormImage pulls one uploaded file out of a parsed multipart form.
func readFormImage(r *http.Request, field string) ([]byte, error) {
	file, _, err := r.FormFile(field)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	return io.ReadAll(io.LimitReader(file, maxImageBytes))
}

// requirePost enforces the method and pulls the authenticated identity out of
// the request context.
func (g *Gateway) requirePost(w http.ResponseWriter, r *http.Request) (*auth.Identity, bool) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return nil, false
	}
	identity := auth.FromContext(r.Context())
	if identity == nil {
		g.writeError(w, http.StatusUnauthorized, "auth_required", "authentication required")
		return nil, false
	}
	return identity, true
}

// consumeChallenge removes and returns the session's challenge for the given
// purpose. Nil when the request has no session or no live challenge; the
// ceremony service turns that into its no-active-challenge error.
func (g *Gateway) consumeChallenge(r *http.Request, purpose session.Purpose) *session.Challenge {
	sessionID, ok := g.sessions.Lookup(r)
	if !ok {
		return nil
	}
	ch, ok := g.sessions.ConsumeChallenge(sessionID, purpose)
	if !ok {
		return nil
	}
	return ch
}

// writeCeremonyError maps ceremony failures onto the error envelope.
func (g *Gateway) writeCeremonyError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ceremony.ErrNoActiveChallenge):
		g.writeError(w, http.StatusBadRequest, "no_active_challenge", "no challenge pending for this session")
	case errors.Is(err, ceremony.ErrMalformedResponse), errors.Is(err, ceremony.ErrMalformedAssertion):
		g.writeError(w, http.StatusBadRequest, "validation_error", err.Error())
	case errors.Is(err, ceremony.ErrNoCredentials):
		g.writeError(w, http.StatusNotFound, "no_credentials_registered", "no credentials registered for this identity")
	case errors.Is(err, ceremony.ErrUnknownCredential):
		g.writeError(w, http.StatusNotFound, "unknown_credential", "credential not recognized")
	case errors.Is(err, ceremony.ErrVerificationFailed):
		g.writeError(w, http.StatusUnauthorized, "ceremony_verification_failed", "verification failed")
	default:
		g.logger.Error("ceremony failed", "error", err)
		g.writeError(w, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}
