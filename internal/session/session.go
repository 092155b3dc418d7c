// ABOUTME: Cookie-keyed server-side session store holding ceremony challenges
// ABOUTME: One live challenge per purpose, single-use, TTL cleanup goroutine

package session

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"net/http"
	"sync"
	"time"
)

// CookieName is the name of the gateway session cookie.
const CookieName = "dni_gateway_session"

// Purpose identifies which ceremony a challenge was issued for.
type Purpose string

const (
	PurposeRegistration   Purpose = "registration"
	PurposeAuthentication Purpose = "authentication"
)

// Challenge is the ephemeral ceremony state held in a caller's session.
// A session holds at most one live challenge per purpose; issuing a new one
// replaces the previous (last-write-wins), and any verification attempt
// consumes it.
type Challenge struct {
	Purpose Purpose
	// Value is the base64url-encoded random challenge (32 bytes).
	Value string
	// RPID is the relying-party identifier the challenge was issued under.
	RPID string
	// AllowedCredentialIDs scopes an authentication challenge to the
	// caller's registered credentials. Empty for registration.
	AllowedCredentialIDs []string
	IssuedAt             time.Time
}

// NewChallenge builds a challenge ready to store in a session.
func NewChallenge(purpose Purpose, value, rpID string, allowedCredentialIDs []string) *Challenge {
	return &Challenge{
		Purpose:              purpose,
		Value:                value,
		RPID:                 rpID,
		AllowedCredentialIDs: allowedCredentialIDs,
		IssuedAt:             time.Now(),
	}
}

// sessionData holds the per-caller ephemeral state.
type sessionData struct {
	challenges map[Purpose]*Challenge
	expiresAt  time.Time
}

// Manager is an in-memory session store keyed by a session cookie.
// In production, this should be backed by Redis or the database.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*sessionData
	ttl      time.Duration
	cancel   context.CancelFunc
}

// NewManager creates a session manager with the given session TTL and starts
// the expiry cleanup goroutine.
func NewManager(ttl time.Duration) *Manager {
	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		sessions: make(map[string]*sessionData),
		ttl:      ttl,
		cancel:   cancel,
	}
	go m.cleanupLoop(ctx)
	return m
}

// Close stops the cleanup goroutine.
func (m *Manager) Close() {
	if m.cancel != nil {
		m.cancel()
	}
}

// Ensure returns the caller's session ID, creating a new session (and setting
// the cookie) when the request carries none or an expired one.
func (m *Manager) Ensure(w http.ResponseWriter, r *http.Request) (string, error) {
	if cookie, err := r.Cookie(CookieName); err == nil {
		if m.touch(cookie.Value) {
			return cookie.Value, nil
		}
	}

	id, err := newSessionID()
	if err != nil {
		return "", err
	}

	m.mu.Lock()
	m.sessions[id] = &sessionData{
		challenges: make(map[Purpose]*Challenge),
		expiresAt:  time.Now().Add(m.ttl),
	}
	m.mu.Unlock()

	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	return id, nil
}

// Lookup returns whether the request carries a live session and its ID.
// Unlike Ensure it never creates one.
func (m *Manager) Lookup(r *http.Request) (string, bool) {
	cookie, err := r.Cookie(CookieName)
	if err != nil {
		return "", false
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.sessions[cookie.Value]
	if !ok || time.Now().After(data.expiresAt) {
		return "", false
	}
	return cookie.Value, true
}

// PutChallenge stores a challenge in the session, replacing any live
// challenge of the same purpose.
func (m *Manager) PutChallenge(sessionID string, ch *Challenge) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.sessions[sessionID]
	if !ok || time.Now().After(data.expiresAt) {
		return
	}
	data.challenges[ch.Purpose] = ch
}

// ConsumeChallenge removes and returns the session's challenge for the given
// purpose. The removal happens whether or not the subsequent verification
// succeeds, which is what makes challenges single-use.
func (m *Manager) ConsumeChallenge(sessionID string, purpose Purpose) (*Challenge, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.sessions[sessionID]
	if !ok || time.Now().After(data.expiresAt) {
		return nil, false
	}
	ch, ok := data.challenges[purpose]
	if !ok {
		return nil, false
	}
	delete(data.challenges, purpose)
	return ch, true
}

// touch refreshes a live session's expiry; returns false for unknown or
// expired sessions.
func (m *Manager) touch(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.sessions[id]
	if !ok || time.Now().After(data.expiresAt) {
		return false
	}
	data.expiresAt = time.Now().Add(m.ttl)
	return true
}

func (m *Manager) cleanupLoop(ctx context.Context) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.mu.Lock()
			now := time.Now()
			for k, v := range m.sessions {
				if now.After(v.expiresAt) {
					delete(m.sessions, k)
				}
			}
			m.mu.Unlock()
		}
	}
}

// newSessionID generates a cryptographically secure random session ID.
func newSessionID() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
