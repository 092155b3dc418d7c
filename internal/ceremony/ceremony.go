// ABOUTME: Ceremony orchestrator for passkey registration and authentication
// ABOUTME: Verifies challenge binding, attestation payloads, and assertion signatures

package ceremony

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-webauthn/webauthn/protocol"

	"github.com/padron/dni-gateway/internal/session"
	"github.com/padron/dni-gateway/internal/store"
)

// Ceremony errors
var (
	// ErrNoActiveChallenge means the session holds no challenge for the ceremony.
	ErrNoActiveChallenge = errors.New("no active challenge")

	// ErrMalformedResponse means a required registration field is absent or unparseable.
	ErrMalformedResponse = errors.New("malformed ceremony response")

	// ErrMalformedAssertion means a required assertion field is absent or unparseable.
	ErrMalformedAssertion = errors.New("malformed assertion")

	// ErrNoCredentials means the DNI owns zero registered credentials.
	ErrNoCredentials = errors.New("no credentials registered")

	// ErrUnknownCredential means the asserted credential is not registered to the caller.
	ErrUnknownCredential = errors.New("unknown credential")

	// ErrVerificationFailed means the response did not verify against the
	// issued challenge or the stored public key.
	ErrVerificationFailed = errors.New("ceremony verification failed")
)

// CredentialStore is the credential persistence the orchestrator drives.
type CredentialStore interface {
	UpsertCredential(ctx context.Context, cred *store.Credential) error
	GetCredential(ctx context.Context, credentialID string) (*store.Credential, error)
	ListCredentialsByDNI(ctx context.Context, dni string) ([]*store.Credential, error)
	UpdateCredentialSignCount(ctx context.Context, credentialID string, signCount uint32) error
}

// Config holds relying-party settings for ceremonies.
type Config struct {
	RPDisplayName string
	// Origins restricts the origins ceremony responses may carry.
	// Empty disables the origin check (e.g. local development).
	Origins []string
	// Timeout is the ceremony timeout hint sent to clients.
	Timeout time.Duration
}

// Service drives the registration and authentication ceremonies.
type Service struct {
	creds  CredentialStore
	config Config
	logger *slog.Logger
}

// New creates a ceremony service.
func New(creds CredentialStore, cfg Config) *Service {
	return &Service{
		creds:  creds,
		config: cfg,
		logger: slog.Default().With("component", "ceremony"),
	}
}

// newChallenge generates a fresh random ceremony challenge (32 bytes,
// base64url without padding).
func newChallenge() (string, error) {
	c, err := protocol.CreateChallenge()
	if err != nil {
		return "", fmt.Errorf("generating challenge: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(c), nil
}

// parseClientData decodes the clientDataJSON payload and checks the ceremony
// binding: the declared type, the challenge echo against the session value,
// and (when configured) the origin.
func (s *Service) parseClientData(raw []byte, wantType protocol.CeremonyType, ch *session.Challenge, malformed error) error {
	var cd protocol.CollectedClientData
	if err := json.Unmarshal(raw, &cd); err != nil {
		return fmt.Errorf("%w: clientDataJSON: %v", malformed, err)
	}

	if cd.Type != wantType {
		return fmt.Errorf("%w: ceremony type %q", ErrVerificationFailed, cd.Type)
	}
	if cd.Challenge != ch.Value {
		return fmt.Errorf("%w: challenge mismatch", ErrVerificationFailed)
	}
	if len(s.config.Origins) > 0 && !containsString(s.config.Origins, cd.Origin) {
		return fmt.Errorf("%w: origin %q not allowed", ErrVerificationFailed, cd.Origin)
	}

	return nil
}

// checkRPIDHash verifies the authenticator data was produced for the relying
// party the challenge was issued under.
func checkRPIDHash(ad *protocol.AuthenticatorData, rpID string) error {
	want := sha256.Sum256([]byte(rpID))
	if !bytes.Equal(ad.RPIDHash, want[:]) {
		return fmt.Errorf("%w: relying party mismatch", ErrVerificationFailed)
	}
	return nil
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
