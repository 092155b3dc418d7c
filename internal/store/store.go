// ABOUTME: Store interface and data types for dni-gateway persistence
// ABOUTME: Defines IdentityToken, Credential structs and the Store interface

package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// IdentityToken is the long-lived opaque access token bound to an identity
// number. At most one live token exists per DNI; the token never expires and
// is only regenerated when the stored value is empty.
type IdentityToken struct {
	DNI       string
	Token     string
	CreatedAt time.Time
}

// Credential is a registered public-key credential bound to a DNI.
// PublicKey holds the COSE-encoded key extracted at registration.
// SignCount is monotonically non-decreasing across successful assertions.
type Credential struct {
	CredentialID string
	DNI          string
	UserHandle   string
	PublicKey    []byte
	SignCount    uint32
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Store defines the interface for identity token and credential persistence
type Store interface {
	// Identity tokens
	IssueIdentityToken(ctx context.Context, dni string) (*IdentityToken, error)
	GetIdentityTokenByToken(ctx context.Context, token string) (*IdentityToken, error)

	// Credentials
	UpsertCredential(ctx context.Context, cred *Credential) error
	GetCredential(ctx context.Context, credentialID string) (*Credential, error)
	ListCredentialsByDNI(ctx context.Context, dni string) ([]*Credential, error)
	UpdateCredentialSignCount(ctx context.Context, credentialID string, signCount uint32) error

	Close() error
}
