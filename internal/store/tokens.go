// ABOUTME: Identity token issuance and lookup for the SQLite store
// ABOUTME: Implements race-safe lookup-or-create of never-expiring opaque tokens

package store

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"time"
)

// tokenBytes is the entropy of an opaque identity token (256 bits, 64 hex chars).
const tokenBytes = 32

// newOpaqueToken generates a cryptographically random opaque token.
func newOpaqueToken() (string, error) {
	b := make([]byte, tokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generating token: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// IssueIdentityToken performs an idempotent lookup-or-create of the identity
// token for the given DNI. Concurrent first-time calls converge on a single
// stored token: the creation insert relies on the UNIQUE(dni) constraint, and
// a racing creator retries the lookup instead of erroring. An existing row
// with an empty token field gets a fresh token backfilled.
func (s *SQLiteStore) IssueIdentityToken(ctx context.Context, dni string) (*IdentityToken, error) {
	// Two passes at most: an insert conflict means another request just
	// created the row, so the retry lookup must succeed.
	for attempt := 0; attempt < 2; attempt++ {
		tok, err := s.getIdentityTokenByDNI(ctx, dni)
		if err == nil {
			if tok.Token != "" {
				return tok, nil
			}
			return s.backfillIdentityToken(ctx, dni)
		}
		if !errors.Is(err, ErrNotFound) {
			return nil, err
		}

		value, err := newOpaqueToken()
		if err != nil {
			return nil, err
		}
		now := time.Now().UTC()

		_, err = s.db.ExecContext(ctx,
			`INSERT INTO identity_tokens (dni, token, created_at) VALUES (?, ?, ?)`,
			dni, value, now.Format(time.RFC3339),
		)
		if err == nil {
			s.logger.Info("issued identity token", "dni", dni)
			return &IdentityToken{DNI: dni, Token: value, CreatedAt: now}, nil
		}
		if isUniqueConstraintError(err) {
			continue
		}
		return nil, fmt.Errorf("inserting identity token: %w", err)
	}

	return s.getIdentityTokenByDNI(ctx, dni)
}

// backfillIdentityToken fills the token column for a row whose token is empty.
// The conditional UPDATE keeps concurrent backfills from overwriting each
// other: whoever loses re-reads the winner's token.
func (s *SQLiteStore) backfillIdentityToken(ctx context.Context, dni string) (*IdentityToken, error) {
	value, err := newOpaqueToken()
	if err != nil {
		return nil, err
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE identity_tokens SET token = ? WHERE dni = ? AND token = ''`,
		value, dni,
	)
	if err != nil {
		return nil, fmt.Errorf("backfilling identity token: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("checking backfill result: %w", err)
	}
	if affected == 0 {
		return s.getIdentityTokenByDNI(ctx, dni)
	}

	s.logger.Info("backfilled identity token", "dni", dni)
	return s.getIdentityTokenByDNI(ctx, dni)
}

// getIdentityTokenByDNI retrieves the token row for a DNI.
func (s *SQLiteStore) getIdentityTokenByDNI(ctx context.Context, dni string) (*IdentityToken, error) {
	return s.scanIdentityToken(s.db.QueryRowContext(ctx,
		`SELECT dni, token, created_at FROM identity_tokens WHERE dni = ?`, dni,
	))
}

// GetIdentityTokenByToken resolves a presented opaque token back to its DNI.
// Returns ErrNotFound for unknown tokens.
func (s *SQLiteStore) GetIdentityTokenByToken(ctx context.Context, token string) (*IdentityToken, error) {
	if token == "" {
		return nil, ErrNotFound
	}
	return s.scanIdentityToken(s.db.QueryRowContext(ctx,
		`SELECT dni, token, created_at FROM identity_tokens WHERE token = ?`, token,
	))
}

func (s *SQLiteStore) scanIdentityToken(row *sql.Row) (*IdentityToken, error) {
	var tok IdentityToken
	var createdAtStr string

	err := row.Scan(&tok.DNI, &tok.Token, &createdAtStr)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying identity token: %w", err)
	}

	tok.CreatedAt, err = time.Parse(time.RFC3339, createdAtStr)
	if err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}

	return &tok, nil
}
