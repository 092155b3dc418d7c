// ABOUTME: WebAuthn credential persistence for the SQLite store
// ABOUTME: Upsert by credential_id, per-DNI listing, and sign-count updates

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// UpsertCredential stores a credential keyed by its credential ID.
// A resubmission with the same credential ID overwrites the stored record.
func (s *SQLiteStore) UpsertCredential(ctx context.Context, cred *Credential) error {
	now := time.Now().UTC()
	if cred.CreatedAt.IsZero() {
		cred.CreatedAt = now
	}
	cred.UpdatedAt = now

	query := `
		INSERT INTO webauthn_credentials (credential_id, dni, user_handle, public_key, sign_count, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(credential_id) DO UPDATE SET
			dni         = excluded.dni,
			user_handle = excluded.user_handle,
			public_key  = excluded.public_key,
			sign_count  = excluded.sign_count,
			updated_at  = excluded.updated_at
	`

	_, err := s.db.ExecContext(ctx, query,
		cred.CredentialID,
		cred.DNI,
		cred.UserHandle,
		cred.PublicKey,
		cred.SignCount,
		cred.CreatedAt.Format(time.RFC3339),
		cred.UpdatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("upserting credential: %w", err)
	}

	s.logger.Info("stored credential", "dni", cred.DNI, "credential_id", truncateID(cred.CredentialID))
	return nil
}

// GetCredential retrieves a credential by its credential ID.
func (s *SQLiteStore) GetCredential(ctx context.Context, credentialID string) (*Credential, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT credential_id, dni, user_handle, public_key, sign_count, created_at, updated_at
		FROM webauthn_credentials
		WHERE credential_id = ?
	`, credentialID)

	cred, err := scanCredential(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying credential: %w", err)
	}
	return cred, nil
}

// ListCredentialsByDNI returns all credentials owned by a DNI.
func (s *SQLiteStore) ListCredentialsByDNI(ctx context.Context, dni string) ([]*Credential, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT credential_id, dni, user_handle, public_key, sign_count, created_at, updated_at
		FROM webauthn_credentials
		WHERE dni = ?
		ORDER BY created_at
	`, dni)
	if err != nil {
		return nil, fmt.Errorf("querying credentials: %w", err)
	}
	defer rows.Close()

	var creds []*Credential
	for rows.Next() {
		cred, err := scanCredential(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scanning credential: %w", err)
		}
		creds = append(creds, cred)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating credentials: %w", err)
	}

	return creds, nil
}

// UpdateCredentialSignCount records the authenticator's sign counter after a
// successful assertion.
func (s *SQLiteStore) UpdateCredentialSignCount(ctx context.Context, credentialID string, signCount uint32) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE webauthn_credentials
		SET sign_count = ?, updated_at = ?
		WHERE credential_id = ?
	`, signCount, time.Now().UTC().Format(time.RFC3339), credentialID)
	if err != nil {
		return fmt.Errorf("updating sign count: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking update result: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}

	return nil
}

// scanCredential reads one credential row via the given scan function.
func scanCredential(scan func(dest ...any) error) (*Credential, error) {
	var cred Credential
	var createdAtStr, updatedAtStr string

	err := scan(
		&cred.CredentialID,
		&cred.DNI,
		&cred.UserHandle,
		&cred.PublicKey,
		&cred.SignCount,
		&createdAtStr,
		&updatedAtStr,
	)
	if err != nil {
		return nil, err
	}

	if cred.CreatedAt, err = time.Parse(time.RFC3339, createdAtStr); err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	if cred.UpdatedAt, err = time.Parse(time.RFC3339, updatedAtStr); err != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", err)
	}

	return &cred, nil
}

// truncateID shortens a credential ID for log output.
func truncateID(id string) string {
	if len(id) <= 12 {
		return id
	}
	return id[:12] + "..."
}
