// ABOUTME: Tests for WebAuthn credential persistence
// ABOUTME: Covers upsert semantics, per-DNI listing, and sign-count updates

package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUpsertCredential_CreateAndGet(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	cred := &Credential{
		CredentialID: "cred-abc",
		DNI:          "12345678",
		UserHandle:   "12345678",
		PublicKey:    []byte{0x01, 0x02, 0x03},
		SignCount:    0,
	}
	require.NoError(t, store.UpsertCredential(ctx, cred))

	got, err := store.GetCredential(ctx, "cred-abc")
	require.NoError(t, err)
	assert.Equal(t, "12345678", got.DNI)
	assert.Equal(t, []byte{0x01, 0x02, 0x03}, got.PublicKey)
	assert.EqualValues(t, 0, got.SignCount)
	assert.False(t, got.CreatedAt.IsZero())
}

func TestUpsertCredential_ResubmissionOverwrites(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.UpsertCredential(ctx, &Credential{
		CredentialID: "cred-abc",
		DNI:          "12345678",
		UserHandle:   "12345678",
		PublicKey:    []byte{0x01},
	}))

	// Same credential id, new key material: overwrite, don't error.
	require.NoError(t, store.UpsertCredential(ctx, &Credential{
		CredentialID: "cred-abc",
		DNI:          "12345678",
		UserHandle:   "12345678",
		PublicKey:    []byte{0x02},
		SignCount:    5,
	}))

	got, err := store.GetCredential(ctx, "cred-abc")
	require.NoError(t, err)
	assert.Equal(t, []byte{0x02}, got.PublicKey)
	assert.EqualValues(t, 5, got.SignCount)

	creds, err := store.ListCredentialsByDNI(ctx, "12345678")
	require.NoError(t, err)
	assert.Len(t, creds, 1, "resubmission must not create a second row")
}

func TestGetCredential_NotFound(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	_, err := store.GetCredential(ctx, "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListCredentialsByDNI(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	for _, id := range []string{"cred-1", "cred-2", "cred-3"} {
		require.NoError(t, store.UpsertCredential(ctx, &Credential{
			CredentialID: id,
			DNI:          "12345678",
			UserHandle:   "12345678",
			PublicKey:    []byte(id),
		}))
	}
	require.NoError(t, store.UpsertCredential(ctx, &Credential{
		CredentialID: "other-cred",
		DNI:          "99999999",
		UserHandle:   "99999999",
		PublicKey:    []byte("other"),
	}))

	creds, err := store.ListCredentialsByDNI(ctx, "12345678")
	require.NoError(t, err)
	require.Len(t, creds, 3)

	ids := make([]string, len(creds))
	for i, c := range creds {
		ids[i] = c.CredentialID
	}
	assert.ElementsMatch(t, []string{"cred-1", "cred-2", "cred-3"}, ids)
}

func TestListCredentialsByDNI_Empty(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	creds, err := store.ListCredentialsByDNI(ctx, "12345678")
	require.NoError(t, err)
	assert.Empty(t, creds)
}

func TestUpdateCredentialSignCount(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.UpsertCredential(ctx, &Credential{
		CredentialID: "cred-abc",
		DNI:          "12345678",
		UserHandle:   "12345678",
		PublicKey:    []byte{0x01},
	}))

	require.NoError(t, store.UpdateCredentialSignCount(ctx, "cred-abc", 7))

	got, err := store.GetCredential(ctx, "cred-abc")
	require.NoError(t, err)
	assert.EqualValues(t, 7, got.SignCount)
}

func TestUpdateCredentialSignCount_NotFound(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	err := store.UpdateCredentialSignCount(ctx, "nope", 1)
	assert.ErrorIs(t, err, ErrNotFound)
}
