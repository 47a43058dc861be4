package memory

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/tonearm/tonearm/internal/models"
	"github.com/tonearm/tonearm/internal/store"
)

func newPrincipal(username string) *models.Principal {
	return &models.Principal{
		PrincipalID:  uuid.Must(uuid.NewV7()),
		Username:     username,
		Role:         models.RoleUser,
		PasswordHash: "$argon2id$test",
		CreatedAt:    time.Now(),
	}
}

func TestMemoryPrincipalStore_Create(t *testing.T) {
	ctx := context.Background()

	t.Run("create new principal", func(t *testing.T) {
		st := NewPrincipalStore()

		err := st.Create(ctx, newPrincipal("alice"))
		require.NoError(t, err)
	})

	t.Run("duplicate username returns error", func(t *testing.T) {
		st := NewPrincipalStore()

		require.NoError(t, st.Create(ctx, newPrincipal("alice")))

		err := st.Create(ctx, newPrincipal("alice"))
		require.ErrorIs(t, err, store.ErrPrincipalAlreadyExists)
	})
}

func TestMemoryPrincipalStore_Get(t *testing.T) {
	ctx := context.Background()
	st := NewPrincipalStore()

	principal := newPrincipal("alice")
	require.NoError(t, st.Create(ctx, principal))

	got, err := st.Get(ctx, principal.PrincipalID)
	require.NoError(t, err)
	require.Equal(t, "alice", got.Username)

	_, err = st.Get(ctx, uuid.New())
	require.ErrorIs(t, err, store.ErrPrincipalNotFound)

	byName, err := st.GetByUsername(ctx, "alice")
	require.NoError(t, err)
	require.Equal(t, principal.PrincipalID, byName.PrincipalID)

	_, err = st.GetByUsername(ctx, "bob")
	require.ErrorIs(t, err, store.ErrPrincipalNotFound)
}

func TestMemoryPrincipalStore_UpdatePasswordHash(t *testing.T) {
	ctx := context.Background()
	st := NewPrincipalStore()

	principal := newPrincipal("alice")
	require.NoError(t, st.Create(ctx, principal))

	require.NoError(t, st.UpdatePasswordHash(ctx, principal.PrincipalID, "$argon2id$new"))

	got, err := st.Get(ctx, principal.PrincipalID)
	require.NoError(t, err)
	require.Equal(t, "$argon2id$new", got.PasswordHash)

	err = st.UpdatePasswordHash(ctx, uuid.New(), "x")
	require.ErrorIs(t, err, store.ErrPrincipalNotFound)
}

func TestMemoryPrincipalStore_TouchLastLogin(t *testing.T) {
	ctx := context.Background()
	st := NewPrincipalStore()

	principal := newPrincipal("alice")
	require.NoError(t, st.Create(ctx, principal))
	require.Nil(t, principal.LastLoginAt)

	require.NoError(t, st.TouchLastLogin(ctx, principal.PrincipalID))

	got, err := st.Get(ctx, principal.PrincipalID)
	require.NoError(t, err)
	require.NotNil(t, got.LastLoginAt)
}
