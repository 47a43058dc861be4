package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"github.com/tonearm/tonearm/internal/models"
	"github.com/tonearm/tonearm/internal/store"
)

func newTestStore(t *testing.T) *SessionStore {
	t.Helper()

	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = client.Close()
	})

	return NewSessionStore(client)
}

func newSession(principalID uuid.UUID, ttl time.Duration) *models.Session {
	now := time.Now()
	return &models.Session{
		SessionID:      uuid.New(),
		PrincipalID:    principalID,
		CreatedAt:      now,
		LastActivityAt: now,
		ExpiresAt:      now.Add(ttl),
		UserAgent:      "test-agent",
	}
}

func TestRedisSessionStore_GetValid(t *testing.T) {
	ctx := context.Background()

	t.Run("valid after creation", func(t *testing.T) {
		st := newTestStore(t)
		session := newSession(uuid.New(), time.Hour)
		require.NoError(t, st.Create(ctx, session))

		got, err := st.GetValid(ctx, session.SessionID)
		require.NoError(t, err)
		require.Equal(t, session.PrincipalID, got.PrincipalID)
		require.Equal(t, "test-agent", got.UserAgent)
		require.WithinDuration(t, session.ExpiresAt, got.ExpiresAt, time.Second)
	})

	t.Run("unknown, expired and revoked collapse", func(t *testing.T) {
		st := newTestStore(t)

		_, err := st.GetValid(ctx, uuid.New())
		require.ErrorIs(t, err, store.ErrSessionNotValid)

		expired := newSession(uuid.New(), -time.Second)
		require.NoError(t, st.Create(ctx, expired))
		_, err = st.GetValid(ctx, expired.SessionID)
		require.ErrorIs(t, err, store.ErrSessionNotValid)

		revoked := newSession(uuid.New(), time.Hour)
		require.NoError(t, st.Create(ctx, revoked))
		_, err = st.Revoke(ctx, revoked.SessionID)
		require.NoError(t, err)
		_, err = st.GetValid(ctx, revoked.SessionID)
		require.ErrorIs(t, err, store.ErrSessionNotValid)
	})
}

func TestRedisSessionStore_Touch(t *testing.T) {
	ctx := context.Background()

	t.Run("extends expiry", func(t *testing.T) {
		st := newTestStore(t)
		session := newSession(uuid.New(), time.Minute)
		require.NoError(t, st.Create(ctx, session))

		touched, err := st.Touch(ctx, session.SessionID, time.Hour)
		require.NoError(t, err)
		require.True(t, touched.ExpiresAt.After(session.ExpiresAt))
	})

	t.Run("revoked session cannot be touched", func(t *testing.T) {
		st := newTestStore(t)
		session := newSession(uuid.New(), time.Hour)
		require.NoError(t, st.Create(ctx, session))

		_, err := st.Revoke(ctx, session.SessionID)
		require.NoError(t, err)

		_, err = st.Touch(ctx, session.SessionID, time.Hour)
		require.ErrorIs(t, err, store.ErrSessionNotFound)
	})

	t.Run("missing session", func(t *testing.T) {
		st := newTestStore(t)

		_, err := st.Touch(ctx, uuid.New(), time.Hour)
		require.ErrorIs(t, err, store.ErrSessionNotFound)
	})
}

func TestRedisSessionStore_Revoke(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)

	session := newSession(uuid.New(), time.Hour)
	require.NoError(t, st.Create(ctx, session))

	affected, err := st.Revoke(ctx, session.SessionID)
	require.NoError(t, err)
	require.True(t, affected)

	// Idempotent.
	affected, err = st.Revoke(ctx, session.SessionID)
	require.NoError(t, err)
	require.False(t, affected)

	// Unknown id.
	affected, err = st.Revoke(ctx, uuid.New())
	require.NoError(t, err)
	require.False(t, affected)
}

func TestRedisSessionStore_RevokeAllForPrincipal(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	principalID := uuid.New()

	s1 := newSession(principalID, time.Hour)
	s2 := newSession(principalID, time.Hour)
	other := newSession(uuid.New(), time.Hour)
	require.NoError(t, st.Create(ctx, s1))
	require.NoError(t, st.Create(ctx, s2))
	require.NoError(t, st.Create(ctx, other))

	count, err := st.RevokeAllForPrincipal(ctx, principalID)
	require.NoError(t, err)
	require.Equal(t, 2, count)

	_, err = st.GetValid(ctx, s1.SessionID)
	require.ErrorIs(t, err, store.ErrSessionNotValid)
	_, err = st.GetValid(ctx, other.SessionID)
	require.NoError(t, err)

	s3 := newSession(principalID, time.Hour)
	require.NoError(t, st.Create(ctx, s3))
	_, err = st.GetValid(ctx, s3.SessionID)
	require.NoError(t, err)
}

func TestRedisSessionStore_ListForPrincipal(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	principalID := uuid.New()

	valid := newSession(principalID, time.Hour)
	expired := newSession(principalID, -time.Second)
	require.NoError(t, st.Create(ctx, valid))
	require.NoError(t, st.Create(ctx, expired))

	sessions, err := st.ListForPrincipal(ctx, principalID)
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	require.Equal(t, valid.SessionID, sessions[0].SessionID)
}

func TestRedisSessionStore_PurgeExpired(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)

	live := newSession(uuid.New(), time.Hour)
	expired := newSession(uuid.New(), -time.Second)
	revokedExpired := newSession(uuid.New(), -time.Second)
	require.NoError(t, st.Create(ctx, live))
	require.NoError(t, st.Create(ctx, expired))
	require.NoError(t, st.Create(ctx, revokedExpired))

	_, err := st.Revoke(ctx, revokedExpired.SessionID)
	require.NoError(t, err)

	count, err := st.PurgeExpired(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, count)

	got, err := st.GetValid(ctx, live.SessionID)
	require.NoError(t, err)
	require.Equal(t, live.SessionID, got.SessionID)
}
