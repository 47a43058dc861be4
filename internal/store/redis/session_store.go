// Package redis provides a Redis-backed session store for deployments that
// keep sessions out of the relational database. Each session is a hash under
// "session:{id}" with a per-principal index set; key TTLs give free
// expiry-based cleanup on top of PurgeExpired.
package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"github.com/tonearm/tonearm/internal/models"
	"github.com/tonearm/tonearm/internal/store"
)

const (
	sessionKeyPrefix   = "session:"
	principalKeyPrefix = "principal_sessions:"

	// keyGrace keeps expired rows around briefly so PurgeExpired counts
	// them like the SQL stores do, instead of redis silently dropping them.
	keyGrace = 24 * time.Hour
)

// touchScript extends the sliding window only if the session exists and is
// not revoked; a touch racing a revoke must never resurrect the session.
var touchScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then return 0 end
if redis.call('HGET', KEYS[1], 'revoked') == '1' then return 0 end
redis.call('HSET', KEYS[1], 'last_activity_at', ARGV[1], 'expires_at', ARGV[2])
redis.call('PEXPIRE', KEYS[1], ARGV[3])
return 1
`)

// revokeScript sets the terminal revoked flag, reporting whether a live row
// was affected.
var revokeScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then return 0 end
if redis.call('HGET', KEYS[1], 'revoked') == '1' then return 0 end
redis.call('HSET', KEYS[1], 'revoked', '1')
return 1
`)

// SessionStore implements store.SessionStore using Redis.
type SessionStore struct {
	client *redis.Client
}

// NewSessionStore creates a new Redis-backed session store.
func NewSessionStore(client *redis.Client) *SessionStore {
	return &SessionStore{
		client: client,
	}
}

func sessionKey(sessionID uuid.UUID) string {
	return sessionKeyPrefix + sessionID.String()
}

func principalKey(principalID uuid.UUID) string {
	return principalKeyPrefix + principalID.String()
}

// Create persists a new session.
func (s *SessionStore) Create(ctx context.Context, session *models.Session) error {
	key := sessionKey(session.SessionID)

	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, key, map[string]any{
		"principal_id":     session.PrincipalID.String(),
		"created_at":       session.CreatedAt.UnixMilli(),
		"last_activity_at": session.LastActivityAt.UnixMilli(),
		"expires_at":       session.ExpiresAt.UnixMilli(),
		"revoked":          "0",
		"user_agent":       session.UserAgent,
		"client_ip":        session.ClientIP,
	})
	pipe.PExpireAt(ctx, key, session.ExpiresAt.Add(keyGrace))
	pipe.SAdd(ctx, principalKey(session.PrincipalID), session.SessionID.String())

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}

	log.Debug().
		Str("session_id", session.SessionID.String()).
		Str("principal_id", session.PrincipalID.String()).
		Msg("Created session")

	return nil
}

// GetValid returns the session only if it is non-revoked and unexpired.
func (s *SessionStore) GetValid(ctx context.Context, sessionID uuid.UUID) (*models.Session, error) {
	session, err := s.get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session == nil || !session.IsValid(time.Now()) {
		return nil, store.ErrSessionNotValid
	}

	return session, nil
}

// Touch re-extends the sliding expiry window from now.
func (s *SessionStore) Touch(ctx context.Context, sessionID uuid.UUID, ttl time.Duration) (*models.Session, error) {
	now := time.Now()
	expiresAt := now.Add(ttl)

	affected, err := touchScript.Run(ctx, s.client, []string{sessionKey(sessionID)},
		now.UnixMilli(),
		expiresAt.UnixMilli(),
		ttl.Milliseconds()+keyGrace.Milliseconds(),
	).Int()
	if err != nil {
		return nil, fmt.Errorf("failed to touch session: %w", err)
	}
	if affected == 0 {
		return nil, store.ErrSessionNotFound
	}

	session, err := s.get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, store.ErrSessionNotFound
	}

	return session, nil
}

// Revoke marks a session revoked. Idempotent.
func (s *SessionStore) Revoke(ctx context.Context, sessionID uuid.UUID) (bool, error) {
	affected, err := revokeScript.Run(ctx, s.client, []string{sessionKey(sessionID)}).Int()
	if err != nil {
		return false, fmt.Errorf("failed to revoke session: %w", err)
	}

	return affected == 1, nil
}

// RevokeAllForPrincipal revokes every live session for a principal.
func (s *SessionStore) RevokeAllForPrincipal(ctx context.Context, principalID uuid.UUID) (int, error) {
	ids, err := s.client.SMembers(ctx, principalKey(principalID)).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to list principal sessions: %w", err)
	}

	count := 0
	for _, id := range ids {
		sessionID, err := uuid.Parse(id)
		if err != nil {
			continue
		}
		affected, err := s.Revoke(ctx, sessionID)
		if err != nil {
			return count, err
		}
		if affected {
			count++
		}
	}

	log.Info().
		Str("principal_id", principalID.String()).
		Int("count", count).
		Msg("Revoked all sessions for principal")

	return count, nil
}

// ListForPrincipal returns the principal's valid sessions. Index entries for
// sessions redis has already dropped are pruned along the way.
func (s *SessionStore) ListForPrincipal(ctx context.Context, principalID uuid.UUID) ([]*models.Session, error) {
	ids, err := s.client.SMembers(ctx, principalKey(principalID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list principal sessions: %w", err)
	}

	now := time.Now()
	var sessions []*models.Session
	for _, id := range ids {
		sessionID, err := uuid.Parse(id)
		if err != nil {
			continue
		}
		session, err := s.get(ctx, sessionID)
		if err != nil {
			return nil, err
		}
		if session == nil {
			s.client.SRem(ctx, principalKey(principalID), id)
			continue
		}
		if session.IsValid(now) {
			sessions = append(sessions, session)
		}
	}

	return sessions, nil
}

// PurgeExpired deletes rows past expiry regardless of revoked state. The
// expiry is re-read per key, so a concurrent Touch that extended a session
// keeps it alive.
func (s *SessionStore) PurgeExpired(ctx context.Context) (int, error) {
	now := time.Now()
	count := 0

	iter := s.client.Scan(ctx, 0, sessionKeyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()

		expiresAt, err := s.client.HGet(ctx, key, "expires_at").Int64()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			return count, fmt.Errorf("failed to read session expiry: %w", err)
		}

		if time.UnixMilli(expiresAt).Before(now) {
			principalID, _ := s.client.HGet(ctx, key, "principal_id").Result()
			if err := s.client.Del(ctx, key).Err(); err != nil {
				return count, fmt.Errorf("failed to delete expired session: %w", err)
			}
			if principalID != "" {
				s.client.SRem(ctx, principalKeyPrefix+principalID, key[len(sessionKeyPrefix):])
			}
			count++
		}
	}
	if err := iter.Err(); err != nil {
		return count, fmt.Errorf("failed to scan sessions: %w", err)
	}

	if count > 0 {
		log.Info().
			Int("count", count).
			Msg("Purged expired sessions")
	}

	return count, nil
}

// get loads a session hash; returns (nil, nil) when the key is gone.
func (s *SessionStore) get(ctx context.Context, sessionID uuid.UUID) (*models.Session, error) {
	fields, err := s.client.HGetAll(ctx, sessionKey(sessionID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	if len(fields) == 0 {
		return nil, nil
	}

	principalID, err := uuid.Parse(fields["principal_id"])
	if err != nil {
		return nil, fmt.Errorf("corrupt session %s: %w", sessionID, err)
	}

	createdAt, err := parseMilli(fields["created_at"])
	if err != nil {
		return nil, fmt.Errorf("corrupt session %s: %w", sessionID, err)
	}
	lastActivityAt, err := parseMilli(fields["last_activity_at"])
	if err != nil {
		return nil, fmt.Errorf("corrupt session %s: %w", sessionID, err)
	}
	expiresAt, err := parseMilli(fields["expires_at"])
	if err != nil {
		return nil, fmt.Errorf("corrupt session %s: %w", sessionID, err)
	}

	return &models.Session{
		SessionID:      sessionID,
		PrincipalID:    principalID,
		CreatedAt:      createdAt,
		LastActivityAt: lastActivityAt,
		ExpiresAt:      expiresAt,
		Revoked:        fields["revoked"] == "1",
		UserAgent:      fields["user_agent"],
		ClientIP:       fields["client_ip"],
	}, nil
}

func parseMilli(v string) (time.Time, error) {
	ms, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return time.Time{}, err
	}
	return time.UnixMilli(ms), nil
}
