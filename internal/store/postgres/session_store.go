package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
	"github.com/tonearm/tonearm/internal/models"
	"github.com/tonearm/tonearm/internal/store"
)

// SessionStore implements store.SessionStore using PostgreSQL.
type SessionStore struct {
	pool *pgxpool.Pool
}

// NewSessionStore creates a new PostgreSQL-backed session store.
func NewSessionStore(pool *pgxpool.Pool) *SessionStore {
	return &SessionStore{
		pool: pool,
	}
}

// Create persists a new session.
func (s *SessionStore) Create(ctx context.Context, session *models.Session) error {
	query := `
		INSERT INTO sessions (
			session_id, principal_id,
			created_at, last_activity_at, expires_at,
			revoked, user_agent, client_ip
		) VALUES (
			$1, $2, $3, $4, $5, false, $6, $7
		)
	`

	_, err := s.pool.Exec(ctx, query,
		session.SessionID,
		session.PrincipalID,
		session.CreatedAt,
		session.LastActivityAt,
		session.ExpiresAt,
		session.UserAgent,
		session.ClientIP,
	)
	if err != nil {
		return fmt.Errorf("failed to create session: %w", mapPostgresError(err))
	}

	log.Debug().
		Str("session_id", session.SessionID.String()).
		Str("principal_id", session.PrincipalID.String()).
		Msg("Created session")

	return nil
}

// GetValid returns the session only if it is non-revoked and unexpired.
// Unknown, revoked and expired sessions are indistinguishable to the caller;
// the WHERE clause folds all three into no-rows.
func (s *SessionStore) GetValid(ctx context.Context, sessionID uuid.UUID) (*models.Session, error) {
	query := `
		SELECT
			session_id, principal_id,
			created_at, last_activity_at, expires_at,
			revoked, user_agent, client_ip
		FROM sessions
		WHERE session_id = $1
		  AND NOT revoked
		  AND expires_at > now()
	`

	session, err := scanSession(s.pool.QueryRow(ctx, query, sessionID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrSessionNotValid
		}
		return nil, fmt.Errorf("failed to get session: %w", mapPostgresError(err))
	}

	return session, nil
}

// Touch re-extends the sliding expiry window from now. The `NOT revoked`
// guard means a touch racing a revoke can never resurrect the session.
func (s *SessionStore) Touch(ctx context.Context, sessionID uuid.UUID, ttl time.Duration) (*models.Session, error) {
	query := `
		UPDATE sessions
		SET last_activity_at = now(),
		    expires_at = now() + $2
		WHERE session_id = $1
		  AND NOT revoked
		RETURNING
			session_id, principal_id,
			created_at, last_activity_at, expires_at,
			revoked, user_agent, client_ip
	`

	session, err := scanSession(s.pool.QueryRow(ctx, query, sessionID, ttl))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to touch session: %w", mapPostgresError(err))
	}

	return session, nil
}

// Revoke marks a session revoked. Idempotent: a second call affects no rows.
func (s *SessionStore) Revoke(ctx context.Context, sessionID uuid.UUID) (bool, error) {
	query := `
		UPDATE sessions
		SET revoked = true
		WHERE session_id = $1
		  AND NOT revoked
	`

	result, err := s.pool.Exec(ctx, query, sessionID)
	if err != nil {
		return false, fmt.Errorf("failed to revoke session: %w", mapPostgresError(err))
	}

	affected := result.RowsAffected() > 0
	if affected {
		log.Debug().
			Str("session_id", sessionID.String()).
			Msg("Revoked session")
	}

	return affected, nil
}

// RevokeAllForPrincipal revokes every live session for a principal.
func (s *SessionStore) RevokeAllForPrincipal(ctx context.Context, principalID uuid.UUID) (int, error) {
	query := `
		UPDATE sessions
		SET revoked = true
		WHERE principal_id = $1
		  AND NOT revoked
	`

	result, err := s.pool.Exec(ctx, query, principalID)
	if err != nil {
		return 0, fmt.Errorf("failed to revoke sessions by principal: %w", mapPostgresError(err))
	}

	count := int(result.RowsAffected())

	log.Info().
		Str("principal_id", principalID.String()).
		Int("count", count).
		Msg("Revoked all sessions for principal")

	return count, nil
}

// ListForPrincipal returns the principal's valid sessions, newest activity
// first.
func (s *SessionStore) ListForPrincipal(ctx context.Context, principalID uuid.UUID) ([]*models.Session, error) {
	query := `
		SELECT
			session_id, principal_id,
			created_at, last_activity_at, expires_at,
			revoked, user_agent, client_ip
		FROM sessions
		WHERE principal_id = $1
		  AND NOT revoked
		  AND expires_at > now()
		ORDER BY last_activity_at DESC
	`

	rows, err := s.pool.Query(ctx, query, principalID)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", mapPostgresError(err))
	}
	defer rows.Close()

	var sessions []*models.Session
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		sessions = append(sessions, session)
	}

	return sessions, rows.Err()
}

// PurgeExpired deletes rows past expiry regardless of revoked state. The
// cutoff is evaluated per row at deletion time, so a concurrent Touch that
// extends a session past now() keeps the row alive.
func (s *SessionStore) PurgeExpired(ctx context.Context) (int, error) {
	query := `DELETE FROM sessions WHERE expires_at < now()`

	result, err := s.pool.Exec(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("failed to purge expired sessions: %w", mapPostgresError(err))
	}

	count := int(result.RowsAffected())
	if count > 0 {
		log.Info().
			Int("count", count).
			Msg("Purged expired sessions")
	}

	return count, nil
}

func scanSession(row pgx.Row) (*models.Session, error) {
	var session models.Session
	err := row.Scan(
		&session.SessionID,
		&session.PrincipalID,
		&session.CreatedAt,
		&session.LastActivityAt,
		&session.ExpiresAt,
		&session.Revoked,
		&session.UserAgent,
		&session.ClientIP,
	)
	if err != nil {
		return nil, err
	}
	return &session, nil
}
