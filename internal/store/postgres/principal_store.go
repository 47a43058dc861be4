package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
	"github.com/tonearm/tonearm/internal/models"
	"github.com/tonearm/tonearm/internal/store"
)

// PrincipalStore implements store.PrincipalStore using PostgreSQL.
// It shares the connection pool with the other stores.
type PrincipalStore struct {
	pool *pgxpool.Pool
}

// NewPrincipalStore creates a new PostgreSQL-backed principal store.
func NewPrincipalStore(pool *pgxpool.Pool) *PrincipalStore {
	return &PrincipalStore{
		pool: pool,
	}
}

// Create persists a new principal.
func (s *PrincipalStore) Create(ctx context.Context, principal *models.Principal) error {
	query := `
		INSERT INTO principals (
			principal_id, username, role, password_hash, created_at, last_login_at
		) VALUES (
			$1, $2, $3, $4, $5, $6
		)
	`

	_, err := s.pool.Exec(ctx, query,
		principal.PrincipalID,
		principal.Username,
		principal.Role,
		principal.PasswordHash,
		principal.CreatedAt,
		principal.LastLoginAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create principal: %w", mapPostgresError(err))
	}

	log.Debug().
		Str("principal_id", principal.PrincipalID.String()).
		Str("username", principal.Username).
		Msg("Created principal")

	return nil
}

// Get retrieves a principal by id.
func (s *PrincipalStore) Get(ctx context.Context, principalID uuid.UUID) (*models.Principal, error) {
	query := `
		SELECT principal_id, username, role, password_hash, created_at, last_login_at
		FROM principals
		WHERE principal_id = $1
	`

	return s.queryOne(ctx, query, principalID)
}

// GetByUsername retrieves a principal by its unique username.
func (s *PrincipalStore) GetByUsername(ctx context.Context, username string) (*models.Principal, error) {
	query := `
		SELECT principal_id, username, role, password_hash, created_at, last_login_at
		FROM principals
		WHERE username = $1
	`

	return s.queryOne(ctx, query, username)
}

// UpdatePasswordHash replaces the stored password hash.
func (s *PrincipalStore) UpdatePasswordHash(ctx context.Context, principalID uuid.UUID, hash string) error {
	query := `
		UPDATE principals
		SET password_hash = $2
		WHERE principal_id = $1
	`

	result, err := s.pool.Exec(ctx, query, principalID, hash)
	if err != nil {
		return fmt.Errorf("failed to update password hash: %w", mapPostgresError(err))
	}

	if result.RowsAffected() == 0 {
		return store.ErrPrincipalNotFound
	}

	return nil
}

// TouchLastLogin records a successful login.
func (s *PrincipalStore) TouchLastLogin(ctx context.Context, principalID uuid.UUID) error {
	query := `
		UPDATE principals
		SET last_login_at = now()
		WHERE principal_id = $1
	`

	result, err := s.pool.Exec(ctx, query, principalID)
	if err != nil {
		return fmt.Errorf("failed to touch last login: %w", mapPostgresError(err))
	}

	if result.RowsAffected() == 0 {
		return store.ErrPrincipalNotFound
	}

	return nil
}

func (s *PrincipalStore) queryOne(ctx context.Context, query string, arg any) (*models.Principal, error) {
	var principal models.Principal
	err := s.pool.QueryRow(ctx, query, arg).Scan(
		&principal.PrincipalID,
		&principal.Username,
		&principal.Role,
		&principal.PasswordHash,
		&principal.CreatedAt,
		&principal.LastLoginAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrPrincipalNotFound
		}
		return nil, fmt.Errorf("failed to get principal: %w", mapPostgresError(err))
	}

	return &principal, nil
}
