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

// APITokenStore implements store.APITokenStore using PostgreSQL.
type APITokenStore struct {
	pool *pgxpool.Pool
}

// NewAPITokenStore creates a new PostgreSQL-backed API token store.
func NewAPITokenStore(pool *pgxpool.Pool) *APITokenStore {
	return &APITokenStore{
		pool: pool,
	}
}

// Create persists a new token record.
func (s *APITokenStore) Create(ctx context.Context, token *models.APIToken) error {
	query := `
		INSERT INTO api_tokens (
			id, name, principal_id, token_id, secret_hash, created_at, last_used_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7
		)
	`

	_, err := s.pool.Exec(ctx, query,
		token.ID,
		token.Name,
		token.PrincipalID,
		token.TokenID,
		token.SecretHash,
		token.CreatedAt,
		token.LastUsedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create api token: %w", mapPostgresError(err))
	}

	log.Debug().
		Str("token_id", token.TokenID).
		Str("principal_id", token.PrincipalID.String()).
		Str("name", token.Name).
		Msg("Created api token")

	return nil
}

// GetByTokenID retrieves a token by its public token-id component.
func (s *APITokenStore) GetByTokenID(ctx context.Context, tokenID string) (*models.APIToken, error) {
	query := `
		SELECT id, name, principal_id, token_id, secret_hash, created_at, last_used_at
		FROM api_tokens
		WHERE token_id = $1
	`

	return scanAPIToken(s.pool.QueryRow(ctx, query, tokenID))
}

// GetByName retrieves a token by (principal, name).
func (s *APITokenStore) GetByName(ctx context.Context, principalID uuid.UUID, name string) (*models.APIToken, error) {
	query := `
		SELECT id, name, principal_id, token_id, secret_hash, created_at, last_used_at
		FROM api_tokens
		WHERE principal_id = $1 AND name = $2
	`

	return scanAPIToken(s.pool.QueryRow(ctx, query, principalID, name))
}

// TouchLastUsed records a successful verification.
func (s *APITokenStore) TouchLastUsed(ctx context.Context, id uuid.UUID) error {
	query := `
		UPDATE api_tokens
		SET last_used_at = now()
		WHERE id = $1
	`

	result, err := s.pool.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to touch api token: %w", mapPostgresError(err))
	}

	if result.RowsAffected() == 0 {
		return store.ErrAPITokenNotFound
	}

	return nil
}

// Delete removes a token.
func (s *APITokenStore) Delete(ctx context.Context, id uuid.UUID) (bool, error) {
	query := `DELETE FROM api_tokens WHERE id = $1`

	result, err := s.pool.Exec(ctx, query, id)
	if err != nil {
		return false, fmt.Errorf("failed to delete api token: %w", mapPostgresError(err))
	}

	return result.RowsAffected() > 0, nil
}

// List returns tokens for a principal, or all tokens when principalID is
// uuid.Nil.
func (s *APITokenStore) List(ctx context.Context, principalID uuid.UUID) ([]*models.APIToken, error) {
	query := `
		SELECT id, name, principal_id, token_id, secret_hash, created_at, last_used_at
		FROM api_tokens
		WHERE $1::uuid IS NULL OR principal_id = $1
		ORDER BY created_at
	`

	var arg any
	if principalID != uuid.Nil {
		arg = principalID
	}

	rows, err := s.pool.Query(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("failed to list api tokens: %w", mapPostgresError(err))
	}
	defer rows.Close()

	var tokens []*models.APIToken
	for rows.Next() {
		token, err := scanAPIToken(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan api token: %w", err)
		}
		tokens = append(tokens, token)
	}

	return tokens, rows.Err()
}

func scanAPIToken(row pgx.Row) (*models.APIToken, error) {
	var token models.APIToken
	err := row.Scan(
		&token.ID,
		&token.Name,
		&token.PrincipalID,
		&token.TokenID,
		&token.SecretHash,
		&token.CreatedAt,
		&token.LastUsedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrAPITokenNotFound
		}
		return nil, mapPostgresError(err)
	}

	return &token, nil
}
