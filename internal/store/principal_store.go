package store

import (
	"context"

	"github.com/google/uuid"
	"github.com/tonearm/tonearm/internal/models"
)

// PrincipalStore defines the interface for principal (user) persistence.
type PrincipalStore interface {
	// Create persists a new principal. Returns ErrPrincipalAlreadyExists if
	// the username is taken.
	Create(ctx context.Context, principal *models.Principal) error

	// Get retrieves a principal by id.
	Get(ctx context.Context, principalID uuid.UUID) (*models.Principal, error)

	// GetByUsername retrieves a principal by its unique username.
	GetByUsername(ctx context.Context, username string) (*models.Principal, error)

	// UpdatePasswordHash replaces the stored password hash.
	UpdatePasswordHash(ctx context.Context, principalID uuid.UUID, hash string) error

	// TouchLastLogin records a successful login. Best-effort for callers;
	// they log failures rather than failing the login.
	TouchLastLogin(ctx context.Context, principalID uuid.UUID) error
}
