package store

import (
	"context"

	"github.com/google/uuid"
	"github.com/tonearm/tonearm/internal/models"
)

// APITokenStore defines the interface for long-lived API token persistence.
type APITokenStore interface {
	// Create persists a new token record.
	Create(ctx context.Context, token *models.APIToken) error

	// GetByTokenID retrieves a token by its public token-id component.
	GetByTokenID(ctx context.Context, tokenID string) (*models.APIToken, error)

	// GetByName retrieves a token by (principal, name), used to implement
	// supersede semantics at issuance.
	GetByName(ctx context.Context, principalID uuid.UUID, name string) (*models.APIToken, error)

	// TouchLastUsed records a successful verification. Best-effort for
	// callers; failure must not abort an already-authenticated request.
	TouchLastUsed(ctx context.Context, id uuid.UUID) error

	// Delete removes a token. Returns true if a row was deleted.
	Delete(ctx context.Context, id uuid.UUID) (bool, error)

	// List returns tokens for a principal, or all tokens when principalID
	// is uuid.Nil.
	List(ctx context.Context, principalID uuid.UUID) ([]*models.APIToken, error)
}
