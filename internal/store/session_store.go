package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/tonearm/tonearm/internal/models"
)

// SessionStore defines the interface for session persistence.
//
// Touch and Revoke are idempotent single-row updates; no implementation may
// un-revoke a session or let Touch extend a session that a concurrent Revoke
// already terminated.
type SessionStore interface {
	// Create persists a new session record.
	Create(ctx context.Context, session *models.Session) error

	// GetValid returns the session only if it is non-revoked and unexpired.
	// Unknown, expired and revoked sessions all return ErrSessionNotValid.
	GetValid(ctx context.Context, sessionID uuid.UUID) (*models.Session, error)

	// Touch re-extends the sliding expiry window from now. It never touches
	// a revoked session. Returns the updated session, or ErrSessionNotFound
	// when the session no longer exists or is revoked.
	Touch(ctx context.Context, sessionID uuid.UUID, ttl time.Duration) (*models.Session, error)

	// Revoke marks a session revoked. Idempotent; returns true if a live row
	// was affected.
	Revoke(ctx context.Context, sessionID uuid.UUID) (bool, error)

	// RevokeAllForPrincipal revokes every live session for a principal
	// (logout everywhere, password change). Returns the number revoked.
	RevokeAllForPrincipal(ctx context.Context, principalID uuid.UUID) (int, error)

	// ListForPrincipal returns all non-revoked, unexpired sessions owned by
	// the principal.
	ListForPrincipal(ctx context.Context, principalID uuid.UUID) ([]*models.Session, error)

	// PurgeExpired deletes rows past expiry regardless of revoked state.
	// Safe to run concurrently with authentication traffic.
	PurgeExpired(ctx context.Context) (int, error)
}
