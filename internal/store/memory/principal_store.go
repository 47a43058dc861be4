package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tonearm/tonearm/internal/models"
	"github.com/tonearm/tonearm/internal/store"
)

// PrincipalStore implements store.PrincipalStore using in-memory storage.
type PrincipalStore struct {
	mu sync.RWMutex

	principals map[uuid.UUID]*models.Principal // principal_id -> Principal
	byUsername map[string]uuid.UUID            // username -> principal_id
}

// NewPrincipalStore creates a new in-memory principal store.
func NewPrincipalStore() *PrincipalStore {
	return &PrincipalStore{
		principals: make(map[uuid.UUID]*models.Principal),
		byUsername: make(map[string]uuid.UUID),
	}
}

// Create persists a new principal.
func (s *PrincipalStore) Create(ctx context.Context, principal *models.Principal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byUsername[principal.Username]; exists {
		return store.ErrPrincipalAlreadyExists
	}

	clone := *principal
	s.principals[principal.PrincipalID] = &clone
	s.byUsername[principal.Username] = principal.PrincipalID

	return nil
}

// Get retrieves a principal by id.
func (s *PrincipalStore) Get(ctx context.Context, principalID uuid.UUID) (*models.Principal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	principal, exists := s.principals[principalID]
	if !exists {
		return nil, store.ErrPrincipalNotFound
	}

	clone := *principal
	return &clone, nil
}

// GetByUsername retrieves a principal by its unique username.
func (s *PrincipalStore) GetByUsername(ctx context.Context, username string) (*models.Principal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	principalID, exists := s.byUsername[username]
	if !exists {
		return nil, store.ErrPrincipalNotFound
	}

	clone := *s.principals[principalID]
	return &clone, nil
}

// UpdatePasswordHash replaces the stored password hash.
func (s *PrincipalStore) UpdatePasswordHash(ctx context.Context, principalID uuid.UUID, hash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	principal, exists := s.principals[principalID]
	if !exists {
		return store.ErrPrincipalNotFound
	}

	principal.PasswordHash = hash
	return nil
}

// TouchLastLogin records a successful login.
func (s *PrincipalStore) TouchLastLogin(ctx context.Context, principalID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	principal, exists := s.principals[principalID]
	if !exists {
		return store.ErrPrincipalNotFound
	}

	now := time.Now()
	principal.LastLoginAt = &now
	return nil
}
