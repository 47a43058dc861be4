package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tonearm/tonearm/internal/models"
	"github.com/tonearm/tonearm/internal/store"
)

// APITokenStore implements store.APITokenStore using in-memory storage.
type APITokenStore struct {
	mu sync.RWMutex

	tokens    map[uuid.UUID]*models.APIToken // id -> APIToken
	byTokenID map[string]uuid.UUID           // public token_id -> id
}

// NewAPITokenStore creates a new in-memory API token store.
func NewAPITokenStore() *APITokenStore {
	return &APITokenStore{
		tokens:    make(map[uuid.UUID]*models.APIToken),
		byTokenID: make(map[string]uuid.UUID),
	}
}

// Create persists a new token record.
func (s *APITokenStore) Create(ctx context.Context, token *models.APIToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	clone := *token
	s.tokens[token.ID] = &clone
	s.byTokenID[token.TokenID] = token.ID

	return nil
}

// GetByTokenID retrieves a token by its public token-id component.
func (s *APITokenStore) GetByTokenID(ctx context.Context, tokenID string) (*models.APIToken, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, exists := s.byTokenID[tokenID]
	if !exists {
		return nil, store.ErrAPITokenNotFound
	}

	clone := *s.tokens[id]
	return &clone, nil
}

// GetByName retrieves a token by (principal, name).
func (s *APITokenStore) GetByName(ctx context.Context, principalID uuid.UUID, name string) (*models.APIToken, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, token := range s.tokens {
		if token.PrincipalID == principalID && token.Name == name {
			clone := *token
			return &clone, nil
		}
	}

	return nil, store.ErrAPITokenNotFound
}

// TouchLastUsed records a successful verification.
func (s *APITokenStore) TouchLastUsed(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	token, exists := s.tokens[id]
	if !exists {
		return store.ErrAPITokenNotFound
	}

	now := time.Now()
	token.LastUsedAt = &now
	return nil
}

// Delete removes a token.
func (s *APITokenStore) Delete(ctx context.Context, id uuid.UUID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	token, exists := s.tokens[id]
	if !exists {
		return false, nil
	}

	delete(s.byTokenID, token.TokenID)
	delete(s.tokens, id)
	return true, nil
}

// List returns tokens for a principal, or all tokens when principalID is uuid.Nil.
func (s *APITokenStore) List(ctx context.Context, principalID uuid.UUID) ([]*models.APIToken, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var tokens []*models.APIToken
	for _, token := range s.tokens {
		if principalID != uuid.Nil && token.PrincipalID != principalID {
			continue
		}
		clone := *token
		tokens = append(tokens, &clone)
	}

	sort.Slice(tokens, func(i, j int) bool {
		return tokens[i].CreatedAt.Before(tokens[j].CreatedAt)
	})

	return tokens, nil
}
