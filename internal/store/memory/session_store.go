package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tonearm/tonearm/internal/models"
	"github.com/tonearm/tonearm/internal/store"
)

// SessionStore implements store.SessionStore using in-memory storage.
// Data is lost on restart; intended for tests and development mode.
type SessionStore struct {
	mu sync.RWMutex

	sessions            map[uuid.UUID]*models.Session // session_id -> Session
	sessionsByPrincipal map[uuid.UUID][]uuid.UUID     // principal_id -> []session_id
}

// NewSessionStore creates a new in-memory session store.
func NewSessionStore() *SessionStore {
	return &SessionStore{
		sessions:            make(map[uuid.UUID]*models.Session),
		sessionsByPrincipal: make(map[uuid.UUID][]uuid.UUID),
	}
}

// Create persists a new session in memory.
func (s *SessionStore) Create(ctx context.Context, session *models.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Clone to avoid external modifications
	clone := *session
	s.sessions[session.SessionID] = &clone

	s.sessionsByPrincipal[session.PrincipalID] = append(
		s.sessionsByPrincipal[session.PrincipalID],
		session.SessionID,
	)

	return nil
}

// GetValid returns the session only if it is non-revoked and unexpired.
func (s *SessionStore) GetValid(ctx context.Context, sessionID uuid.UUID) (*models.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	session, exists := s.sessions[sessionID]
	if !exists || !session.IsValid(time.Now()) {
		return nil, store.ErrSessionNotValid
	}

	clone := *session
	return &clone, nil
}

// Touch re-extends the sliding expiry window from now.
func (s *SessionStore) Touch(ctx context.Context, sessionID uuid.UUID, ttl time.Duration) (*models.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, exists := s.sessions[sessionID]
	if !exists || session.Revoked {
		return nil, store.ErrSessionNotFound
	}

	now := time.Now()
	session.LastActivityAt = now
	session.ExpiresAt = now.Add(ttl)

	clone := *session
	return &clone, nil
}

// Revoke marks a session revoked. Idempotent.
func (s *SessionStore) Revoke(ctx context.Context, sessionID uuid.UUID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, exists := s.sessions[sessionID]
	if !exists {
		return false, nil
	}
	if session.Revoked {
		return false, nil
	}

	session.Revoked = true
	return true, nil
}

// RevokeAllForPrincipal revokes every live session for a principal.
func (s *SessionStore) RevokeAllForPrincipal(ctx context.Context, principalID uuid.UUID) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	count := 0
	for _, sessionID := range s.sessionsByPrincipal[principalID] {
		session, exists := s.sessions[sessionID]
		if !exists || session.Revoked {
			continue
		}
		session.Revoked = true
		count++
	}

	return count, nil
}

// ListForPrincipal returns the principal's valid sessions.
func (s *SessionStore) ListForPrincipal(ctx context.Context, principalID uuid.UUID) ([]*models.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	now := time.Now()
	var sessions []*models.Session
	for _, sessionID := range s.sessionsByPrincipal[principalID] {
		session, exists := s.sessions[sessionID]
		if !exists || !session.IsValid(now) {
			continue
		}
		clone := *session
		sessions = append(sessions, &clone)
	}

	return sessions, nil
}

// PurgeExpired deletes rows past expiry regardless of revoked state.
func (s *SessionStore) PurgeExpired(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	var toDelete []uuid.UUID
	for id, session := range s.sessions {
		if now.After(session.ExpiresAt) {
			toDelete = append(toDelete, id)
		}
	}

	for _, sessionID := range toDelete {
		session := s.sessions[sessionID]
		s.removeFromPrincipalIndex(session.PrincipalID, sessionID)
		delete(s.sessions, sessionID)
	}

	return len(toDelete), nil
}

// removeFromPrincipalIndex removes a session ID from the principal's session list.
func (s *SessionStore) removeFromPrincipalIndex(principalID, sessionID uuid.UUID) {
	sessionIDs := s.sessionsByPrincipal[principalID]
	for i, id := range sessionIDs {
		if id == sessionID {
			s.sessionsByPrincipal[principalID] = append(sessionIDs[:i], sessionIDs[i+1:]...)
			break
		}
	}
	if len(s.sessionsByPrincipal[principalID]) == 0 {
		delete(s.sessionsByPrincipal, principalID)
	}
}
