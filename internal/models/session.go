package models

import (
	"time"

	"github.com/google/uuid"
)

// Session represents one logged-in device/browser instance. The session ID is
// the only value handed to the client (inside signed tokens); all session
// state lives server-side so it can be revoked.
type Session struct {
	SessionID   uuid.UUID // UUIDv4, fully random
	PrincipalID uuid.UUID

	CreatedAt      time.Time
	LastActivityAt time.Time
	ExpiresAt      time.Time // always LastActivityAt + TTL (sliding window)
	Revoked        bool      // terminal once set

	// Optional audit metadata
	UserAgent string
	ClientIP  string
}

// IsValid reports whether the session can still authenticate requests:
// not revoked and not past its sliding-window expiry.
func (s *Session) IsValid(now time.Time) bool {
	return !s.Revoked && now.Before(s.ExpiresAt)
}
