package models

import (
	"time"

	"github.com/google/uuid"
)

// APIToken is a long-lived opaque credential issued to a principal. The
// credential handed to the caller is "{token_id}.{secret}"; only an argon2id
// hash of the full credential is persisted, never the secret itself.
type APIToken struct {
	ID          uuid.UUID // UUIDv7, internal row id
	Name        string    // human-readable label, unique per principal
	PrincipalID uuid.UUID

	TokenID    string // public component, base58
	SecretHash string // argon2id PHC string of "{token_id}.{secret}"

	CreatedAt  time.Time
	LastUsedAt *time.Time
}
