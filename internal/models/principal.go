package models

import (
	"time"

	"github.com/google/uuid"
)

// Role values for principals.
const (
	RoleAdmin = "admin"
	RoleUser  = "user"
)

// SystemPrincipalID identifies the synthetic "system" actor that owns API
// tokens issued without an explicit principal. It is not backed by a
// principals row and can never log in.
var SystemPrincipalID = uuid.NewSHA1(uuid.NameSpaceOID, []byte("tonearm/system"))

// Principal represents an identity in the system, either a human user with a
// password or a synthetic "system" actor that only holds API tokens.
type Principal struct {
	PrincipalID uuid.UUID // UUIDv7
	Username    string    // Unique
	Role        string    // "admin" or "user"

	// Argon2id PHC string. Empty for synthetic principals that never log in
	// with a password.
	PasswordHash string

	CreatedAt   time.Time
	LastLoginAt *time.Time
}

// IsAdmin returns true if the principal carries the admin role.
func (p *Principal) IsAdmin() bool {
	return p.Role == RoleAdmin
}
