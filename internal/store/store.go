package store

import "errors"

// Sentinel errors for common error conditions
var (
	// ErrSessionNotValid is returned by GetValid when a session is unknown,
	// expired, or revoked. The three cases are deliberately indistinguishable
	// to callers so that session ids cannot be enumerated.
	ErrSessionNotValid = errors.New("session not valid")

	// ErrSessionNotFound is returned by Touch/Revoke when no live row exists.
	ErrSessionNotFound = errors.New("session not found")

	ErrPrincipalNotFound      = errors.New("principal not found")
	ErrPrincipalAlreadyExists = errors.New("principal already exists")

	ErrAPITokenNotFound = errors.New("api token not found")
)
