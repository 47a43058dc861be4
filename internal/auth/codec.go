package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const tokenIssuer = "tonearm"

// ErrInvalidToken is returned by Verify for any credential that is not a
// live signed token: bad signature, expired, or structurally malformed.
// Callers must not relay the distinction; it exists only for debug logging
// via errors.Is against the jwt sentinel errors wrapped inside.
var ErrInvalidToken = errors.New("invalid token")

// TokenClaims are the verified claims carried by a signed session token.
// The role is trusted from the signature and not re-read from the principal
// store, so a role change takes effect on the next issued token.
type TokenClaims struct {
	PrincipalID uuid.UUID
	Username    string
	Role        string
	SessionID   uuid.UUID
	IssuedAt    time.Time
	ExpiresAt   time.Time
}

type wireClaims struct {
	Username  string `json:"username"`
	Role      string `json:"role"`
	SessionID string `json:"sid"`
	jwt.RegisteredClaims
}

// TokenCodec issues and verifies short-lived signed session tokens using a
// symmetric HMAC-SHA256 key. The key is process-wide configuration, loaded
// once; rotation is out of scope.
type TokenCodec struct {
	signingKey []byte
	ttl        time.Duration
}

// NewTokenCodec creates a codec. The signing key must be at least 32 bytes
// (256 bits) for HMAC-SHA256.
func NewTokenCodec(signingKey []byte, ttl time.Duration) (*TokenCodec, error) {
	if len(signingKey) < 32 {
		return nil, errors.New("signing key must be at least 32 bytes (256 bits) for HMAC-SHA256")
	}
	if ttl <= 0 {
		return nil, errors.New("token TTL must be greater than 0")
	}

	return &TokenCodec{signingKey: signingKey, ttl: ttl}, nil
}

// TTL returns the lifetime applied to issued tokens.
func (c *TokenCodec) TTL() time.Duration {
	return c.ttl
}

// Issue creates a signed token binding the principal's claims to a session.
func (c *TokenCodec) Issue(principalID uuid.UUID, username, role string, sessionID uuid.UUID) (string, error) {
	now := time.Now()
	claims := &wireClaims{
		Username:  username,
		Role:      role,
		SessionID: sessionID.String(),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   principalID.String(),
			Issuer:    tokenIssuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(c.ttl)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(c.signingKey)
	if err != nil {
		return "", fmt.Errorf("signing token: %w", err)
	}

	return signed, nil
}

// Verify checks signature integrity and expiry, returning the claims on
// success. Every failure mode wraps ErrInvalidToken.
func (c *TokenCodec) Verify(tokenString string) (*TokenClaims, error) {
	parsed, err := jwt.ParseWithClaims(tokenString, &wireClaims{}, func(t *jwt.Token) (any, error) {
		return c.signingKey, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithIssuer(tokenIssuer), jwt.WithExpirationRequired())
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}

	claims, ok := parsed.Claims.(*wireClaims)
	if !ok || !parsed.Valid {
		return nil, ErrInvalidToken
	}

	principalID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return nil, fmt.Errorf("%w: bad subject", ErrInvalidToken)
	}

	sessionID, err := uuid.Parse(claims.SessionID)
	if err != nil {
		return nil, fmt.Errorf("%w: bad session id", ErrInvalidToken)
	}

	return &TokenClaims{
		PrincipalID: principalID,
		Username:    claims.Username,
		Role:        claims.Role,
		SessionID:   sessionID,
		IssuedAt:    claims.IssuedAt.Time,
		ExpiresAt:   claims.ExpiresAt.Time,
	}, nil
}
