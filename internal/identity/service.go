// Package identity owns the credential lifecycle: registration, login,
// session refresh, logout and password changes, plus API token issuance.
// Request-time authentication lives in internal/auth; this package only
// creates and destroys the credentials that auth later resolves.
package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/tonearm/tonearm/internal/auth"
	"github.com/tonearm/tonearm/internal/models"
	"github.com/tonearm/tonearm/internal/store"
)

var (
	// ErrInvalidCredentials is deliberately generic: it never reveals
	// whether the username exists or the password was wrong.
	ErrInvalidCredentials = errors.New("invalid username or password")

	// ErrUsernameTaken is returned by Register for a duplicate username.
	ErrUsernameTaken = errors.New("username already taken")

	// ErrSessionNotValid is returned by Refresh when the presented session
	// is unknown, expired or revoked.
	ErrSessionNotValid = errors.New("session not valid")

	// ErrUsernameRequired is returned by Register for a blank username.
	ErrUsernameRequired = errors.New("username is required")

	// ErrPasswordTooShort is returned when a new password fails the
	// minimum length check.
	ErrPasswordTooShort = errors.New("password must be at least 8 characters")
)

const minPasswordLen = 8

// LoginResult carries everything a login/registration/refresh hands back to
// the boundary layer: the principal, the server-side session, and the signed
// token bound to it.
type LoginResult struct {
	Principal   *models.Principal
	Session     *models.Session
	SignedToken string
}

// Service implements the principal and session lifecycle over the stores.
type Service struct {
	hasher     *auth.Hasher
	codec      *auth.TokenCodec
	principals store.PrincipalStore
	sessions   store.SessionStore
	sessionTTL time.Duration
}

// NewService creates the lifecycle service. sessionTTL is the sliding-window
// length applied at creation and on every refresh.
func NewService(hasher *auth.Hasher, codec *auth.TokenCodec, principals store.PrincipalStore, sessions store.SessionStore, sessionTTL time.Duration) *Service {
	return &Service{
		hasher:     hasher,
		codec:      codec,
		principals: principals,
		sessions:   sessions,
		sessionTTL: sessionTTL,
	}
}

// Register creates a new principal with the user role, opens its first
// session and issues a signed token.
func (s *Service) Register(ctx context.Context, username, password, userAgent, clientIP string) (*LoginResult, error) {
	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" {
		return nil, ErrUsernameRequired
	}
	if len(password) < minPasswordLen {
		return nil, ErrPasswordTooShort
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return nil, fmt.Errorf("hashing password: %w", err)
	}

	principal := &models.Principal{
		PrincipalID:  uuid.Must(uuid.NewV7()),
		Username:     username,
		Role:         models.RoleUser,
		PasswordHash: hash,
		CreatedAt:    time.Now(),
	}

	if err := s.principals.Create(ctx, principal); err != nil {
		if errors.Is(err, store.ErrPrincipalAlreadyExists) {
			return nil, ErrUsernameTaken
		}
		return nil, fmt.Errorf("creating principal: %w", err)
	}

	log.Info().
		Str("principal_id", principal.PrincipalID.String()).
		Str("username", username).
		Msg("Registered principal")

	return s.openSession(ctx, principal, userAgent, clientIP)
}

// Login authenticates a username/password pair, opens a new session and
// issues a signed token bound to it.
func (s *Service) Login(ctx context.Context, username, password, userAgent, clientIP string) (*LoginResult, error) {
	username = strings.ToLower(strings.TrimSpace(username))

	principal, err := s.principals.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, store.ErrPrincipalNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("finding principal: %w", err)
	}

	if !s.hasher.Verify(principal.PasswordHash, password) {
		return nil, ErrInvalidCredentials
	}

	// Best-effort; a failed timestamp update must not fail the login.
	if err := s.principals.TouchLastLogin(ctx, principal.PrincipalID); err != nil {
		log.Warn().Err(err).
			Str("principal_id", principal.PrincipalID.String()).
			Msg("failed to update last login")
	}

	log.Info().
		Str("principal_id", principal.PrincipalID.String()).
		Str("username", username).
		Msg("Principal logged in")

	return s.openSession(ctx, principal, userAgent, clientIP)
}

// Refresh re-extends the session's sliding window and mints a new signed
// token for it. Previously issued tokens remain valid until their own
// expiry; refresh renews authority, it does not revoke.
func (s *Service) Refresh(ctx context.Context, sessionID uuid.UUID) (*LoginResult, error) {
	// Renewal requires a currently valid session; Touch alone would extend
	// an expired row that the sweeper has not collected yet.
	if _, err := s.sessions.GetValid(ctx, sessionID); err != nil {
		if errors.Is(err, store.ErrSessionNotValid) {
			return nil, ErrSessionNotValid
		}
		return nil, fmt.Errorf("validating session: %w", err)
	}

	session, err := s.sessions.Touch(ctx, sessionID, s.sessionTTL)
	if err != nil {
		if errors.Is(err, store.ErrSessionNotFound) {
			return nil, ErrSessionNotValid
		}
		return nil, fmt.Errorf("touching session: %w", err)
	}

	principal, err := s.principals.Get(ctx, session.PrincipalID)
	if err != nil {
		return nil, fmt.Errorf("loading principal: %w", err)
	}

	token, err := s.codec.Issue(principal.PrincipalID, principal.Username, principal.Role, session.SessionID)
	if err != nil {
		return nil, err
	}

	return &LoginResult{Principal: principal, Session: session, SignedToken: token}, nil
}

// Logout revokes a single session. Idempotent.
func (s *Service) Logout(ctx context.Context, sessionID uuid.UUID) error {
	affected, err := s.sessions.Revoke(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("revoking session: %w", err)
	}

	if affected {
		log.Info().Str("session_id", sessionID.String()).Msg("Session revoked")
	}

	return nil
}

// LogoutAll revokes every session owned by the principal.
func (s *Service) LogoutAll(ctx context.Context, principalID uuid.UUID) (int, error) {
	count, err := s.sessions.RevokeAllForPrincipal(ctx, principalID)
	if err != nil {
		return 0, fmt.Errorf("revoking sessions: %w", err)
	}

	return count, nil
}

// ChangePassword verifies the current password, stores the new hash and
// revokes every existing session for the principal.
func (s *Service) ChangePassword(ctx context.Context, principalID uuid.UUID, current, next string) error {
	if len(next) < minPasswordLen {
		return ErrPasswordTooShort
	}

	principal, err := s.principals.Get(ctx, principalID)
	if err != nil {
		return fmt.Errorf("loading principal: %w", err)
	}

	if !s.hasher.Verify(principal.PasswordHash, current) {
		return ErrInvalidCredentials
	}

	hash, err := s.hasher.Hash(next)
	if err != nil {
		return fmt.Errorf("hashing password: %w", err)
	}

	if err := s.principals.UpdatePasswordHash(ctx, principalID, hash); err != nil {
		return fmt.Errorf("updating password hash: %w", err)
	}

	count, err := s.sessions.RevokeAllForPrincipal(ctx, principalID)
	if err != nil {
		return fmt.Errorf("revoking sessions after password change: %w", err)
	}

	log.Info().
		Str("principal_id", principalID.String()).
		Int("sessions_revoked", count).
		Msg("Password changed")

	return nil
}

// Sessions lists the principal's valid sessions.
func (s *Service) Sessions(ctx context.Context, principalID uuid.UUID) ([]*models.Session, error) {
	return s.sessions.ListForPrincipal(ctx, principalID)
}

// openSession creates a fresh session and issues a signed token bound to it.
func (s *Service) openSession(ctx context.Context, principal *models.Principal, userAgent, clientIP string) (*LoginResult, error) {
	now := time.Now()
	session := &models.Session{
		SessionID:      uuid.New(),
		PrincipalID:    principal.PrincipalID,
		CreatedAt:      now,
		LastActivityAt: now,
		ExpiresAt:      now.Add(s.sessionTTL),
		UserAgent:      userAgent,
		ClientIP:       clientIP,
	}

	if err := s.sessions.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("creating session: %w", err)
	}

	token, err := s.codec.Issue(principal.PrincipalID, principal.Username, principal.Role, session.SessionID)
	if err != nil {
		return nil, err
	}

	return &LoginResult{Principal: principal, Session: session, SignedToken: token}, nil
}
