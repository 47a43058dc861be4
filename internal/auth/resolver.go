package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/tonearm/tonearm/internal/models"
	"github.com/tonearm/tonearm/internal/store"
)

var (
	// ErrUnauthenticated is the single rejection outcome for missing,
	// malformed, unknown, expired and revoked credentials. The cause is
	// logged internally but never distinguished for the caller.
	ErrUnauthenticated = errors.New("invalid or missing credential")

	// ErrForbidden means the credential authenticated successfully but does
	// not carry the required privilege. Never conflated with
	// ErrUnauthenticated; the boundary maps them to different status codes.
	ErrForbidden = errors.New("insufficient privilege")
)

// Kind identifies which credential mechanism produced an Authority.
type Kind string

const (
	KindAdminSecret Kind = "admin_secret"
	KindSession     Kind = "session"
	KindAPIToken    Kind = "api_token"
)

// Authority is the resolved identity and privilege of a request.
type Authority struct {
	Kind        Kind
	PrincipalID uuid.UUID // zero for the static admin secret
	Username    string    // session tokens only
	Role        string    // session tokens only, trusted from the signature
	SessionID   uuid.UUID // set when Kind == KindSession
	TokenID     string    // set when Kind == KindAPIToken
}

// IsAdmin reports whether the authority satisfies admin-only routes: either
// the static admin secret or a signed token carrying the admin role.
func (a *Authority) IsAdmin() bool {
	return a.Kind == KindAdminSecret || a.Role == models.RoleAdmin
}

// touchTimeout bounds the detached best-effort last-used update for API
// tokens.
const touchTimeout = 5 * time.Second

// Resolver maps an inbound bearer credential to an authentication outcome
// under fixed precedence: static admin secret, then signed session token,
// then opaque API token. The first successful branch wins.
type Resolver struct {
	hasher    *Hasher
	codec     *TokenCodec
	sessions  store.SessionStore
	apiTokens store.APITokenStore

	// Pre-computed argon2id hash of the operator's static admin secret.
	// Empty disables the static-secret branch entirely.
	adminSecretHash string
}

// NewResolver creates a resolver over the given stores. adminSecretHash is a
// PHC-encoded argon2id hash or empty.
func NewResolver(hasher *Hasher, codec *TokenCodec, sessions store.SessionStore, apiTokens store.APITokenStore, adminSecretHash string) *Resolver {
	return &Resolver{
		hasher:          hasher,
		codec:           codec,
		sessions:        sessions,
		apiTokens:       apiTokens,
		adminSecretHash: adminSecretHash,
	}
}

// Resolve authenticates a bearer credential and, when requireAdmin is set,
// additionally authorizes it. Expected rejections return ErrUnauthenticated
// or ErrForbidden; any other error is an infrastructure failure (store
// outage, hashing failure) and must never be treated as "not logged in".
func (r *Resolver) Resolve(ctx context.Context, credential string, requireAdmin bool) (*Authority, error) {
	if credential == "" {
		return nil, ErrUnauthenticated
	}

	// The static secret runs first regardless of requireAdmin: admin
	// authority satisfies every route and must never be shadowed by a
	// partial match in the other branches.
	if r.adminSecretHash != "" && r.hasher.Verify(r.adminSecretHash, credential) {
		return &Authority{Kind: KindAdminSecret}, nil
	}

	authority, err := r.resolveSessionToken(ctx, credential)
	if err != nil {
		return nil, err
	}
	if authority == nil {
		authority, err = r.resolveAPIToken(ctx, credential)
		if err != nil {
			return nil, err
		}
	}
	if authority == nil {
		return nil, ErrUnauthenticated
	}

	if requireAdmin && !authority.IsAdmin() {
		return nil, ErrForbidden
	}

	return authority, nil
}

// resolveSessionToken attempts the signed-token branch. A token that
// survives its own signature and expiry checks is still worthless unless
// the session it references is live; a stale token falls through to the
// API-token branch, which cannot match it, and so ultimately rejects.
// Returns (nil, nil) to signal fallthrough.
func (r *Resolver) resolveSessionToken(ctx context.Context, credential string) (*Authority, error) {
	claims, err := r.codec.Verify(credential)
	if err != nil {
		log.Debug().Err(err).Msg("signed token rejected")
		return nil, nil
	}

	session, err := r.sessions.GetValid(ctx, claims.SessionID)
	if err != nil {
		if errors.Is(err, store.ErrSessionNotValid) {
			log.Debug().
				Str("session_id", claims.SessionID.String()).
				Msg("signed token references a session that is no longer valid")
			return nil, nil
		}
		return nil, fmt.Errorf("session lookup: %w", err)
	}

	return &Authority{
		Kind:        KindSession,
		PrincipalID: claims.PrincipalID,
		Username:    claims.Username,
		Role:        claims.Role,
		SessionID:   session.SessionID,
	}, nil
}

// resolveAPIToken attempts the opaque-token branch. Shape mismatches and
// unknown token ids degrade to plain rejection, never to internal errors.
// Returns (nil, nil) to signal no match.
func (r *Resolver) resolveAPIToken(ctx context.Context, credential string) (*Authority, error) {
	tokenID, secret, found := strings.Cut(credential, ".")
	if !found || tokenID == "" || secret == "" {
		return nil, nil
	}

	record, err := r.apiTokens.GetByTokenID(ctx, tokenID)
	if err != nil {
		if errors.Is(err, store.ErrAPITokenNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("api token lookup: %w", err)
	}

	if !r.hasher.Verify(record.SecretHash, credential) {
		log.Debug().Str("token_id", tokenID).Msg("api token secret mismatch")
		return nil, nil
	}

	// Best-effort last-used touch, detached from the request lifecycle so a
	// slow or failed update cannot abort an already-successful
	// authentication.
	go func() {
		touchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), touchTimeout)
		defer cancel()
		if err := r.apiTokens.TouchLastUsed(touchCtx, record.ID); err != nil {
			log.Warn().Err(err).Str("token_id", tokenID).Msg("failed to update api token last_used_at")
		}
	}()

	return &Authority{
		Kind:        KindAPIToken,
		PrincipalID: record.PrincipalID,
		TokenID:     record.TokenID,
	}, nil
}
