package identity

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mr-tron/base58"
	"github.com/rs/zerolog/log"
	"github.com/tonearm/tonearm/internal/auth"
	"github.com/tonearm/tonearm/internal/models"
	"github.com/tonearm/tonearm/internal/store"
)

const (
	tokenIDBytes     = 12
	tokenSecretBytes = 32
)

// ErrTokenNameRequired is returned by Issue for a blank token name.
var ErrTokenNameRequired = errors.New("token name is required")

// TokenService issues and manages long-lived API tokens.
type TokenService struct {
	hasher    *auth.Hasher
	apiTokens store.APITokenStore
}

// NewTokenService creates the API token service.
func NewTokenService(hasher *auth.Hasher, apiTokens store.APITokenStore) *TokenService {
	return &TokenService{
		hasher:    hasher,
		apiTokens: apiTokens,
	}
}

// Issue creates a new API token for the principal (or the synthetic system
// principal when principalID is zero) and returns the record together with
// the plaintext credential "{token_id}.{secret}". The plaintext is shown
// exactly once; only its hash is persisted.
//
// Issuing a token under a (principal, name) pair that already exists
// supersedes the old token: the prior record is deleted first, so its
// credential stops resolving the moment the new one exists.
func (ts *TokenService) Issue(ctx context.Context, principalID uuid.UUID, name string) (*models.APIToken, string, error) {
	if name == "" {
		return nil, "", ErrTokenNameRequired
	}
	if principalID == uuid.Nil {
		principalID = models.SystemPrincipalID
	}

	existing, err := ts.apiTokens.GetByName(ctx, principalID, name)
	if err != nil && !errors.Is(err, store.ErrAPITokenNotFound) {
		return nil, "", fmt.Errorf("checking existing token: %w", err)
	}
	if existing != nil {
		if _, err := ts.apiTokens.Delete(ctx, existing.ID); err != nil {
			return nil, "", fmt.Errorf("superseding token %q: %w", name, err)
		}
		log.Info().
			Str("token_id", existing.TokenID).
			Str("principal_id", principalID.String()).
			Str("name", name).
			Msg("Superseded api token")
	}

	tokenID, err := randomBase58(tokenIDBytes)
	if err != nil {
		return nil, "", err
	}
	secret, err := randomBase58(tokenSecretBytes)
	if err != nil {
		return nil, "", err
	}

	credential := tokenID + "." + secret

	hash, err := ts.hasher.Hash(credential)
	if err != nil {
		return nil, "", fmt.Errorf("hashing token secret: %w", err)
	}

	token := &models.APIToken{
		ID:          uuid.Must(uuid.NewV7()),
		Name:        name,
		PrincipalID: principalID,
		TokenID:     tokenID,
		SecretHash:  hash,
		CreatedAt:   time.Now(),
	}

	if err := ts.apiTokens.Create(ctx, token); err != nil {
		return nil, "", fmt.Errorf("creating token: %w", err)
	}

	log.Info().
		Str("token_id", tokenID).
		Str("principal_id", principalID.String()).
		Str("name", name).
		Msg("Issued api token")

	return token, credential, nil
}

// List returns tokens for a principal, or all tokens when principalID is
// zero.
func (ts *TokenService) List(ctx context.Context, principalID uuid.UUID) ([]*models.APIToken, error) {
	return ts.apiTokens.List(ctx, principalID)
}

// Delete revokes a token by its row id. Returns false if it did not exist.
func (ts *TokenService) Delete(ctx context.Context, id uuid.UUID) (bool, error) {
	deleted, err := ts.apiTokens.Delete(ctx, id)
	if err != nil {
		return false, fmt.Errorf("deleting token: %w", err)
	}

	if deleted {
		log.Info().Str("id", id.String()).Msg("Deleted api token")
	}

	return deleted, nil
}

func randomBase58(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generating random bytes: %w", err)
	}
	return base58.Encode(buf), nil
}
