package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/tonearm/tonearm/internal/identity"
	"github.com/tonearm/tonearm/internal/models"
)

type issueTokenRequest struct {
	Name        string `json:"name"`
	PrincipalID string `json:"principal_id,omitempty"`
}

type apiTokenResponse struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	PrincipalID string     `json:"principal_id"`
	TokenID     string     `json:"token_id"`
	CreatedAt   time.Time  `json:"created_at"`
	LastUsedAt  *time.Time `json:"last_used_at,omitempty"`
}

type issuedTokenResponse struct {
	apiTokenResponse

	// The full credential, returned exactly once at issuance.
	Credential string `json:"credential"`
}

func toAPITokenResponse(t *models.APIToken) apiTokenResponse {
	return apiTokenResponse{
		ID:          t.ID.String(),
		Name:        t.Name,
		PrincipalID: t.PrincipalID.String(),
		TokenID:     t.TokenID,
		CreatedAt:   t.CreatedAt,
		LastUsedAt:  t.LastUsedAt,
	}
}

func (s *Server) handleIssueToken(w http.ResponseWriter, r *http.Request) {
	var req issueTokenRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	principalID := uuid.Nil
	if req.PrincipalID != "" {
		parsed, err := uuid.Parse(req.PrincipalID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid principal_id")
			return
		}
		principalID = parsed
	}

	token, credential, err := s.tokens.Issue(r.Context(), principalID, req.Name)
	if err != nil {
		if errors.Is(err, identity.ErrTokenNameRequired) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		serverError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, issuedTokenResponse{
		apiTokenResponse: toAPITokenResponse(token),
		Credential:       credential,
	})
}

func (s *Server) handleListTokens(w http.ResponseWriter, r *http.Request) {
	principalID := uuid.Nil
	if raw := r.URL.Query().Get("principal_id"); raw != "" {
		parsed, err := uuid.Parse(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid principal_id")
			return
		}
		principalID = parsed
	}

	tokens, err := s.tokens.List(r.Context(), principalID)
	if err != nil {
		serverError(w, r, err)
		return
	}

	out := make([]apiTokenResponse, 0, len(tokens))
	for _, token := range tokens {
		out = append(out, toAPITokenResponse(token))
	}

	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleDeleteToken(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid token id")
		return
	}

	deleted, err := s.tokens.Delete(r.Context(), id)
	if err != nil {
		serverError(w, r, err)
		return
	}

	if !deleted {
		writeError(w, http.StatusNotFound, "token not found")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
