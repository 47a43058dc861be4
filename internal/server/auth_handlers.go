package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/tonearm/tonearm/internal/auth"
	httpmiddleware "github.com/tonearm/tonearm/internal/http"
	"github.com/tonearm/tonearm/internal/identity"
	"github.com/tonearm/tonearm/internal/models"
)

type credentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

type refreshRequest struct {
	SessionID string `json:"session_id"`
}

type principalResponse struct {
	PrincipalID string     `json:"principal_id"`
	Username    string     `json:"username"`
	Role        string     `json:"role"`
	CreatedAt   time.Time  `json:"created_at"`
	LastLoginAt *time.Time `json:"last_login_at,omitempty"`
}

type sessionResponse struct {
	SessionID      string    `json:"session_id"`
	CreatedAt      time.Time `json:"created_at"`
	LastActivityAt time.Time `json:"last_activity_at"`
	ExpiresAt      time.Time `json:"expires_at"`
	UserAgent      string    `json:"user_agent,omitempty"`
	ClientIP       string    `json:"client_ip,omitempty"`
}

type loginResponse struct {
	Token     string            `json:"token"`
	Principal principalResponse `json:"principal"`
	Session   sessionResponse   `json:"session"`
}

func toPrincipalResponse(p *models.Principal) principalResponse {
	return principalResponse{
		PrincipalID: p.PrincipalID.String(),
		Username:    p.Username,
		Role:        p.Role,
		CreatedAt:   p.CreatedAt,
		LastLoginAt: p.LastLoginAt,
	}
}

func toSessionResponse(s *models.Session) sessionResponse {
	return sessionResponse{
		SessionID:      s.SessionID.String(),
		CreatedAt:      s.CreatedAt,
		LastActivityAt: s.LastActivityAt,
		ExpiresAt:      s.ExpiresAt,
		UserAgent:      s.UserAgent,
		ClientIP:       s.ClientIP,
	}
}

func toLoginResponse(result *identity.LoginResult) loginResponse {
	return loginResponse{
		Token:     result.SignedToken,
		Principal: toPrincipalResponse(result.Principal),
		Session:   toSessionResponse(result.Session),
	}
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	result, err := s.service.Register(r.Context(), req.Username, req.Password, r.UserAgent(), httpmiddleware.ClientIPFromContext(r.Context()))
	if err != nil {
		switch {
		case errors.Is(err, identity.ErrUsernameTaken):
			writeError(w, http.StatusConflict, err.Error())
		case isValidationError(err):
			writeError(w, http.StatusBadRequest, err.Error())
		default:
			serverError(w, r, err)
		}
		return
	}

	writeJSON(w, http.StatusCreated, toLoginResponse(result))
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	result, err := s.service.Login(r.Context(), req.Username, req.Password, r.UserAgent(), httpmiddleware.ClientIPFromContext(r.Context()))
	if err != nil {
		if errors.Is(err, identity.ErrInvalidCredentials) {
			writeError(w, http.StatusUnauthorized, err.Error())
			return
		}
		serverError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, toLoginResponse(result))
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	sessionID, err := uuid.Parse(req.SessionID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid session_id")
		return
	}

	result, err := s.service.Refresh(r.Context(), sessionID)
	if err != nil {
		if errors.Is(err, identity.ErrSessionNotValid) {
			writeError(w, http.StatusUnauthorized, err.Error())
			return
		}
		serverError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, toLoginResponse(result))
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	authority := auth.AuthorityFromContext(r.Context())
	if authority.SessionID == uuid.Nil {
		writeError(w, http.StatusBadRequest, "logout requires a session credential")
		return
	}

	if err := s.service.Logout(r.Context(), authority.SessionID); err != nil {
		serverError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleLogoutAll(w http.ResponseWriter, r *http.Request) {
	authority := auth.AuthorityFromContext(r.Context())

	count, err := s.service.LogoutAll(r.Context(), authority.PrincipalID)
	if err != nil {
		serverError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]int{"sessions_revoked": count})
}

func (s *Server) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	authority := auth.AuthorityFromContext(r.Context())
	if authority.Kind != auth.KindSession {
		writeError(w, http.StatusBadRequest, "password change requires a session credential")
		return
	}

	var req changePasswordRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	err := s.service.ChangePassword(r.Context(), authority.PrincipalID, req.CurrentPassword, req.NewPassword)
	if err != nil {
		switch {
		case errors.Is(err, identity.ErrInvalidCredentials):
			writeError(w, http.StatusForbidden, err.Error())
		case isValidationError(err):
			writeError(w, http.StatusBadRequest, err.Error())
		default:
			serverError(w, r, err)
		}
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	authority := auth.AuthorityFromContext(r.Context())

	sessions, err := s.service.Sessions(r.Context(), authority.PrincipalID)
	if err != nil {
		serverError(w, r, err)
		return
	}

	out := make([]sessionResponse, 0, len(sessions))
	for _, session := range sessions {
		out = append(out, toSessionResponse(session))
	}

	writeJSON(w, http.StatusOK, out)
}

// isValidationError classifies lifecycle errors the caller can fix.
func isValidationError(err error) bool {
	return errors.Is(err, identity.ErrPasswordTooShort) || errors.Is(err, identity.ErrUsernameRequired)
}

func serverError(w http.ResponseWriter, r *http.Request, err error) {
	log.Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
	writeError(w, http.StatusInternalServerError, "internal error")
}
