// Package server exposes the access-control surface over HTTP: credential
// lifecycle under /v1/auth, session listing under /v1/sessions and API token
// administration under /v1/tokens. Handlers stay thin; the semantics live in
// internal/identity and internal/auth.
package server

import (
	"encoding/json"
	"net/http"

	"github.com/rs/cors"
	"github.com/rs/zerolog"
	"github.com/tonearm/tonearm/internal/auth"
	httpmiddleware "github.com/tonearm/tonearm/internal/http"
	"github.com/tonearm/tonearm/internal/identity"
	"github.com/tonearm/tonearm/internal/logger"
)

// Server wires the HTTP handlers to the identity services.
type Server struct {
	service  *identity.Service
	tokens   *identity.TokenService
	resolver *auth.Resolver
}

// NewServer creates a new server over the identity services.
func NewServer(service *identity.Service, tokens *identity.TokenService, resolver *auth.Resolver) *Server {
	return &Server{
		service:  service,
		tokens:   tokens,
		resolver: resolver,
	}
}

// Handler returns the HTTP handler for the server.
func (s *Server) Handler(log zerolog.Logger) http.Handler {
	mux := http.NewServeMux()

	// Health check endpoint for load balancer
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	mux.HandleFunc("POST /v1/auth/register", s.handleRegister)
	mux.HandleFunc("POST /v1/auth/login", s.handleLogin)
	// Refresh authenticates by session id alone so an expired signed token
	// can still be renewed against its live session.
	mux.HandleFunc("POST /v1/auth/refresh", s.handleRefresh)

	authed := s.resolver.Middleware(false)
	mux.Handle("POST /v1/auth/logout", authed(http.HandlerFunc(s.handleLogout)))
	mux.Handle("POST /v1/auth/logout-all", authed(http.HandlerFunc(s.handleLogoutAll)))
	mux.Handle("PUT /v1/auth/password", authed(http.HandlerFunc(s.handleChangePassword)))
	mux.Handle("GET /v1/sessions", authed(http.HandlerFunc(s.handleListSessions)))

	admin := s.resolver.Middleware(true)
	mux.Handle("POST /v1/tokens", admin(http.HandlerFunc(s.handleIssueToken)))
	mux.Handle("GET /v1/tokens", admin(http.HandlerFunc(s.handleListTokens)))
	mux.Handle("DELETE /v1/tokens/{id}", admin(http.HandlerFunc(s.handleDeleteToken)))

	handler := httpmiddleware.ClientIPMiddleware()(logger.Requests(log)(mux))

	return cors.New(cors.Options{
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowedHeaders: []string{"Authorization", "Content-Type"},
	}).Handler(handler)
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, into any) bool {
	if err := json.NewDecoder(r.Body).Decode(into); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}
