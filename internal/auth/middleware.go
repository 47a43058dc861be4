package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"
)

type contextKey int

const authorityContextKey contextKey = iota

// AuthorityFromContext extracts the resolved authority from the request
// context. Returns nil if the request is unauthenticated.
func AuthorityFromContext(ctx context.Context) *Authority {
	authority, _ := ctx.Value(authorityContextKey).(*Authority)
	return authority
}

// WithAuthority returns a context carrying the resolved authority.
func WithAuthority(ctx context.Context, authority *Authority) context.Context {
	return context.WithValue(ctx, authorityContextKey, authority)
}

// Middleware returns an HTTP middleware that resolves the bearer credential
// and maps the outcome to status codes: missing/invalid credential is 401
// with a challenge header, authenticated-but-insufficient is 403, and
// infrastructure failures are 500. On success the authority is added to the
// request context.
func (r *Resolver) Middleware(requireAdmin bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			authority, err := r.Resolve(req.Context(), extractBearerToken(req), requireAdmin)
			if err != nil {
				writeAuthError(w, req, err)
				return
			}

			ctx := WithAuthority(req.Context(), authority)
			next.ServeHTTP(w, req.WithContext(ctx))
		})
	}
}

func writeAuthError(w http.ResponseWriter, req *http.Request, err error) {
	switch {
	case errors.Is(err, ErrUnauthenticated):
		w.Header().Set("WWW-Authenticate", `Bearer realm="tonearm"`)
		http.Error(w, "invalid or missing credential", http.StatusUnauthorized)
	case errors.Is(err, ErrForbidden):
		http.Error(w, "insufficient privilege", http.StatusForbidden)
	default:
		// A down store must not look like "nobody is logged in".
		log.Error().Err(err).Str("path", req.URL.Path).Msg("authority resolution failed")
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

// extractBearerToken pulls the credential from the Authorization header.
// Returns "" when the header is absent or not a Bearer scheme.
func extractBearerToken(req *http.Request) string {
	header := req.Header.Get("Authorization")
	if header == "" {
		return ""
	}

	scheme, credential, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}

	return strings.TrimSpace(credential)
}
