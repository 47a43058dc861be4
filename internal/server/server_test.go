package server

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"github.com/tonearm/tonearm/internal/auth"
	"github.com/tonearm/tonearm/internal/identity"
	"github.com/tonearm/tonearm/internal/models"
	"github.com/tonearm/tonearm/internal/store/memory"
)

const testAdminSecret = "operator-secret-for-tests"

var testSigningKey = []byte("test-signing-key-at-least-32-bytes!!")

func testHashParams() auth.HashParams {
	return auth.HashParams{
		Time:    1,
		Memory:  8 * 1024,
		Threads: 1,
		KeyLen:  32,
		SaltLen: 16,
	}
}

type testServer struct {
	*httptest.Server

	principals *memory.PrincipalStore
	sessions   *memory.SessionStore
}

func newTestServer(t *testing.T) *testServer {
	return newTestServerWithTokenTTL(t, 15*time.Minute)
}

func newTestServerWithTokenTTL(t *testing.T, tokenTTL time.Duration) *testServer {
	t.Helper()

	hasher := auth.NewHasher(testHashParams())
	codec, err := auth.NewTokenCodec(testSigningKey, tokenTTL)
	require.NoError(t, err)

	principals := memory.NewPrincipalStore()
	sessions := memory.NewSessionStore()
	apiTokens := memory.NewAPITokenStore()

	adminSecretHash, err := hasher.Hash(testAdminSecret)
	require.NoError(t, err)

	service := identity.NewService(hasher, codec, principals, sessions, 30*24*time.Hour)
	tokens := identity.NewTokenService(hasher, apiTokens)
	resolver := auth.NewResolver(hasher, codec, sessions, apiTokens, adminSecretHash)

	srv := NewServer(service, tokens, resolver)
	ts := httptest.NewServer(srv.Handler(zerolog.Nop()))
	t.Cleanup(ts.Close)

	return &testServer{Server: ts, principals: principals, sessions: sessions}
}

func (ts *testServer) do(t *testing.T, method, path, bearer string, body any) (*http.Response, []byte) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequest(method, ts.URL+path, reader)
	require.NoError(t, err)
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := ts.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	return resp, payload
}

func (ts *testServer) register(t *testing.T, username, password string) loginResponse {
	t.Helper()

	resp, body := ts.do(t, http.MethodPost, "/v1/auth/register", "", credentialsRequest{
		Username: username,
		Password: password,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))

	var result loginResponse
	require.NoError(t, json.Unmarshal(body, &result))
	return result
}

func TestHealthz(t *testing.T) {
	ts := newTestServer(t)

	resp, body := ts.do(t, http.MethodGet, "/healthz", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.JSONEq(t, `{"status":"ok"}`, string(body))
}

// Web client lifecycle: register, authenticate with the signed token,
// refresh for a fresh token, then logout and observe that the still-unexpired
// token is rejected.
func TestSessionLifecycle(t *testing.T) {
	ts := newTestServer(t)

	login := ts.register(t, "alice", "hunter2hunter2")
	require.Equal(t, "alice", login.Principal.Username)
	require.NotEmpty(t, login.Token)

	// The token authenticates.
	resp, body := ts.do(t, http.MethodGet, "/v1/sessions", login.Token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))

	var sessions []sessionResponse
	require.NoError(t, json.Unmarshal(body, &sessions))
	require.Len(t, sessions, 1)
	require.Equal(t, login.Session.SessionID, sessions[0].SessionID)

	// Refresh mints a new token bound to the same session.
	resp, body = ts.do(t, http.MethodPost, "/v1/auth/refresh", "", refreshRequest{SessionID: login.Session.SessionID})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))

	var refreshed loginResponse
	require.NoError(t, json.Unmarshal(body, &refreshed))
	require.Equal(t, login.Session.SessionID, refreshed.Session.SessionID)

	// Logout revokes the session.
	resp, _ = ts.do(t, http.MethodPost, "/v1/auth/logout", refreshed.Token, nil)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	// Both tokens are signed and unexpired, but the session is gone.
	for _, token := range []string{login.Token, refreshed.Token} {
		resp, _ = ts.do(t, http.MethodGet, "/v1/sessions", token, nil)
		require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		require.Equal(t, `Bearer realm="tonearm"`, resp.Header.Get("WWW-Authenticate"))
	}
}

// A session outlives its signed tokens: once a token expires, presenting the
// session id alone mints a replacement. No Authorization header is needed.
func TestRefreshAfterTokenExpiry(t *testing.T) {
	ts := newTestServerWithTokenTTL(t, time.Millisecond)

	login := ts.register(t, "alice", "hunter2hunter2")

	// Token expiry is second-granular, so poll until the token is dead.
	require.Eventually(t, func() bool {
		resp, _ := ts.do(t, http.MethodGet, "/v1/sessions", login.Token, nil)
		return resp.StatusCode == http.StatusUnauthorized
	}, 5*time.Second, 50*time.Millisecond)

	// The session is still live, so its id renews the credential.
	resp, body := ts.do(t, http.MethodPost, "/v1/auth/refresh", "", refreshRequest{SessionID: login.Session.SessionID})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))

	var refreshed loginResponse
	require.NoError(t, json.Unmarshal(body, &refreshed))
	require.Equal(t, login.Session.SessionID, refreshed.Session.SessionID)
	require.NotEmpty(t, refreshed.Token)

	t.Run("malformed session id", func(t *testing.T) {
		resp, _ := ts.do(t, http.MethodPost, "/v1/auth/refresh", "", refreshRequest{SessionID: "not-a-uuid"})
		require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("unknown session id", func(t *testing.T) {
		resp, _ := ts.do(t, http.MethodPost, "/v1/auth/refresh", "", refreshRequest{SessionID: uuid.NewString()})
		require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("revoked session cannot refresh", func(t *testing.T) {
		revoked, err := ts.sessions.Revoke(t.Context(), uuid.MustParse(login.Session.SessionID))
		require.NoError(t, err)
		require.True(t, revoked)

		resp, _ := ts.do(t, http.MethodPost, "/v1/auth/refresh", "", refreshRequest{SessionID: login.Session.SessionID})
		require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})
}

// CI credential lifecycle: the operator's static secret issues an API token,
// the token authenticates, and re-issuing under the same name supersedes it.
func TestAPITokenLifecycle(t *testing.T) {
	ts := newTestServer(t)

	resp, body := ts.do(t, http.MethodPost, "/v1/tokens", testAdminSecret, issueTokenRequest{Name: "ci"})
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))

	var first issuedTokenResponse
	require.NoError(t, json.Unmarshal(body, &first))
	require.NotEmpty(t, first.Credential)
	require.Equal(t, models.SystemPrincipalID.String(), first.PrincipalID)

	// The issued credential authenticates ordinary routes.
	resp, _ = ts.do(t, http.MethodGet, "/v1/sessions", first.Credential, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	// ...but does not carry admin privilege.
	resp, _ = ts.do(t, http.MethodGet, "/v1/tokens", first.Credential, nil)
	require.Equal(t, http.StatusForbidden, resp.StatusCode)

	// Re-issuing "ci" supersedes the first token.
	resp, body = ts.do(t, http.MethodPost, "/v1/tokens", testAdminSecret, issueTokenRequest{Name: "ci"})
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))

	var second issuedTokenResponse
	require.NoError(t, json.Unmarshal(body, &second))
	require.NotEqual(t, first.TokenID, second.TokenID)

	resp, _ = ts.do(t, http.MethodGet, "/v1/sessions", first.Credential, nil)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, _ = ts.do(t, http.MethodGet, "/v1/sessions", second.Credential, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	// Listing shows exactly one live token; deleting it kills the
	// credential.
	resp, body = ts.do(t, http.MethodGet, "/v1/tokens", testAdminSecret, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var listed []apiTokenResponse
	require.NoError(t, json.Unmarshal(body, &listed))
	require.Len(t, listed, 1)
	require.Equal(t, second.TokenID, listed[0].TokenID)

	resp, _ = ts.do(t, http.MethodDelete, "/v1/tokens/"+listed[0].ID, testAdminSecret, nil)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, _ = ts.do(t, http.MethodGet, "/v1/sessions", second.Credential, nil)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

// Password change revokes every session; only the new password logs in.
func TestPasswordChange(t *testing.T) {
	ts := newTestServer(t)

	login := ts.register(t, "alice", "hunter2hunter2")
	other, _ := ts.do(t, http.MethodPost, "/v1/auth/login", "", credentialsRequest{
		Username: "alice",
		Password: "hunter2hunter2",
	})
	require.Equal(t, http.StatusOK, other.StatusCode)

	resp, body := ts.do(t, http.MethodPut, "/v1/auth/password", login.Token, changePasswordRequest{
		CurrentPassword: "hunter2hunter2",
		NewPassword:     "correct-horse-battery",
	})
	require.Equal(t, http.StatusNoContent, resp.StatusCode, string(body))

	// Every outstanding token is dead.
	resp, _ = ts.do(t, http.MethodGet, "/v1/sessions", login.Token, nil)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	// The old password no longer works; the new one does.
	resp, _ = ts.do(t, http.MethodPost, "/v1/auth/login", "", credentialsRequest{
		Username: "alice",
		Password: "hunter2hunter2",
	})
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, _ = ts.do(t, http.MethodPost, "/v1/auth/login", "", credentialsRequest{
		Username: "alice",
		Password: "correct-horse-battery",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestAuthRejections(t *testing.T) {
	ts := newTestServer(t)

	t.Run("missing credential", func(t *testing.T) {
		resp, _ := ts.do(t, http.MethodGet, "/v1/sessions", "", nil)
		require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		require.Equal(t, `Bearer realm="tonearm"`, resp.Header.Get("WWW-Authenticate"))
	})

	t.Run("garbage credential", func(t *testing.T) {
		resp, _ := ts.do(t, http.MethodGet, "/v1/sessions", "not-a-real-token", nil)
		require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("user session cannot reach admin routes", func(t *testing.T) {
		login := ts.register(t, "bob", "hunter2hunter2")

		resp, _ := ts.do(t, http.MethodGet, "/v1/tokens", login.Token, nil)
		require.Equal(t, http.StatusForbidden, resp.StatusCode)
	})

	t.Run("duplicate registration conflicts", func(t *testing.T) {
		ts.register(t, "carol", "hunter2hunter2")

		resp, _ := ts.do(t, http.MethodPost, "/v1/auth/register", "", credentialsRequest{
			Username: "carol",
			Password: "hunter2hunter2",
		})
		require.Equal(t, http.StatusConflict, resp.StatusCode)
	})

	t.Run("short password rejected", func(t *testing.T) {
		resp, _ := ts.do(t, http.MethodPost, "/v1/auth/register", "", credentialsRequest{
			Username: "dave",
			Password: "short",
		})
		require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})
}

// Admin-role sessions reach admin routes without the static secret.
func TestAdminRoleSession(t *testing.T) {
	ts := newTestServer(t)

	// Seed an admin principal; registration only ever creates users.
	hash, err := auth.NewHasher(testHashParams()).Hash("hunter2hunter2")
	require.NoError(t, err)
	require.NoError(t, ts.principals.Create(t.Context(), &models.Principal{
		PrincipalID:  uuid.Must(uuid.NewV7()),
		Username:     "root",
		Role:         models.RoleAdmin,
		PasswordHash: hash,
		CreatedAt:    time.Now(),
	}))

	resp, body := ts.do(t, http.MethodPost, "/v1/auth/login", "", credentialsRequest{
		Username: "root",
		Password: "hunter2hunter2",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var admin loginResponse
	require.NoError(t, json.Unmarshal(body, &admin))

	resp, _ = ts.do(t, http.MethodGet, "/v1/tokens", admin.Token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	// An ordinary user's token is authenticated but not authorized.
	user := ts.register(t, "bob2", "hunter2hunter2")
	resp, _ = ts.do(t, http.MethodGet, "/v1/tokens", user.Token, nil)
	require.Equal(t, http.StatusForbidden, resp.StatusCode)
}
