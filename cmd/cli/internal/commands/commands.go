package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/tonearm/tonearm/cmd/cli/internal/credentials"
)

type Globals struct {
	Dev     bool
	Version string
}

// ServerFlags are shared by every command that talks to a server.
type ServerFlags struct {
	Server         string `help:"server base URL" default:"http://localhost:8080" env:"TONEARM_SERVER"`
	CredentialsDir string `help:"credentials directory (default ~/.tonearm)" default:"" env:"TONEARM_CREDENTIALS_DIR"`
}

func (f *ServerFlags) store() (*credentials.Store, error) {
	return credentials.NewStore(f.CredentialsDir)
}

// bearer returns the stored token for the server, or an error telling the
// user to log in.
func (f *ServerFlags) bearer() (string, error) {
	store, err := f.store()
	if err != nil {
		return "", err
	}

	cred, err := store.Get(f.Server)
	if err != nil {
		return "", fmt.Errorf("not logged in to %s, run 'tonearm login' first", f.Server)
	}

	return cred.Token, nil
}

type apiClient struct {
	base   string
	bearer string
	client *http.Client
}

func newAPIClient(base, bearer string) *apiClient {
	return &apiClient{
		base:   strings.TrimRight(base, "/"),
		bearer: bearer,
		client: &http.Client{Timeout: 30 * time.Second},
	}
}

type apiError struct {
	Status  int
	Message string
}

func (e *apiError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("server returned %d: %s", e.Status, e.Message)
	}
	return fmt.Sprintf("server returned %d", e.Status)
}

// do sends a JSON request and decodes a JSON response. out may be nil for
// responses without a body.
func (c *apiClient) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		encoded, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		body = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.bearer != "" {
		req.Header.Set("Authorization", "Bearer "+c.bearer)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("calling %s: %w", path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 400 {
		var payload struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&payload)
		return &apiError{Status: resp.StatusCode, Message: payload.Error}
	}

	if out == nil {
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}

	return nil
}

// Wire shapes returned by the server.

type principalPayload struct {
	PrincipalID string `json:"principal_id"`
	Username    string `json:"username"`
	Role        string `json:"role"`
}

type sessionPayload struct {
	SessionID      string    `json:"session_id"`
	CreatedAt      time.Time `json:"created_at"`
	LastActivityAt time.Time `json:"last_activity_at"`
	ExpiresAt      time.Time `json:"expires_at"`
	UserAgent      string    `json:"user_agent"`
	ClientIP       string    `json:"client_ip"`
}

type loginPayload struct {
	Token     string           `json:"token"`
	Principal principalPayload `json:"principal"`
	Session   sessionPayload   `json:"session"`
}

type apiTokenPayload struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	TokenID    string     `json:"token_id"`
	CreatedAt  time.Time  `json:"created_at"`
	LastUsedAt *time.Time `json:"last_used_at"`
	Credential string     `json:"credential,omitempty"`
}
