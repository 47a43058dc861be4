package commands

import (
	"context"
	"fmt"
	"net/http"

	"github.com/tonearm/tonearm/cmd/cli/internal/credentials"
)

type RefreshCmd struct {
	ServerFlags
}

// Run exchanges the stored session id for a fresh signed token. The session
// id keeps working after the token expires, so this recovers a stale login
// without prompting for the password again.
func (c *RefreshCmd) Run(ctx context.Context, globals *Globals) error {
	store, err := c.store()
	if err != nil {
		return err
	}

	cred, err := store.Get(c.Server)
	if err != nil {
		return fmt.Errorf("not logged in to %s, run 'tonearm login' first", c.Server)
	}

	var result loginPayload
	err = newAPIClient(c.Server, "").do(ctx, http.MethodPost, "/v1/auth/refresh", map[string]string{
		"session_id": cred.SessionID,
	}, &result)
	if err != nil {
		return err
	}

	err = store.Put(credentials.Credential{
		Server:    c.Server,
		Username:  result.Principal.Username,
		SessionID: result.Session.SessionID,
		Token:     result.Token,
	})
	if err != nil {
		return err
	}

	fmt.Printf("Refreshed session on %s as %s\n", c.Server, result.Principal.Username)
	return nil
}
