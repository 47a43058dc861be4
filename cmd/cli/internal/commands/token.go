package commands

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"text/tabwriter"
	"time"
)

// TokenCmd manages long-lived API tokens. These routes require admin
// authority: either the operator's static secret (--admin-secret) or an
// admin-role login.
type TokenCmd struct {
	Issue  TokenIssueCmd  `cmd:"" help:"Issue an API token"`
	List   TokenListCmd   `cmd:"" help:"List API tokens"`
	Delete TokenDeleteCmd `cmd:"" help:"Delete an API token"`
}

type adminFlags struct {
	ServerFlags

	AdminSecret string `help:"static admin secret; falls back to the stored login" default:"" env:"TONEARM_ADMIN_SECRET"`
}

func (f *adminFlags) adminBearer() (string, error) {
	if f.AdminSecret != "" {
		return f.AdminSecret, nil
	}
	return f.bearer()
}

type TokenIssueCmd struct {
	adminFlags

	Name        string `help:"token name; reissuing a name replaces the old token" required:""`
	PrincipalID string `help:"owning principal id (defaults to the system principal)" default:""`
}

func (c *TokenIssueCmd) Run(ctx context.Context, globals *Globals) error {
	bearer, err := c.adminBearer()
	if err != nil {
		return err
	}

	var token apiTokenPayload
	err = newAPIClient(c.Server, bearer).do(ctx, http.MethodPost, "/v1/tokens", map[string]string{
		"name":         c.Name,
		"principal_id": c.PrincipalID,
	}, &token)
	if err != nil {
		return err
	}

	fmt.Printf("Issued token %q (%s)\n\n", token.Name, token.TokenID)
	fmt.Println(token.Credential)
	fmt.Fprintln(os.Stderr, "\nStore this credential now; it is not shown again.")
	return nil
}

type TokenListCmd struct {
	adminFlags

	PrincipalID string `help:"filter by owning principal id" default:""`
}

func (c *TokenListCmd) Run(ctx context.Context, globals *Globals) error {
	bearer, err := c.adminBearer()
	if err != nil {
		return err
	}

	path := "/v1/tokens"
	if c.PrincipalID != "" {
		path += "?principal_id=" + url.QueryEscape(c.PrincipalID)
	}

	var tokens []apiTokenPayload
	if err := newAPIClient(c.Server, bearer).do(ctx, http.MethodGet, path, nil, &tokens); err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tTOKEN ID\tCREATED\tLAST USED")
	for _, t := range tokens {
		lastUsed := "never"
		if t.LastUsedAt != nil {
			lastUsed = t.LastUsedAt.Local().Format(time.RFC3339)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			t.ID,
			t.Name,
			t.TokenID,
			t.CreatedAt.Local().Format(time.RFC3339),
			lastUsed,
		)
	}
	return w.Flush()
}

type TokenDeleteCmd struct {
	adminFlags

	ID string `arg:"" help:"token row id"`
}

func (c *TokenDeleteCmd) Run(ctx context.Context, globals *Globals) error {
	bearer, err := c.adminBearer()
	if err != nil {
		return err
	}

	err = newAPIClient(c.Server, bearer).do(ctx, http.MethodDelete, "/v1/tokens/"+url.PathEscape(c.ID), nil, nil)
	if err != nil {
		return err
	}

	fmt.Printf("Deleted token %s\n", c.ID)
	return nil
}
