package commands

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

type LogoutCmd struct {
	ServerFlags

	All bool `help:"revoke every session for the account, not just this one"`
}

func (c *LogoutCmd) Run(ctx context.Context, globals *Globals) error {
	bearer, err := c.bearer()
	if err != nil {
		return err
	}

	path := "/v1/auth/logout"
	if c.All {
		path = "/v1/auth/logout-all"
	}

	// The local credential is removed even if the server-side revoke fails
	// with 401; a dead token is no use either way.
	err = newAPIClient(c.Server, bearer).do(ctx, http.MethodPost, path, nil, nil)
	if err != nil {
		var apiErr *apiError
		if !errors.As(err, &apiErr) || apiErr.Status != http.StatusUnauthorized {
			return err
		}
	}

	store, err := c.store()
	if err != nil {
		return err
	}
	if err := store.Delete(c.Server); err != nil {
		return err
	}

	fmt.Printf("Logged out of %s\n", c.Server)
	return nil
}
