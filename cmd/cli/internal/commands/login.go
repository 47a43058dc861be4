package commands

import (
	"bufio"
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/tonearm/tonearm/cmd/cli/internal/credentials"
)

type LoginCmd struct {
	ServerFlags

	Username string `help:"username" required:""`
	Password string `help:"password; read from stdin when omitted" default:"" env:"TONEARM_PASSWORD"`
	Register bool   `help:"create the account instead of logging in"`
}

func (c *LoginCmd) Run(ctx context.Context, globals *Globals) error {
	password := c.Password
	if password == "" {
		fmt.Fprint(os.Stderr, "Password: ")
		line, err := bufio.NewReader(os.Stdin).ReadString('\n')
		if err != nil && line == "" {
			return fmt.Errorf("reading password: %w", err)
		}
		password = strings.TrimRight(line, "\r\n")
	}

	path := "/v1/auth/login"
	if c.Register {
		path = "/v1/auth/register"
	}

	var result loginPayload
	err := newAPIClient(c.Server, "").do(ctx, http.MethodPost, path, map[string]string{
		"username": c.Username,
		"password": password,
	}, &result)
	if err != nil {
		return err
	}

	store, err := c.store()
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

	fmt.Printf("Logged in to %s as %s\n", c.Server, result.Principal.Username)
	return nil
}
