package main

import (
	"context"

	"github.com/alecthomas/kong"
	"github.com/tonearm/tonearm/cmd/cli/internal/commands"
	"github.com/tonearm/tonearm/internal/logger"
)

var (
	version = "dev"
	cli     struct {
		Login    commands.LoginCmd    `cmd:"" help:"Log in to a server and store the session token"`
		Refresh  commands.RefreshCmd  `cmd:"" help:"Renew the stored token from the saved session"`
		Logout   commands.LogoutCmd   `cmd:"" help:"Revoke the current session"`
		Sessions commands.SessionsCmd `cmd:"" help:"List your active sessions"`
		Token    commands.TokenCmd    `cmd:"" help:"Manage API tokens (admin)"`
		Dev      bool                 `help:"Enable debug output."`
		Version  kong.VersionFlag
	}
)

func main() {
	ctx := context.Background()
	cmd := kong.Parse(&cli,
		kong.Vars{
			"version": version,
		},
		kong.BindTo(ctx, (*context.Context)(nil)))
	logger.Setup(cli.Dev)
	err := cmd.Run(&commands.Globals{Dev: cli.Dev, Version: version})
	cmd.FatalIfErrorf(err)
}
