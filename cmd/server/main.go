package main

import (
	"context"

	"github.com/alecthomas/kong"
	"github.com/tonearm/tonearm/cmd/server/internal/commands"
)

var (
	version = "dev"
	cli     struct {
		Dev     bool `help:"Enable development mode (debug logging, console output)."`
		Version kong.VersionFlag
		Server  commands.ServerCmd     `cmd:"" default:"withargs" help:"Start the access-control API server"`
		Hash    commands.HashSecretCmd `cmd:"" name:"hash-secret" help:"Hash an operator secret for --admin-secret-hash"`
	}
)

func main() {
	ctx := context.Background()
	cmd := kong.Parse(&cli,
		kong.Vars{
			"version": version,
		},
		kong.BindTo(ctx, (*context.Context)(nil)))
	err := cmd.Run(&commands.Globals{Dev: cli.Dev, Version: version})
	cmd.FatalIfErrorf(err)
}
