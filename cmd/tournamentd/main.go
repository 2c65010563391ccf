package main

import (
	"github.com/alecthomas/kong"
)

// version is set by ldflags during build
var version = "dev"

type CLI struct {
	Version kong.VersionFlag `short:"v" help:"Show version"`
	Serve   ServeCmd         `cmd:"" default:"withargs" help:"Run the tournament daemon (default)"`
	Send    SendCmd          `cmd:"" help:"Send one command to a running daemon and print the reply"`
}

func main() {
	var cli CLI
	ctx := kong.Parse(&cli,
		kong.Name("tournamentd"),
		kong.Description("Tournament poker director daemon"),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact: true,
		}),
		kong.Vars{
			"version":      version,
			"default_port": "25600",
		},
	)
	err := ctx.Run()
	ctx.FatalIfErrorf(err)
}
