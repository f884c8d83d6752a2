package main

import (
	"log/slog"

	"github.com/alecthomas/kong"

	"git.home.luguber.info/inful/twinbuild/cmd/twinbuild/commands"
	foundationerrors "git.home.luguber.info/inful/twinbuild/internal/foundation/errors"
	"git.home.luguber.info/inful/twinbuild/internal/version"
)

func main() {
	cli := &commands.CLI{}
	parser := kong.Parse(cli,
		kong.Name("twinbuild"),
		kong.Description("Build and watch the client and server bundles of an app."),
		kong.UsageOnError(),
		kong.Vars{"version": version.String()},
	)

	global := &commands.Global{Logger: slog.Default()}
	err := parser.Run(global, cli)
	cli.CloseLog()

	foundationerrors.NewCLIErrorAdapter(cli.Verbose, slog.Default()).HandleError(err)
}
