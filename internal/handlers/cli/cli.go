package cli

import (
	"context"
	"os"

	"github.com/gabapcia/paywatch/internal/handlers/rest"
	"github.com/gabapcia/paywatch/internal/payproc"
	"github.com/gabapcia/paywatch/internal/walletregistry"

	"github.com/urfave/cli/v3"
)

// Run initializes and executes the paywatch CLI application.
//
// It registers all available commands, including:
//
//   - `serve`: Starts the REST API together with the reconciliation pipeline.
//   - `watch`: Registers a wallet for monitoring.
//   - `unwatch`: Unregisters a wallet from monitoring.
//
// Parameters:
//   - ctx: Context used to control the lifecycle of the CLI application.
//   - wr: The walletregistry service implementation used by wallet commands.
//   - pp: The payproc service implementation driving the pipeline.
//   - api: The REST server exposing the query surface.
//
// This function sets up shell completion and invokes the CLI framework to parse and run commands.
func Run(ctx context.Context, wr walletregistry.Service, pp payproc.Service, api *rest.Server) error {
	app := &cli.Command{
		EnableShellCompletion: true,
		Name:                  "paywatch",
		Description:           "Command-line interface for managing and running the paywatch payment engine.",
		Usage:                 "paywatch [command] [flags]",
		Commands: []*cli.Command{
			serveCommand(pp, api),
			startWatchingWalletCommand(wr),
			stopWatchingWalletCommand(wr),
		},
	}

	return app.Run(ctx, os.Args)
}
