package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/gabapcia/paywatch/internal/handlers/rest"
	"github.com/gabapcia/paywatch/internal/payproc"

	"github.com/urfave/cli/v3"
)

// serveCommand returns a CLI command that starts the full engine: the chain
// polling and webhook delivery pipeline plus the REST API.
//
// Usage example:
//
//	paywatch serve
//
// The process runs indefinitely until it receives an interrupt (SIGINT or SIGTERM).
func serveCommand(pp payproc.Service, api *rest.Server) *cli.Command {
	return &cli.Command{
		Name:        "serve",
		Description: "Starts the reconciliation pipeline and the REST API.",
		Usage:       "Initializes and runs the full engine. Terminates gracefully on Ctrl+C or termination signals.",
		Action: func(ctx context.Context, c *cli.Command) error {
			quit := make(chan os.Signal, 1)
			defer close(quit)

			signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

			if err := pp.Start(ctx); err != nil {
				return err
			}
			defer pp.Close()

			if err := api.Start(ctx); err != nil {
				return err
			}
			defer api.Close()

			<-quit
			return nil
		},
	}
}
