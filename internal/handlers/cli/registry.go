package cli

import (
	"context"

	"github.com/gabapcia/paywatch/internal/walletregistry"

	"github.com/urfave/cli/v3"
)

// startWatchingWalletCommand returns a CLI command that allows users to register
// a wallet address for payment monitoring, optionally attaching a webhook URL
// that receives transaction status notifications.
//
// Usage example:
//
//	paywatch watch --address 9xQeWvG816bUx9EPjHmaT23yvVM2ZWbrrpZb9PusVFin --webhook-url https://example.com/hooks
func startWatchingWalletCommand(wr walletregistry.Service) *cli.Command {
	return &cli.Command{
		Name:        "watch",
		Description: "Register a wallet to be monitored for incoming and outgoing payments.",
		Usage:       "Registers a wallet address for watching. The webhook URL is optional and can be set later.",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "address",
				Usage:    "Wallet address to start watching",
				Required: true,
			},
			&cli.StringFlag{
				Name:  "webhook-url",
				Usage: "HTTP endpoint notified on transaction status changes",
			},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			var (
				address    = c.String("address")
				webhookURL = c.String("webhook-url")
			)

			_, err := wr.Register(ctx, address, webhookURL)
			return err
		},
	}
}

// stopWatchingWalletCommand returns a CLI command that allows users to unregister
// a wallet address from being monitored.
//
// Usage example:
//
//	paywatch unwatch --address 9xQeWvG816bUx9EPjHmaT23yvVM2ZWbrrpZb9PusVFin
func stopWatchingWalletCommand(wr walletregistry.Service) *cli.Command {
	return &cli.Command{
		Name:        "unwatch",
		Description: "Unregister a wallet from being monitored.",
		Usage:       "Stops watching a wallet address and removes its recorded transactions.",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "address",
				Usage:    "Wallet address to stop watching",
				Required: true,
			},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			return wr.Unregister(ctx, c.String("address"))
		},
	}
}
