package walletregistry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gabapcia/paywatch/internal/pkg/validator"

	"github.com/gagliardetto/solana-go"
)

var (
	// ErrInvalidAddress indicates that the provided string is not a
	// syntactically valid Solana address.
	ErrInvalidAddress = errors.New("invalid wallet address")

	// ErrWalletNotFound is returned by lookups for addresses that were never
	// registered.
	ErrWalletNotFound = errors.New("wallet not found")
)

// Wallet is a registered address to monitor, with an optional webhook endpoint
// notified on transaction state changes.
type Wallet struct {
	Address    string `validate:"required"`           // Chain-native public key, primary identity
	WebhookURL string `validate:"omitempty,http_url"` // Optional subscriber endpoint
	CreatedAt  time.Time
}

// WalletStorage is the persistence port for registered wallets.
//
// SaveWallet must be idempotent and safe under concurrent calls for the same
// address: exactly one row results, and a later registration with a webhook URL
// updates the stored endpoint without duplicating the wallet.
type WalletStorage interface {
	// SaveWallet inserts the wallet or returns the existing row for its address.
	SaveWallet(ctx context.Context, wallet Wallet) (Wallet, error)

	// GetWallet fetches a single wallet by address. It returns
	// ErrWalletNotFound when the address was never registered.
	GetWallet(ctx context.Context, address string) (Wallet, error)

	// ListWallets returns every registered wallet. The chain watcher iterates
	// this set on each poll cycle.
	ListWallets(ctx context.Context) ([]Wallet, error)

	// DeleteWallet removes the wallet and, by cascade, its transactions and
	// webhook events. Deleting an unknown address returns ErrWalletNotFound.
	DeleteWallet(ctx context.Context, address string) error
}

// buildWallet constructs and validates a Wallet from the given address and
// optional webhook URL. The address must parse as a base58 Solana public key.
func buildWallet(address, webhookURL string) (Wallet, error) {
	if _, err := solana.PublicKeyFromBase58(address); err != nil {
		return Wallet{}, fmt.Errorf("%w: %s", ErrInvalidAddress, address)
	}

	wallet := Wallet{
		Address:    address,
		WebhookURL: webhookURL,
	}

	return wallet, validator.Validate(wallet)
}
