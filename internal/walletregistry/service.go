package walletregistry

import (
	"context"
	"fmt"

	"github.com/gagliardetto/solana-go"
)

// Service defines the interface for managing the set of wallet addresses
// monitored for transaction activity.
//
// Implementations are responsible for validating input and delegating
// persistence to the configured WalletStorage.
type Service interface {
	// Register adds a wallet to the monitored set, or returns the existing
	// registration when the address is already known (idempotent).
	//
	// Parameters:
	//   - ctx: controls cancellation and timeout.
	//   - address: the Solana wallet address to monitor.
	//   - webhookURL: optional endpoint notified on transaction state changes;
	//     empty means no notifications for this wallet.
	//
	// Returns:
	//   - The registered wallet.
	//   - ErrInvalidAddress if the address is not syntactically valid, or an
	//     error if persistence fails.
	Register(ctx context.Context, address, webhookURL string) (Wallet, error)

	// Get returns the registration for the given address, or ErrWalletNotFound.
	Get(ctx context.Context, address string) (Wallet, error)

	// List returns every registered wallet.
	List(ctx context.Context) ([]Wallet, error)

	// Unregister removes a wallet from the monitored set. Its ledger
	// transactions and webhook events are removed by cascade.
	Unregister(ctx context.Context, address string) error
}

// service is the concrete implementation of the Service interface.
type service struct {
	walletStorage WalletStorage
}

// Ensure compile-time compliance with the Service interface.
var _ Service = (*service)(nil)

// New creates a new instance of the walletregistry service using the provided
// WalletStorage implementation.
//
// This constructor is intended to be used by dependency injection during
// application wiring.
func New(ws WalletStorage) *service {
	return &service{
		walletStorage: ws,
	}
}

// Register validates the input, constructs a Wallet, and persists it through
// WalletStorage. Re-registering an existing address is a no-op apart from
// updating its webhook endpoint.
func (s *service) Register(ctx context.Context, address, webhookURL string) (Wallet, error) {
	wallet, err := buildWallet(address, webhookURL)
	if err != nil {
		return Wallet{}, err
	}

	return s.walletStorage.SaveWallet(ctx, wallet)
}

// Get fetches a single registration by address.
func (s *service) Get(ctx context.Context, address string) (Wallet, error) {
	return s.walletStorage.GetWallet(ctx, address)
}

// List returns all registered wallets.
func (s *service) List(ctx context.Context) ([]Wallet, error) {
	return s.walletStorage.ListWallets(ctx)
}

// Unregister removes the wallet registration for the given address.
func (s *service) Unregister(ctx context.Context, address string) error {
	if _, err := solana.PublicKeyFromBase58(address); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidAddress, address)
	}

	return s.walletStorage.DeleteWallet(ctx, address)
}
