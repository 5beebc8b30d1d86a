package chainwatch

import "context"

// Wallet identifies a single watched address.
type Wallet struct {
	Address string
}

// WalletSource enumerates the wallets to poll on each cycle. It is typically
// backed by the wallet registry's storage.
type WalletSource interface {
	// ListWatchedWallets returns every wallet currently opted into monitoring.
	ListWatchedWallets(ctx context.Context) ([]Wallet, error)
}

// TransactionSink consumes the batch of new transactions observed for a wallet.
//
// A nil return means the batch was durably processed and the wallet's
// watermark may advance past it. Any error leaves the watermark untouched, so
// the same batch is re-delivered on a later cycle; sinks must therefore be
// idempotent.
type TransactionSink interface {
	HandleWalletTransactions(ctx context.Context, wallet Wallet, txs []Transaction) error
}
