// Package chainwatch polls the chain-data source for transactions involving
// registered wallets and hands each new batch to a downstream sink. A durable
// per-wallet watermark makes every poll resumable: it only advances after the
// sink has fully processed the batch, so a crash between fetch and hand-off
// re-delivers the same page instead of skipping it. The watermark also never
// moves past a pending transaction, so a later status upgrade is re-fetched
// and delivered rather than lost behind the cursor.
package chainwatch

import (
	"context"
	"time"
)

// TransactionStatus is the finality state reported by the chain-data source.
type TransactionStatus string

const (
	TransactionStatusPending   TransactionStatus = "pending"
	TransactionStatusConfirmed TransactionStatus = "confirmed"
	TransactionStatusFailed    TransactionStatus = "failed"
)

// Transaction is a raw token transfer as observed on chain, before any
// ledger-side normalization.
type Transaction struct {
	Signature string            // Chain-assigned transaction signature
	Sender    string            // Source wallet address
	Receiver  string            // Destination wallet address
	Amount    string            // Transfer amount as a decimal string in token units
	TokenMint string            // Asset identifier
	Status    TransactionStatus // Finality state at observation time
	BlockTime time.Time         // Chain timestamp
}

// Blockchain is the port to the chain-data source.
//
// Implementations are trusted for transaction finality; chainwatch performs no
// consensus verification of its own.
type Blockchain interface {
	// ListTransactions returns transfers involving the given address that were
	// observed after sinceSignature (exclusive), ordered oldest first, up to
	// limit entries. An empty sinceSignature means no watermark exists yet and
	// the source should return its most recent history window.
	//
	// Each call is finite. Transient errors (timeouts, rate limits) should be
	// returned as-is; chainwatch applies its own bounded retry policy.
	ListTransactions(ctx context.Context, address, sinceSignature string, limit int) ([]Transaction, error)
}
