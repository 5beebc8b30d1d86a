// Package ledger owns the durable transaction ledger: it converts raw
// chain observations into ledger rows through an idempotent, status-monotone
// upsert and reports the resulting state transitions.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// TransactionType is the direction of a transfer relative to the owning wallet.
// It is computed exactly once, during reconciliation, and never re-derived downstream.
type TransactionType string

const (
	TransactionTypeSend    TransactionType = "send"
	TransactionTypeReceive TransactionType = "receive"
)

// TransactionStatus is the finality state of a ledger transaction.
//
// Status is monotone non-decreasing: pending may move to confirmed or failed,
// confirmed and failed are terminal and never change again for a signature.
type TransactionStatus string

const (
	TransactionStatusPending   TransactionStatus = "pending"
	TransactionStatusConfirmed TransactionStatus = "confirmed"
	TransactionStatusFailed    TransactionStatus = "failed"
)

// IsTerminal reports whether the status admits no further transitions.
func (s TransactionStatus) IsTerminal() bool {
	return s == TransactionStatusConfirmed || s == TransactionStatusFailed
}

// CanTransitionTo reports whether moving from s to next is allowed by the
// monotonicity rule. Transitions to the same status are not transitions.
func (s TransactionStatus) CanTransitionTo(next TransactionStatus) bool {
	return s == TransactionStatusPending && next.IsTerminal()
}

// TokenPrecision is the number of fractional digits the tracked token supports.
// USDC uses 6 on every chain it is issued on.
const TokenPrecision = 6

var (
	// ErrPrecisionExceeded indicates that an observed amount carries more
	// fractional digits than the token can represent.
	ErrPrecisionExceeded = errors.New("amount exceeds token precision")

	// ErrWalletNotInvolved indicates that the observed transfer references
	// neither side as the wallet being reconciled.
	ErrWalletNotInvolved = errors.New("wallet is neither sender nor receiver")

	// ErrTransactionNotFound is returned by LedgerStorage lookups when no row
	// exists for the requested signature.
	ErrTransactionNotFound = errors.New("transaction not found")
)

// Transaction is a single ledger row, keyed by its chain-assigned signature.
type Transaction struct {
	Signature     string            // Chain-assigned, globally unique identifier
	WalletAddress string            // Owning wallet
	Type          TransactionType   // Direction relative to the owning wallet
	Amount        decimal.Decimal   // Fixed-point amount at TokenPrecision digits
	TokenMint     string            // Asset identifier
	Counterparty  string            // The other party's address
	Status        TransactionStatus // Finality state
	BlockTime     time.Time         // Chain timestamp
	CreatedAt     time.Time         // Ingestion time
}

// ObservedTransaction is a raw transfer observation handed over by the chain
// watcher, before direction and precision have been resolved.
type ObservedTransaction struct {
	Signature string
	Sender    string
	Receiver  string
	Amount    string // Decimal string in token units (e.g. "10.000000")
	TokenMint string
	Status    TransactionStatus
	BlockTime time.Time
}

// UpsertResult describes what a ledger upsert actually did to the row.
//
// Changed is true when the row was inserted or its status moved; OldStatus is
// nil on first insertion. Conflict is true when the observation requested a
// transition the monotonicity rule forbids, in which case the row was left
// untouched and Changed is false.
type UpsertResult struct {
	OldStatus *TransactionStatus
	NewStatus TransactionStatus
	Changed   bool
	Conflict  bool
}

// LedgerStorage is the persistence port for ledger transactions.
//
// UpsertTransaction is the sole admitted write path for ledger rows: inserting
// when the signature is unseen, updating status only when
// TransactionStatus.CanTransitionTo allows it, and reporting the outcome.
// Implementations must be safe for concurrent use and must never create a
// duplicate row or regress a status for the same signature.
type LedgerStorage interface {
	// UpsertTransaction inserts or status-advances the given transaction,
	// keyed by signature.
	UpsertTransaction(ctx context.Context, tx Transaction) (UpsertResult, error)

	// GetTransaction fetches a single ledger row by signature. It returns
	// ErrTransactionNotFound when no row exists.
	GetTransaction(ctx context.Context, signature string) (Transaction, error)
}

// normalizeTransaction derives a ledger Transaction from a raw observation for
// the given wallet address: direction from the sender/receiver roles, the
// counterparty as the other leg, and the amount parsed as a fixed-point decimal
// bounded by TokenPrecision.
func normalizeTransaction(walletAddress string, observed ObservedTransaction) (Transaction, error) {
	var (
		txType       TransactionType
		counterparty string
	)
	switch walletAddress {
	case observed.Receiver:
		txType, counterparty = TransactionTypeReceive, observed.Sender
	case observed.Sender:
		txType, counterparty = TransactionTypeSend, observed.Receiver
	default:
		return Transaction{}, fmt.Errorf("%w: signature %s", ErrWalletNotInvolved, observed.Signature)
	}

	amount, err := decimal.NewFromString(observed.Amount)
	if err != nil {
		return Transaction{}, fmt.Errorf("parsing amount %q: %w", observed.Amount, err)
	}
	// Compare by value so trailing zeros ("1.0000000") pass while a true
	// sub-precision remainder does not.
	if !amount.Equal(amount.Truncate(TokenPrecision)) {
		return Transaction{}, fmt.Errorf("%w: %s exceeds %d fractional digits", ErrPrecisionExceeded, observed.Amount, TokenPrecision)
	}

	return Transaction{
		Signature:     observed.Signature,
		WalletAddress: walletAddress,
		Type:          txType,
		Amount:        amount,
		TokenMint:     observed.TokenMint,
		Counterparty:  counterparty,
		Status:        observed.Status,
		BlockTime:     observed.BlockTime,
	}, nil
}
