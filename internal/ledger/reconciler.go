package ledger

import (
	"context"

	"github.com/gabapcia/paywatch/internal/pkg/logger"
)

// Transition records a detected change in a transaction's status. It is the
// unit of work the webhook dispatcher acts on.
//
// OldStatus is nil when the transition comes from the first insertion of the
// signature.
type Transition struct {
	Signature     string
	WalletAddress string
	OldStatus     *TransactionStatus
	NewStatus     TransactionStatus
}

// Service reconciles raw chain observations against the durable ledger.
type Service interface {
	// Reconcile merges the observed transactions for a wallet into the ledger
	// and returns one Transition per observation that actually changed state.
	//
	// Reconciling the same observation any number of times yields exactly one
	// ledger row and at most one emitted transition: unchanged re-observations
	// produce nothing. Disallowed status transitions are logged as conflicts
	// and skipped without failing the batch. Observations that cannot be
	// normalized (precision overflow, wallet not involved) are likewise logged
	// and skipped, since retrying them can never succeed.
	Reconcile(ctx context.Context, walletAddress string, observed []ObservedTransaction) ([]Transition, error)
}

// service is the concrete implementation of the Service interface.
type service struct {
	ledgerStorage LedgerStorage
}

// Compile-time check to ensure *service implements the Service interface.
var _ Service = (*service)(nil)

// New creates a reconciler backed by the given LedgerStorage.
func New(ls LedgerStorage) *service {
	return &service{
		ledgerStorage: ls,
	}
}

// Reconcile implements Service. Observations are processed in the order they
// were handed over, preserving per-signature transition ordering within a
// wallet's batch.
func (s *service) Reconcile(ctx context.Context, walletAddress string, observed []ObservedTransaction) ([]Transition, error) {
	transitions := make([]Transition, 0, len(observed))

	for _, obs := range observed {
		tx, err := normalizeTransaction(walletAddress, obs)
		if err != nil {
			logger.Warn(ctx, "skipping unreconcilable observation",
				"wallet.address", walletAddress,
				"transaction.signature", obs.Signature,
				"error", err,
			)
			continue
		}

		result, err := s.ledgerStorage.UpsertTransaction(ctx, tx)
		if err != nil {
			return transitions, err
		}

		if result.Conflict {
			logger.Warn(ctx, "reconciliation conflict: disallowed status transition",
				"wallet.address", walletAddress,
				"transaction.signature", tx.Signature,
				"transaction.status", result.OldStatus,
				"observed.status", tx.Status,
			)
			continue
		}

		if !result.Changed {
			continue
		}

		transitions = append(transitions, Transition{
			Signature:     tx.Signature,
			WalletAddress: walletAddress,
			OldStatus:     result.OldStatus,
			NewStatus:     result.NewStatus,
		})
	}

	return transitions, nil
}
