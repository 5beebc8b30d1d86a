package payproc

import (
	"context"

	"github.com/gabapcia/paywatch/internal/chainwatch"
	"github.com/gabapcia/paywatch/internal/ledger"
	"github.com/gabapcia/paywatch/internal/webhook"
)

// mapObservedTransaction converts a chainwatch.Transaction into a
// ledger.ObservedTransaction, allowing cross-module compatibility while
// preserving clear separation of concerns.
func mapObservedTransaction(tx chainwatch.Transaction) ledger.ObservedTransaction {
	return ledger.ObservedTransaction{
		Signature: tx.Signature,
		Sender:    tx.Sender,
		Receiver:  tx.Receiver,
		Amount:    tx.Amount,
		TokenMint: tx.TokenMint,
		Status:    ledger.TransactionStatus(tx.Status),
		BlockTime: tx.BlockTime,
	}
}

// mapTransition converts a ledger.Transition into the dispatcher's input type.
func mapTransition(t ledger.Transition) webhook.Transition {
	return webhook.Transition{
		Signature:     t.Signature,
		WalletAddress: t.WalletAddress,
		NewStatus:     string(t.NewStatus),
	}
}

// Sink is the glue between the chain watcher and the rest of the pipeline:
// each watcher batch is reconciled into the ledger, and every resulting
// transition is enqueued as a durable webhook event.
//
// HandleWalletTransactions only returns nil once reconciliation and enqueueing
// both succeeded, which is what allows the watcher to advance its watermark;
// re-delivered batches are harmless because both downstream writes are
// idempotent.
type Sink struct {
	reconciler ledger.Service
	dispatcher webhook.Service
}

// Compile-time check to ensure *Sink implements chainwatch.TransactionSink.
var _ chainwatch.TransactionSink = (*Sink)(nil)

// NewSink creates the watcher sink from the reconciler and dispatcher.
func NewSink(rec ledger.Service, disp webhook.Service) *Sink {
	return &Sink{
		reconciler: rec,
		dispatcher: disp,
	}
}

// HandleWalletTransactions implements chainwatch.TransactionSink.
func (s *Sink) HandleWalletTransactions(ctx context.Context, wallet chainwatch.Wallet, txs []chainwatch.Transaction) error {
	observed := make([]ledger.ObservedTransaction, len(txs))
	for i, tx := range txs {
		observed[i] = mapObservedTransaction(tx)
	}

	transitions, err := s.reconciler.Reconcile(ctx, wallet.Address, observed)
	if err != nil {
		return err
	}

	for _, transition := range transitions {
		if _, err := s.dispatcher.Enqueue(ctx, mapTransition(transition)); err != nil {
			return err
		}
	}

	return nil
}
