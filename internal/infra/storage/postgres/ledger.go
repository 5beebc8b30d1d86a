package postgres

import (
	"context"
	"database/sql"
	"errors"

	"github.com/gabapcia/paywatch/internal/ledger"
	"github.com/gabapcia/paywatch/internal/walletquery"
	"github.com/gabapcia/paywatch/internal/webhook"

	"github.com/shopspring/decimal"
)

// UpsertTransaction implements the ledger.LedgerStorage interface.
//
// A single statement inserts the row when the signature is unseen and
// advances its status only for transitions the monotonicity rule allows
// (pending to a terminal state). The CTE captures the prior status so the
// caller learns what actually happened; reconciling the same observation
// again is a no-op.
func (c *client) UpsertTransaction(ctx context.Context, tx ledger.Transaction) (ledger.UpsertResult, error) {
	row := c.db.QueryRowContext(ctx, `
		WITH current AS (
			SELECT status FROM transactions WHERE signature = $1
		), upserted AS (
			INSERT INTO transactions (signature, wallet_address, tx_type, amount, token_mint, counterparty, status, block_time)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			ON CONFLICT (signature) DO UPDATE
				SET status = EXCLUDED.status
				WHERE transactions.status = 'pending'
				  AND EXCLUDED.status IN ('confirmed', 'failed')
			RETURNING status
		)
		SELECT (SELECT status FROM current), (SELECT status FROM upserted)`,
		tx.Signature, tx.WalletAddress, string(tx.Type), tx.Amount.String(),
		tx.TokenMint, tx.Counterparty, string(tx.Status), tx.BlockTime,
	)

	var oldStatus, newStatus sql.NullString
	if err := row.Scan(&oldStatus, &newStatus); err != nil {
		return ledger.UpsertResult{}, err
	}

	result := ledger.UpsertResult{NewStatus: tx.Status}
	if oldStatus.Valid {
		prev := ledger.TransactionStatus(oldStatus.String)
		result.OldStatus = &prev
	}

	switch {
	case newStatus.Valid && !oldStatus.Valid:
		// First insertion.
		result.Changed = true
	case newStatus.Valid && oldStatus.String != newStatus.String:
		// Allowed status advance.
		result.Changed = true
		result.NewStatus = ledger.TransactionStatus(newStatus.String)
	case !newStatus.Valid && oldStatus.Valid && oldStatus.String != string(tx.Status):
		// Row untouched although the observation differs: disallowed transition.
		result.NewStatus = ledger.TransactionStatus(oldStatus.String)
		result.Conflict = true
	default:
		// Unchanged re-observation.
		result.NewStatus = ledger.TransactionStatus(oldStatus.String)
	}

	return result, nil
}

// GetTransaction implements the ledger.LedgerStorage interface.
func (c *client) GetTransaction(ctx context.Context, signature string) (ledger.Transaction, error) {
	row := c.db.QueryRowContext(ctx, `
		SELECT signature, wallet_address, tx_type, amount, token_mint, counterparty, status, block_time, created_at
		FROM transactions
		WHERE signature = $1`,
		signature,
	)

	var (
		tx        ledger.Transaction
		txType    string
		status    string
		amountStr string
	)
	err := row.Scan(&tx.Signature, &tx.WalletAddress, &txType, &amountStr,
		&tx.TokenMint, &tx.Counterparty, &status, &tx.BlockTime, &tx.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			err = ledger.ErrTransactionNotFound
		}
		return ledger.Transaction{}, err
	}

	amount, err := decimal.NewFromString(amountStr)
	if err != nil {
		return ledger.Transaction{}, err
	}

	tx.Type = ledger.TransactionType(txType)
	tx.Status = ledger.TransactionStatus(status)
	tx.Amount = amount
	return tx, nil
}

// GetTransactionSnapshot implements the webhook.TransactionSource interface.
func (c *client) GetTransactionSnapshot(ctx context.Context, signature string) (webhook.TransactionSnapshot, error) {
	tx, err := c.GetTransaction(ctx, signature)
	if err != nil {
		return webhook.TransactionSnapshot{}, err
	}

	return webhook.TransactionSnapshot{
		Signature:     tx.Signature,
		WalletAddress: tx.WalletAddress,
		Type:          string(tx.Type),
		Amount:        tx.Amount.StringFixed(ledger.TokenPrecision),
		TokenMint:     tx.TokenMint,
		Counterparty:  tx.Counterparty,
		Status:        string(tx.Status),
		BlockTime:     tx.BlockTime,
	}, nil
}

// SumConfirmedAmount implements the walletquery.LedgerReader interface.
func (c *client) SumConfirmedAmount(ctx context.Context, address string) (decimal.Decimal, error) {
	row := c.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(CASE WHEN tx_type = 'receive' THEN amount ELSE -amount END), 0)
		FROM transactions
		WHERE wallet_address = $1 AND status = 'confirmed'`,
		address,
	)

	var sumStr string
	if err := row.Scan(&sumStr); err != nil {
		return decimal.Zero, err
	}
	return decimal.NewFromString(sumStr)
}

// ListTransactionsByWallet implements the walletquery.LedgerReader interface.
func (c *client) ListTransactionsByWallet(ctx context.Context, address string, limit, offset int) ([]walletquery.Transaction, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT signature, wallet_address, tx_type, amount, token_mint, counterparty, status, block_time, created_at
		FROM transactions
		WHERE wallet_address = $1
		ORDER BY block_time DESC
		LIMIT $2 OFFSET $3`,
		address, limit, offset,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var txs []walletquery.Transaction
	for rows.Next() {
		var (
			tx        walletquery.Transaction
			amountStr string
		)
		if err := rows.Scan(&tx.Signature, &tx.WalletAddress, &tx.Type, &amountStr,
			&tx.TokenMint, &tx.Counterparty, &tx.Status, &tx.BlockTime, &tx.CreatedAt); err != nil {
			return nil, err
		}

		if tx.Amount, err = decimal.NewFromString(amountStr); err != nil {
			return nil, err
		}
		txs = append(txs, tx)
	}
	return txs, rows.Err()
}

// Compile-time assertions that *client satisfies the ledger-facing ports.
var (
	_ ledger.LedgerStorage      = (*client)(nil)
	_ webhook.TransactionSource = (*client)(nil)
	_ walletquery.LedgerReader  = (*client)(nil)
)
