package postgres

import (
	"context"
	"database/sql"
	"errors"

	"github.com/gabapcia/paywatch/internal/chainwatch"
	"github.com/gabapcia/paywatch/internal/walletregistry"
	"github.com/gabapcia/paywatch/internal/webhook"
)

// SaveWallet implements the walletregistry.WalletStorage interface.
//
// The ON CONFLICT clause makes registration idempotent and concurrent-safe:
// exactly one row exists per address, and re-registering updates the webhook
// endpoint only when a new one was provided.
func (c *client) SaveWallet(ctx context.Context, wallet walletregistry.Wallet) (walletregistry.Wallet, error) {
	row := c.db.QueryRowContext(ctx, `
		INSERT INTO wallets (address, webhook_url)
		VALUES ($1, NULLIF($2, ''))
		ON CONFLICT (address) DO UPDATE
			SET webhook_url = COALESCE(NULLIF($2, ''), wallets.webhook_url)
		RETURNING address, COALESCE(webhook_url, ''), created_at`,
		wallet.Address, wallet.WebhookURL,
	)

	var saved walletregistry.Wallet
	if err := row.Scan(&saved.Address, &saved.WebhookURL, &saved.CreatedAt); err != nil {
		return walletregistry.Wallet{}, err
	}
	return saved, nil
}

// GetWallet implements the walletregistry.WalletStorage interface.
func (c *client) GetWallet(ctx context.Context, address string) (walletregistry.Wallet, error) {
	row := c.db.QueryRowContext(ctx, `
		SELECT address, COALESCE(webhook_url, ''), created_at
		FROM wallets
		WHERE address = $1`,
		address,
	)

	var wallet walletregistry.Wallet
	if err := row.Scan(&wallet.Address, &wallet.WebhookURL, &wallet.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			err = walletregistry.ErrWalletNotFound
		}
		return walletregistry.Wallet{}, err
	}
	return wallet, nil
}

// ListWallets implements the walletregistry.WalletStorage interface.
func (c *client) ListWallets(ctx context.Context) ([]walletregistry.Wallet, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT address, COALESCE(webhook_url, ''), created_at
		FROM wallets
		ORDER BY created_at DESC`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var wallets []walletregistry.Wallet
	for rows.Next() {
		var wallet walletregistry.Wallet
		if err := rows.Scan(&wallet.Address, &wallet.WebhookURL, &wallet.CreatedAt); err != nil {
			return nil, err
		}
		wallets = append(wallets, wallet)
	}
	return wallets, rows.Err()
}

// DeleteWallet implements the walletregistry.WalletStorage interface.
// Ledger transactions cascade; webhook events cascade with their signature
// reference nulled by the transactions cascade.
func (c *client) DeleteWallet(ctx context.Context, address string) error {
	result, err := c.db.ExecContext(ctx, `DELETE FROM wallets WHERE address = $1`, address)
	if err != nil {
		return err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return walletregistry.ErrWalletNotFound
	}
	return nil
}

// ListWatchedWallets implements the chainwatch.WalletSource interface.
func (c *client) ListWatchedWallets(ctx context.Context) ([]chainwatch.Wallet, error) {
	rows, err := c.db.QueryContext(ctx, `SELECT address FROM wallets ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var wallets []chainwatch.Wallet
	for rows.Next() {
		var wallet chainwatch.Wallet
		if err := rows.Scan(&wallet.Address); err != nil {
			return nil, err
		}
		wallets = append(wallets, wallet)
	}
	return wallets, rows.Err()
}

// WebhookEndpoint implements the webhook.EndpointSource interface.
func (c *client) WebhookEndpoint(ctx context.Context, address string) (string, error) {
	var url sql.NullString
	err := c.db.QueryRowContext(ctx, `SELECT webhook_url FROM wallets WHERE address = $1`, address).Scan(&url)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			err = webhook.ErrNoWebhookURL
		}
		return "", err
	}

	if !url.Valid || url.String == "" {
		return "", webhook.ErrNoWebhookURL
	}
	return url.String, nil
}

// Compile-time assertions that *client satisfies the wallet-facing ports.
var (
	_ walletregistry.WalletStorage = (*client)(nil)
	_ chainwatch.WalletSource      = (*client)(nil)
	_ webhook.EndpointSource       = (*client)(nil)
)
