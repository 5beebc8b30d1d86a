// Package postgres implements the durable storage ports (wallet registry,
// transaction ledger, webhook events) on top of PostgreSQL using database/sql
// and the lib/pq driver.
package postgres

import (
	"context"
	"database/sql"

	_ "github.com/lib/pq" // postgres driver registration
)

// schema holds the full relational layout. Statements are idempotent so they
// can run on every startup.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS wallets (
		address     TEXT PRIMARY KEY,
		webhook_url TEXT,
		created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS transactions (
		signature      TEXT PRIMARY KEY,
		wallet_address TEXT NOT NULL REFERENCES wallets (address) ON DELETE CASCADE,
		tx_type        VARCHAR(10) NOT NULL,
		amount         NUMERIC(20, 6) NOT NULL,
		token_mint     TEXT NOT NULL,
		counterparty   TEXT NOT NULL,
		status         VARCHAR(10) NOT NULL,
		block_time     TIMESTAMPTZ NOT NULL,
		created_at     TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_transactions_wallet_block_time
		ON transactions (wallet_address, block_time DESC)`,
	`CREATE TABLE IF NOT EXISTS webhook_events (
		id                    UUID PRIMARY KEY,
		wallet_address        TEXT NOT NULL REFERENCES wallets (address) ON DELETE CASCADE,
		transaction_signature TEXT REFERENCES transactions (signature) ON DELETE SET NULL,
		event_type            TEXT NOT NULL,
		payload               JSONB NOT NULL,
		status                VARCHAR(10) NOT NULL DEFAULT 'pending',
		attempts              INTEGER NOT NULL DEFAULT 0,
		last_attempt_at       TIMESTAMPTZ,
		delivered_at          TIMESTAMPTZ,
		last_error            TEXT,
		next_attempt_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
		claimed_until         TIMESTAMPTZ,
		created_at            TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS uq_webhook_events_tx_event
		ON webhook_events (transaction_signature, event_type)
		WHERE transaction_signature IS NOT NULL`,
	`CREATE INDEX IF NOT EXISTS idx_webhook_events_due
		ON webhook_events (next_attempt_at) WHERE status = 'pending'`,
}

type client struct {
	db *sql.DB
}

func (c *client) Close() error {
	return c.db.Close()
}

// Migrate applies the schema. Safe to call on every startup.
func (c *client) Migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := c.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// NewClient opens a connection pool against the given DSN and verifies it
// with a ping.
func NewClient(ctx context.Context, dsn string, maxOpenConns int) (*client, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(maxOpenConns)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}

	return &client{
		db: db,
	}, nil
}
