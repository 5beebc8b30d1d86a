// Package walletquery serves read-only projections of the transaction ledger:
// wallet balances and transaction history. It reads the ledger independently
// and never participates in the write path.
package walletquery

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

const (
	defaultPageLimit = 50
	maxPageLimit     = 100
)

// Transaction is the ledger row projection returned to external callers.
type Transaction struct {
	Signature     string          `json:"signature"`
	WalletAddress string          `json:"wallet_address"`
	Type          string          `json:"tx_type"`
	Amount        decimal.Decimal `json:"amount"`
	TokenMint     string          `json:"token_mint"`
	Counterparty  string          `json:"counterparty"`
	Status        string          `json:"status"`
	BlockTime     time.Time       `json:"block_time"`
	CreatedAt     time.Time       `json:"created_at"`
}

// Balance is the aggregated position of a wallet in the tracked token.
type Balance struct {
	Address  string          `json:"address"`
	Token    string          `json:"token"`
	Symbol   string          `json:"symbol"`
	Amount   decimal.Decimal `json:"amount"`
	USDValue decimal.Decimal `json:"usd_value"`
}

// LedgerReader is the read-only port over the transaction ledger.
type LedgerReader interface {
	// SumConfirmedAmount returns confirmed receives minus confirmed sends for
	// the wallet. Pending and failed transactions never count toward balance.
	SumConfirmedAmount(ctx context.Context, address string) (decimal.Decimal, error)

	// ListTransactionsByWallet returns the wallet's ledger rows ordered by
	// block time, newest first.
	ListTransactionsByWallet(ctx context.Context, address string, limit, offset int) ([]Transaction, error)
}

// Service exposes the query operations consumed by the REST surface.
type Service interface {
	// Balance aggregates the wallet's confirmed ledger activity. The tracked
	// token is a USD stablecoin, so USD value equals the token amount.
	Balance(ctx context.Context, address string) (Balance, error)

	// Transactions returns one page of the wallet's history, newest block
	// time first. limit defaults to 50 and is capped at 100; negative offsets
	// are treated as zero.
	Transactions(ctx context.Context, address string, limit, offset int) ([]Transaction, error)
}

// service is the concrete implementation of the Service interface.
type service struct {
	ledgerReader LedgerReader

	tokenName   string
	tokenSymbol string
}

// Ensure compile-time compliance with the Service interface.
var _ Service = (*service)(nil)

// New creates a walletquery service reading from the given LedgerReader.
// tokenName and tokenSymbol describe the tracked asset (e.g. "USD Coin",
// "USDC") as surfaced in balance responses.
func New(lr LedgerReader, tokenName, tokenSymbol string) *service {
	return &service{
		ledgerReader: lr,
		tokenName:    tokenName,
		tokenSymbol:  tokenSymbol,
	}
}

// Balance implements Service.
func (s *service) Balance(ctx context.Context, address string) (Balance, error) {
	amount, err := s.ledgerReader.SumConfirmedAmount(ctx, address)
	if err != nil {
		return Balance{}, err
	}

	return Balance{
		Address:  address,
		Token:    s.tokenName,
		Symbol:   s.tokenSymbol,
		Amount:   amount,
		USDValue: amount,
	}, nil
}

// Transactions implements Service.
func (s *service) Transactions(ctx context.Context, address string, limit, offset int) ([]Transaction, error) {
	if limit <= 0 {
		limit = defaultPageLimit
	}
	if limit > maxPageLimit {
		limit = maxPageLimit
	}
	if offset < 0 {
		offset = 0
	}

	return s.ledgerReader.ListTransactionsByWallet(ctx, address, limit, offset)
}
