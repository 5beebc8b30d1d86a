package walletquery

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeLedgerReader records the pagination arguments it receives.
type fakeLedgerReader struct {
	sum       decimal.Decimal
	rows      []Transaction
	gotLimit  int
	gotOffset int
}

func (f *fakeLedgerReader) SumConfirmedAmount(_ context.Context, _ string) (decimal.Decimal, error) {
	return f.sum, nil
}

func (f *fakeLedgerReader) ListTransactionsByWallet(_ context.Context, _ string, limit, offset int) ([]Transaction, error) {
	f.gotLimit, f.gotOffset = limit, offset
	return f.rows, nil
}

func TestService_Balance(t *testing.T) {
	reader := &fakeLedgerReader{sum: decimal.RequireFromString("125.500000")}
	svc := New(reader, "USD Coin", "USDC")

	balance, err := svc.Balance(context.Background(), "wallet-a")
	require.NoError(t, err)

	assert.Equal(t, "wallet-a", balance.Address)
	assert.Equal(t, "USD Coin", balance.Token)
	assert.Equal(t, "USDC", balance.Symbol)
	assert.True(t, balance.Amount.Equal(decimal.RequireFromString("125.5")))
	assert.True(t, balance.USDValue.Equal(balance.Amount), "stablecoin USD value equals the token amount")
}

func TestService_Transactions(t *testing.T) {
	ctx := context.Background()

	t.Run("pagination defaults", func(t *testing.T) {
		reader := &fakeLedgerReader{}
		svc := New(reader, "USD Coin", "USDC")

		_, err := svc.Transactions(ctx, "wallet-a", 0, -3)
		require.NoError(t, err)
		assert.Equal(t, 50, reader.gotLimit)
		assert.Equal(t, 0, reader.gotOffset)
	})

	t.Run("limit is capped at 100", func(t *testing.T) {
		reader := &fakeLedgerReader{}
		svc := New(reader, "USD Coin", "USDC")

		_, err := svc.Transactions(ctx, "wallet-a", 500, 10)
		require.NoError(t, err)
		assert.Equal(t, 100, reader.gotLimit)
		assert.Equal(t, 10, reader.gotOffset)
	})

	t.Run("explicit limit within bounds passes through", func(t *testing.T) {
		reader := &fakeLedgerReader{rows: []Transaction{{Signature: "sig-1"}}}
		svc := New(reader, "USD Coin", "USDC")

		rows, err := svc.Transactions(ctx, "wallet-a", 25, 5)
		require.NoError(t, err)
		assert.Equal(t, 25, reader.gotLimit)
		assert.Len(t, rows, 1)
	})
}
