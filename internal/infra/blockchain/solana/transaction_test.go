package solana

import (
	"testing"
	"time"

	"github.com/gabapcia/paywatch/internal/chainwatch"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testWallet = "wallet-a"
	testMint   = "mint-usdc"
)

func balanceEntry(owner, mint, amount string) tokenBalance {
	return tokenBalance{
		Mint:  mint,
		Owner: owner,
		UITokenAmount: uiTokenAmount{
			Amount:   amount,
			Decimals: tokenDecimals,
		},
	}
}

func finalizedInfo(signature string, blockTime int64) signatureInfo {
	return signatureInfo{
		Signature:          signature,
		BlockTime:          &blockTime,
		ConfirmationStatus: "finalized",
	}
}

func TestSignatureInfo_status(t *testing.T) {
	assert.Equal(t, chainwatch.TransactionStatusConfirmed, signatureInfo{ConfirmationStatus: "finalized"}.status())
	assert.Equal(t, chainwatch.TransactionStatusPending, signatureInfo{ConfirmationStatus: "confirmed"}.status())
	assert.Equal(t, chainwatch.TransactionStatusPending, signatureInfo{ConfirmationStatus: "processed"}.status())
}

func TestParseTransfer(t *testing.T) {
	t.Run("balance increase is an incoming transfer", func(t *testing.T) {
		detail := transactionDetail{
			Meta: &transactionMeta{
				PreTokenBalances: []tokenBalance{
					balanceEntry(testWallet, testMint, "1000000"),
					balanceEntry("wallet-b", testMint, "9000000"),
				},
				PostTokenBalances: []tokenBalance{
					balanceEntry(testWallet, testMint, "3500000"),
					balanceEntry("wallet-b", testMint, "6500000"),
				},
			},
		}

		tx, ok, err := parseTransfer(testWallet, testMint, finalizedInfo("sig-1", 1741608000), detail)
		require.NoError(t, err)
		require.True(t, ok)

		assert.Equal(t, "sig-1", tx.Signature)
		assert.Equal(t, "wallet-b", tx.Sender)
		assert.Equal(t, testWallet, tx.Receiver)
		assert.Equal(t, "2.5", tx.Amount)
		assert.Equal(t, testMint, tx.TokenMint)
		assert.Equal(t, chainwatch.TransactionStatusConfirmed, tx.Status)
		assert.Equal(t, time.Unix(1741608000, 0).UTC(), tx.BlockTime)
	})

	t.Run("balance decrease is an outgoing transfer", func(t *testing.T) {
		detail := transactionDetail{
			Meta: &transactionMeta{
				PreTokenBalances: []tokenBalance{
					balanceEntry(testWallet, testMint, "5000000"),
				},
				PostTokenBalances: []tokenBalance{
					balanceEntry(testWallet, testMint, "4000000"),
					balanceEntry("wallet-b", testMint, "1000000"),
				},
			},
		}

		tx, ok, err := parseTransfer(testWallet, testMint, finalizedInfo("sig-1", 1741608000), detail)
		require.NoError(t, err)
		require.True(t, ok)

		assert.Equal(t, testWallet, tx.Sender)
		assert.Equal(t, "wallet-b", tx.Receiver)
		assert.Equal(t, "1", tx.Amount)
	})

	t.Run("first appearance of the wallet's token account", func(t *testing.T) {
		detail := transactionDetail{
			Meta: &transactionMeta{
				PostTokenBalances: []tokenBalance{
					balanceEntry(testWallet, testMint, "750000"),
				},
			},
		}

		tx, ok, err := parseTransfer(testWallet, testMint, finalizedInfo("sig-1", 1741608000), detail)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, "0.75", tx.Amount)
		assert.Equal(t, unknownCounterparty, tx.Sender)
	})

	t.Run("transactions of other mints are skipped", func(t *testing.T) {
		detail := transactionDetail{
			Meta: &transactionMeta{
				PreTokenBalances:  []tokenBalance{balanceEntry(testWallet, "other-mint", "1000000")},
				PostTokenBalances: []tokenBalance{balanceEntry(testWallet, "other-mint", "2000000")},
			},
		}

		_, ok, err := parseTransfer(testWallet, testMint, finalizedInfo("sig-1", 1741608000), detail)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("unchanged balance is not a transfer", func(t *testing.T) {
		detail := transactionDetail{
			Meta: &transactionMeta{
				PreTokenBalances:  []tokenBalance{balanceEntry(testWallet, testMint, "1000000")},
				PostTokenBalances: []tokenBalance{balanceEntry(testWallet, testMint, "1000000")},
			},
		}

		_, ok, err := parseTransfer(testWallet, testMint, finalizedInfo("sig-1", 1741608000), detail)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("missing meta is skipped", func(t *testing.T) {
		_, ok, err := parseTransfer(testWallet, testMint, finalizedInfo("sig-1", 1741608000), transactionDetail{})
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("non-finalized transfers come out pending", func(t *testing.T) {
		info := finalizedInfo("sig-1", 1741608000)
		info.ConfirmationStatus = "confirmed"

		detail := transactionDetail{
			Meta: &transactionMeta{
				PostTokenBalances: []tokenBalance{balanceEntry(testWallet, testMint, "100000")},
			},
		}

		tx, ok, err := parseTransfer(testWallet, testMint, info, detail)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, chainwatch.TransactionStatusPending, tx.Status)
	})

	t.Run("block time falls back to the transaction detail", func(t *testing.T) {
		info := signatureInfo{Signature: "sig-1", ConfirmationStatus: "finalized"}
		detailTime := int64(1741694400)
		detail := transactionDetail{
			BlockTime: &detailTime,
			Meta: &transactionMeta{
				PostTokenBalances: []tokenBalance{balanceEntry(testWallet, testMint, "100000")},
			},
		}

		tx, ok, err := parseTransfer(testWallet, testMint, info, detail)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, time.Unix(detailTime, 0).UTC(), tx.BlockTime)
	})
}

func TestBaseAmount(t *testing.T) {
	balances := []tokenBalance{
		balanceEntry(testWallet, testMint, "1000000"),
		balanceEntry(testWallet, testMint, "500000"), // second token account, same owner
		balanceEntry("wallet-b", testMint, "900000"),
		balanceEntry(testWallet, "other-mint", "777"),
	}

	t.Run("sums every account the owner holds of the mint", func(t *testing.T) {
		total, found := baseAmount(balances, testWallet, testMint)
		assert.True(t, found)
		assert.Equal(t, uint64(1500000), total)
	})

	t.Run("owner without an entry", func(t *testing.T) {
		_, found := baseAmount(balances, "wallet-c", testMint)
		assert.False(t, found)
	})
}
