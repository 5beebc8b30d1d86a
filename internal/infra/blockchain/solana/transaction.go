package solana

import (
	"encoding/json"
	"strconv"
	"time"

	"github.com/gabapcia/paywatch/internal/chainwatch"

	"github.com/shopspring/decimal"
)

// unknownCounterparty is recorded when the other leg of a transfer does not
// appear in the transaction's token balance metadata (e.g. the counterparty
// token account was closed in the same transaction).
const unknownCounterparty = "unknown"

// tokenDecimals is the fixed-point precision of the observed asset. USDC uses
// 6 decimals on Solana.
const tokenDecimals = 6

type (
	// signatureInfo is one entry of a getSignaturesForAddress response.
	signatureInfo struct {
		Signature          string          `json:"signature"`
		Slot               uint64          `json:"slot"`
		Err                json.RawMessage `json:"err"`
		BlockTime          *int64          `json:"blockTime"`
		ConfirmationStatus string          `json:"confirmationStatus"`
	}

	// uiTokenAmount is the amount field of a token balance entry, carrying the
	// raw value in base units alongside its declared decimals.
	uiTokenAmount struct {
		Amount   string `json:"amount"`
		Decimals uint8  `json:"decimals"`
	}

	// tokenBalance is one pre/post token balance entry of a transaction's meta.
	tokenBalance struct {
		AccountIndex  int           `json:"accountIndex"`
		Mint          string        `json:"mint"`
		Owner         string        `json:"owner"`
		UITokenAmount uiTokenAmount `json:"uiTokenAmount"`
	}

	// transactionMeta is the meta object of a getTransaction response.
	transactionMeta struct {
		Err               json.RawMessage `json:"err"`
		PreTokenBalances  []tokenBalance  `json:"preTokenBalances"`
		PostTokenBalances []tokenBalance  `json:"postTokenBalances"`
	}

	// transactionDetail is the subset of a getTransaction response needed to
	// derive a transfer observation.
	transactionDetail struct {
		BlockTime *int64           `json:"blockTime"`
		Meta      *transactionMeta `json:"meta"`
	}
)

// status maps the RPC finality fields onto a chainwatch status: an executed
// transfer is confirmed once its signature is finalized and pending before
// that. Failed transactions move no tokens and never reach parseTransfer with
// a balance change.
func (i signatureInfo) status() chainwatch.TransactionStatus {
	if i.ConfirmationStatus == "finalized" {
		return chainwatch.TransactionStatusConfirmed
	}
	return chainwatch.TransactionStatusPending
}

// baseAmount sums the base-unit balance the owner holds of the mint across
// the given balance entries. found is false when the owner has no entry for
// the mint at all.
func baseAmount(balances []tokenBalance, owner, mint string) (total uint64, found bool) {
	for _, balance := range balances {
		if balance.Owner != owner || balance.Mint != mint {
			continue
		}

		value, err := strconv.ParseUint(balance.UITokenAmount.Amount, 10, 64)
		if err != nil {
			continue
		}
		total += value
		found = true
	}
	return total, found
}

// findCounterparty returns the first owner other than the wallet holding a
// balance entry of the mint.
func findCounterparty(wallet, mint string, pre, post []tokenBalance) string {
	for _, balance := range append(post, pre...) {
		if balance.Mint == mint && balance.Owner != "" && balance.Owner != wallet {
			return balance.Owner
		}
	}
	return unknownCounterparty
}

// parseTransfer derives a transfer observation from the wallet's token
// balance change in the transaction. ok is false when the wallet's balance of
// the mint did not change, which covers unrelated transactions, zero-value
// transfers, and failed executions.
func parseTransfer(wallet, mint string, info signatureInfo, detail transactionDetail) (chainwatch.Transaction, bool, error) {
	if detail.Meta == nil {
		return chainwatch.Transaction{}, false, nil
	}

	var (
		pre, preFound   = baseAmount(detail.Meta.PreTokenBalances, wallet, mint)
		post, postFound = baseAmount(detail.Meta.PostTokenBalances, wallet, mint)
	)
	if !preFound && !postFound {
		return chainwatch.Transaction{}, false, nil
	}

	counterparty := findCounterparty(wallet, mint, detail.Meta.PreTokenBalances, detail.Meta.PostTokenBalances)

	var sender, receiver string
	var diff uint64
	switch {
	case post > pre:
		sender, receiver, diff = counterparty, wallet, post-pre
	case pre > post:
		sender, receiver, diff = wallet, counterparty, pre-post
	default:
		return chainwatch.Transaction{}, false, nil
	}

	blockTime := time.Now().UTC()
	switch {
	case info.BlockTime != nil:
		blockTime = time.Unix(*info.BlockTime, 0).UTC()
	case detail.BlockTime != nil:
		blockTime = time.Unix(*detail.BlockTime, 0).UTC()
	}

	return chainwatch.Transaction{
		Signature: info.Signature,
		Sender:    sender,
		Receiver:  receiver,
		Amount:    decimal.New(int64(diff), -tokenDecimals).String(),
		TokenMint: mint,
		Status:    info.status(),
		BlockTime: blockTime,
	}, true, nil
}
