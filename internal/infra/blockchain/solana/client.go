// Package solana provides an implementation of the chainwatch.Blockchain
// interface for Solana nodes using a JSON-RPC client. It lists signatures
// involving a wallet since its watermark and parses each transaction's token
// balance changes into transfer observations.
package solana

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/gabapcia/paywatch/internal/chainwatch"
	"github.com/gabapcia/paywatch/internal/pkg/transport/jsonrpc"
)

// client implements the chainwatch.Blockchain interface for Solana networks.
type client struct {
	conn      jsonrpc.Client // Underlying JSON-RPC client used to interact with the Solana node
	tokenMint string         // Asset whose transfers are observed (e.g. the USDC mint)
}

// Ensure client implements the chainwatch.Blockchain interface at compile time.
var _ chainwatch.Blockchain = (*client)(nil)

// ListTransactions implements chainwatch.Blockchain.
//
// It lists signatures for the address newer than sinceSignature via
// getSignaturesForAddress, fetches each transaction's parsed detail, and
// returns the token transfers oldest first. Signatures that are not transfers
// of the configured mint are skipped; a signature whose detail fetch fails
// aborts the batch so the watermark cannot jump past it.
func (c *client) ListTransactions(ctx context.Context, address, sinceSignature string, limit int) ([]chainwatch.Transaction, error) {
	infos, err := c.listSignatures(ctx, address, sinceSignature, limit)
	if err != nil {
		return nil, err
	}

	// getSignaturesForAddress returns newest first.
	txs := make([]chainwatch.Transaction, 0, len(infos))
	for i := len(infos) - 1; i >= 0; i-- {
		tx, ok, err := c.fetchTransaction(ctx, address, infos[i])
		if err != nil {
			return nil, fmt.Errorf("fetching transaction %s: %w", infos[i].Signature, err)
		}
		if ok {
			txs = append(txs, tx)
		}
	}

	return txs, nil
}

// listSignatures calls getSignaturesForAddress, bounding the page at limit and
// stopping at the watermark signature when one exists.
func (c *client) listSignatures(ctx context.Context, address, sinceSignature string, limit int) ([]signatureInfo, error) {
	opts := map[string]any{"limit": limit}
	if sinceSignature != "" {
		opts["until"] = sinceSignature
	}

	data, err := c.conn.Fetch(ctx, "getSignaturesForAddress", address, opts)
	if err != nil {
		return nil, err
	}

	var infos []signatureInfo
	if err := json.Unmarshal(data, &infos); err != nil {
		return nil, err
	}
	return infos, nil
}

// fetchTransaction calls getTransaction for one signature and parses it into
// a transfer observation. ok is false when the transaction does not move the
// configured mint for this wallet.
func (c *client) fetchTransaction(ctx context.Context, address string, info signatureInfo) (chainwatch.Transaction, bool, error) {
	data, err := c.conn.Fetch(ctx, "getTransaction", info.Signature, map[string]any{
		"encoding":                       "jsonParsed",
		"maxSupportedTransactionVersion": 0,
	})
	if err != nil {
		return chainwatch.Transaction{}, false, err
	}

	var detail transactionDetail
	if err := json.Unmarshal(data, &detail); err != nil {
		return chainwatch.Transaction{}, false, err
	}

	return parseTransfer(address, c.tokenMint, info, detail)
}

// NewClient creates a new Solana blockchain client using the provided
// JSON-RPC connection, observing transfers of the given token mint.
func NewClient(conn jsonrpc.Client, tokenMint string) *client {
	return &client{
		conn:      conn,
		tokenMint: tokenMint,
	}
}
