package chainwatch

import (
	"context"
	"errors"
)

// ErrNoWatermarkFound is returned by LoadWatermark when no poll has ever
// completed for the requested wallet.
var ErrNoWatermarkFound = errors.New("no watermark found for wallet")

// WatermarkStorage persists and retrieves the last successfully processed
// transaction signature for each watched wallet.
//
// The watermark must only be advanced after the corresponding batch has been
// durably handed to the sink; it is what allows polling to resume without
// reprocessing history after a restart.
type WatermarkStorage interface {
	// SaveWatermark records the given signature as the latest processed
	// position for the wallet, overwriting any previous value.
	//
	// ctx controls cancellation and deadlines for any underlying I/O.
	SaveWatermark(ctx context.Context, address, signature string) error

	// LoadWatermark returns the most recent signature saved for the wallet.
	//
	// If no watermark exists yet, LoadWatermark should return
	// ErrNoWatermarkFound.
	LoadWatermark(ctx context.Context, address string) (string, error)
}

// nopWatermark is the default WatermarkStorage used when none is configured.
// Every poll starts from the source's recent-history window; the downstream
// sink's idempotency makes the repeated deliveries harmless.
type nopWatermark struct{}

var _ WatermarkStorage = nopWatermark{}

func (nopWatermark) SaveWatermark(context.Context, string, string) error { return nil }

func (nopWatermark) LoadWatermark(context.Context, string) (string, error) {
	return "", ErrNoWatermarkFound
}
