package redis

import (
	"context"
	"errors"
	"fmt"

	"github.com/gabapcia/paywatch/internal/chainwatch"

	"github.com/redis/go-redis/v9"
)

// chainwatchKeyPrefix is the namespace prefix for all keys related to the
// chainwatch polling system.
const chainwatchKeyPrefix = "chainwatch"

// chainwatchWatermarkKey constructs the Redis key holding the last processed
// transaction signature for a wallet. The format is:
//
//	"chainwatch:watermark:<address>"
func chainwatchWatermarkKey(address string) string {
	return fmt.Sprintf("%s:watermark:%s", chainwatchKeyPrefix, address)
}

// SaveWatermark persists the most recent transaction signature processed for
// the given wallet, allowing polling to resume from the correct position
// after restarts. The key is stored with no expiration.
func (c *client) SaveWatermark(ctx context.Context, address, signature string) error {
	key := chainwatchWatermarkKey(address)
	return c.conn.Set(ctx, key, signature, 0).Err()
}

// LoadWatermark retrieves the most recently saved signature for the wallet.
//
// If no watermark exists yet, it returns chainwatch.ErrNoWatermarkFound.
func (c *client) LoadWatermark(ctx context.Context, address string) (string, error) {
	key := chainwatchWatermarkKey(address)

	val, err := c.conn.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			err = chainwatch.ErrNoWatermarkFound
		}
		return "", err
	}

	return val, nil
}

// Compile-time assertion that *client satisfies the chainwatch.WatermarkStorage interface.
var _ chainwatch.WatermarkStorage = (*client)(nil)
