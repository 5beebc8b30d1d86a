package webhook

import (
	"math/rand/v2"
	"time"
)

const (
	defaultBackoffBase = 30 * time.Second
	defaultBackoffCap  = time.Hour
)

// Backoff computes how long to wait before the next delivery attempt, given
// how many attempts have already been made (attempt >= 1).
type Backoff func(attempt int) time.Duration

// NewExponentialBackoff returns a doubling backoff starting at base and capped
// at ceiling, with a small downward jitter to spread retries from events that
// failed at the same instant. Successive delays grow strictly until the
// ceiling and never exceed it.
func NewExponentialBackoff(base, ceiling time.Duration) Backoff {
	if base <= 0 {
		base = defaultBackoffBase
	}
	if ceiling < base {
		ceiling = defaultBackoffCap
	}

	return func(attempt int) time.Duration {
		if attempt < 1 {
			attempt = 1
		}

		delay := base
		for i := 1; i < attempt && delay < ceiling; i++ {
			delay *= 2
		}
		if delay > ceiling {
			delay = ceiling
		}

		// Up to 10% downward jitter keeps the doubling strictly increasing.
		if jitterRange := int64(delay / 10); jitterRange > 0 {
			delay -= time.Duration(rand.Int64N(jitterRange))
		}

		return delay
	}
}
