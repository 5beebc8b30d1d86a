// Package webhook turns reconciler-detected transitions into durable event
// records and delivers them to subscriber endpoints with retry and backoff.
// Delivery is at-least-once but never duplicated after success: pending events
// are claimed under a time-bounded lease so a single event is attempted by at
// most one worker at a time, and all retry state lives in storage rather than
// in memory.
package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// EventStatus is the delivery state of a webhook event.
//
// pending may move to delivered (success) or failed (attempts exhausted or
// permanent rejection); both are terminal.
type EventStatus string

const (
	EventStatusPending   EventStatus = "pending"
	EventStatusDelivered EventStatus = "delivered"
	EventStatusFailed    EventStatus = "failed"
)

var (
	// ErrEventAlreadyExists indicates that an event for the same transaction
	// signature and event type was already recorded. Events are created
	// exactly once per detected state transition.
	ErrEventAlreadyExists = errors.New("webhook event already exists")

	// ErrEventNotFound is returned by EventStorage lookups for unknown ids.
	ErrEventNotFound = errors.New("webhook event not found")

	// ErrNoWebhookURL indicates the wallet has no webhook endpoint configured.
	ErrNoWebhookURL = errors.New("wallet has no webhook URL configured")
)

// Event is a durable webhook delivery record.
type Event struct {
	ID                   string          // Engine-generated unique identifier
	WalletAddress        string          // Subscriber wallet
	TransactionSignature string          // Empty for events that are not transaction-scoped
	EventType            string          // Discriminator, e.g. "transaction.confirmed"
	Payload              json.RawMessage // Serialized snapshot of the triggering state
	Status               EventStatus
	Attempts             int        // Incremented once per actual delivery attempt
	LastAttemptAt        *time.Time
	DeliveredAt          *time.Time // Set exactly once, when Status becomes delivered
	LastError            string
	NextAttemptAt        time.Time // Earliest time the event is eligible for (re)delivery
	CreatedAt            time.Time
}

// Stats aggregates event counts by delivery status.
type Stats struct {
	Pending   int64 `json:"pending"`
	Delivered int64 `json:"delivered"`
	Failed    int64 `json:"failed"`
}

// EventStorage is the persistence port for webhook events. The dispatcher is
// the only component that mutates delivery fields, and it does so exclusively
// through these operations.
type EventStorage interface {
	// CreateEvent persists a new pending event. For transaction-scoped events
	// it must enforce uniqueness on (transaction signature, event type) and
	// return ErrEventAlreadyExists on a duplicate, keeping enqueue idempotent
	// across crash and replay.
	CreateEvent(ctx context.Context, event Event) (Event, error)

	// ClaimDueEvents atomically claims up to limit pending events whose
	// NextAttemptAt is not after now and whose previous lease (if any) has
	// expired, extending each claim by the lease duration. A claimed event is
	// invisible to other workers until its lease expires.
	ClaimDueEvents(ctx context.Context, now time.Time, limit int, lease time.Duration) ([]Event, error)

	// MarkDelivered finalizes a successful delivery: terminal, immutable.
	MarkDelivered(ctx context.Context, id string, attempts int, at time.Time) error

	// ScheduleRetry records a transient failure: the event stays pending with
	// the updated attempt count, error, and next eligible retry time.
	ScheduleRetry(ctx context.Context, id string, attempts int, lastError string, nextAttemptAt time.Time) error

	// MarkFailed finalizes the event as permanently failed.
	MarkFailed(ctx context.Context, id string, attempts int, lastError string) error

	// ListEventsByWallet returns the wallet's events, newest first.
	ListEventsByWallet(ctx context.Context, address string, limit, offset int) ([]Event, error)

	// CountEventsByStatus aggregates event counts per delivery status.
	CountEventsByStatus(ctx context.Context) (Stats, error)
}

// EndpointSource resolves the webhook endpoint registered for a wallet.
// It returns ErrNoWebhookURL when the wallet has none configured.
type EndpointSource interface {
	WebhookEndpoint(ctx context.Context, address string) (string, error)
}

// TransactionSnapshot is the ledger state embedded in a webhook payload at
// enqueue time.
type TransactionSnapshot struct {
	Signature     string    `json:"signature"`
	WalletAddress string    `json:"wallet_address"`
	Type          string    `json:"tx_type"`
	Amount        string    `json:"amount"`
	TokenMint     string    `json:"token_mint"`
	Counterparty  string    `json:"counterparty"`
	Status        string    `json:"status"`
	BlockTime     time.Time `json:"block_time"`
}

// TransactionSource reads the current ledger row backing a transition so the
// payload can snapshot it.
type TransactionSource interface {
	GetTransactionSnapshot(ctx context.Context, signature string) (TransactionSnapshot, error)
}

// payload is the JSON body delivered to subscriber endpoints.
type payload struct {
	Event     string    `json:"event"`
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data"`
}
