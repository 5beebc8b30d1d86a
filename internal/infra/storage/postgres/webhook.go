package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/gabapcia/paywatch/internal/webhook"

	"github.com/lib/pq"
)

// uniqueViolation is the Postgres error code raised when the partial unique
// index on (transaction_signature, event_type) rejects a duplicate event.
const uniqueViolation = "23505"

// scanEvent reads one webhook_events row into a webhook.Event.
func scanEvent(row interface{ Scan(...any) error }) (webhook.Event, error) {
	var (
		event     webhook.Event
		signature sql.NullString
		lastErr   sql.NullString
		lastAt    sql.NullTime
		delivered sql.NullTime
	)
	err := row.Scan(&event.ID, &event.WalletAddress, &signature, &event.EventType,
		&event.Payload, &event.Status, &event.Attempts, &lastAt, &delivered,
		&lastErr, &event.NextAttemptAt, &event.CreatedAt)
	if err != nil {
		return webhook.Event{}, err
	}

	event.TransactionSignature = signature.String
	event.LastError = lastErr.String
	if lastAt.Valid {
		event.LastAttemptAt = &lastAt.Time
	}
	if delivered.Valid {
		event.DeliveredAt = &delivered.Time
	}
	return event, nil
}

const eventColumns = `id, wallet_address, transaction_signature, event_type, payload,
	status, attempts, last_attempt_at, delivered_at, last_error, next_attempt_at, created_at`

// CreateEvent implements the webhook.EventStorage interface.
func (c *client) CreateEvent(ctx context.Context, event webhook.Event) (webhook.Event, error) {
	row := c.db.QueryRowContext(ctx, `
		INSERT INTO webhook_events (id, wallet_address, transaction_signature, event_type, payload, status, next_attempt_at)
		VALUES ($1, $2, NULLIF($3, ''), $4, $5, $6, $7)
		RETURNING `+eventColumns,
		event.ID, event.WalletAddress, event.TransactionSignature,
		event.EventType, []byte(event.Payload), string(event.Status), event.NextAttemptAt,
	)

	created, err := scanEvent(row)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && string(pqErr.Code) == uniqueViolation {
			err = webhook.ErrEventAlreadyExists
		}
		return webhook.Event{}, err
	}
	return created, nil
}

// ClaimDueEvents implements the webhook.EventStorage interface.
//
// FOR UPDATE SKIP LOCKED plus the claimed_until lease guarantee that a pending
// event is handed to at most one delivery worker at a time, across processes.
func (c *client) ClaimDueEvents(ctx context.Context, now time.Time, limit int, lease time.Duration) ([]webhook.Event, error) {
	rows, err := c.db.QueryContext(ctx, `
		UPDATE webhook_events
		SET claimed_until = $1
		WHERE id IN (
			SELECT id FROM webhook_events
			WHERE status = 'pending'
			  AND next_attempt_at <= $2
			  AND (claimed_until IS NULL OR claimed_until < $2)
			ORDER BY next_attempt_at
			LIMIT $3
			FOR UPDATE SKIP LOCKED
		)
		RETURNING `+eventColumns,
		now.Add(lease), now, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []webhook.Event
	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, event)
	}
	return events, rows.Err()
}

// MarkDelivered implements the webhook.EventStorage interface. The status
// guard keeps delivered events immutable even under a duplicate call.
func (c *client) MarkDelivered(ctx context.Context, id string, attempts int, at time.Time) error {
	_, err := c.db.ExecContext(ctx, `
		UPDATE webhook_events
		SET status = 'delivered', attempts = $2, delivered_at = $3, last_attempt_at = $3, claimed_until = NULL
		WHERE id = $1 AND status = 'pending'`,
		id, attempts, at,
	)
	return err
}

// ScheduleRetry implements the webhook.EventStorage interface.
func (c *client) ScheduleRetry(ctx context.Context, id string, attempts int, lastError string, nextAttemptAt time.Time) error {
	_, err := c.db.ExecContext(ctx, `
		UPDATE webhook_events
		SET attempts = $2, last_error = $3, last_attempt_at = now(), next_attempt_at = $4, claimed_until = NULL
		WHERE id = $1 AND status = 'pending'`,
		id, attempts, lastError, nextAttemptAt,
	)
	return err
}

// MarkFailed implements the webhook.EventStorage interface.
func (c *client) MarkFailed(ctx context.Context, id string, attempts int, lastError string) error {
	_, err := c.db.ExecContext(ctx, `
		UPDATE webhook_events
		SET status = 'failed', attempts = $2, last_error = $3, last_attempt_at = now(), claimed_until = NULL
		WHERE id = $1 AND status = 'pending'`,
		id, attempts, lastError,
	)
	return err
}

// ListEventsByWallet implements the webhook.EventStorage interface.
func (c *client) ListEventsByWallet(ctx context.Context, address string, limit, offset int) ([]webhook.Event, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT `+eventColumns+`
		FROM webhook_events
		WHERE wallet_address = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`,
		address, limit, offset,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []webhook.Event
	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, event)
	}
	return events, rows.Err()
}

// CountEventsByStatus implements the webhook.EventStorage interface.
func (c *client) CountEventsByStatus(ctx context.Context) (webhook.Stats, error) {
	row := c.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*) FILTER (WHERE status = 'pending'),
			COUNT(*) FILTER (WHERE status = 'delivered'),
			COUNT(*) FILTER (WHERE status = 'failed')
		FROM webhook_events`,
	)

	var stats webhook.Stats
	if err := row.Scan(&stats.Pending, &stats.Delivered, &stats.Failed); err != nil {
		return webhook.Stats{}, err
	}
	return stats, nil
}

// Compile-time assertion that *client satisfies the webhook.EventStorage interface.
var _ webhook.EventStorage = (*client)(nil)
