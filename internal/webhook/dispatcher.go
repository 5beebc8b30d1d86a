package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/gabapcia/paywatch/internal/pkg/logger"
	"github.com/gabapcia/paywatch/internal/pkg/types"

	"github.com/google/uuid"
)

// ErrServiceAlreadyStarted is returned if Start is called more than once.
var ErrServiceAlreadyStarted = errors.New("service already started")

const (
	defaultMaxAttempts      = 5
	defaultDispatchInterval = 5 * time.Second
	defaultBatchSize        = 100
	defaultLeaseTTL         = time.Minute
	defaultRequestTimeout   = 10 * time.Second
)

// Transition is the reconciler-detected state change the dispatcher acts on.
type Transition struct {
	Signature     string
	WalletAddress string
	NewStatus     string // ledger status the transaction moved to
}

// EventType returns the event discriminator for the transition, e.g.
// "transaction.confirmed".
func (t Transition) EventType() string {
	return "transaction." + t.NewStatus
}

// Service defines the webhook dispatcher: durable enqueue of transition
// events plus a background delivery loop draining them.
type Service interface {
	// Enqueue records a pending webhook event for the transition, snapshotting
	// the current ledger row into the payload. It returns (nil, nil) when the
	// transition's status is outside the configured trigger set or the wallet
	// has no webhook endpoint, and swallows duplicate-event conflicts so a
	// replayed transition enqueues at most once.
	Enqueue(ctx context.Context, transition Transition) (*Event, error)

	// SendTest delivers a single, non-retried test event to the wallet's
	// endpoint so subscribers can verify their URL.
	SendTest(ctx context.Context, walletAddress string) (Event, error)

	// ListByWallet returns the wallet's events, newest first.
	ListByWallet(ctx context.Context, address string, limit, offset int) ([]Event, error)

	// Stats aggregates event counts by delivery status.
	Stats(ctx context.Context) (Stats, error)

	// Start launches the background delivery loop. It returns
	// ErrServiceAlreadyStarted if called more than once. Call Close to stop.
	Start(ctx context.Context) error

	// Close stops the delivery loop and waits for the in-flight pass to
	// finish. Safe to call even if the service was never started.
	Close()
}

// closeFunc defines a cleanup routine to stop background goroutines.
type closeFunc func()

// service is the internal implementation of the dispatcher Service interface.
type service struct {
	mu        sync.Mutex // protects lifecycle state
	isStarted bool       // ensures Start is called only once
	closeFunc closeFunc  // cancels context and cleans up dependencies

	eventStorage      EventStorage
	endpointSource    EndpointSource
	transactionSource TransactionSource

	httpClient       *http.Client
	signingSecret    string
	backoff          Backoff
	maxAttempts      int
	dispatchInterval time.Duration
	batchSize        int
	leaseTTL         time.Duration
	triggerStatuses  types.Set[string]
}

// Compile-time check to ensure *service implements the Service interface.
var _ Service = (*service)(nil)

// Enqueue implements Service.
func (s *service) Enqueue(ctx context.Context, transition Transition) (*Event, error) {
	if _, ok := s.triggerStatuses[transition.NewStatus]; !ok {
		return nil, nil
	}

	if _, err := s.endpointSource.WebhookEndpoint(ctx, transition.WalletAddress); err != nil {
		if errors.Is(err, ErrNoWebhookURL) {
			logger.Debug(ctx, "no webhook URL configured, skipping event",
				"wallet.address", transition.WalletAddress,
				"transaction.signature", transition.Signature,
			)
			return nil, nil
		}
		return nil, err
	}

	snapshot, err := s.transactionSource.GetTransactionSnapshot(ctx, transition.Signature)
	if err != nil {
		return nil, err
	}

	body, err := json.Marshal(payload{
		Event:     transition.EventType(),
		Timestamp: time.Now().UTC(),
		Data:      snapshot,
	})
	if err != nil {
		return nil, err
	}

	event, err := s.eventStorage.CreateEvent(ctx, Event{
		ID:                   uuid.NewString(),
		WalletAddress:        transition.WalletAddress,
		TransactionSignature: transition.Signature,
		EventType:            transition.EventType(),
		Payload:              body,
		Status:               EventStatusPending,
		NextAttemptAt:        time.Now().UTC(),
	})
	if err != nil {
		if errors.Is(err, ErrEventAlreadyExists) {
			return nil, nil
		}
		return nil, err
	}

	return &event, nil
}

// attemptOutcome classifies a single delivery attempt.
type attemptOutcome int

const (
	outcomeSuccess   attemptOutcome = iota
	outcomeTransient                // retry with backoff
	outcomePermanent                // fail immediately, retries cannot help
)

// attemptDelivery POSTs the signed payload to the endpoint and classifies the
// result. Network errors, timeouts, 5xx, and 429 are transient; any other
// non-2xx response is permanent. An attempt cut short by cancellation has an
// unknown outcome and must be treated as transient, never as delivered.
func (s *service) attemptDelivery(ctx context.Context, endpoint string, body []byte) (attemptOutcome, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return outcomePermanent, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(signatureHeader, signPayload(s.signingSecret, body))

	res, err := s.httpClient.Do(req)
	if err != nil {
		return outcomeTransient, err
	}
	defer res.Body.Close()

	switch {
	case res.StatusCode >= 200 && res.StatusCode < 300:
		return outcomeSuccess, nil
	case res.StatusCode == http.StatusTooManyRequests || res.StatusCode >= 500:
		return outcomeTransient, fmt.Errorf("endpoint returned HTTP %d", res.StatusCode)
	default:
		io.Copy(io.Discard, io.LimitReader(res.Body, 1024))
		return outcomePermanent, fmt.Errorf("endpoint returned HTTP %d", res.StatusCode)
	}
}

// deliver runs one delivery attempt for a claimed event and persists the
// resulting state change.
func (s *service) deliver(ctx context.Context, event Event) error {
	attempts := event.Attempts + 1

	endpoint, err := s.endpointSource.WebhookEndpoint(ctx, event.WalletAddress)
	if err != nil {
		if errors.Is(err, ErrNoWebhookURL) {
			// Endpoint removed after enqueue: unfixable, do not burn retries.
			return s.eventStorage.MarkFailed(ctx, event.ID, event.Attempts, err.Error())
		}
		return err
	}

	outcome, attemptErr := s.attemptDelivery(ctx, endpoint, event.Payload)
	switch outcome {
	case outcomeSuccess:
		logger.Info(ctx, "webhook delivered",
			"event.id", event.ID,
			"event.type", event.EventType,
			"event.attempts", attempts,
		)
		return s.eventStorage.MarkDelivered(ctx, event.ID, attempts, time.Now().UTC())

	case outcomePermanent:
		logger.Warn(ctx, "webhook permanently rejected",
			"event.id", event.ID,
			"event.type", event.EventType,
			"error", attemptErr,
		)
		return s.eventStorage.MarkFailed(ctx, event.ID, attempts, attemptErr.Error())

	default:
		if attempts >= s.maxAttempts {
			logger.Warn(ctx, "webhook delivery failed, attempts exhausted",
				"event.id", event.ID,
				"event.attempts", attempts,
				"error", attemptErr,
			)
			return s.eventStorage.MarkFailed(ctx, event.ID, attempts, attemptErr.Error())
		}

		nextAttemptAt := time.Now().UTC().Add(s.backoff(attempts))
		return s.eventStorage.ScheduleRetry(ctx, event.ID, attempts, attemptErr.Error(), nextAttemptAt)
	}
}

// runPass claims one batch of due events and attempts each of them. Failures
// are isolated per event: one endpoint's outage never blocks the others.
func (s *service) runPass(ctx context.Context) {
	events, err := s.eventStorage.ClaimDueEvents(ctx, time.Now().UTC(), s.batchSize, s.leaseTTL)
	if err != nil {
		logger.Error(ctx, "claiming due webhook events", "error", err)
		return
	}

	for _, event := range events {
		if ctx.Err() != nil {
			return
		}
		if err := s.deliver(ctx, event); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error(ctx, "persisting webhook delivery state",
				"event.id", event.ID,
				"error", err,
			)
		}
	}
}

// dispatchLoop drains due events on the configured interval until the context
// is canceled.
func (s *service) dispatchLoop(ctx context.Context) {
	ticker := time.NewTicker(s.dispatchInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runPass(ctx)
		}
	}
}

// SendTest implements Service.
func (s *service) SendTest(ctx context.Context, walletAddress string) (Event, error) {
	endpoint, err := s.endpointSource.WebhookEndpoint(ctx, walletAddress)
	if err != nil {
		return Event{}, err
	}

	body, err := json.Marshal(payload{
		Event:     "test",
		Timestamp: time.Now().UTC(),
		Data:      map[string]string{"wallet_address": walletAddress, "message": "webhook endpoint verification"},
	})
	if err != nil {
		return Event{}, err
	}

	event, err := s.eventStorage.CreateEvent(ctx, Event{
		ID:            uuid.NewString(),
		WalletAddress: walletAddress,
		EventType:     "test",
		Payload:       body,
		Status:        EventStatusPending,
		NextAttemptAt: time.Now().UTC(),
	})
	if err != nil {
		return Event{}, err
	}

	// Single attempt, no retries: the caller wants an immediate verdict.
	outcome, attemptErr := s.attemptDelivery(ctx, endpoint, body)
	if outcome == outcomeSuccess {
		now := time.Now().UTC()
		if err := s.eventStorage.MarkDelivered(ctx, event.ID, 1, now); err != nil {
			return Event{}, err
		}
		event.Status, event.Attempts, event.DeliveredAt = EventStatusDelivered, 1, &now
		return event, nil
	}

	if err := s.eventStorage.MarkFailed(ctx, event.ID, 1, attemptErr.Error()); err != nil {
		return Event{}, err
	}
	event.Status, event.Attempts, event.LastError = EventStatusFailed, 1, attemptErr.Error()
	return event, attemptErr
}

// ListByWallet implements Service.
func (s *service) ListByWallet(ctx context.Context, address string, limit, offset int) ([]Event, error) {
	return s.eventStorage.ListEventsByWallet(ctx, address, limit, offset)
}

// Stats implements Service.
func (s *service) Stats(ctx context.Context) (Stats, error) {
	return s.eventStorage.CountEventsByStatus(ctx)
}

// Start implements Service.
func (s *service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isStarted {
		return ErrServiceAlreadyStarted
	}

	ctx, cancel := context.WithCancel(ctx)

	done := make(chan struct{})
	go func() {
		defer close(done)
		s.dispatchLoop(ctx)
	}()

	s.closeFunc = func() {
		cancel()
		<-done
	}
	s.isStarted = true
	return nil
}

// Close implements Service.
func (s *service) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closeFunc != nil {
		s.closeFunc()
	}
	s.isStarted = false
	s.closeFunc = nil
}

type config struct {
	httpClient       *http.Client
	signingSecret    string
	backoff          Backoff
	maxAttempts      int
	dispatchInterval time.Duration
	batchSize        int
	leaseTTL         time.Duration
	triggerStatuses  []string
}

// Option customizes the dispatcher at construction time.
type Option func(*config)

// New creates a webhook dispatcher persisting through the given EventStorage,
// resolving endpoints via the EndpointSource, and snapshotting payloads from
// the TransactionSource.
func New(es EventStorage, eps EndpointSource, ts TransactionSource, opts ...Option) *service {
	cfg := config{
		httpClient:       &http.Client{Timeout: defaultRequestTimeout},
		backoff:          NewExponentialBackoff(defaultBackoffBase, defaultBackoffCap),
		maxAttempts:      defaultMaxAttempts,
		dispatchInterval: defaultDispatchInterval,
		batchSize:        defaultBatchSize,
		leaseTTL:         defaultLeaseTTL,
		triggerStatuses:  []string{"confirmed", "failed"},
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	return &service{
		eventStorage:      es,
		endpointSource:    eps,
		transactionSource: ts,
		httpClient:        cfg.httpClient,
		signingSecret:     cfg.signingSecret,
		backoff:           cfg.backoff,
		maxAttempts:       cfg.maxAttempts,
		dispatchInterval:  cfg.dispatchInterval,
		batchSize:         cfg.batchSize,
		leaseTTL:          cfg.leaseTTL,
		triggerStatuses:   types.NewSet(cfg.triggerStatuses...),
	}
}

// WithTriggerStatuses sets which transaction statuses produce webhook events.
// Default: confirmed and failed (terminal transitions only). Include "pending"
// to also notify on first sight of an unconfirmed transaction.
func WithTriggerStatuses(statuses ...string) Option {
	return func(c *config) {
		if len(statuses) > 0 {
			c.triggerStatuses = statuses
		}
	}
}

// WithMaxAttempts caps how many delivery attempts an event receives before it
// is marked failed. Default: 5.
func WithMaxAttempts(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.maxAttempts = n
		}
	}
}

// WithBackoff replaces the retry delay policy. Default: exponential, base 30s,
// ceiling 1h.
func WithBackoff(b Backoff) Option {
	return func(c *config) {
		if b != nil {
			c.backoff = b
		}
	}
}

// WithDispatchInterval sets the delay between delivery passes. Default: 5s.
func WithDispatchInterval(d time.Duration) Option {
	return func(c *config) {
		if d > 0 {
			c.dispatchInterval = d
		}
	}
}

// WithBatchSize caps how many events are claimed per pass. Default: 100.
func WithBatchSize(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.batchSize = n
		}
	}
}

// WithLeaseTTL sets how long a claimed event stays invisible to other delivery
// workers. Default: 1m.
func WithLeaseTTL(d time.Duration) Option {
	return func(c *config) {
		if d > 0 {
			c.leaseTTL = d
		}
	}
}

// WithHTTPClient replaces the HTTP client used for delivery attempts.
func WithHTTPClient(client *http.Client) Option {
	return func(c *config) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithSigningSecret sets the shared secret used to HMAC-sign payloads.
func WithSigningSecret(secret string) Option {
	return func(c *config) {
		c.signingSecret = secret
	}
}
