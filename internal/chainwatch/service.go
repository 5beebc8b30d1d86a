package chainwatch

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/gabapcia/paywatch/internal/pkg/logger"
	"github.com/gabapcia/paywatch/internal/pkg/resilience/retry"
	"github.com/gabapcia/paywatch/internal/pkg/x/chflow"
)

// ErrServiceAlreadyStarted is returned if Start is called more than once.
var ErrServiceAlreadyStarted = errors.New("service already started")

const (
	defaultPollInterval   = 30 * time.Second
	defaultBatchLimit     = 20
	defaultMaxConcurrency = 4
)

// Service defines the chainwatch lifecycle entrypoint.
type Service interface {
	// Start launches the background polling loop. It returns
	// ErrServiceAlreadyStarted if called more than once. Call Close to stop.
	Start(ctx context.Context) error

	// Close stops the polling loop and waits for in-flight wallet syncs to
	// finish. It is safe to call Close even if the service was never started.
	Close()
}

// closeFunc defines a cleanup routine to stop background goroutines.
type closeFunc func()

// service is the internal implementation of the chainwatch Service interface.
type service struct {
	mu        sync.Mutex // protects lifecycle state
	isStarted bool       // ensures Start is called only once
	closeFunc closeFunc  // cancels context and cleans up dependencies

	blockchain       Blockchain
	walletSource     WalletSource
	watermarkStorage WatermarkStorage
	sink             TransactionSink

	retry          retry.Retry
	pollInterval   time.Duration
	batchLimit     int
	maxConcurrency int
}

// Compile-time check to ensure *service implements the Service interface.
var _ Service = (*service)(nil)

// syncWallet performs a single resumable poll for one wallet: load the
// watermark, fetch everything newer, hand the batch to the sink, and advance
// the watermark only once the sink reports durable success, and only through
// the batch's leading run of terminal-status transactions.
func (s *service) syncWallet(ctx context.Context, wallet Wallet) error {
	watermark, err := s.watermarkStorage.LoadWatermark(ctx, wallet.Address)
	if err != nil && !errors.Is(err, ErrNoWatermarkFound) {
		return err
	}

	var txs []Transaction
	fetch := func() error {
		var fetchErr error
		txs, fetchErr = s.blockchain.ListTransactions(ctx, wallet.Address, watermark, s.batchLimit)
		return fetchErr
	}

	if s.retry != nil {
		err = s.retry.Execute(ctx, fetch)
	} else {
		err = fetch()
	}
	if err != nil {
		return err
	}

	if len(txs) == 0 {
		return nil
	}

	if err := s.sink.HandleWalletTransactions(ctx, wallet, txs); err != nil {
		return err
	}

	// Batches arrive oldest first. The resume position only moves past
	// transactions that reached a terminal status: a pending entry holds the
	// watermark so the next poll re-fetches it and observes its eventual
	// confirmation or failure. Re-delivered entries are harmless downstream,
	// the ledger upsert is idempotent.
	resume := ""
	for _, tx := range txs {
		if tx.Status == TransactionStatusPending {
			break
		}
		resume = tx.Signature
	}
	if resume == "" {
		return nil
	}
	return s.watermarkStorage.SaveWatermark(ctx, wallet.Address, resume)
}

// runCycle polls every registered wallet once, fanning out over a bounded
// number of workers. A wallet whose sync fails is logged and skipped for this
// cycle; it never blocks another wallet's progress.
func (s *service) runCycle(ctx context.Context) {
	wallets, err := s.walletSource.ListWatchedWallets(ctx)
	if err != nil {
		logger.Error(ctx, "listing watched wallets", "error", err)
		return
	}

	var (
		wg    sync.WaitGroup
		queue = make(chan Wallet)
	)
	for range s.maxConcurrency {
		wg.Add(1)
		go func() {
			defer wg.Done()

			for {
				wallet, ok := chflow.Receive(ctx, queue)
				if !ok {
					return
				}

				if err := s.syncWallet(ctx, wallet); err != nil && !errors.Is(err, context.Canceled) {
					logger.Warn(ctx, "wallet sync failed, retrying next cycle",
						"wallet.address", wallet.Address,
						"error", err,
					)
				}
			}
		}()
	}

	for _, wallet := range wallets {
		if ok := chflow.Send(ctx, queue, wallet); !ok {
			break
		}
	}

	close(queue)
	wg.Wait()
}

// pollLoop runs cycles on the configured interval until the context is
// canceled. The first cycle runs immediately on start.
func (s *service) pollLoop(ctx context.Context) {
	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	s.runCycle(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runCycle(ctx)
		}
	}
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
		s.pollLoop(ctx)
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
	retry            retry.Retry
	watermarkStorage WatermarkStorage
	pollInterval     time.Duration
	batchLimit       int
	maxConcurrency   int
}

// Option customizes the chainwatch service at construction time.
type Option func(*config)

// New creates a chainwatch service polling the given Blockchain for every
// wallet enumerated by the WalletSource, delivering new batches to the sink.
func New(bc Blockchain, ws WalletSource, sink TransactionSink, opts ...Option) *service {
	cfg := config{
		retry:            nil,
		watermarkStorage: nopWatermark{},
		pollInterval:     defaultPollInterval,
		batchLimit:       defaultBatchLimit,
		maxConcurrency:   defaultMaxConcurrency,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	return &service{
		blockchain:       bc,
		walletSource:     ws,
		watermarkStorage: cfg.watermarkStorage,
		sink:             sink,
		retry:            cfg.retry,
		pollInterval:     cfg.pollInterval,
		batchLimit:       cfg.batchLimit,
		maxConcurrency:   cfg.maxConcurrency,
	}
}

// WithRetry wraps each chain fetch with the given bounded retry policy.
// Without it, a wallet whose fetch fails is simply skipped until next cycle.
func WithRetry(r retry.Retry) Option {
	return func(c *config) {
		c.retry = r
	}
}

// WithWatermarkStorage configures durable resume positions per wallet.
func WithWatermarkStorage(ws WatermarkStorage) Option {
	return func(c *config) {
		c.watermarkStorage = ws
	}
}

// WithPollInterval sets the delay between poll cycles. Default: 30s.
func WithPollInterval(d time.Duration) Option {
	return func(c *config) {
		if d > 0 {
			c.pollInterval = d
		}
	}
}

// WithBatchLimit caps how many transactions are fetched per wallet per cycle.
// Default: 20.
func WithBatchLimit(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.batchLimit = n
		}
	}
}

// WithMaxConcurrency bounds how many wallets are synced in parallel within a
// cycle. Default: 4.
func WithMaxConcurrency(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.maxConcurrency = n
		}
	}
}
