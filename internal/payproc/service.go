// Package payproc coordinates the payment processing pipeline, combining the
// chain watcher, the ledger reconciler, and the webhook dispatcher into a
// unified orchestration layer with a single lifecycle.
package payproc

import (
	"context"
	"errors"
	"sync"

	"github.com/gabapcia/paywatch/internal/chainwatch"
	"github.com/gabapcia/paywatch/internal/webhook"
)

// ErrServiceAlreadyStarted is returned if Start is called more than once.
//
// The service must be started only once per lifecycle.
var ErrServiceAlreadyStarted = errors.New("service already started")

// Service defines the payproc lifecycle and coordination entrypoint.
type Service interface {
	// Start launches the webhook delivery loop and the chain polling loop.
	//
	// Returns ErrServiceAlreadyStarted if Start is called more than once.
	// Call Close to shut down all background routines.
	Start(ctx context.Context) error

	// Close shuts down the payproc service and all underlying loops.
	// It is safe to call Close even if the service was never started.
	Close()
}

// closeFunc defines a cleanup routine to stop background goroutines and dependencies.
type closeFunc func()

// service is the internal implementation of the payproc Service interface.
type service struct {
	mu        sync.Mutex // protects lifecycle state
	isStarted bool       // ensures Start is called only once
	closeFunc closeFunc  // cancels context and cleans up dependencies

	chainwatch chainwatch.Service // source of per-wallet chain observations
	dispatcher webhook.Service    // webhook event delivery loop
}

// Compile-time check to ensure *service implements the Service interface.
var _ Service = (*service)(nil)

// Start implements Service. The dispatcher starts first so that events
// enqueued by the very first poll cycle find a running delivery loop.
func (s *service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isStarted {
		return ErrServiceAlreadyStarted
	}

	if err := s.dispatcher.Start(ctx); err != nil {
		return err
	}

	if err := s.chainwatch.Start(ctx); err != nil {
		s.dispatcher.Close()
		return err
	}

	s.closeFunc = func() {
		s.chainwatch.Close()
		s.dispatcher.Close()
	}
	s.isStarted = true
	return nil
}

// Close shuts down all processing routines and dependencies.
func (s *service) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closeFunc != nil {
		s.closeFunc()
	}

	s.closeFunc = nil
	s.isStarted = false
}

// New creates a new instance of the payproc service, wiring the chain watcher
// with the webhook dispatcher lifecycle. The watcher must have been
// constructed with a Sink bridging into the same dispatcher.
func New(cw chainwatch.Service, disp webhook.Service) *service {
	return &service{
		chainwatch: cw,
		dispatcher: disp,
	}
}
