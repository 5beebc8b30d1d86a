// Package rest exposes the engine's HTTP surface: wallet registration, ledger
// projections (balance, transaction history), and webhook event inspection.
// It is a thin layer over the domain services and never touches storage
// directly.
package rest

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gabapcia/paywatch/internal/pkg/logger"
	"github.com/gabapcia/paywatch/internal/walletquery"
	"github.com/gabapcia/paywatch/internal/walletregistry"
	"github.com/gabapcia/paywatch/internal/webhook"

	"github.com/gin-gonic/gin"
)

const shutdownTimeout = 10 * time.Second

// Server hosts the REST API.
type Server struct {
	httpServer *http.Server
}

// router assembles the gin engine with all routes registered.
func router(wr walletregistry.Service, wq walletquery.Service, wh webhook.Service) *gin.Engine {
	engine := gin.New()
	engine.Use(gin.Recovery())

	engine.GET("/health", healthHandler)

	engine.POST("/wallets", createWalletHandler(wr))
	engine.DELETE("/wallets/:address", deleteWalletHandler(wr))
	engine.GET("/wallets/:address/balance", getBalanceHandler(wr, wq))
	engine.GET("/wallets/:address/transactions", listTransactionsHandler(wr, wq))
	engine.GET("/wallets/:address/webhooks", listWebhookEventsHandler(wh))
	engine.POST("/wallets/:address/webhooks/test", sendTestWebhookHandler(wh))
	engine.GET("/webhooks/stats", webhookStatsHandler(wh))

	return engine
}

// Start begins serving on the given address in a background goroutine.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error(ctx, "http server stopped", "error", err)
			errCh <- err
		}
	}()

	// Give ListenAndServe a moment to surface bind errors.
	select {
	case err := <-errCh:
		return err
	case <-time.After(100 * time.Millisecond):
		return nil
	}
}

// Close drains in-flight requests and shuts the listener down.
func (s *Server) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		logger.Error(ctx, "http server shutdown", "error", err)
	}
}

// NewServer builds the REST server on the given listen address (e.g. ":3000").
func NewServer(addr string, wr walletregistry.Service, wq walletquery.Service, wh webhook.Service) *Server {
	return &Server{
		httpServer: &http.Server{
			Addr:              addr,
			Handler:           router(wr, wq, wh),
			ReadHeaderTimeout: 5 * time.Second,
		},
	}
}
