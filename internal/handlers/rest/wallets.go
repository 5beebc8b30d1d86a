package rest

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gabapcia/paywatch/internal/walletquery"
	"github.com/gabapcia/paywatch/internal/walletregistry"

	"github.com/gin-gonic/gin"
)

// errorResponse is the uniform error body returned by every handler.
type errorResponse struct {
	Error string `json:"error"`
}

// walletResponse is the public projection of a wallet registration.
type walletResponse struct {
	Address    string    `json:"address"`
	WebhookURL string    `json:"webhook_url,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

type createWalletRequest struct {
	Address    string `json:"address" binding:"required"`
	WebhookURL string `json:"webhook_url"`
}

func healthHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// createWalletHandler registers a wallet. Registration is idempotent, so the
// handler always answers 201 with the resulting row.
func createWalletHandler(wr walletregistry.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req createWalletRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
			return
		}

		wallet, err := wr.Register(c.Request.Context(), req.Address, req.WebhookURL)
		if err != nil {
			status := http.StatusInternalServerError
			if errors.Is(err, walletregistry.ErrInvalidAddress) {
				status = http.StatusBadRequest
			}
			c.JSON(status, errorResponse{Error: err.Error()})
			return
		}

		c.JSON(http.StatusCreated, walletResponse{
			Address:    wallet.Address,
			WebhookURL: wallet.WebhookURL,
			CreatedAt:  wallet.CreatedAt,
		})
	}
}

func deleteWalletHandler(wr walletregistry.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		err := wr.Unregister(c.Request.Context(), c.Param("address"))
		if err != nil {
			switch {
			case errors.Is(err, walletregistry.ErrWalletNotFound):
				c.JSON(http.StatusNotFound, errorResponse{Error: err.Error()})
			case errors.Is(err, walletregistry.ErrInvalidAddress):
				c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
			default:
				c.JSON(http.StatusInternalServerError, errorResponse{Error: err.Error()})
			}
			return
		}

		c.Status(http.StatusNoContent)
	}
}

// requireWallet resolves the address path parameter to a registered wallet,
// answering 404 when it is unknown. Queries over unregistered addresses would
// otherwise silently report empty history and zero balance.
func requireWallet(c *gin.Context, wr walletregistry.Service) (walletregistry.Wallet, bool) {
	wallet, err := wr.Get(c.Request.Context(), c.Param("address"))
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, walletregistry.ErrWalletNotFound) {
			status = http.StatusNotFound
		}
		c.JSON(status, errorResponse{Error: err.Error()})
		return walletregistry.Wallet{}, false
	}
	return wallet, true
}

func getBalanceHandler(wr walletregistry.Service, wq walletquery.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		wallet, ok := requireWallet(c, wr)
		if !ok {
			return
		}

		balance, err := wq.Balance(c.Request.Context(), wallet.Address)
		if err != nil {
			c.JSON(http.StatusInternalServerError, errorResponse{Error: err.Error()})
			return
		}

		c.JSON(http.StatusOK, balance)
	}
}

// pagination extracts limit/offset query parameters, leaving bounds
// enforcement to the service layer.
func pagination(c *gin.Context) (limit, offset int) {
	limit, _ = strconv.Atoi(c.Query("limit"))
	offset, _ = strconv.Atoi(c.Query("offset"))
	return limit, offset
}

type transactionsResponse struct {
	Transactions []walletquery.Transaction `json:"transactions"`
	Count        int                       `json:"count"`
}

func listTransactionsHandler(wr walletregistry.Service, wq walletquery.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		wallet, ok := requireWallet(c, wr)
		if !ok {
			return
		}

		limit, offset := pagination(c)
		txs, err := wq.Transactions(c.Request.Context(), wallet.Address, limit, offset)
		if err != nil {
			c.JSON(http.StatusInternalServerError, errorResponse{Error: err.Error()})
			return
		}
		if txs == nil {
			txs = []walletquery.Transaction{}
		}

		c.JSON(http.StatusOK, transactionsResponse{Transactions: txs, Count: len(txs)})
	}
}
