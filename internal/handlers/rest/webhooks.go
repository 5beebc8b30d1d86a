package rest

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gabapcia/paywatch/internal/webhook"

	"github.com/gin-gonic/gin"
)

// webhookEventResponse is the public projection of a webhook event record.
type webhookEventResponse struct {
	ID                   string          `json:"id"`
	WalletAddress        string          `json:"wallet_address"`
	TransactionSignature string          `json:"transaction_signature,omitempty"`
	EventType            string          `json:"event_type"`
	Payload              json.RawMessage `json:"payload"`
	Status               string          `json:"status"`
	Attempts             int             `json:"attempts"`
	LastAttemptAt        *time.Time      `json:"last_attempt_at,omitempty"`
	DeliveredAt          *time.Time      `json:"delivered_at,omitempty"`
	LastError            string          `json:"last_error,omitempty"`
	CreatedAt            time.Time       `json:"created_at"`
}

func mapEvent(event webhook.Event) webhookEventResponse {
	return webhookEventResponse{
		ID:                   event.ID,
		WalletAddress:        event.WalletAddress,
		TransactionSignature: event.TransactionSignature,
		EventType:            event.EventType,
		Payload:              event.Payload,
		Status:               string(event.Status),
		Attempts:             event.Attempts,
		LastAttemptAt:        event.LastAttemptAt,
		DeliveredAt:          event.DeliveredAt,
		LastError:            event.LastError,
		CreatedAt:            event.CreatedAt,
	}
}

func listWebhookEventsHandler(wh webhook.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		limit, offset := pagination(c)
		if limit <= 0 || limit > 100 {
			limit = 50
		}
		if offset < 0 {
			offset = 0
		}

		events, err := wh.ListByWallet(c.Request.Context(), c.Param("address"), limit, offset)
		if err != nil {
			c.JSON(http.StatusInternalServerError, errorResponse{Error: err.Error()})
			return
		}

		responses := make([]webhookEventResponse, len(events))
		for i, event := range events {
			responses[i] = mapEvent(event)
		}
		c.JSON(http.StatusOK, gin.H{"events": responses, "count": len(responses)})
	}
}

// sendTestWebhookHandler performs a single, synchronous delivery so the
// caller gets an immediate verdict on their endpoint.
func sendTestWebhookHandler(wh webhook.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		event, err := wh.SendTest(c.Request.Context(), c.Param("address"))
		if err != nil {
			if errors.Is(err, webhook.ErrNoWebhookURL) {
				c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
				return
			}
			// The attempt itself failed: report the recorded event so the
			// caller sees the failure detail.
			if event.ID != "" {
				c.JSON(http.StatusBadGateway, mapEvent(event))
				return
			}
			c.JSON(http.StatusInternalServerError, errorResponse{Error: err.Error()})
			return
		}

		c.JSON(http.StatusOK, mapEvent(event))
	}
}

func webhookStatsHandler(wh webhook.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		stats, err := wh.Stats(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusInternalServerError, errorResponse{Error: err.Error()})
			return
		}

		c.JSON(http.StatusOK, stats)
	}
}
