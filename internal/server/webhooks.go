package server

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	webhookdomain "github.com/tariron/saasodoo-sub008/internal/webhook/domain"
)

// Ledger payloads are small; anything larger is not a billing event.
const maxWebhookBody = 256 * 1024

// IngestBillingWebhook acks ledger deliveries. Replays of an already
// processed event id return 200 without reapplying side effects, which
// is what keeps at-least-once delivery safe.
func (s *Server) IngestBillingWebhook(c *gin.Context) {
	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody+1))
	if err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	if len(payload) > maxWebhookBody {
		c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, APIError{
			Code: "payload_too_large", Message: "webhook payload exceeds limit",
		})
		return
	}

	err = s.webhookSvc.Ingest(c.Request.Context(), payload)
	if errors.Is(err, webhookdomain.ErrEventAlreadyProcessed) {
		c.JSON(http.StatusOK, gin.H{"status": "duplicate"})
		return
	}
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
