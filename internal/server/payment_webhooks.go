package server

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	obstracing "github.com/smallbiznis/payflow/internal/observability/tracing"
	paymentdomain "github.com/smallbiznis/payflow/internal/payment/domain"
)

// HandleStripeWebhook acknowledges a delivery with 200 once its effect (or its
// rejection) is durable. Store failures answer 503 so Stripe redelivers.
func (s *Server) HandleStripeWebhook(c *gin.Context) {
	payload, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxWebhookBody))
	if err != nil {
		AbortWithError(c, paymentdomain.ErrMalformedPayload)
		return
	}

	result, err := s.webhookSvc.IngestWebhook(c.Request.Context(), payload, c.Request.Header)
	tagDelivery(c, result)
	if err != nil {
		if errors.Is(err, paymentdomain.ErrEventAlreadyProcessed) {
			c.Set(obstracing.KeyWebhookOutcome, paymentdomain.WebhookOutcomeDuplicate)
			c.JSON(http.StatusOK, gin.H{"status": "ok", "outcome": paymentdomain.WebhookOutcomeDuplicate})
			return
		}
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok", "outcome": result.Outcome})
}

// tagDelivery exposes the delivery to the request logger and server span.
func tagDelivery(c *gin.Context, result paymentdomain.WebhookResult) {
	if result.Outcome != "" {
		c.Set(obstracing.KeyWebhookOutcome, result.Outcome)
	}
	if result.ProcessorEventID != "" {
		c.Set(obstracing.KeyProcessorEventID, result.ProcessorEventID)
	}
	if result.PaymentID != 0 {
		c.Set(obstracing.KeyPaymentID, result.PaymentID.String())
	}
}
