package server

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	paymentdomain "github.com/smallbiznis/payrecon/internal/payment/domain"
	"github.com/smallbiznis/payrecon/internal/payment/webhook"
)

const (
	stripeSignatureHeader = "Stripe-Signature"
	maxWebhookBodyBytes   = 1 << 20
)

// HandleStripeWebhook acknowledges handled, ignored and duplicate events with
// 200. Any other status makes the processor redeliver.
func (s *Server) HandleStripeWebhook(c *gin.Context) {
	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBodyBytes))
	if err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	receipt, err := s.webhookSvc.IngestWebhook(c.Request.Context(), payload, c.GetHeader(stripeSignatureHeader))
	s.respondWebhook(c, receipt, err)
}

type testWebhookRequest struct {
	EventType       string `json:"event_type"`
	PaymentIntentID string `json:"payment_intent_id"`
	ChargeID        string `json:"charge_id"`
	Amount          int64  `json:"amount"`
	Currency        string `json:"currency"`
	Message         string `json:"message"`
}

// HandleTestWebhook runs a synthetic, unsigned processor event through the
// same pipeline as a real delivery. Registered in development only.
func (s *Server) HandleTestWebhook(c *gin.Context) {
	var req testWebhookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	intentID := strings.TrimSpace(req.PaymentIntentID)
	if intentID == "" {
		AbortWithError(c, newValidationError("payment_intent_id", "required", "payment_intent_id is required"))
		return
	}
	chargeID := strings.TrimSpace(req.ChargeID)
	if chargeID == "" {
		chargeID = "ch_test_" + intentID
	}
	currency := strings.ToLower(strings.TrimSpace(req.Currency))
	if currency == "" {
		currency = "usd"
	}

	var object map[string]any
	switch paymentdomain.EventType(req.EventType) {
	case paymentdomain.EventPaymentSucceeded:
		object = map[string]any{"id": intentID, "amount": req.Amount, "currency": currency, "latest_charge": chargeID}
	case paymentdomain.EventPaymentFailed:
		message := req.Message
		if message == "" {
			message = "Test error message"
		}
		object = map[string]any{"id": intentID, "last_payment_error": map[string]any{"message": message}}
	case paymentdomain.EventChargeRefunded:
		object = map[string]any{"id": chargeID, "payment_intent": intentID, "amount_refunded": req.Amount, "currency": currency}
	case paymentdomain.EventDisputeCreated:
		object = map[string]any{"id": "dp_test_" + intentID, "charge": chargeID, "reason": "general", "amount": req.Amount, "currency": currency}
	default:
		AbortWithError(c, newValidationError("event_type", "unsupported", "unknown event type: "+req.EventType))
		return
	}

	payload, err := json.Marshal(map[string]any{
		"id":   "evt_test_" + uuid.NewString(),
		"type": req.EventType,
		"data": map[string]any{"object": object},
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	receipt, err := s.webhookSvc.IngestUnsigned(c.Request.Context(), payload)
	s.respondWebhook(c, receipt, err)
}

func (s *Server) respondWebhook(c *gin.Context, receipt webhook.Receipt, err error) {
	if receipt.EventID != "" {
		c.Set("event_id", receipt.EventID)
		c.Set("event_type", string(receipt.EventType))
	}
	if err != nil {
		AbortWithError(c, err)
		return
	}

	body := gin.H{
		"success":  true,
		"event_id": receipt.EventID,
	}
	if receipt.Duplicate {
		body["duplicate"] = true
	}
	if receipt.Ignored {
		body["ignored"] = true
	}
	c.JSON(http.StatusOK, body)
}
