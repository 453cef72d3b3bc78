package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	paymentdomain "github.com/smallbiznis/payrecon/internal/payment/domain"
	paymentservice "github.com/smallbiznis/payrecon/internal/payment/service"
	"github.com/smallbiznis/payrecon/pkg/db/pagination"
)

type createPaymentIntentRequest struct {
	OrderRef string `json:"order_ref"`
}

func (s *Server) CreatePaymentIntent(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	var req createPaymentIntentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	if strings.TrimSpace(req.OrderRef) == "" {
		AbortWithError(c, newValidationError("order_ref", "required", "order_ref is required"))
		return
	}

	resp, err := s.paymentSvc.CreateIntent(c.Request.Context(), paymentservice.CreateIntentRequest{
		UserID:   userID,
		OrderRef: req.OrderRef,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"client_secret":     resp.ClientSecret,
		"payment_intent_id": resp.PaymentIntentID,
		"status":            resp.Status,
		"payment_id":        resp.PaymentID.String(),
		"amount":            paymentdomain.FormatAmount(resp.Amount),
		"currency":          resp.Currency,
	})
}

type confirmPaymentRequest struct {
	PaymentIntentID string `json:"payment_intent_id"`
	OrderRef        string `json:"order_ref"`
}

func (s *Server) ConfirmPayment(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	var req confirmPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	if strings.TrimSpace(req.PaymentIntentID) == "" {
		AbortWithError(c, newValidationError("payment_intent_id", "required", "payment_intent_id is required"))
		return
	}

	resp, err := s.paymentSvc.Confirm(c.Request.Context(), paymentservice.ConfirmRequest{
		UserID:          userID,
		PaymentIntentID: req.PaymentIntentID,
		OrderRef:        req.OrderRef,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	body := gin.H{
		"success":        resp.Success,
		"status":         resp.IntentStatus,
		"payment_id":     resp.PaymentID.String(),
		"payment_status": resp.PaymentStatus,
	}
	if resp.OrderID != nil {
		body["order_id"] = resp.OrderID.String()
	}
	if !resp.Success {
		body["error"] = resp.Message
		c.JSON(http.StatusBadRequest, body)
		return
	}
	body["message"] = resp.Message
	c.JSON(http.StatusOK, body)
}

func (s *Server) ListPayments(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	var query pagination.Pagination
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.paymentSvc.List(c.Request.Context(), userID, query)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	items := make([]gin.H, 0, len(resp.Payments))
	for _, p := range resp.Payments {
		items = append(items, paymentView(p))
	}
	c.JSON(http.StatusOK, gin.H{"data": items, "page_info": resp.PageInfo})
}

func (s *Server) GetPayment(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	id, ok := idParam(c)
	if !ok {
		return
	}

	p, err := s.paymentSvc.Get(c.Request.Context(), userID, id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": paymentView(p)})
}

func (s *Server) GetPaymentStatus(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	id, ok := idParam(c)
	if !ok {
		return
	}

	p, err := s.paymentSvc.Get(c.Request.Context(), userID, id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"payment_id": p.ID.String(),
		"status":     p.Status,
		"amount":     paymentdomain.FormatAmount(p.Amount),
		"currency":   p.Currency,
		"created_at": p.CreatedAt.UTC().Format(time.RFC3339),
		"paid_at":    formatOptionalTime(p.PaidAt),
		"error":      p.ErrorDetail,
	})
}

type refundPaymentRequest struct {
	Amount string `json:"amount"`
}

func (s *Server) RefundPayment(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	id, ok := idParam(c)
	if !ok {
		return
	}

	var req refundPaymentRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			AbortWithError(c, invalidRequestError())
			return
		}
	}

	resp, err := s.paymentSvc.Refund(c.Request.Context(), paymentservice.RefundRequest{
		UserID:    userID,
		PaymentID: id,
		Amount:    req.Amount,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":    true,
		"refund_id":  resp.RefundID,
		"status":     resp.Status,
		"payment_id": resp.PaymentID.String(),
		"amount":     paymentdomain.FormatAmount(resp.Amount),
	})
}

// DeletePayment is only reachable if a policy ever grants payment.delete;
// payment rows are retained regardless.
func (s *Server) DeletePayment(c *gin.Context) {
	AbortWithError(c, ErrForbidden)
}

func paymentView(p *paymentdomain.Payment) gin.H {
	return gin.H{
		"id":           p.ID.String(),
		"order_ref":    p.OrderRef,
		"amount":       paymentdomain.FormatAmount(p.Amount),
		"currency":     p.Currency,
		"status":       p.Status,
		"description":  p.Description,
		"error_detail": p.ErrorDetail,
		"created_at":   p.CreatedAt.UTC().Format(time.RFC3339),
		"updated_at":   p.UpdatedAt.UTC().Format(time.RFC3339),
		"paid_at":      formatOptionalTime(p.PaidAt),
		"refunded_at":  formatOptionalTime(p.RefundedAt),
	}
}

func formatOptionalTime(t *time.Time) *string {
	if t == nil {
		return nil
	}
	v := t.UTC().Format(time.RFC3339)
	return &v
}
