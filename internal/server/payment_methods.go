package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	paymentdomain "github.com/smallbiznis/payrecon/internal/payment/domain"
	paymentservice "github.com/smallbiznis/payrecon/internal/payment/service"
)

type createPaymentMethodRequest struct {
	PaymentMethodID string `json:"payment_method_id"`
	IsDefault       bool   `json:"is_default"`
}

type updatePaymentMethodRequest struct {
	IsDefault *bool `json:"is_default"`
}

func (s *Server) ListPaymentMethods(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	methods, err := s.paymentSvc.ListMethods(c.Request.Context(), userID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	items := make([]gin.H, 0, len(methods))
	for _, m := range methods {
		items = append(items, paymentMethodView(m))
	}
	c.JSON(http.StatusOK, gin.H{"data": items})
}

func (s *Server) CreatePaymentMethod(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	var req createPaymentMethodRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	if strings.TrimSpace(req.PaymentMethodID) == "" {
		AbortWithError(c, newValidationError("payment_method_id", "required", "payment_method_id is required"))
		return
	}

	method, err := s.paymentSvc.RegisterMethod(c.Request.Context(), paymentservice.RegisterMethodRequest{
		UserID:     userID,
		ExternalID: req.PaymentMethodID,
		IsDefault:  req.IsDefault,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"data": paymentMethodView(method)})
}

func (s *Server) GetPaymentMethod(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	id, ok := idParam(c)
	if !ok {
		return
	}

	method, err := s.paymentSvc.GetMethod(c.Request.Context(), userID, id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": paymentMethodView(method)})
}

func (s *Server) UpdatePaymentMethod(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	id, ok := idParam(c)
	if !ok {
		return
	}

	var req updatePaymentMethodRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	if req.IsDefault == nil {
		AbortWithError(c, newValidationError("is_default", "required", "is_default is required"))
		return
	}

	method, err := s.paymentSvc.SetDefaultMethod(c.Request.Context(), userID, id, *req.IsDefault)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": paymentMethodView(method)})
}

func (s *Server) DeletePaymentMethod(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	id, ok := idParam(c)
	if !ok {
		return
	}

	if err := s.paymentSvc.DeleteMethod(c.Request.Context(), userID, id); err != nil {
		AbortWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func paymentMethodView(m *paymentdomain.PaymentMethod) gin.H {
	return gin.H{
		"id":         m.ID.String(),
		"card_brand": m.CardBrand,
		"last_four":  m.LastFour,
		"exp_month":  m.ExpMonth,
		"exp_year":   m.ExpYear,
		"is_default": m.IsDefault,
		"created_at": m.CreatedAt.UTC().Format("2006-01-02T15:04:05Z07:00"),
	}
}
