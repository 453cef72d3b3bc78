package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	apikeydomain "github.com/smallbiznis/payrecon/internal/apikey/domain"
	auditdomain "github.com/smallbiznis/payrecon/internal/audit/domain"
	"github.com/smallbiznis/payrecon/internal/authorization"
	paymentdomain "github.com/smallbiznis/payrecon/internal/payment/domain"
	"github.com/smallbiznis/payrecon/pkg/db"
	"gorm.io/gorm"
)

type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

func (v ValidationErrors) Error() string {
	return "validation error"
}

type errorPayload struct {
	Type    string            `json:"type"`
	Message string            `json:"message"`
	Errors  []ValidationError `json:"errors,omitempty"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrUnauthorized       = errors.New("unauthorized")
	ErrForbidden          = errors.New("forbidden")
	ErrConflict           = errors.New("conflict")
	ErrInternal           = errors.New("internal_error")
	ErrNotFound           = errors.New("not_found")
	ErrInvalidRequest     = errors.New("invalid_request")
	ErrRateLimited        = errors.New("rate_limited")
	ErrServiceUnavailable = errors.New("service_unavailable")
)

func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.Header("Content-Type", "application/json")
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func invalidRequestError() error {
	return newValidationError("request", "invalid_request", "invalid request")
}

func newValidationError(field, code, message string) error {
	return &ValidationErrors{
		Errors: []ValidationError{
			{
				Field:   field,
				Code:    code,
				Message: message,
			},
		},
	}
}

func mapError(err error) (int, errorPayload) {
	if err == nil {
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}

	if vErr := asValidationErrors(err); vErr != nil {
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors:  vErr.Errors,
		}
	}

	var procErr *paymentdomain.ProcessorError
	if errors.As(err, &procErr) {
		return mapProcessorError(procErr)
	}

	if field, ok := validationField(err); ok {
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: validationMessage(err),
			Errors: []ValidationError{
				{
					Field:   field,
					Code:    rootCode(err),
					Message: validationMessage(err),
				},
			},
		}
	}

	switch {
	case errors.Is(err, ErrUnauthorized),
		errors.Is(err, apikeydomain.ErrInvalidKey):
		return http.StatusUnauthorized, errorPayload{
			Type:    "unauthorized",
			Message: "unauthorized",
		}
	case errors.Is(err, ErrForbidden),
		errors.Is(err, authorization.ErrForbidden),
		errors.Is(err, paymentdomain.ErrNotEntitled):
		return http.StatusForbidden, errorPayload{
			Type:    "forbidden",
			Message: "forbidden",
		}
	case errors.Is(err, ErrConflict),
		errors.Is(err, paymentdomain.ErrConstraintViolation):
		return http.StatusConflict, errorPayload{
			Type:    "conflict",
			Message: "conflict",
		}
	case isNotFoundError(err):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: "not found",
		}
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests, errorPayload{
			Type:    "rate_limited",
			Message: "rate limit exceeded",
		}
	case errors.Is(err, ErrServiceUnavailable),
		paymentdomain.IsRetryable(err),
		db.IsLockTimeoutErr(err):
		return http.StatusServiceUnavailable, errorPayload{
			Type:    "service_unavailable",
			Message: "service unavailable",
		}
	default:
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}
}

// mapProcessorError surfaces the processor's user-facing message; raw
// processor errors never reach the client.
func mapProcessorError(err *paymentdomain.ProcessorError) (int, errorPayload) {
	payload := errorPayload{Type: "payment_error", Message: err.UserMessage}
	switch err.Kind {
	case paymentdomain.ProcessorErrorCard, paymentdomain.ProcessorErrorInvalid:
		return http.StatusBadRequest, payload
	case paymentdomain.ProcessorErrorRateLimited:
		payload.Type = "rate_limited"
		return http.StatusTooManyRequests, payload
	case paymentdomain.ProcessorErrorConnection:
		payload.Type = "service_unavailable"
		return http.StatusServiceUnavailable, payload
	default:
		return http.StatusBadGateway, payload
	}
}

func asValidationErrors(err error) *ValidationErrors {
	var vErr *ValidationErrors
	if errors.As(err, &vErr) && vErr != nil {
		return vErr
	}
	return nil
}

var validationErrors = []struct {
	err   error
	field string
}{
	{ErrInvalidRequest, "request"},
	{paymentdomain.ErrInvalidRequest, "request"},
	{paymentdomain.ErrInvalidAmount, "amount"},
	{paymentdomain.ErrInvalidRefundAmount, "amount"},
	{paymentdomain.ErrAmountMismatch, "amount"},
	{paymentdomain.ErrNotRefundable, "status"},
	{paymentdomain.ErrMissingSettlement, "settlement_id"},
	{paymentdomain.ErrInvalidSignature, "signature"},
	{paymentdomain.ErrInvalidPayload, "payload"},
	{paymentdomain.ErrInvalidEvent, "payload"},
	{authorization.ErrInvalidObject, "object"},
	{authorization.ErrInvalidAction, "action"},
	{auditdomain.ErrInvalidPageToken, "page_token"},
	{auditdomain.ErrInvalidTimeRange, "start_at"},
}

func validationField(err error) (string, bool) {
	for _, v := range validationErrors {
		if errors.Is(err, v.err) {
			return v.field, true
		}
	}
	return "", false
}

func rootCode(err error) string {
	for _, v := range validationErrors {
		if errors.Is(err, v.err) {
			return v.err.Error()
		}
	}
	return "invalid_request"
}

func validationMessage(err error) string {
	switch {
	case errors.Is(err, paymentdomain.ErrInvalidRefundAmount):
		return "Invalid refund amount"
	case errors.Is(err, paymentdomain.ErrNotRefundable):
		return "Only succeeded payments can be refunded"
	case errors.Is(err, paymentdomain.ErrMissingSettlement):
		return "Payment has no charge to refund"
	case errors.Is(err, paymentdomain.ErrAmountMismatch):
		return "Payment amount does not match"
	case errors.Is(err, paymentdomain.ErrInvalidSignature):
		return "Invalid signature"
	case errors.Is(err, paymentdomain.ErrInvalidPayload), errors.Is(err, paymentdomain.ErrInvalidEvent):
		return "Invalid payload"
	case errors.Is(err, paymentdomain.ErrInvalidAmount):
		return "Invalid amount"
	case errors.Is(err, auditdomain.ErrInvalidPageToken):
		return "Invalid page token"
	case errors.Is(err, auditdomain.ErrInvalidTimeRange):
		return "start_at must not be after end_at"
	default:
		return "invalid request"
	}
}

func isNotFoundError(err error) bool {
	switch {
	case errors.Is(err, ErrNotFound),
		errors.Is(err, paymentdomain.ErrNotFound),
		errors.Is(err, paymentdomain.ErrItemNotFound),
		errors.Is(err, paymentdomain.ErrMethodNotFound),
		errors.Is(err, apikeydomain.ErrNotFound),
		errors.Is(err, gorm.ErrRecordNotFound):
		return true
	default:
		return false
	}
}

// classifyErrorForLog feeds the request logger's error_type/error_code fields.
func classifyErrorForLog(err error) (string, string) {
	status, payload := mapError(err)
	if status >= http.StatusInternalServerError {
		return "server", payload.Type
	}
	return "client", payload.Type
}
