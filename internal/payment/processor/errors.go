package processor

import (
	"errors"
	"net/http"

	"github.com/smallbiznis/payrecon/internal/payment/domain"
	"github.com/stripe/stripe-go/v76"
)

const (
	msgRateLimited    = "Rate limit exceeded. Try again later."
	msgAuthentication = "Payment service error."
	msgConnection     = "Connection error. Try again."
	msgGeneric        = "Payment processing error."
)

// mapError classifies a processor SDK error. Card errors keep the processor's
// message because it is written for the cardholder.
func mapError(err error) error {
	if err == nil {
		return nil
	}

	var stripeErr *stripe.Error
	if !errors.As(err, &stripeErr) {
		return &domain.ProcessorError{Kind: domain.ProcessorErrorConnection, UserMessage: msgConnection, Err: err}
	}

	switch {
	case stripeErr.Type == stripe.ErrorTypeCard:
		msg := stripeErr.Msg
		if msg == "" {
			msg = msgGeneric
		}
		return &domain.ProcessorError{Kind: domain.ProcessorErrorCard, UserMessage: msg, Err: err}
	case stripeErr.HTTPStatusCode == http.StatusTooManyRequests || stripeErr.Code == stripe.ErrorCodeRateLimit:
		return &domain.ProcessorError{Kind: domain.ProcessorErrorRateLimited, UserMessage: msgRateLimited, Err: err}
	case stripeErr.HTTPStatusCode == http.StatusUnauthorized || stripeErr.HTTPStatusCode == http.StatusForbidden:
		return &domain.ProcessorError{Kind: domain.ProcessorErrorAuthentication, UserMessage: msgAuthentication, Err: err}
	case stripeErr.HTTPStatusCode >= http.StatusInternalServerError:
		return &domain.ProcessorError{Kind: domain.ProcessorErrorConnection, UserMessage: msgConnection, Err: err}
	case stripeErr.Type == stripe.ErrorTypeInvalidRequest:
		msg := stripeErr.Msg
		if msg == "" {
			msg = msgGeneric
		}
		return &domain.ProcessorError{Kind: domain.ProcessorErrorInvalid, UserMessage: msg, Err: err}
	default:
		return &domain.ProcessorError{Kind: domain.ProcessorErrorUnknown, UserMessage: msgGeneric, Err: err}
	}
}

func outcomeOf(err error) string {
	if err == nil {
		return "ok"
	}
	var procErr *domain.ProcessorError
	if errors.As(err, &procErr) {
		return string(procErr.Kind)
	}
	return "error"
}
