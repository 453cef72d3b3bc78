package domain

import "errors"

var (
	ErrNotFound            = errors.New("payment_not_found")
	ErrDuplicateEvent      = errors.New("duplicate_event")
	ErrConstraintViolation = errors.New("constraint_violation")
	ErrLockTimeout         = errors.New("payment_lock_timeout")
	ErrInvalidTransition   = errors.New("invalid_status_transition")

	ErrInvalidSignature = errors.New("invalid_signature")
	ErrInvalidPayload   = errors.New("invalid_payload")
	ErrInvalidEvent     = errors.New("invalid_event")
	ErrEventIgnored     = errors.New("event_ignored")
	ErrEventOutOfOrder  = errors.New("event_out_of_order")

	ErrAmountMismatch      = errors.New("amount_mismatch")
	ErrCapturedOnTerminal  = errors.New("captured_on_terminal_payment")
	ErrInvalidAmount       = errors.New("invalid_amount")
	ErrInvalidRefundAmount = errors.New("invalid_refund_amount")
	ErrNotRefundable       = errors.New("payment_not_refundable")
	ErrMissingSettlement   = errors.New("missing_settlement_id")
	ErrInvalidRequest      = errors.New("invalid_request")

	ErrItemNotFound = errors.New("item_not_found")
	ErrNotEntitled  = errors.New("not_entitled")

	ErrMethodNotFound = errors.New("payment_method_not_found")
)

// ProcessorError carries a message safe to show the end user alongside the
// classification used for retries.
type ProcessorError struct {
	Kind        ProcessorErrorKind
	UserMessage string
	Err         error
}

type ProcessorErrorKind string

const (
	ProcessorErrorCard           ProcessorErrorKind = "card_error"
	ProcessorErrorRateLimited    ProcessorErrorKind = "rate_limited"
	ProcessorErrorAuthentication ProcessorErrorKind = "authentication"
	ProcessorErrorConnection     ProcessorErrorKind = "connection"
	ProcessorErrorInvalid        ProcessorErrorKind = "invalid_request"
	ProcessorErrorUnknown        ProcessorErrorKind = "unknown"
)

func (e *ProcessorError) Error() string {
	if e.Err != nil {
		return string(e.Kind) + ": " + e.Err.Error()
	}
	return string(e.Kind) + ": " + e.UserMessage
}

func (e *ProcessorError) Unwrap() error { return e.Err }

// Retryable reports whether the caller should retry the whole operation later.
func (e *ProcessorError) Retryable() bool {
	return e.Kind == ProcessorErrorRateLimited || e.Kind == ProcessorErrorConnection
}

// IsRetryable reports whether err is a transient failure that a later
// attempt can get past.
func IsRetryable(err error) bool {
	if errors.Is(err, ErrLockTimeout) || errors.Is(err, ErrEventOutOfOrder) {
		return true
	}
	var procErr *ProcessorError
	if errors.As(err, &procErr) {
		return procErr.Retryable()
	}
	return false
}
