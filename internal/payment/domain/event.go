package domain

import "time"

type EventType string

const (
	EventPaymentSucceeded      EventType = "payment_intent.succeeded"
	EventPaymentFailed         EventType = "payment_intent.payment_failed"
	EventChargeRefunded        EventType = "charge.refunded"
	EventDisputeCreated        EventType = "charge.dispute.created"
	EventPaymentMethodAttached EventType = "payment_method.attached"
	EventPaymentMethodDetached EventType = "payment_method.detached"

	// Locally originated; these never carry a processor event id and so
	// bypass the ledger. The row lock and status checks make them idempotent.
	EventIntentObserved EventType = "payment_intent.observed"
	EventRefundIssued   EventType = "refund.issued"
)

// Event is one normalized processor notification. The concrete type selects
// the reconciliation path.
type Event interface {
	EventID() string
	Type() EventType
	isEvent()
}

// Envelope holds the fields every event shares.
type Envelope struct {
	ID         string
	Kind       EventType
	OccurredAt time.Time
	Livemode   bool
	Raw        []byte
}

func (e Envelope) EventID() string { return e.ID }
func (e Envelope) Type() EventType { return e.Kind }
func (Envelope) isEvent()          {}

type PaymentSucceeded struct {
	Envelope
	IntentID    string
	AmountMinor int64
	Currency    string
	ChargeID    string
	MethodID    string
	OrderRef    string
}

type PaymentFailed struct {
	Envelope
	IntentID string
	Message  string
}

type ChargeRefunded struct {
	Envelope
	ChargeID            string
	IntentID            string
	AmountRefundedMinor int64
	Currency            string
}

type DisputeCreated struct {
	Envelope
	DisputeID   string
	ChargeID    string
	Reason      string
	AmountMinor int64
	Currency    string
}

type PaymentMethodAttached struct {
	Envelope
	MethodID   string
	CustomerID string
}

type PaymentMethodDetached struct {
	Envelope
	MethodID string
}

// IntentObserved is the result of polling the processor for an intent on a
// client's behalf.
type IntentObserved struct {
	Envelope
	IntentID    string
	Status      IntentStatus
	AmountMinor int64
	ChargeID    string
	MethodID    string
	LastError   string
	OrderRef    string
	// OwnerID scopes the lock to the polling user; zero means unscoped.
	OwnerID int64
}

// RefundIssued is a refund the service itself created at the processor.
type RefundIssued struct {
	Envelope
	PaymentID   int64
	OwnerID     int64
	RefundID    string
	AmountMinor int64
}

type IntentStatus string

const (
	IntentRequiresPaymentMethod IntentStatus = "requires_payment_method"
	IntentRequiresConfirmation  IntentStatus = "requires_confirmation"
	IntentRequiresAction        IntentStatus = "requires_action"
	IntentProcessing            IntentStatus = "processing"
	IntentRequiresCapture       IntentStatus = "requires_capture"
	IntentCanceled              IntentStatus = "canceled"
	IntentSucceeded             IntentStatus = "succeeded"
)
