package domain

import (
	"context"

	"github.com/shopspring/decimal"
)

type Intent struct {
	ID             string
	ClientSecret   string
	Status         IntentStatus
	AmountMinor    int64
	Currency       string
	LatestChargeID string
	MethodID       string
	LastError      string
	Metadata       map[string]string
}

type CreateIntentInput struct {
	AmountMinor    int64
	Currency       string
	Description    string
	Metadata       map[string]string
	IdempotencyKey string
}

type Refund struct {
	ID          string
	Status      string
	AmountMinor int64
}

type MethodDetails struct {
	ID       string
	Brand    string
	Last4    string
	ExpMonth int
	ExpYear  int
}

// Processor is the outbound API of the payment processor.
type Processor interface {
	CreateIntent(ctx context.Context, input CreateIntentInput) (*Intent, error)
	RetrieveIntent(ctx context.Context, intentID string) (*Intent, error)
	RefundCharge(ctx context.Context, chargeID string, amountMinor *int64, idempotencyKey string) (*Refund, error)
	RetrievePaymentMethod(ctx context.Context, methodID string) (*MethodDetails, error)
	DetachPaymentMethod(ctx context.Context, methodID string) error
}

type PricedItem struct {
	Ref      string
	Title    string
	Amount   decimal.Decimal
	Currency string
	SellerID int64
}

// ItemPricer computes the payable amount of an item for a user. It returns
// ErrItemNotFound or ErrNotEntitled when the user may not pay for it.
type ItemPricer interface {
	PriceFor(ctx context.Context, userID int64, ref string) (PricedItem, error)
}

type User struct {
	ID    int64
	Email string
	Name  string
}

type UserDirectory interface {
	Lookup(ctx context.Context, userID int64) (User, error)
}

// SideEffects receives work strictly after commit. Implementations must not
// block on delivery; a returned error only means the task was not accepted.
type SideEffects interface {
	Notify(ctx context.Context, userID int64, channel string, payload map[string]any) error
	EnqueueEmail(ctx context.Context, recipient string, template string, data map[string]any) error
	AlertOperators(ctx context.Context, subject string, data map[string]any) error
}
