package pdf

import "context"

// Receipt is what a payment receipt document shows.
type Receipt struct {
	PaymentID   string
	IntentID    string
	OrderRef    string
	Description string
	BuyerName   string
	BuyerEmail  string
	Amount      string
	Currency    string
	PaidAt      string
}

type Provider interface {
	RenderReceipt(ctx context.Context, receipt Receipt) ([]byte, error)
}

type NoOpProvider struct{}

func (p *NoOpProvider) RenderReceipt(ctx context.Context, receipt Receipt) ([]byte, error) {
	return nil, nil
}
