package gateway

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/smallbiznis/payrecon/internal/clock"
	"github.com/smallbiznis/payrecon/internal/config"
	"github.com/smallbiznis/payrecon/internal/payment/domain"
)

// Gateway turns a signed webhook body into a typed event.
type Gateway struct {
	secret    string
	tolerance time.Duration
	clock     clock.Clock
}

func New(cfg config.Config, c clock.Clock) *Gateway {
	if c == nil {
		c = clock.System()
	}
	return &Gateway{
		secret:    cfg.Stripe.WebhookSecret,
		tolerance: cfg.Stripe.SignatureTolerance,
		clock:     c,
	}
}

// VerifyAndParse authenticates raw against signatureHeader and decodes it.
// Unknown event types yield ErrEventIgnored together with the envelope so the
// caller can still acknowledge by id.
func (g *Gateway) VerifyAndParse(raw []byte, signatureHeader string) (domain.Event, error) {
	if strings.TrimSpace(g.secret) == "" {
		return nil, fmt.Errorf("%w: webhook secret not configured", domain.ErrInvalidSignature)
	}
	if err := verifySignature(g.secret, raw, signatureHeader, g.tolerance, g.clock.Now()); err != nil {
		return nil, err
	}
	return Parse(raw)
}

type stripeEvent struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	Created  int64  `json:"created"`
	Livemode bool   `json:"livemode"`
	Data     struct {
		Object json.RawMessage `json:"object"`
	} `json:"data"`
}

type stripeIntent struct {
	ID            string            `json:"id"`
	Amount        int64             `json:"amount"`
	Currency      string            `json:"currency"`
	LatestCharge  expandable        `json:"latest_charge"`
	PaymentMethod expandable        `json:"payment_method"`
	Metadata      map[string]string `json:"metadata"`
	Charges       struct {
		Data []struct {
			ID string `json:"id"`
		} `json:"data"`
	} `json:"charges"`
	LastPaymentError *struct {
		Message string `json:"message"`
	} `json:"last_payment_error"`
}

type stripeCharge struct {
	ID             string     `json:"id"`
	PaymentIntent  expandable `json:"payment_intent"`
	AmountRefunded int64      `json:"amount_refunded"`
	Currency       string     `json:"currency"`
}

type stripeDispute struct {
	ID       string     `json:"id"`
	Charge   expandable `json:"charge"`
	Reason   string     `json:"reason"`
	Amount   int64      `json:"amount"`
	Currency string     `json:"currency"`
}

type stripeMethod struct {
	ID       string     `json:"id"`
	Customer expandable `json:"customer"`
}

// expandable decodes a field that is either an id string or an expanded object
// carrying an id.
type expandable string

func (e *expandable) UnmarshalJSON(b []byte) error {
	if len(b) == 0 || string(b) == "null" {
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*e = expandable(s)
		return nil
	}
	var obj struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(b, &obj); err != nil {
		return err
	}
	*e = expandable(obj.ID)
	return nil
}

// Parse decodes an already authenticated body.
func Parse(raw []byte) (domain.Event, error) {
	var event stripeEvent
	if err := json.Unmarshal(raw, &event); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidPayload, err)
	}
	if strings.TrimSpace(event.ID) == "" || strings.TrimSpace(event.Type) == "" {
		return nil, domain.ErrInvalidEvent
	}

	env := domain.Envelope{
		ID:         event.ID,
		Kind:       domain.EventType(event.Type),
		OccurredAt: occurredAt(event.Created),
		Livemode:   event.Livemode,
		Raw:        raw,
	}

	switch env.Kind {
	case domain.EventPaymentSucceeded:
		var intent stripeIntent
		if err := decodeObject(event, &intent); err != nil {
			return nil, err
		}
		return domain.PaymentSucceeded{
			Envelope:    env,
			IntentID:    intent.ID,
			AmountMinor: intent.Amount,
			Currency:    strings.ToLower(intent.Currency),
			ChargeID:    intent.chargeID(),
			MethodID:    string(intent.PaymentMethod),
			OrderRef:    strings.TrimSpace(intent.Metadata["order_ref"]),
		}, nil

	case domain.EventPaymentFailed:
		var intent stripeIntent
		if err := decodeObject(event, &intent); err != nil {
			return nil, err
		}
		message := ""
		if intent.LastPaymentError != nil {
			message = intent.LastPaymentError.Message
		}
		return domain.PaymentFailed{Envelope: env, IntentID: intent.ID, Message: message}, nil

	case domain.EventChargeRefunded:
		var charge stripeCharge
		if err := decodeObject(event, &charge); err != nil {
			return nil, err
		}
		return domain.ChargeRefunded{
			Envelope:            env,
			ChargeID:            charge.ID,
			IntentID:            string(charge.PaymentIntent),
			AmountRefundedMinor: charge.AmountRefunded,
			Currency:            strings.ToLower(charge.Currency),
		}, nil

	case domain.EventDisputeCreated:
		var dispute stripeDispute
		if err := decodeObject(event, &dispute); err != nil {
			return nil, err
		}
		if dispute.Charge == "" {
			return nil, fmt.Errorf("%w: dispute without charge", domain.ErrInvalidEvent)
		}
		return domain.DisputeCreated{
			Envelope:    env,
			DisputeID:   dispute.ID,
			ChargeID:    string(dispute.Charge),
			Reason:      dispute.Reason,
			AmountMinor: dispute.Amount,
			Currency:    strings.ToLower(dispute.Currency),
		}, nil

	case domain.EventPaymentMethodAttached:
		var method stripeMethod
		if err := decodeObject(event, &method); err != nil {
			return nil, err
		}
		return domain.PaymentMethodAttached{Envelope: env, MethodID: method.ID, CustomerID: string(method.Customer)}, nil

	case domain.EventPaymentMethodDetached:
		var method stripeMethod
		if err := decodeObject(event, &method); err != nil {
			return nil, err
		}
		return domain.PaymentMethodDetached{Envelope: env, MethodID: method.ID}, nil

	default:
		return Ignored{Envelope: env}, domain.ErrEventIgnored
	}
}

// Ignored is returned alongside ErrEventIgnored.
type Ignored struct {
	domain.Envelope
}

func (i stripeIntent) chargeID() string {
	if i.LatestCharge != "" {
		return string(i.LatestCharge)
	}
	if len(i.Charges.Data) > 0 {
		return i.Charges.Data[0].ID
	}
	return ""
}

type identified interface {
	objectID() string
}

func (i *stripeIntent) objectID() string  { return i.ID }
func (c *stripeCharge) objectID() string  { return c.ID }
func (d *stripeDispute) objectID() string { return d.ID }
func (m *stripeMethod) objectID() string  { return m.ID }

func decodeObject(event stripeEvent, out identified) error {
	if len(event.Data.Object) == 0 {
		return fmt.Errorf("%w: missing data.object", domain.ErrInvalidEvent)
	}
	if err := json.Unmarshal(event.Data.Object, out); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidPayload, err)
	}
	if strings.TrimSpace(out.objectID()) == "" {
		return fmt.Errorf("%w: data.object has no id", domain.ErrInvalidEvent)
	}
	return nil
}

func occurredAt(created int64) time.Time {
	if created == 0 {
		return time.Time{}
	}
	return time.Unix(created, 0).UTC()
}
