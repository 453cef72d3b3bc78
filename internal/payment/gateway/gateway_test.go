package gateway

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/smallbiznis/payrecon/internal/clock"
	"github.com/smallbiznis/payrecon/internal/config"
	"github.com/smallbiznis/payrecon/internal/payment/domain"
)

const secret = "whsec_test"

var now = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func newGateway() *Gateway {
	cfg := config.Config{Stripe: config.StripeConfig{WebhookSecret: secret, SignatureTolerance: 5 * time.Minute}}
	return New(cfg, clock.NewFakeClock(now))
}

func mustJSON(t *testing.T, v any) []byte {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return b
}

func event(id, typ string, object map[string]any) map[string]any {
	return map[string]any{
		"id":      id,
		"type":    typ,
		"created": now.Unix(),
		"data":    map[string]any{"object": object},
	}
}

func TestVerifySignature(t *testing.T) {
	g := newGateway()
	payload := []byte(`{"id":"evt_1","type":"customer.created","data":{"object":{"id":"cus_1"}}}`)

	tests := []struct {
		name   string
		header string
		want   error
	}{
		{name: "valid", header: Sign(secret, now, payload), want: domain.ErrEventIgnored},
		{name: "second v1 matches", header: Sign(secret, now, payload) + ",v1=deadbeef", want: domain.ErrEventIgnored},
		{name: "wrong secret", header: Sign("whsec_other", now, payload), want: domain.ErrInvalidSignature},
		{name: "stale", header: Sign(secret, now.Add(-10*time.Minute), payload), want: domain.ErrInvalidSignature},
		{name: "missing", header: "", want: domain.ErrInvalidSignature},
		{name: "malformed", header: "v1=abc", want: domain.ErrInvalidSignature},
		{name: "bad timestamp", header: "t=abc,v1=abc", want: domain.ErrInvalidSignature},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := g.VerifyAndParse(payload, tt.header)
			if !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestVerifyRejectsTamperedBody(t *testing.T) {
	g := newGateway()
	payload := []byte(`{"id":"evt_1","type":"payment_intent.succeeded","data":{"object":{"id":"pi_1","amount":10000}}}`)
	header := Sign(secret, now, payload)

	tampered := []byte(`{"id":"evt_1","type":"payment_intent.succeeded","data":{"object":{"id":"pi_1","amount":1}}}`)
	if _, err := g.VerifyAndParse(tampered, header); !errors.Is(err, domain.ErrInvalidSignature) {
		t.Fatalf("expected invalid signature for tampered body, got %v", err)
	}
}

func TestVerifyWithoutSecret(t *testing.T) {
	g := New(config.Config{}, clock.NewFakeClock(now))
	payload := []byte(`{}`)
	if _, err := g.VerifyAndParse(payload, Sign("", now, payload)); !errors.Is(err, domain.ErrInvalidSignature) {
		t.Fatalf("expected rejection when no secret is configured, got %v", err)
	}
}

func TestParseTypedEvents(t *testing.T) {
	g := newGateway()

	t.Run("payment succeeded", func(t *testing.T) {
		payload := mustJSON(t, event("evt_1", "payment_intent.succeeded", map[string]any{
			"id":             "pi_1",
			"amount":         10000,
			"currency":       "usd",
			"latest_charge":  "ch_1",
			"payment_method": "pm_1",
			"metadata":       map[string]any{"order_ref": "auc_9", "user_id": "7"},
		}))
		ev, err := g.VerifyAndParse(payload, Sign(secret, now, payload))
		if err != nil {
			t.Fatalf("parse: %v", err)
		}
		got, ok := ev.(domain.PaymentSucceeded)
		if !ok {
			t.Fatalf("expected PaymentSucceeded, got %T", ev)
		}
		if got.EventID() != "evt_1" || got.IntentID != "pi_1" || got.AmountMinor != 10000 ||
			got.ChargeID != "ch_1" || got.MethodID != "pm_1" || got.OrderRef != "auc_9" {
			t.Fatalf("unexpected event %+v", got)
		}
		if !got.OccurredAt.Equal(now) || string(got.Raw) != string(payload) {
			t.Fatalf("envelope not populated: %+v", got.Envelope)
		}
	})

	t.Run("legacy charges list", func(t *testing.T) {
		payload := mustJSON(t, event("evt_2", "payment_intent.succeeded", map[string]any{
			"id":      "pi_2",
			"amount":  500,
			"charges": map[string]any{"data": []any{map[string]any{"id": "ch_legacy"}}},
		}))
		ev, err := Parse(payload)
		if err != nil {
			t.Fatalf("parse: %v", err)
		}
		if ev.(domain.PaymentSucceeded).ChargeID != "ch_legacy" {
			t.Fatalf("expected charge from charges.data")
		}
	})

	t.Run("payment failed", func(t *testing.T) {
		payload := mustJSON(t, event("evt_3", "payment_intent.payment_failed", map[string]any{
			"id":                 "pi_3",
			"last_payment_error": map[string]any{"message": "Your card was declined."},
		}))
		ev, err := Parse(payload)
		if err != nil {
			t.Fatalf("parse: %v", err)
		}
		got := ev.(domain.PaymentFailed)
		if got.IntentID != "pi_3" || got.Message != "Your card was declined." {
			t.Fatalf("unexpected event %+v", got)
		}
	})

	t.Run("charge refunded with expanded intent", func(t *testing.T) {
		payload := mustJSON(t, event("evt_4", "charge.refunded", map[string]any{
			"id":              "ch_4",
			"payment_intent":  map[string]any{"id": "pi_4"},
			"amount_refunded": 2500,
			"currency":        "USD",
		}))
		ev, err := Parse(payload)
		if err != nil {
			t.Fatalf("parse: %v", err)
		}
		got := ev.(domain.ChargeRefunded)
		if got.ChargeID != "ch_4" || got.IntentID != "pi_4" || got.AmountRefundedMinor != 2500 || got.Currency != "usd" {
			t.Fatalf("unexpected event %+v", got)
		}
	})

	t.Run("dispute", func(t *testing.T) {
		payload := mustJSON(t, event("evt_5", "charge.dispute.created", map[string]any{
			"id": "dp_1", "charge": "ch_5", "reason": "fraudulent", "amount": 1000,
		}))
		ev, err := Parse(payload)
		if err != nil {
			t.Fatalf("parse: %v", err)
		}
		got := ev.(domain.DisputeCreated)
		if got.DisputeID != "dp_1" || got.ChargeID != "ch_5" || got.Reason != "fraudulent" {
			t.Fatalf("unexpected event %+v", got)
		}
	})

	t.Run("method attached and detached", func(t *testing.T) {
		attached, err := Parse(mustJSON(t, event("evt_6", "payment_method.attached", map[string]any{"id": "pm_6", "customer": "cus_1"})))
		if err != nil {
			t.Fatalf("parse attached: %v", err)
		}
		if a := attached.(domain.PaymentMethodAttached); a.MethodID != "pm_6" || a.CustomerID != "cus_1" {
			t.Fatalf("unexpected attached %+v", a)
		}
		detached, err := Parse(mustJSON(t, event("evt_7", "payment_method.detached", map[string]any{"id": "pm_6"})))
		if err != nil {
			t.Fatalf("parse detached: %v", err)
		}
		if detached.(domain.PaymentMethodDetached).MethodID != "pm_6" {
			t.Fatalf("unexpected detached event")
		}
	})
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name    string
		payload []byte
		want    error
	}{
		{name: "not json", payload: []byte(`{`), want: domain.ErrInvalidPayload},
		{name: "no id", payload: []byte(`{"type":"charge.refunded"}`), want: domain.ErrInvalidEvent},
		{name: "no object", payload: []byte(`{"id":"evt","type":"charge.refunded"}`), want: domain.ErrInvalidEvent},
		{name: "object without id", payload: []byte(`{"id":"evt","type":"charge.refunded","data":{"object":{}}}`), want: domain.ErrInvalidEvent},
		{name: "dispute without charge", payload: []byte(`{"id":"evt","type":"charge.dispute.created","data":{"object":{"id":"dp"}}}`), want: domain.ErrInvalidEvent},
		{name: "wrong field type", payload: []byte(`{"id":"evt","type":"payment_intent.succeeded","data":{"object":{"id":"pi","amount":"ten"}}}`), want: domain.ErrInvalidPayload},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Parse(tt.payload); !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestParseIgnoredKeepsEnvelope(t *testing.T) {
	ev, err := Parse([]byte(`{"id":"evt_x","type":"invoice.paid","data":{"object":{"id":"in_1"}}}`))
	if !errors.Is(err, domain.ErrEventIgnored) {
		t.Fatalf("expected ErrEventIgnored, got %v", err)
	}
	if ev == nil || ev.EventID() != "evt_x" || ev.Type() != "invoice.paid" {
		t.Fatalf("expected envelope for ignored event, got %+v", ev)
	}
}
