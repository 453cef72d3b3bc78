package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/smallbiznis/payrecon/internal/clock"
	"github.com/smallbiznis/payrecon/internal/config"
	"github.com/smallbiznis/payrecon/internal/payment/domain"
	"github.com/smallbiznis/payrecon/internal/payment/gateway"
	"github.com/smallbiznis/payrecon/internal/payment/paymenttest"
	"github.com/smallbiznis/payrecon/internal/payment/reconcile"
	"github.com/smallbiznis/payrecon/internal/payment/repository"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const secret = "whsec_test"

var now = time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)

func newService(t *testing.T) (*Service, *gorm.DB, *paymenttest.RecordingEffects) {
	t.Helper()
	conn := paymenttest.OpenDB(t)
	clk := clock.NewFakeClock(now)
	cfg := config.Config{
		LockTimeout: 2 * time.Second,
		Stripe:      config.StripeConfig{WebhookSecret: secret, SignatureTolerance: 5 * time.Minute},
	}
	effects := &paymenttest.RecordingEffects{}
	engine := reconcile.NewEngine(reconcile.Params{
		DB:       conn,
		Log:      zap.NewNop(),
		Cfg:      cfg,
		Clock:    clk,
		GenID:    paymenttest.Node(),
		Ledger:   repository.ProvideLedger(),
		Payments: repository.ProvidePayments(),
		Orders:   repository.ProvideOrders(),
		Methods:  repository.ProvideMethods(),
		Effects:  effects,
		Users:    paymenttest.StaticUsers{1: {ID: 1, Email: "buyer@example.com", Name: "Buyer"}},
	})
	svc := NewService(Params{
		Log:     zap.NewNop(),
		Gateway: gateway.New(cfg, clk),
		Engine:  engine,
	})
	return svc, conn, effects
}

func payload(t *testing.T, id, typ string, object map[string]any) []byte {
	t.Helper()
	b, err := json.Marshal(map[string]any{
		"id":      id,
		"type":    typ,
		"created": now.Unix(),
		"data":    map[string]any{"object": object},
	})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return b
}

func succeededPayload(t *testing.T, eventID, intentID string, amount int64) []byte {
	return payload(t, eventID, "payment_intent.succeeded", map[string]any{
		"id":            intentID,
		"amount":        amount,
		"currency":      "usd",
		"latest_charge": "ch_" + intentID,
	})
}

func TestIngestAppliesOnceAndAcknowledgesDuplicates(t *testing.T) {
	svc, conn, effects := newService(t)
	ctx := context.Background()
	p := paymenttest.SeedPayment(t, conn, 1, "pi_1", "100.00", "")
	body := succeededPayload(t, "evt_1", "pi_1", 10000)

	receipt, err := svc.IngestWebhook(ctx, body, gateway.Sign(secret, now, body))
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if receipt.EventID != "evt_1" || receipt.Duplicate || receipt.Outcome != "applied" {
		t.Fatalf("unexpected receipt %+v", receipt)
	}

	again, err := svc.IngestWebhook(ctx, body, gateway.Sign(secret, now, body))
	if err != nil {
		t.Fatalf("redeliver: %v", err)
	}
	if !again.Duplicate {
		t.Fatalf("expected duplicate receipt, got %+v", again)
	}

	stored := paymenttest.LoadPayment(t, conn, p.ID)
	if stored.Status != domain.StatusSucceeded {
		t.Fatalf("expected succeeded, got %s", stored.Status)
	}
	if n := len(effects.NotificationsOf(domain.NotifyPaymentSucceeded)); n != 1 {
		t.Fatalf("expected one notification, got %d", n)
	}
}

func TestIngestRejectsBadSignature(t *testing.T) {
	svc, conn, _ := newService(t)
	paymenttest.SeedPayment(t, conn, 1, "pi_1", "100.00", "")
	body := succeededPayload(t, "evt_1", "pi_1", 10000)

	_, err := svc.IngestWebhook(context.Background(), body, gateway.Sign("whsec_wrong", now, body))
	if !errors.Is(err, domain.ErrInvalidSignature) {
		t.Fatalf("expected ErrInvalidSignature, got %v", err)
	}
	if n := paymenttest.CountRows(t, conn, "payment_event_ledger", ""); n != 0 {
		t.Fatalf("expected empty ledger, got %d", n)
	}
}

func TestIngestUnknownPaymentCanBeRedelivered(t *testing.T) {
	svc, conn, _ := newService(t)
	ctx := context.Background()
	body := succeededPayload(t, "evt_2", "pi_2", 5000)

	if _, err := svc.IngestWebhook(ctx, body, gateway.Sign(secret, now, body)); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if n := paymenttest.CountRows(t, conn, "payment_event_ledger", "event_id = ?", "evt_2"); n != 0 {
		t.Fatalf("expected ledger unmarked, got %d", n)
	}

	p := paymenttest.SeedPayment(t, conn, 1, "pi_2", "50.00", "")
	if _, err := svc.IngestWebhook(ctx, body, gateway.Sign(secret, now, body)); err != nil {
		t.Fatalf("redeliver: %v", err)
	}
	if stored := paymenttest.LoadPayment(t, conn, p.ID); stored.Status != domain.StatusSucceeded {
		t.Fatalf("expected succeeded after redelivery, got %s", stored.Status)
	}
}

func TestIngestIgnoredEventIsAcknowledged(t *testing.T) {
	svc, _, _ := newService(t)
	body := payload(t, "evt_3", "customer.created", map[string]any{"id": "cus_1"})

	receipt, err := svc.IngestWebhook(context.Background(), body, gateway.Sign(secret, now, body))
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if !receipt.Ignored || receipt.EventID != "evt_3" {
		t.Fatalf("expected ignored receipt, got %+v", receipt)
	}
}

func TestIngestEarlyRefundIsRetryable(t *testing.T) {
	svc, conn, _ := newService(t)
	paymenttest.SeedPayment(t, conn, 1, "pi_4", "20.00", "")
	body := payload(t, "evt_4", "charge.refunded", map[string]any{
		"id":              "ch_pi_4",
		"payment_intent":  "pi_4",
		"amount_refunded": 2000,
		"currency":        "usd",
	})

	_, err := svc.IngestWebhook(context.Background(), body, gateway.Sign(secret, now, body))
	if !domain.IsRetryable(err) {
		t.Fatalf("expected retryable error, got %v", err)
	}
	if n := paymenttest.CountRows(t, conn, "payment_event_ledger", "event_id = ?", "evt_4"); n != 0 {
		t.Fatalf("expected ledger unmarked, got %d", n)
	}
}

func TestIngestUnsignedSkipsVerification(t *testing.T) {
	svc, conn, _ := newService(t)
	p := paymenttest.SeedPayment(t, conn, 1, "pi_5", "10.00", "")
	body := payload(t, "evt_5", "payment_intent.payment_failed", map[string]any{
		"id":                 "pi_5",
		"last_payment_error": map[string]any{"message": "Your card was declined."},
	})

	if _, err := svc.IngestUnsigned(context.Background(), body); err != nil {
		t.Fatalf("ingest: %v", err)
	}
	stored := paymenttest.LoadPayment(t, conn, p.ID)
	if stored.Status != domain.StatusFailed || stored.ErrorDetail == nil || *stored.ErrorDetail != "Your card was declined." {
		t.Fatalf("unexpected payment %+v", stored)
	}
}
