package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/payrecon/internal/clock"
	"github.com/smallbiznis/payrecon/internal/config"
	"github.com/smallbiznis/payrecon/internal/payment/domain"
	"github.com/smallbiznis/payrecon/internal/payment/paymenttest"
	"github.com/smallbiznis/payrecon/internal/payment/reconcile"
	"github.com/smallbiznis/payrecon/internal/payment/repository"
	"github.com/smallbiznis/payrecon/internal/payment/service"
	"github.com/smallbiznis/payrecon/pkg/db/pagination"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	buyerID  = int64(11)
	sellerID = int64(7)
)

type fixture struct {
	db        *gorm.DB
	svc       *service.Service
	processor *paymenttest.FakeProcessor
	effects   *paymenttest.RecordingEffects
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return newFixtureWithOrders(t, repository.ProvideOrders())
}

// newFixtureWithOrders builds the engine over orders so tests can break
// the order cascade.
func newFixtureWithOrders(t *testing.T, orders domain.OrderRepository) *fixture {
	t.Helper()
	conn := paymenttest.OpenDB(t)
	paymenttest.SeedUser(t, conn, buyerID, "buyer@example.com")
	paymenttest.SeedUser(t, conn, sellerID, "seller@example.com")
	paymenttest.SeedAuction(t, conn, "42", sellerID, buyerID, "49.99")

	clk := clock.NewFakeClock(time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC))
	cfg := config.Config{LockTimeout: 2 * time.Second, Stripe: config.StripeConfig{Currency: "usd"}}
	effects := &paymenttest.RecordingEffects{}
	processor := paymenttest.NewFakeProcessor()
	users := repository.NewUserDirectory(conn)
	pricer := repository.NewItemPricer(conn)

	engine := reconcile.NewEngine(reconcile.Params{
		DB:       conn,
		Log:      zap.NewNop(),
		Cfg:      cfg,
		Clock:    clk,
		GenID:    paymenttest.Node(),
		Ledger:   repository.ProvideLedger(),
		Payments: repository.ProvidePayments(),
		Orders:   orders,
		Methods:  repository.ProvideMethods(),
		Effects:  effects,
		Users:    users,
		Pricer:   pricer,
	})
	svc := service.NewService(service.Params{
		DB:        conn,
		Log:       zap.NewNop(),
		Cfg:       cfg,
		Clock:     clk,
		GenID:     paymenttest.Node(),
		Engine:    engine,
		Processor: processor,
		Payments:  repository.ProvidePayments(),
		Orders:    repository.ProvideOrders(),
		Methods:   repository.ProvideMethods(),
		Pricer:    pricer,
		Users:     users,
	})
	return &fixture{db: conn, svc: svc, processor: processor, effects: effects}
}

// succeed marks the intent as paid at the fake processor.
func (f *fixture) succeed(t *testing.T, intentID string, amountMinor int64, chargeID string) {
	t.Helper()
	intent, err := f.processor.RetrieveIntent(context.Background(), intentID)
	if err != nil {
		t.Fatalf("retrieve: %v", err)
	}
	intent.Status = domain.IntentSucceeded
	intent.AmountMinor = amountMinor
	intent.LatestChargeID = chargeID
	f.processor.PutIntent(*intent)
}

func TestCreateIntentPricesServerSide(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.svc.CreateIntent(ctx, service.CreateIntentRequest{UserID: buyerID, OrderRef: "42"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if res.PaymentIntentID == "" || res.ClientSecret == "" {
		t.Fatalf("expected intent details, got %+v", res)
	}
	if res.Amount.StringFixed(2) != "49.99" || res.Currency != "USD" {
		t.Fatalf("unexpected amount %s %s", res.Amount, res.Currency)
	}

	intent, err := f.processor.RetrieveIntent(ctx, res.PaymentIntentID)
	if err != nil {
		t.Fatalf("retrieve: %v", err)
	}
	if intent.AmountMinor != 4999 {
		t.Fatalf("expected 4999 minor units, got %d", intent.AmountMinor)
	}
	if intent.Metadata["order_ref"] != "42" || intent.Metadata["user_email"] != "buyer@example.com" {
		t.Fatalf("unexpected metadata %v", intent.Metadata)
	}

	stored := paymenttest.LoadPayment(t, f.db, res.PaymentID)
	if stored.Status != domain.StatusPending {
		t.Fatalf("expected pending, got %s", stored.Status)
	}
	if stored.Description != "Order #42 - buyer@example.com" {
		t.Fatalf("unexpected description %q", stored.Description)
	}
	if stored.ExternalRef == nil || *stored.ExternalRef != res.PaymentIntentID {
		t.Fatalf("expected external ref bound to intent, got %v", stored.ExternalRef)
	}
}

func TestCreateIntentRejectsNonWinner(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.CreateIntent(context.Background(), service.CreateIntentRequest{UserID: sellerID, OrderRef: "42"})
	if !errors.Is(err, domain.ErrNotEntitled) {
		t.Fatalf("expected ErrNotEntitled, got %v", err)
	}
	if n := paymenttest.CountRows(t, f.db, "payments", ""); n != 0 {
		t.Fatalf("expected no payment rows, got %d", n)
	}
}

func TestCreateIntentRequiresOrderRef(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.CreateIntent(context.Background(), service.CreateIntentRequest{UserID: buyerID})
	if !errors.Is(err, domain.ErrInvalidRequest) {
		t.Fatalf("expected ErrInvalidRequest, got %v", err)
	}
}

func TestCreateIntentSurfacesProcessorError(t *testing.T) {
	f := newFixture(t)
	f.processor.CreateErr = &domain.ProcessorError{Kind: domain.ProcessorErrorConnection, UserMessage: "Connection error. Try again."}

	_, err := f.svc.CreateIntent(context.Background(), service.CreateIntentRequest{UserID: buyerID, OrderRef: "42"})
	if !domain.IsRetryable(err) {
		t.Fatalf("expected retryable processor error, got %v", err)
	}
	if n := paymenttest.CountRows(t, f.db, "payments", ""); n != 0 {
		t.Fatalf("expected no payment rows, got %d", n)
	}
}

func TestConfirmSucceededCreatesOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	created, err := f.svc.CreateIntent(ctx, service.CreateIntentRequest{UserID: buyerID, OrderRef: "42"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	f.succeed(t, created.PaymentIntentID, 4999, "ch_1")

	res, err := f.svc.Confirm(ctx, service.ConfirmRequest{UserID: buyerID, PaymentIntentID: created.PaymentIntentID})
	if err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if !res.Success || res.PaymentStatus != domain.StatusSucceeded || res.OrderID == nil {
		t.Fatalf("expected success with order, got %+v", res)
	}
	if n := len(f.effects.NotificationsOf(domain.NotifyPaymentSucceeded)); n != 1 {
		t.Fatalf("expected one success notification, got %d", n)
	}

	again, err := f.svc.Confirm(ctx, service.ConfirmRequest{UserID: buyerID, PaymentIntentID: created.PaymentIntentID})
	if err != nil {
		t.Fatalf("confirm again: %v", err)
	}
	if !again.Success || again.OrderID == nil || *again.OrderID != *res.OrderID {
		t.Fatalf("expected same order on repeat confirm, got %+v", again)
	}
	if n := len(f.effects.NotificationsOf(domain.NotifyPaymentSucceeded)); n != 1 {
		t.Fatalf("expected no second notification, got %d", n)
	}
	if n := paymenttest.CountRows(t, f.db, "orders", "payment_id = ?", res.PaymentID); n != 1 {
		t.Fatalf("expected one order, got %d", n)
	}
}

func TestConfirmRequiresPaymentMethod(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	created, err := f.svc.CreateIntent(ctx, service.CreateIntentRequest{UserID: buyerID, OrderRef: "42"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	res, err := f.svc.Confirm(ctx, service.ConfirmRequest{UserID: buyerID, PaymentIntentID: created.PaymentIntentID})
	if err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if res.Success || res.Message != "Payment method required" {
		t.Fatalf("unexpected response %+v", res)
	}
	if res.PaymentStatus != domain.StatusProcessing {
		t.Fatalf("expected processing, got %s", res.PaymentStatus)
	}
}

func TestConfirmCanceledIntentFailsPayment(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	created, err := f.svc.CreateIntent(ctx, service.CreateIntentRequest{UserID: buyerID, OrderRef: "42"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	intent, _ := f.processor.RetrieveIntent(ctx, created.PaymentIntentID)
	intent.Status = domain.IntentCanceled
	f.processor.PutIntent(*intent)

	res, err := f.svc.Confirm(ctx, service.ConfirmRequest{UserID: buyerID, PaymentIntentID: created.PaymentIntentID})
	if err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if res.Success || res.PaymentStatus != domain.StatusFailed {
		t.Fatalf("expected failed, got %+v", res)
	}
	if res.Message != "Payment failed: canceled" {
		t.Fatalf("unexpected message %q", res.Message)
	}
	stored := paymenttest.LoadPayment(t, f.db, created.PaymentID)
	if stored.ErrorDetail == nil || *stored.ErrorDetail != "PaymentIntent status: canceled" {
		t.Fatalf("unexpected error detail %v", stored.ErrorDetail)
	}
}

func TestConfirmAmountMismatchFailsPayment(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	created, err := f.svc.CreateIntent(ctx, service.CreateIntentRequest{UserID: buyerID, OrderRef: "42"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	f.succeed(t, created.PaymentIntentID, 100, "ch_1")

	res, err := f.svc.Confirm(ctx, service.ConfirmRequest{UserID: buyerID, PaymentIntentID: created.PaymentIntentID})
	if err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if res.Success || res.PaymentStatus != domain.StatusFailed {
		t.Fatalf("expected failed on mismatch, got %+v", res)
	}
	if n := paymenttest.CountRows(t, f.db, "orders", ""); n != 0 {
		t.Fatalf("expected no order, got %d", n)
	}
}

func TestConfirmForeignIntentIsNotFound(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	created, err := f.svc.CreateIntent(ctx, service.CreateIntentRequest{UserID: buyerID, OrderRef: "42"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	_, err = f.svc.Confirm(ctx, service.ConfirmRequest{UserID: sellerID, PaymentIntentID: created.PaymentIntentID})
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	stored := paymenttest.LoadPayment(t, f.db, created.PaymentID)
	if stored.Status != domain.StatusPending {
		t.Fatalf("expected untouched payment, got %s", stored.Status)
	}
}

func confirmedPayment(t *testing.T, f *fixture) *service.CreateIntentResponse {
	t.Helper()
	ctx := context.Background()
	created, err := f.svc.CreateIntent(ctx, service.CreateIntentRequest{UserID: buyerID, OrderRef: "42"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	f.succeed(t, created.PaymentIntentID, 4999, "ch_1")
	if _, err := f.svc.Confirm(ctx, service.ConfirmRequest{UserID: buyerID, PaymentIntentID: created.PaymentIntentID}); err != nil {
		t.Fatalf("confirm: %v", err)
	}
	return created
}

func TestRefundFullAmountCascadesToOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	created := confirmedPayment(t, f)

	res, err := f.svc.Refund(ctx, service.RefundRequest{UserID: buyerID, PaymentID: created.PaymentID})
	if err != nil {
		t.Fatalf("refund: %v", err)
	}
	if res.RefundID == "" || res.PaymentID != created.PaymentID {
		t.Fatalf("unexpected response %+v", res)
	}

	calls := f.processor.Refunds()
	if len(calls) != 1 || calls[0].ChargeID != "ch_1" || calls[0].AmountMinor != nil {
		t.Fatalf("expected one full refund of ch_1, got %+v", calls)
	}
	stored := paymenttest.LoadPayment(t, f.db, created.PaymentID)
	if stored.Status != domain.StatusRefunded || stored.RefundedAt == nil {
		t.Fatalf("expected refunded, got %+v", stored)
	}
	if n := paymenttest.CountRows(t, f.db, "orders", "status = ?", domain.OrderStatusRefunded); n != 1 {
		t.Fatalf("expected refunded order, got %d", n)
	}

	if _, err := f.svc.Refund(ctx, service.RefundRequest{UserID: buyerID, PaymentID: created.PaymentID}); !errors.Is(err, domain.ErrNotRefundable) {
		t.Fatalf("expected ErrNotRefundable on second refund, got %v", err)
	}
}

func TestRefundPartialAmount(t *testing.T) {
	f := newFixture(t)
	created := confirmedPayment(t, f)

	if _, err := f.svc.Refund(context.Background(), service.RefundRequest{UserID: buyerID, PaymentID: created.PaymentID, Amount: "10.50"}); err != nil {
		t.Fatalf("refund: %v", err)
	}
	calls := f.processor.Refunds()
	if len(calls) != 1 || calls[0].AmountMinor == nil || *calls[0].AmountMinor != 1050 {
		t.Fatalf("expected partial refund of 1050, got %+v", calls)
	}
	refunds := f.effects.NotificationsOf(domain.NotifyPaymentRefunded)
	if len(refunds) != 1 || refunds[0].Payload["refund_amount"] != "10.50" {
		t.Fatalf("unexpected refund notifications %+v", refunds)
	}
}

type brokenCascade struct {
	domain.OrderRepository
}

func (brokenCascade) MarkRefundedByPayment(context.Context, *gorm.DB, snowflake.ID, time.Time) (int64, error) {
	return 0, errors.New("orders table unavailable")
}

func TestRefundReportsUnrecordedRefund(t *testing.T) {
	f := newFixtureWithOrders(t, brokenCascade{OrderRepository: repository.ProvideOrders()})
	created := confirmedPayment(t, f)

	res, err := f.svc.Refund(context.Background(), service.RefundRequest{UserID: buyerID, PaymentID: created.PaymentID})
	if err == nil {
		t.Fatalf("expected an error when the refund cannot be recorded, got %+v", res)
	}
	if res != nil {
		t.Fatalf("expected no response, got %+v", res)
	}
	if calls := f.processor.Refunds(); len(calls) != 1 {
		t.Fatalf("expected the processor refund to have been issued once, got %d", len(calls))
	}
	stored := paymenttest.LoadPayment(t, f.db, created.PaymentID)
	if stored.Status != domain.StatusSucceeded {
		t.Fatalf("expected the local record to stay succeeded until charge.refunded, got %s", stored.Status)
	}
}

func TestRefundIdempotencyKeyIgnoresAmount(t *testing.T) {
	f := newFixtureWithOrders(t, brokenCascade{OrderRepository: repository.ProvideOrders()})
	ctx := context.Background()
	created := confirmedPayment(t, f)

	// The first attempt reaches the processor but is not recorded, so the
	// payment is still refundable and the caller retries with a new amount.
	if _, err := f.svc.Refund(ctx, service.RefundRequest{UserID: buyerID, PaymentID: created.PaymentID, Amount: "10.50"}); err == nil {
		t.Fatalf("expected first attempt to fail")
	}
	if _, err := f.svc.Refund(ctx, service.RefundRequest{UserID: buyerID, PaymentID: created.PaymentID}); err == nil {
		t.Fatalf("expected second attempt to fail")
	}

	calls := f.processor.Refunds()
	if len(calls) != 2 {
		t.Fatalf("expected two processor calls, got %d", len(calls))
	}
	want := "refund_" + created.PaymentID.String()
	for i, call := range calls {
		if call.IdempotencyKey != want {
			t.Fatalf("call %d: expected key %q, got %q", i, want, call.IdempotencyKey)
		}
	}
}

func TestRefundValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	created := confirmedPayment(t, f)
	pending := paymenttest.SeedPayment(t, f.db, buyerID, "pi_pending", "10.00", "")

	cases := []struct {
		name string
		req  service.RefundRequest
		want error
	}{
		{"zero", service.RefundRequest{UserID: buyerID, PaymentID: created.PaymentID, Amount: "0"}, domain.ErrInvalidRefundAmount},
		{"above original", service.RefundRequest{UserID: buyerID, PaymentID: created.PaymentID, Amount: "50.00"}, domain.ErrInvalidRefundAmount},
		{"not a number", service.RefundRequest{UserID: buyerID, PaymentID: created.PaymentID, Amount: "ten"}, domain.ErrInvalidRefundAmount},
		{"sub cent", service.RefundRequest{UserID: buyerID, PaymentID: created.PaymentID, Amount: "1.005"}, domain.ErrInvalidRefundAmount},
		{"pending", service.RefundRequest{UserID: buyerID, PaymentID: pending.ID}, domain.ErrNotRefundable},
		{"foreign", service.RefundRequest{UserID: sellerID, PaymentID: created.PaymentID}, domain.ErrNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := f.svc.Refund(ctx, tc.req); !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
	if n := len(f.processor.Refunds()); n != 0 {
		t.Fatalf("expected no processor refunds, got %d", n)
	}
}

func TestRefundMissingSettlement(t *testing.T) {
	f := newFixture(t)
	p := paymenttest.SeedPayment(t, f.db, buyerID, "pi_9", "10.00", "")
	if err := f.db.Exec(`UPDATE payments SET status = ? WHERE id = ?`, domain.StatusSucceeded, p.ID).Error; err != nil {
		t.Fatalf("update: %v", err)
	}

	_, err := f.svc.Refund(context.Background(), service.RefundRequest{UserID: buyerID, PaymentID: p.ID})
	if !errors.Is(err, domain.ErrMissingSettlement) {
		t.Fatalf("expected ErrMissingSettlement, got %v", err)
	}
}

func TestListPaginatesOwnPayments(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for _, ref := range []string{"pi_a", "pi_b", "pi_c"} {
		paymenttest.SeedPayment(t, f.db, buyerID, ref, "5.00", "")
	}
	paymenttest.SeedPayment(t, f.db, sellerID, "pi_other", "5.00", "")

	first, err := f.svc.List(ctx, buyerID, pagination.Pagination{PageSize: 2})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(first.Payments) != 2 || !first.PageInfo.HasMore || first.PageInfo.NextPageToken == "" {
		t.Fatalf("unexpected first page %+v", first.PageInfo)
	}

	second, err := f.svc.List(ctx, buyerID, pagination.Pagination{PageSize: 2, PageToken: first.PageInfo.NextPageToken})
	if err != nil {
		t.Fatalf("list second: %v", err)
	}
	if len(second.Payments) != 1 || second.PageInfo.HasMore || second.PageInfo.NextPageToken != "" {
		t.Fatalf("unexpected second page %d %+v", len(second.Payments), second.PageInfo)
	}
	for _, p := range append(first.Payments, second.Payments...) {
		if p.UserID != buyerID {
			t.Fatalf("listed foreign payment %d", p.ID)
		}
	}
}

func TestRegisterMethodStoresMaskedCard(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.processor.PutMethod(domain.MethodDetails{ID: "pm_1", Brand: "Visa", Last4: "4242", ExpMonth: 12, ExpYear: 2030})
	f.processor.PutMethod(domain.MethodDetails{ID: "pm_2", Brand: "american_express", Last4: "0005", ExpMonth: 1, ExpYear: 2031})

	first, err := f.svc.RegisterMethod(ctx, service.RegisterMethodRequest{UserID: buyerID, ExternalID: "pm_1", IsDefault: true})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if first.CardBrand != domain.CardBrandVisa || first.LastFour != "4242" || !first.IsDefault {
		t.Fatalf("unexpected method %+v", first)
	}
	second, err := f.svc.RegisterMethod(ctx, service.RegisterMethodRequest{UserID: buyerID, ExternalID: "pm_2", IsDefault: true})
	if err != nil {
		t.Fatalf("register second: %v", err)
	}
	if second.CardBrand != domain.CardBrandAmex {
		t.Fatalf("expected amex, got %s", second.CardBrand)
	}

	methods, err := f.svc.ListMethods(ctx, buyerID)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	defaults := 0
	for _, m := range methods {
		if m.IsDefault {
			defaults++
			if m.ID != second.ID {
				t.Fatalf("expected newest method as default, got %d", m.ID)
			}
		}
	}
	if defaults != 1 {
		t.Fatalf("expected one default, got %d", defaults)
	}
}

func TestRegisterMethodWithoutCardIsRejected(t *testing.T) {
	f := newFixture(t)
	f.processor.PutMethod(domain.MethodDetails{ID: "pm_bank"})

	_, err := f.svc.RegisterMethod(context.Background(), service.RegisterMethodRequest{UserID: buyerID, ExternalID: "pm_bank"})
	if !errors.Is(err, domain.ErrInvalidRequest) {
		t.Fatalf("expected ErrInvalidRequest, got %v", err)
	}
}

func TestDeleteMethodProceedsWhenDetachFails(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.processor.PutMethod(domain.MethodDetails{ID: "pm_1", Brand: "visa", Last4: "4242"})
	method, err := f.svc.RegisterMethod(ctx, service.RegisterMethodRequest{UserID: buyerID, ExternalID: "pm_1"})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	f.processor.DetachErr = &domain.ProcessorError{Kind: domain.ProcessorErrorConnection}

	if err := f.svc.DeleteMethod(ctx, sellerID, method.ID); !errors.Is(err, domain.ErrMethodNotFound) {
		t.Fatalf("expected ErrMethodNotFound for foreign delete, got %v", err)
	}
	if err := f.svc.DeleteMethod(ctx, buyerID, method.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if detached := f.processor.Detached(); len(detached) != 1 || detached[0] != "pm_1" {
		t.Fatalf("expected detach attempt for pm_1, got %v", detached)
	}
	if n := paymenttest.CountRows(t, f.db, "payment_methods", ""); n != 0 {
		t.Fatalf("expected method removed, got %d", n)
	}
}

func TestSetDefaultMethod(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.processor.PutMethod(domain.MethodDetails{ID: "pm_1", Brand: "visa", Last4: "4242"})
	method, err := f.svc.RegisterMethod(ctx, service.RegisterMethodRequest{UserID: buyerID, ExternalID: "pm_1"})
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	updated, err := f.svc.SetDefaultMethod(ctx, buyerID, method.ID, true)
	if err != nil {
		t.Fatalf("set default: %v", err)
	}
	if !updated.IsDefault {
		t.Fatalf("expected default, got %+v", updated)
	}
	if _, err := f.svc.SetDefaultMethod(ctx, sellerID, method.ID, true); !errors.Is(err, domain.ErrMethodNotFound) {
		t.Fatalf("expected ErrMethodNotFound, got %v", err)
	}
}
