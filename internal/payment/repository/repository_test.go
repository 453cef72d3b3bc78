package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/smallbiznis/payrecon/internal/payment/domain"
	"github.com/smallbiznis/payrecon/internal/payment/paymenttest"
	"github.com/smallbiznis/payrecon/pkg/db/pagination"
	"gorm.io/datatypes"
)

func TestLedgerMarkProcessedRejectsDuplicates(t *testing.T) {
	conn := paymenttest.OpenDB(t)
	repo := ProvideLedger()
	ctx := context.Background()

	entry := &domain.LedgerEntry{
		EventID:     "evt_1",
		EventType:   string(domain.EventPaymentSucceeded),
		Outcome:     "applied",
		Payload:     datatypes.JSON(`{"id":"evt_1"}`),
		ProcessedAt: time.Now().UTC(),
	}
	if err := repo.MarkProcessed(ctx, conn, entry); err != nil {
		t.Fatalf("mark: %v", err)
	}
	if err := repo.MarkProcessed(ctx, conn, entry); !errors.Is(err, domain.ErrDuplicateEvent) {
		t.Fatalf("expected ErrDuplicateEvent, got %v", err)
	}

	seen, err := repo.HasProcessed(ctx, conn, "evt_1")
	if err != nil || !seen {
		t.Fatalf("expected evt_1 processed, got %v %v", seen, err)
	}
	seen, err = repo.HasProcessed(ctx, conn, "evt_2")
	if err != nil || seen {
		t.Fatalf("expected evt_2 unprocessed, got %v %v", seen, err)
	}
}

func TestPaymentLockByExternalRefScopesOwner(t *testing.T) {
	conn := paymenttest.OpenDB(t)
	repo := ProvidePayments()
	ctx := context.Background()
	seeded := paymenttest.SeedPayment(t, conn, 10, "pi_lock", "49.99", "A1")

	got, err := repo.LockByExternalRef(ctx, conn, "pi_lock", nil)
	if err != nil {
		t.Fatalf("lock: %v", err)
	}
	if got.ID != seeded.ID || !got.Amount.Equal(decimal.RequireFromString("49.99")) {
		t.Fatalf("unexpected payment %+v", got)
	}

	owner := int64(10)
	if _, err := repo.LockByExternalRef(ctx, conn, "pi_lock", &owner); err != nil {
		t.Fatalf("owner lock: %v", err)
	}
	other := int64(11)
	if _, err := repo.LockByExternalRef(ctx, conn, "pi_lock", &other); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for foreign owner, got %v", err)
	}
	if _, err := repo.LockByExternalRef(ctx, conn, "", nil); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for empty ref, got %v", err)
	}
}

func TestPaymentInsertRejectsDuplicateExternalRef(t *testing.T) {
	conn := paymenttest.OpenDB(t)
	repo := ProvidePayments()
	paymenttest.SeedPayment(t, conn, 10, "pi_dup", "10.00", "")

	ref := "pi_dup"
	now := time.Now().UTC()
	err := repo.Insert(context.Background(), conn, &domain.Payment{
		ID:          paymenttest.Node().Generate(),
		UserID:      11,
		ExternalRef: &ref,
		Amount:      decimal.RequireFromString("10.00"),
		Currency:    domain.DefaultCurrency,
		Status:      domain.StatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	})
	if !errors.Is(err, domain.ErrConstraintViolation) {
		t.Fatalf("expected ErrConstraintViolation, got %v", err)
	}
}

func TestPaymentSaveKeepsExternalRefImmutable(t *testing.T) {
	conn := paymenttest.OpenDB(t)
	repo := ProvidePayments()
	ctx := context.Background()
	p := paymenttest.SeedPayment(t, conn, 10, "pi_keep", "20.00", "")

	now := time.Now().UTC()
	if err := p.Transition(domain.StatusSucceeded, now); err != nil {
		t.Fatalf("transition: %v", err)
	}
	charge := "ch_keep"
	p.SettlementID = &charge
	if err := repo.Save(ctx, conn, p); err != nil {
		t.Fatalf("save: %v", err)
	}

	stored := paymenttest.LoadPayment(t, conn, p.ID)
	if stored.Status != domain.StatusSucceeded || stored.PaidAt == nil {
		t.Fatalf("expected succeeded with paid_at, got %+v", stored)
	}
	if stored.SettlementID == nil || *stored.SettlementID != "ch_keep" {
		t.Fatalf("expected settlement id persisted, got %v", stored.SettlementID)
	}

	replaced := "pi_other"
	p.ExternalRef = &replaced
	if err := repo.Save(ctx, conn, p); !errors.Is(err, domain.ErrConstraintViolation) {
		t.Fatalf("expected ErrConstraintViolation on external_ref change, got %v", err)
	}
}

func TestPaymentListPaginatesNewestFirst(t *testing.T) {
	conn := paymenttest.OpenDB(t)
	repo := ProvidePayments()
	ctx := context.Background()

	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		p := paymenttest.SeedPayment(t, conn, 10, "", "5.00", "")
		if err := conn.Exec(`UPDATE payments SET created_at = ? WHERE id = ?`, base.Add(time.Duration(i)*time.Minute), p.ID).Error; err != nil {
			t.Fatalf("update created_at: %v", err)
		}
	}
	paymenttest.SeedPayment(t, conn, 99, "", "5.00", "")

	first, err := repo.List(ctx, conn, 10, pagination.Pagination{PageSize: 2})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(first) != 3 {
		t.Fatalf("expected size+1 rows, got %d", len(first))
	}
	if !first[0].CreatedAt.After(first[1].CreatedAt) {
		t.Fatalf("expected newest first")
	}

	last := first[1]
	token, err := pagination.EncodeCursor(pagination.Cursor{
		ID:        last.ID.String(),
		CreatedAt: last.CreatedAt.UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		t.Fatalf("encode cursor: %v", err)
	}
	second, err := repo.List(ctx, conn, 10, pagination.Pagination{PageSize: 2, PageToken: token})
	if err != nil {
		t.Fatalf("list page 2: %v", err)
	}
	if len(second) != 1 || second[0].ID != first[2].ID {
		t.Fatalf("unexpected second page %+v", second)
	}

	if _, err := repo.List(ctx, conn, 10, pagination.Pagination{PageToken: "%%%"}); !errors.Is(err, domain.ErrInvalidRequest) {
		t.Fatalf("expected ErrInvalidRequest for bad token, got %v", err)
	}
}

func TestClaimUnsyncedOrdersSkipsSyncedPayments(t *testing.T) {
	conn := paymenttest.OpenDB(t)
	payments := ProvidePayments()
	orders := ProvideOrders()
	ctx := context.Background()
	now := time.Now().UTC()

	synced := paymenttest.SeedPayment(t, conn, 10, "pi_synced", "7.00", "A1")
	unsynced := paymenttest.SeedPayment(t, conn, 10, "pi_unsynced", "8.00", "A2")
	noOrder := paymenttest.SeedPayment(t, conn, 10, "pi_none", "9.00", "")
	for _, p := range []*domain.Payment{synced, unsynced, noOrder} {
		if err := p.Transition(domain.StatusSucceeded, now); err != nil {
			t.Fatalf("transition: %v", err)
		}
		if err := payments.Save(ctx, conn, p); err != nil {
			t.Fatalf("save: %v", err)
		}
	}
	if _, err := orders.UpsertPaid(ctx, conn, &domain.Order{
		ID: paymenttest.Node().Generate(), OrderRef: "A1", BuyerID: 10, PaymentID: synced.ID,
		Amount: synced.Amount, SyncedAt: now, CreatedAt: now, UpdatedAt: now,
	}); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	items, err := payments.ClaimUnsyncedOrders(ctx, conn, 10)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if len(items) != 1 || items[0].ID != unsynced.ID {
		t.Fatalf("expected only the unsynced payment, got %+v", items)
	}
}

func TestOrderUpsertPaidIsIdempotent(t *testing.T) {
	conn := paymenttest.OpenDB(t)
	repo := ProvideOrders()
	ctx := context.Background()
	now := time.Now().UTC()

	order := &domain.Order{
		ID:        paymenttest.Node().Generate(),
		OrderRef:  "A9",
		BuyerID:   10,
		PaymentID: paymenttest.Node().Generate(),
		Amount:    decimal.RequireFromString("12.50"),
		SyncedAt:  now,
		CreatedAt: now,
		UpdatedAt: now,
	}
	created, err := repo.UpsertPaid(ctx, conn, order)
	if err != nil || !created {
		t.Fatalf("expected created, got %v %v", created, err)
	}
	order.ID = paymenttest.Node().Generate()
	created, err = repo.UpsertPaid(ctx, conn, order)
	if err != nil || created {
		t.Fatalf("expected update of existing row, got %v %v", created, err)
	}
	if n := paymenttest.CountRows(t, conn, "orders", "order_ref = ?", "A9"); n != 1 {
		t.Fatalf("expected one order row, got %d", n)
	}

	n, err := repo.MarkRefundedByPayment(ctx, conn, order.PaymentID, now)
	if err != nil || n != 1 {
		t.Fatalf("expected one refunded order, got %d %v", n, err)
	}
	n, err = repo.MarkRefundedByPayment(ctx, conn, order.PaymentID, now)
	if err != nil || n != 0 {
		t.Fatalf("expected refund cascade to be idempotent, got %d %v", n, err)
	}
	found, err := repo.FindByPayment(ctx, conn, order.PaymentID)
	if err != nil || len(found) != 1 || found[0].Status != domain.OrderStatusRefunded {
		t.Fatalf("unexpected orders %+v %v", found, err)
	}
}

func TestMethodSetDefaultKeepsSingleDefault(t *testing.T) {
	conn := paymenttest.OpenDB(t)
	repo := ProvideMethods()
	ctx := context.Background()
	now := time.Now().UTC()

	first := &domain.PaymentMethod{ID: paymenttest.Node().Generate(), UserID: 10, ExternalID: "pm_1", CardBrand: domain.CardBrandVisa, LastFour: "4242", IsDefault: true, CreatedAt: now, UpdatedAt: now}
	second := &domain.PaymentMethod{ID: paymenttest.Node().Generate(), UserID: 10, ExternalID: "pm_2", CardBrand: domain.CardBrandAmex, LastFour: "0005", CreatedAt: now.Add(time.Second), UpdatedAt: now}
	for _, m := range []*domain.PaymentMethod{first, second} {
		if err := repo.Insert(ctx, conn, m); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}
	if err := repo.Insert(ctx, conn, first); !errors.Is(err, domain.ErrConstraintViolation) {
		t.Fatalf("expected ErrConstraintViolation, got %v", err)
	}

	if err := repo.SetDefault(ctx, conn, second.ID, 10, true, now); err != nil {
		t.Fatalf("set default: %v", err)
	}
	items, err := repo.List(ctx, conn, 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(items) != 2 || items[0].ID != second.ID || !items[0].IsDefault || items[1].IsDefault {
		t.Fatalf("expected pm_2 as sole default, got %+v", items)
	}

	if err := repo.SetDefault(ctx, conn, second.ID, 11, true, now); !errors.Is(err, domain.ErrMethodNotFound) {
		t.Fatalf("expected ErrMethodNotFound for foreign owner, got %v", err)
	}
	if err := repo.Delete(ctx, conn, first.ID, 11); !errors.Is(err, domain.ErrMethodNotFound) {
		t.Fatalf("expected ErrMethodNotFound on foreign delete, got %v", err)
	}
	removed, err := repo.DeleteByExternalID(ctx, conn, "pm_1")
	if err != nil || !removed {
		t.Fatalf("expected removal, got %v %v", removed, err)
	}
	removed, err = repo.DeleteByExternalID(ctx, conn, "pm_1")
	if err != nil || removed {
		t.Fatalf("expected no-op second removal, got %v %v", removed, err)
	}
}

func TestClaimStaleSelectsOpenPaymentsWithIntent(t *testing.T) {
	conn := paymenttest.OpenDB(t)
	repo := ProvidePayments()
	ctx := context.Background()
	open := paymenttest.SeedPayment(t, conn, 1, "pi_open", "10.00", "")
	settled := paymenttest.SeedPayment(t, conn, 1, "pi_settled", "10.00", "")
	paymenttest.SeedPayment(t, conn, 1, "", "10.00", "")
	if err := conn.Exec(`UPDATE payments SET status = ? WHERE id = ?`, domain.StatusSucceeded, settled.ID).Error; err != nil {
		t.Fatalf("settle: %v", err)
	}

	statuses := []domain.Status{domain.StatusPending, domain.StatusProcessing}
	claimed, err := repo.ClaimStale(ctx, conn, statuses, time.Now().UTC(), 10)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if len(claimed) != 1 || claimed[0].ID != open.ID {
		t.Fatalf("expected only the open payment, got %+v", claimed)
	}

	claimed, err = repo.ClaimStale(ctx, conn, statuses, time.Now().UTC().Add(-time.Hour), 10)
	if err != nil || len(claimed) != 0 {
		t.Fatalf("expected nothing older than an hour, got %d %v", len(claimed), err)
	}
}
