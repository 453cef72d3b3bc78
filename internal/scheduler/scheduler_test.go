package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/smallbiznis/payrecon/internal/clock"
	"github.com/smallbiznis/payrecon/internal/config"
	"github.com/smallbiznis/payrecon/internal/payment/domain"
	"github.com/smallbiznis/payrecon/internal/payment/paymenttest"
	"github.com/smallbiznis/payrecon/internal/payment/reconcile"
	"github.com/smallbiznis/payrecon/internal/payment/repository"
	"github.com/smallbiznis/payrecon/internal/ratelimit"
	redis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type harness struct {
	sched     *Scheduler
	conn      *gorm.DB
	clk       *clock.FakeClock
	processor *paymenttest.FakeProcessor
	effects   *paymenttest.RecordingEffects
}

func newHarness(t *testing.T, cfg Config, lock *ratelimit.JobLock) *harness {
	t.Helper()
	conn := paymenttest.OpenDB(t)
	clk := clock.NewFakeClock(time.Now().UTC().Add(time.Hour))
	effects := &paymenttest.RecordingEffects{}
	payments := repository.ProvidePayments()
	engine := reconcile.NewEngine(reconcile.Params{
		DB:       conn,
		Log:      zap.NewNop(),
		Cfg:      config.Config{LockTimeout: 2 * time.Second},
		Clock:    clk,
		GenID:    paymenttest.Node(),
		Ledger:   repository.ProvideLedger(),
		Payments: payments,
		Orders:   repository.ProvideOrders(),
		Methods:  repository.ProvideMethods(),
		Effects:  effects,
		Users:    paymenttest.StaticUsers{1: {ID: 1, Email: "buyer@example.com", Name: "Buyer"}},
	})
	processor := paymenttest.NewFakeProcessor()
	sched, err := New(Params{
		DB:        conn,
		Log:       zap.NewNop(),
		GenID:     paymenttest.Node(),
		Clock:     clk,
		Engine:    engine,
		Processor: processor,
		Payments:  payments,
		JobLock:   lock,
		Config:    cfg,
	})
	if err != nil {
		t.Fatalf("new scheduler: %v", err)
	}
	return &harness{sched: sched, conn: conn, clk: clk, processor: processor, effects: effects}
}

func markSucceeded(t *testing.T, conn *gorm.DB, p *domain.Payment) {
	t.Helper()
	if err := conn.Exec(
		`UPDATE payments SET status = ?, settlement_id = ?, paid_at = ? WHERE id = ?`,
		domain.StatusSucceeded, "ch_"+p.ID.String(), time.Now().UTC(), p.ID,
	).Error; err != nil {
		t.Fatalf("mark succeeded: %v", err)
	}
}

func TestNewRequiresCollaborators(t *testing.T) {
	if _, err := New(Params{Log: zap.NewNop()}); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig, got %v", err)
	}
}

func TestStaleIntentsJobAppliesProcessorOutcome(t *testing.T) {
	h := newHarness(t, Config{}, nil)
	ctx := context.Background()
	p := paymenttest.SeedPayment(t, h.conn, 1, "pi_stale", "100.00", "42")
	h.processor.PutIntent(domain.Intent{
		ID:             "pi_stale",
		Status:         domain.IntentSucceeded,
		AmountMinor:    10000,
		Currency:       "usd",
		LatestChargeID: "ch_stale",
		Metadata:       map[string]string{"order_ref": "42"},
	})

	if err := h.sched.StaleIntentsJob(ctx); err != nil {
		t.Fatalf("stale intents: %v", err)
	}

	stored := paymenttest.LoadPayment(t, h.conn, p.ID)
	if stored.Status != domain.StatusSucceeded {
		t.Fatalf("expected succeeded, got %s", stored.Status)
	}
	if stored.SettlementID == nil || *stored.SettlementID != "ch_stale" {
		t.Fatalf("expected settlement id recorded, got %v", stored.SettlementID)
	}
	if n := paymenttest.CountRows(t, h.conn, "orders", "payment_id = ?", p.ID); n != 1 {
		t.Fatalf("expected one order, got %d", n)
	}
	if n := len(h.effects.NotificationsOf(domain.NotifyPaymentSucceeded)); n != 1 {
		t.Fatalf("expected one success notification, got %d", n)
	}
}

func TestStaleIntentsJobMovesOpenIntentToProcessing(t *testing.T) {
	h := newHarness(t, Config{}, nil)
	p := paymenttest.SeedPayment(t, h.conn, 1, "pi_open", "10.00", "")
	h.processor.PutIntent(domain.Intent{ID: "pi_open", Status: domain.IntentRequiresAction, AmountMinor: 1000})

	if err := h.sched.StaleIntentsJob(context.Background()); err != nil {
		t.Fatalf("stale intents: %v", err)
	}
	if stored := paymenttest.LoadPayment(t, h.conn, p.ID); stored.Status != domain.StatusProcessing {
		t.Fatalf("expected processing, got %s", stored.Status)
	}
}

func TestStaleIntentsJobSkipsFreshPayments(t *testing.T) {
	h := newHarness(t, Config{StaleIntentAge: 2 * time.Hour}, nil)
	p := paymenttest.SeedPayment(t, h.conn, 1, "pi_fresh", "10.00", "")
	h.processor.PutIntent(domain.Intent{ID: "pi_fresh", Status: domain.IntentCanceled})

	if err := h.sched.StaleIntentsJob(context.Background()); err != nil {
		t.Fatalf("stale intents: %v", err)
	}
	if stored := paymenttest.LoadPayment(t, h.conn, p.ID); stored.Status != domain.StatusPending {
		t.Fatalf("fresh payment must be left alone, got %s", stored.Status)
	}
}

func TestStaleIntentsJobKeepsGoingPastProcessorErrors(t *testing.T) {
	h := newHarness(t, Config{}, nil)
	missing := paymenttest.SeedPayment(t, h.conn, 1, "pi_missing", "10.00", "")
	canceled := paymenttest.SeedPayment(t, h.conn, 1, "pi_canceled", "10.00", "")
	h.processor.PutIntent(domain.Intent{ID: "pi_canceled", Status: domain.IntentCanceled})

	if err := h.sched.StaleIntentsJob(context.Background()); err == nil {
		t.Fatalf("expected the unknown intent to surface an error")
	}
	if stored := paymenttest.LoadPayment(t, h.conn, missing.ID); stored.Status != domain.StatusPending {
		t.Fatalf("expected untouched payment, got %s", stored.Status)
	}
	if stored := paymenttest.LoadPayment(t, h.conn, canceled.ID); stored.Status != domain.StatusFailed {
		t.Fatalf("expected failed after cancel, got %s", stored.Status)
	}
}

func TestOrderSyncJobCreatesMissingOrders(t *testing.T) {
	h := newHarness(t, Config{BatchSize: 1}, nil)
	first := paymenttest.SeedPayment(t, h.conn, 1, "pi_a", "5.00", "100")
	second := paymenttest.SeedPayment(t, h.conn, 1, "pi_b", "6.00", "101")
	markSucceeded(t, h.conn, first)
	markSucceeded(t, h.conn, second)

	if err := h.sched.OrderSyncJob(context.Background()); err != nil {
		t.Fatalf("order sync: %v", err)
	}
	if n := paymenttest.CountRows(t, h.conn, "orders", ""); n != 2 {
		t.Fatalf("expected two orders, got %d", n)
	}
	if n := len(h.effects.NotificationsOf(domain.NotifyOrderCreated)); n != 2 {
		t.Fatalf("expected two order notifications, got %d", n)
	}

	if err := h.sched.OrderSyncJob(context.Background()); err != nil {
		t.Fatalf("second order sync: %v", err)
	}
	if n := paymenttest.CountRows(t, h.conn, "orders", ""); n != 2 {
		t.Fatalf("expected sync to be idempotent, got %d orders", n)
	}
}

func TestRunOnceHonorsEnabledJobs(t *testing.T) {
	h := newHarness(t, Config{EnabledJobs: []string{JobOrderSync}}, nil)
	stale := paymenttest.SeedPayment(t, h.conn, 1, "pi_c", "10.00", "")
	h.processor.PutIntent(domain.Intent{ID: "pi_c", Status: domain.IntentCanceled})
	paid := paymenttest.SeedPayment(t, h.conn, 1, "pi_d", "10.00", "200")
	markSucceeded(t, h.conn, paid)

	if err := h.sched.RunOnce(context.Background()); err != nil {
		t.Fatalf("run once: %v", err)
	}
	if stored := paymenttest.LoadPayment(t, h.conn, stale.ID); stored.Status != domain.StatusPending {
		t.Fatalf("disabled job must not run, got %s", stored.Status)
	}
	if n := paymenttest.CountRows(t, h.conn, "orders", "payment_id = ?", paid.ID); n != 1 {
		t.Fatalf("expected order synced, got %d", n)
	}
}

func TestRunOnceProceedsWhenLockBackendIsDown(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", MaxRetries: -1, DialTimeout: 100 * time.Millisecond})
	t.Cleanup(func() { _ = client.Close() })
	h := newHarness(t, Config{EnabledJobs: []string{JobOrderSync}}, ratelimit.NewJobLock(client))
	paid := paymenttest.SeedPayment(t, h.conn, 1, "pi_e", "10.00", "300")
	markSucceeded(t, h.conn, paid)

	if err := h.sched.RunOnce(context.Background()); err != nil {
		t.Fatalf("run once: %v", err)
	}
	if n := paymenttest.CountRows(t, h.conn, "orders", "payment_id = ?", paid.ID); n != 1 {
		t.Fatalf("expected order synced without the lock backend, got %d", n)
	}
}

func TestIsJobEnabled(t *testing.T) {
	s := &Scheduler{cfg: Config{EnabledJobs: []string{" ORDER_SYNC "}}}
	if !s.isJobEnabled(JobOrderSync) {
		t.Fatalf("expected case-insensitive match")
	}
	if s.isJobEnabled(JobStaleIntents) {
		t.Fatalf("expected stale_intents disabled")
	}
	if !(&Scheduler{}).isJobEnabled(JobStaleIntents) {
		t.Fatalf("empty list enables every job")
	}
}

func TestConfigDefaults(t *testing.T) {
	cfg := Config{JobTimeout: 5 * time.Minute}.withDefaults()
	if cfg.BatchSize != 50 || cfg.StaleIntentAge != 15*time.Minute || cfg.RunInterval != time.Minute {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
	if cfg.LockTTL < cfg.JobTimeout {
		t.Fatalf("lock ttl %s must outlive the job timeout %s", cfg.LockTTL, cfg.JobTimeout)
	}
}

func TestReconcileIntentAppliesSingleIntent(t *testing.T) {
	h := newHarness(t, Config{StaleIntentAge: 24 * time.Hour}, nil)
	p := paymenttest.SeedPayment(t, h.conn, 1, "pi_manual", "10.00", "")
	h.processor.PutIntent(domain.Intent{ID: "pi_manual", Status: domain.IntentCanceled})

	res, err := h.sched.ReconcileIntent(context.Background(), " pi_manual ")
	if err != nil {
		t.Fatalf("reconcile intent: %v", err)
	}
	if res.PaymentID != p.ID || res.To != domain.StatusFailed {
		t.Fatalf("unexpected result %+v", res)
	}
	if _, err := h.sched.ReconcileIntent(context.Background(), ""); !errors.Is(err, domain.ErrInvalidRequest) {
		t.Fatalf("expected ErrInvalidRequest, got %v", err)
	}
}
