// Package paymenttest holds fixtures shared by the payment package tests.
package paymenttest

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/payrecon/internal/payment/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var schema = []string{
	`CREATE TABLE payments (
		id BIGINT PRIMARY KEY,
		user_id BIGINT NOT NULL,
		order_ref TEXT,
		external_ref TEXT UNIQUE,
		settlement_id TEXT,
		payment_method_ref TEXT,
		amount TEXT NOT NULL,
		currency TEXT NOT NULL DEFAULT 'USD',
		status TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		error_detail TEXT,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL,
		paid_at TIMESTAMP,
		refunded_at TIMESTAMP
	)`,
	`CREATE TABLE payment_event_ledger (
		event_id TEXT PRIMARY KEY,
		event_type TEXT NOT NULL,
		payment_id BIGINT,
		outcome TEXT NOT NULL,
		payload TEXT,
		processed_at TIMESTAMP NOT NULL
	)`,
	`CREATE TABLE payment_methods (
		id BIGINT PRIMARY KEY,
		user_id BIGINT NOT NULL,
		external_id TEXT NOT NULL UNIQUE,
		card_brand TEXT NOT NULL,
		last_four TEXT NOT NULL DEFAULT '0000',
		exp_month INTEGER,
		exp_year INTEGER,
		is_default BOOLEAN NOT NULL DEFAULT 0,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	)`,
	`CREATE TABLE orders (
		id BIGINT PRIMARY KEY,
		order_ref TEXT NOT NULL,
		buyer_id BIGINT NOT NULL,
		payment_id BIGINT NOT NULL,
		amount TEXT NOT NULL,
		status TEXT NOT NULL,
		synced_at TIMESTAMP NOT NULL,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL,
		UNIQUE (order_ref, buyer_id)
	)`,
	`CREATE TABLE users (
		id BIGINT PRIMARY KEY,
		email TEXT NOT NULL,
		name TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE TABLE auctions (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		seller_id BIGINT NOT NULL,
		winner_id BIGINT,
		starting_price TEXT NOT NULL,
		current_price TEXT,
		status TEXT NOT NULL DEFAULT 'ended'
	)`,
	`CREATE TABLE api_keys (
		id BIGINT PRIMARY KEY,
		user_id BIGINT NOT NULL,
		role TEXT NOT NULL DEFAULT 'user',
		name TEXT NOT NULL DEFAULT '',
		key_hash TEXT NOT NULL UNIQUE,
		is_active BOOLEAN NOT NULL DEFAULT 1,
		last_used_at TIMESTAMP,
		created_at TIMESTAMP NOT NULL
	)`,
	`CREATE TABLE audit_logs (
		id BIGINT PRIMARY KEY,
		actor_type TEXT NOT NULL,
		actor_id TEXT,
		action TEXT NOT NULL,
		target_type TEXT NOT NULL,
		target_id TEXT,
		metadata TEXT,
		request_id TEXT,
		ip_address TEXT,
		user_agent TEXT,
		created_at TIMESTAMP NOT NULL
	)`,
}

var dbSeq atomic.Int64

// OpenDB returns a private in-memory database with the payment schema. The
// pool is pinned to one connection so concurrent transactions serialize the
// way row locks would make them.
func OpenDB(t testing.TB) *gorm.DB {
	t.Helper()
	// Each call gets its own database, even when one test opens several.
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s_%d?mode=memory&cache=shared", name, dbSeq.Add(1))
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:  logger.Default.LogMode(logger.Silent),
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := conn.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)
	sqlDB.SetConnMaxLifetime(0)
	t.Cleanup(func() { _ = sqlDB.Close() })

	for _, stmt := range schema {
		if err := conn.Exec(stmt).Error; err != nil {
			t.Fatalf("create schema: %v", err)
		}
	}
	return conn
}

var (
	nodeOnce sync.Once
	node     *snowflake.Node
)

// Node returns a shared id generator for fixtures.
func Node() *snowflake.Node {
	nodeOnce.Do(func() {
		n, err := snowflake.NewNode(7)
		if err != nil {
			panic(err)
		}
		node = n
	})
	return node
}

// SeedPayment inserts a pending payment for userID bound to intentID.
func SeedPayment(t testing.TB, conn *gorm.DB, userID int64, intentID string, amount string, orderRef string) *domain.Payment {
	t.Helper()
	now := time.Now().UTC().Add(-time.Minute)
	p := &domain.Payment{
		ID:          Node().Generate(),
		UserID:      userID,
		Amount:      decimal.RequireFromString(amount),
		Currency:    domain.DefaultCurrency,
		Status:      domain.StatusPending,
		Description: "fixture",
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if intentID != "" {
		p.ExternalRef = &intentID
	}
	if orderRef != "" {
		p.OrderRef = &orderRef
	}
	err := conn.Exec(
		`INSERT INTO payments (id, user_id, order_ref, external_ref, amount, currency, status, description, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.UserID, p.OrderRef, p.ExternalRef, p.Amount, p.Currency, p.Status, p.Description, p.CreatedAt, p.UpdatedAt,
	).Error
	if err != nil {
		t.Fatalf("seed payment: %v", err)
	}
	return p
}

// SeedUser inserts a row into the users table.
func SeedUser(t testing.TB, conn *gorm.DB, id int64, email string) {
	t.Helper()
	if err := conn.Exec(`INSERT INTO users (id, email, name) VALUES (?, ?, ?)`, id, email, "user").Error; err != nil {
		t.Fatalf("seed user: %v", err)
	}
}

// SeedAuction inserts an ended auction won by winnerID.
func SeedAuction(t testing.TB, conn *gorm.DB, ref string, sellerID, winnerID int64, currentPrice string) {
	t.Helper()
	err := conn.Exec(
		`INSERT INTO auctions (id, title, seller_id, winner_id, starting_price, current_price) VALUES (?, ?, ?, ?, ?, ?)`,
		ref, "Lot "+ref, sellerID, winnerID, "1.00", currentPrice,
	).Error
	if err != nil {
		t.Fatalf("seed auction: %v", err)
	}
}

// LoadPayment reads a payment back without locking.
func LoadPayment(t testing.TB, conn *gorm.DB, id snowflake.ID) domain.Payment {
	t.Helper()
	var p domain.Payment
	if err := conn.Raw(`SELECT * FROM payments WHERE id = ?`, id).Scan(&p).Error; err != nil {
		t.Fatalf("load payment: %v", err)
	}
	if p.ID == 0 {
		t.Fatalf("payment %d not found", id)
	}
	return p
}

// CountRows counts rows in table matching where.
func CountRows(t testing.TB, conn *gorm.DB, table string, where string, args ...any) int64 {
	t.Helper()
	var n int64
	query := "SELECT COUNT(1) FROM " + table
	if where != "" {
		query += " WHERE " + where
	}
	if err := conn.Raw(query, args...).Scan(&n).Error; err != nil {
		t.Fatalf("count %s: %v", table, err)
	}
	return n
}

type Notification struct {
	UserID  int64
	Channel string
	Payload map[string]any
}

type Email struct {
	Recipient string
	Template  string
	Data      map[string]any
}

type Alert struct {
	Subject string
	Data    map[string]any
}

// RecordingEffects captures side effects in memory. Err, when set, is
// returned from every call after recording.
type RecordingEffects struct {
	mu            sync.Mutex
	notifications []Notification
	emails        []Email
	alerts        []Alert
	Err           error
}

func (r *RecordingEffects) Notify(_ context.Context, userID int64, channel string, payload map[string]any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notifications = append(r.notifications, Notification{UserID: userID, Channel: channel, Payload: payload})
	return r.Err
}

func (r *RecordingEffects) EnqueueEmail(_ context.Context, recipient string, template string, data map[string]any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.emails = append(r.emails, Email{Recipient: recipient, Template: template, Data: data})
	return r.Err
}

func (r *RecordingEffects) AlertOperators(_ context.Context, subject string, data map[string]any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.alerts = append(r.alerts, Alert{Subject: subject, Data: data})
	return r.Err
}

func (r *RecordingEffects) Notifications() []Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Notification(nil), r.notifications...)
}

func (r *RecordingEffects) Emails() []Email {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Email(nil), r.emails...)
}

func (r *RecordingEffects) Alerts() []Alert {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Alert(nil), r.alerts...)
}

// NotificationsOf filters captured notifications by channel.
func (r *RecordingEffects) NotificationsOf(channel string) []Notification {
	var out []Notification
	for _, n := range r.Notifications() {
		if n.Channel == channel {
			out = append(out, n)
		}
	}
	return out
}

// StaticUsers is a UserDirectory over a fixed map.
type StaticUsers map[int64]domain.User

func (s StaticUsers) Lookup(_ context.Context, userID int64) (domain.User, error) {
	u, ok := s[userID]
	if !ok {
		return domain.User{}, domain.ErrNotFound
	}
	return u, nil
}

// FakeProcessor is an in-memory Processor. Intents are keyed by id; every
// call is counted.
type FakeProcessor struct {
	mu       sync.Mutex
	intents  map[string]*domain.Intent
	methods  map[string]*domain.MethodDetails
	refunds  []RefundCall
	detached []string
	seq      int

	CreateErr   error
	RetrieveErr error
	RefundErr   error
	DetachErr   error
}

type RefundCall struct {
	ChargeID       string
	AmountMinor    *int64
	IdempotencyKey string
}

func NewFakeProcessor() *FakeProcessor {
	return &FakeProcessor{
		intents: make(map[string]*domain.Intent),
		methods: make(map[string]*domain.MethodDetails),
	}
}

// PutIntent stores or replaces an intent.
func (f *FakeProcessor) PutIntent(intent domain.Intent) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := intent
	f.intents[intent.ID] = &cp
}

func (f *FakeProcessor) PutMethod(method domain.MethodDetails) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := method
	f.methods[method.ID] = &cp
}

func (f *FakeProcessor) CreateIntent(_ context.Context, input domain.CreateIntentInput) (*domain.Intent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.CreateErr != nil {
		return nil, f.CreateErr
	}
	f.seq++
	id := fmt.Sprintf("pi_fake_%d", f.seq)
	intent := &domain.Intent{
		ID:           id,
		ClientSecret: id + "_secret",
		Status:       domain.IntentRequiresPaymentMethod,
		AmountMinor:  input.AmountMinor,
		Currency:     input.Currency,
		Metadata:     input.Metadata,
	}
	f.intents[id] = intent
	cp := *intent
	return &cp, nil
}

func (f *FakeProcessor) RetrieveIntent(_ context.Context, intentID string) (*domain.Intent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.RetrieveErr != nil {
		return nil, f.RetrieveErr
	}
	intent, ok := f.intents[intentID]
	if !ok {
		return nil, &domain.ProcessorError{Kind: domain.ProcessorErrorInvalid, UserMessage: "No such payment_intent"}
	}
	cp := *intent
	return &cp, nil
}

func (f *FakeProcessor) RefundCharge(_ context.Context, chargeID string, amountMinor *int64, idempotencyKey string) (*domain.Refund, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refunds = append(f.refunds, RefundCall{ChargeID: chargeID, AmountMinor: amountMinor, IdempotencyKey: idempotencyKey})
	if f.RefundErr != nil {
		return nil, f.RefundErr
	}
	var amount int64
	if amountMinor != nil {
		amount = *amountMinor
	}
	return &domain.Refund{ID: fmt.Sprintf("re_fake_%d", len(f.refunds)), Status: "succeeded", AmountMinor: amount}, nil
}

func (f *FakeProcessor) RetrievePaymentMethod(_ context.Context, methodID string) (*domain.MethodDetails, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.methods[methodID]
	if !ok {
		return nil, &domain.ProcessorError{Kind: domain.ProcessorErrorInvalid, UserMessage: "No such payment_method"}
	}
	cp := *m
	return &cp, nil
}

func (f *FakeProcessor) DetachPaymentMethod(_ context.Context, methodID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.detached = append(f.detached, methodID)
	return f.DetachErr
}

func (f *FakeProcessor) Refunds() []RefundCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]RefundCall(nil), f.refunds...)
}

func (f *FakeProcessor) Detached() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.detached...)
}
