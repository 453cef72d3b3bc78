package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/payrecon/pkg/db/pagination"
	"gorm.io/gorm"
)

// LedgerRepository is the idempotency gate. MarkProcessed returns
// ErrDuplicateEvent when the unique constraint rejects the insert.
type LedgerRepository interface {
	HasProcessed(ctx context.Context, db *gorm.DB, eventID string) (bool, error)
	MarkProcessed(ctx context.Context, db *gorm.DB, entry *LedgerEntry) error
}

// PaymentRepository locks rows with SELECT ... FOR UPDATE; the lock lives as
// long as the transaction passed in. An owner constraint that does not match
// yields ErrNotFound, never a distinct error.
type PaymentRepository interface {
	Insert(ctx context.Context, db *gorm.DB, payment *Payment) error
	LockByExternalRef(ctx context.Context, db *gorm.DB, externalRef string, owner *int64) (*Payment, error)
	LockBySettlementID(ctx context.Context, db *gorm.DB, settlementID string, owner *int64) (*Payment, error)
	LockByID(ctx context.Context, db *gorm.DB, id snowflake.ID, owner *int64) (*Payment, error)
	Save(ctx context.Context, db *gorm.DB, payment *Payment) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID, owner *int64) (*Payment, error)
	List(ctx context.Context, db *gorm.DB, owner int64, page pagination.Pagination) ([]*Payment, error)
	ClaimStale(ctx context.Context, db *gorm.DB, statuses []Status, createdBefore time.Time, limit int) ([]*Payment, error)
	ClaimUnsyncedOrders(ctx context.Context, db *gorm.DB, limit int) ([]*Payment, error)
}

type MethodRepository interface {
	Insert(ctx context.Context, db *gorm.DB, method *PaymentMethod) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID, owner int64) (*PaymentMethod, error)
	List(ctx context.Context, db *gorm.DB, owner int64) ([]*PaymentMethod, error)
	SetDefault(ctx context.Context, db *gorm.DB, id snowflake.ID, owner int64, isDefault bool, now time.Time) error
	Delete(ctx context.Context, db *gorm.DB, id snowflake.ID, owner int64) error
	DeleteByExternalID(ctx context.Context, db *gorm.DB, externalID string) (bool, error)
}

type OrderRepository interface {
	// UpsertPaid creates the (order_ref, buyer) order as paid or flips an
	// existing one to paid. It reports whether a row was created.
	UpsertPaid(ctx context.Context, db *gorm.DB, order *Order) (bool, error)
	MarkRefundedByPayment(ctx context.Context, db *gorm.DB, paymentID snowflake.ID, now time.Time) (int64, error)
	FindByPayment(ctx context.Context, db *gorm.DB, paymentID snowflake.ID) ([]*Order, error)
}
