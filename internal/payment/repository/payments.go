package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	obsmetrics "github.com/smallbiznis/payrecon/internal/observability/metrics"
	"github.com/smallbiznis/payrecon/internal/payment/domain"
	"github.com/smallbiznis/payrecon/pkg/db"
	"github.com/smallbiznis/payrecon/pkg/db/pagination"
	"gorm.io/gorm"
)

var paymentColumns = []string{
	"id", "user_id", "order_ref", "external_ref", "settlement_id", "payment_method_ref",
	"amount", "currency", "status", "description", "error_detail",
	"created_at", "updated_at", "paid_at", "refunded_at",
}

func selectPayments(alias string) string {
	cols := make([]string, len(paymentColumns))
	for i, col := range paymentColumns {
		if alias != "" {
			col = alias + "." + col
		}
		cols[i] = col
	}
	return "SELECT " + strings.Join(cols, ", ")
}

type paymentRepo struct{}

func ProvidePayments() domain.PaymentRepository {
	return &paymentRepo{}
}

func (r *paymentRepo) Insert(ctx context.Context, conn *gorm.DB, p *domain.Payment) error {
	err := conn.WithContext(ctx).Exec(
		`INSERT INTO payments (
			id, user_id, order_ref, external_ref, settlement_id, payment_method_ref,
			amount, currency, status, description, error_detail,
			created_at, updated_at, paid_at, refunded_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID,
		p.UserID,
		p.OrderRef,
		p.ExternalRef,
		p.SettlementID,
		p.PaymentMethodRef,
		p.Amount,
		p.Currency,
		p.Status,
		p.Description,
		p.ErrorDetail,
		p.CreatedAt,
		p.UpdatedAt,
		p.PaidAt,
		p.RefundedAt,
	).Error
	if err != nil && db.IsDuplicateKeyErr(err) {
		return fmt.Errorf("%w: external_ref already recorded", domain.ErrConstraintViolation)
	}
	return err
}

func (r *paymentRepo) LockByExternalRef(ctx context.Context, conn *gorm.DB, externalRef string, owner *int64) (*domain.Payment, error) {
	return r.lockOne(ctx, conn, obsmetrics.LockResourcePaymentByRef, "external_ref = ?", strings.TrimSpace(externalRef), owner)
}

func (r *paymentRepo) LockBySettlementID(ctx context.Context, conn *gorm.DB, settlementID string, owner *int64) (*domain.Payment, error) {
	return r.lockOne(ctx, conn, obsmetrics.LockResourcePaymentByCharge, "settlement_id = ?", strings.TrimSpace(settlementID), owner)
}

func (r *paymentRepo) LockByID(ctx context.Context, conn *gorm.DB, id snowflake.ID, owner *int64) (*domain.Payment, error) {
	return r.lockOne(ctx, conn, obsmetrics.LockResourcePaymentByID, "id = ?", id, owner)
}

func (r *paymentRepo) lockOne(ctx context.Context, conn *gorm.DB, resource string, where string, key any, owner *int64) (*domain.Payment, error) {
	if s, ok := key.(string); ok && s == "" {
		return nil, domain.ErrNotFound
	}

	query := selectPayments("") + ` FROM payments WHERE ` + where
	args := []any{key}
	if owner != nil {
		query += ` AND user_id = ?`
		args = append(args, *owner)
	}
	query += ` LIMIT 1` + db.ForUpdate(conn)

	start := time.Now()
	var item domain.Payment
	err := conn.WithContext(ctx).Raw(query, args...).Scan(&item).Error
	obsmetrics.Scheduler().ObserveDBLockWait(resource, time.Since(start))
	if err != nil {
		if db.IsLockTimeoutErr(err) {
			return nil, fmt.Errorf("%w: %v", domain.ErrLockTimeout, err)
		}
		return nil, err
	}
	if item.ID == 0 {
		return nil, domain.ErrNotFound
	}
	return &item, nil
}

// Save persists every mutable column. Amount is never written, and an
// external_ref that is already set cannot be replaced.
func (r *paymentRepo) Save(ctx context.Context, conn *gorm.DB, p *domain.Payment) error {
	res := conn.WithContext(ctx).Exec(
		`UPDATE payments
		 SET external_ref = ?, settlement_id = ?, payment_method_ref = ?, status = ?,
		     description = ?, error_detail = ?, updated_at = ?, paid_at = ?, refunded_at = ?
		 WHERE id = ? AND (external_ref IS NULL OR external_ref = ?)`,
		p.ExternalRef,
		p.SettlementID,
		p.PaymentMethodRef,
		p.Status,
		p.Description,
		p.ErrorDetail,
		p.UpdatedAt,
		p.PaidAt,
		p.RefundedAt,
		p.ID,
		p.ExternalRef,
	)
	if res.Error != nil {
		if db.IsDuplicateKeyErr(res.Error) {
			return fmt.Errorf("%w: external_ref already recorded", domain.ErrConstraintViolation)
		}
		if db.IsLockTimeoutErr(res.Error) {
			return fmt.Errorf("%w: %v", domain.ErrLockTimeout, res.Error)
		}
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: external_ref is immutable", domain.ErrConstraintViolation)
	}
	return nil
}

func (r *paymentRepo) FindByID(ctx context.Context, conn *gorm.DB, id snowflake.ID, owner *int64) (*domain.Payment, error) {
	query := selectPayments("") + ` FROM payments WHERE id = ?`
	args := []any{id}
	if owner != nil {
		query += ` AND user_id = ?`
		args = append(args, *owner)
	}
	var item domain.Payment
	if err := conn.WithContext(ctx).Raw(query+` LIMIT 1`, args...).Scan(&item).Error; err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, domain.ErrNotFound
	}
	return &item, nil
}

// List returns up to page.PageSize+1 rows, newest first, so the caller can
// tell whether another page exists.
func (r *paymentRepo) List(ctx context.Context, conn *gorm.DB, owner int64, page pagination.Pagination) ([]*domain.Payment, error) {
	query := selectPayments("") + ` FROM payments WHERE user_id = ?`
	args := []any{owner}

	if token := strings.TrimSpace(page.PageToken); token != "" {
		cursor, err := pagination.DecodeCursor(token)
		if err != nil {
			return nil, domain.ErrInvalidRequest
		}
		createdAt, err := time.Parse(time.RFC3339Nano, cursor.CreatedAt)
		if err != nil {
			return nil, domain.ErrInvalidRequest
		}
		id, err := snowflake.ParseString(cursor.ID)
		if err != nil {
			return nil, domain.ErrInvalidRequest
		}
		query += ` AND (created_at < ? OR (created_at = ? AND id < ?))`
		args = append(args, createdAt, createdAt, id)
	}

	size := page.PageSize
	if size <= 0 {
		size = 20
	}
	query += ` ORDER BY created_at DESC, id DESC LIMIT ?`
	args = append(args, size+1)

	var items []*domain.Payment
	if err := conn.WithContext(ctx).Raw(query, args...).Scan(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

// ClaimStale locks payments stuck before a processor outcome, skipping rows
// another instance is already reconciling.
func (r *paymentRepo) ClaimStale(ctx context.Context, conn *gorm.DB, statuses []domain.Status, createdBefore time.Time, limit int) ([]*domain.Payment, error) {
	if len(statuses) == 0 || limit <= 0 {
		return nil, nil
	}
	start := time.Now()
	var items []*domain.Payment
	err := conn.WithContext(ctx).Raw(
		selectPayments("")+` FROM payments
		 WHERE status IN ? AND external_ref IS NOT NULL AND created_at < ?
		 ORDER BY created_at ASC
		 LIMIT ?`+db.ForUpdateSkipLocked(conn),
		statuses,
		createdBefore,
		limit,
	).Scan(&items).Error
	obsmetrics.Scheduler().ObserveDBLockWait(obsmetrics.LockResourceStalePayments, time.Since(start))
	if err != nil {
		return nil, err
	}
	return items, nil
}

// ClaimUnsyncedOrders locks succeeded payments that reference an order but
// have no order row yet.
func (r *paymentRepo) ClaimUnsyncedOrders(ctx context.Context, conn *gorm.DB, limit int) ([]*domain.Payment, error) {
	if limit <= 0 {
		return nil, nil
	}
	start := time.Now()
	var items []*domain.Payment
	err := conn.WithContext(ctx).Raw(
		selectPayments("p")+` FROM payments p
		 WHERE p.status = ? AND p.order_ref IS NOT NULL
		   AND NOT EXISTS (SELECT 1 FROM orders o WHERE o.payment_id = p.id)
		 ORDER BY p.updated_at ASC
		 LIMIT ?`+db.ForUpdateSkipLocked(conn),
		domain.StatusSucceeded,
		limit,
	).Scan(&items).Error
	obsmetrics.Scheduler().ObserveDBLockWait(obsmetrics.LockResourceOrdersForSync, time.Since(start))
	if err != nil {
		return nil, err
	}
	return items, nil
}

// IsNotFound reports whether err is the store's not-found result.
func IsNotFound(err error) bool {
	return errors.Is(err, domain.ErrNotFound) || errors.Is(err, gorm.ErrRecordNotFound)
}
