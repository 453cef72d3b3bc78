package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/payrecon/internal/payment/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type orderRepo struct{}

func ProvideOrders() domain.OrderRepository {
	return &orderRepo{}
}

func (r *orderRepo) UpsertPaid(ctx context.Context, conn *gorm.DB, o *domain.Order) (bool, error) {
	row := *o
	row.Status = domain.OrderStatusPaid
	res := conn.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "order_ref"}, {Name: "buyer_id"}},
			DoNothing: true,
		}).
		Create(&row)
	if res.Error != nil {
		return false, res.Error
	}
	if res.RowsAffected > 0 {
		return true, nil
	}

	err := conn.WithContext(ctx).Exec(
		`UPDATE orders
		 SET payment_id = ?, amount = ?, status = ?, synced_at = ?, updated_at = ?
		 WHERE order_ref = ? AND buyer_id = ?`,
		o.PaymentID,
		o.Amount,
		domain.OrderStatusPaid,
		o.SyncedAt,
		o.UpdatedAt,
		o.OrderRef,
		o.BuyerID,
	).Error
	return false, err
}

func (r *orderRepo) MarkRefundedByPayment(ctx context.Context, conn *gorm.DB, paymentID snowflake.ID, now time.Time) (int64, error) {
	res := conn.WithContext(ctx).Exec(
		`UPDATE orders SET status = ?, updated_at = ? WHERE payment_id = ? AND status <> ?`,
		domain.OrderStatusRefunded,
		now,
		paymentID,
		domain.OrderStatusRefunded,
	)
	return res.RowsAffected, res.Error
}

func (r *orderRepo) FindByPayment(ctx context.Context, conn *gorm.DB, paymentID snowflake.ID) ([]*domain.Order, error) {
	var items []*domain.Order
	err := conn.WithContext(ctx).Raw(
		`SELECT id, order_ref, buyer_id, payment_id, amount, status, synced_at, created_at, updated_at
		 FROM orders WHERE payment_id = ? ORDER BY created_at ASC`,
		paymentID,
	).Scan(&items).Error
	return items, err
}
