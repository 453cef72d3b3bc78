package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/payrecon/internal/payment/domain"
	"github.com/smallbiznis/payrecon/pkg/db"
	"gorm.io/gorm"
)

const methodColumns = `id, user_id, external_id, card_brand, last_four, exp_month, exp_year, is_default, created_at, updated_at`

type methodRepo struct{}

func ProvideMethods() domain.MethodRepository {
	return &methodRepo{}
}

func (r *methodRepo) Insert(ctx context.Context, conn *gorm.DB, m *domain.PaymentMethod) error {
	err := conn.WithContext(ctx).Exec(
		`INSERT INTO payment_methods (`+methodColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ID,
		m.UserID,
		m.ExternalID,
		m.CardBrand,
		m.LastFour,
		m.ExpMonth,
		m.ExpYear,
		m.IsDefault,
		m.CreatedAt,
		m.UpdatedAt,
	).Error
	if err != nil && db.IsDuplicateKeyErr(err) {
		return fmt.Errorf("%w: payment method already registered", domain.ErrConstraintViolation)
	}
	return err
}

func (r *methodRepo) FindByID(ctx context.Context, conn *gorm.DB, id snowflake.ID, owner int64) (*domain.PaymentMethod, error) {
	var item domain.PaymentMethod
	err := conn.WithContext(ctx).Raw(
		`SELECT `+methodColumns+` FROM payment_methods WHERE id = ? AND user_id = ? LIMIT 1`,
		id,
		owner,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, domain.ErrMethodNotFound
	}
	return &item, nil
}

func (r *methodRepo) List(ctx context.Context, conn *gorm.DB, owner int64) ([]*domain.PaymentMethod, error) {
	var items []*domain.PaymentMethod
	err := conn.WithContext(ctx).Raw(
		`SELECT `+methodColumns+` FROM payment_methods
		 WHERE user_id = ?
		 ORDER BY is_default DESC, created_at DESC, id DESC`,
		owner,
	).Scan(&items).Error
	return items, err
}

// SetDefault keeps at most one default method per user. Call it inside a
// transaction.
func (r *methodRepo) SetDefault(ctx context.Context, conn *gorm.DB, id snowflake.ID, owner int64, isDefault bool, now time.Time) error {
	if isDefault {
		if err := conn.WithContext(ctx).Exec(
			`UPDATE payment_methods SET is_default = ?, updated_at = ? WHERE user_id = ? AND id <> ? AND is_default = ?`,
			false,
			now,
			owner,
			id,
			true,
		).Error; err != nil {
			return err
		}
	}
	res := conn.WithContext(ctx).Exec(
		`UPDATE payment_methods SET is_default = ?, updated_at = ? WHERE id = ? AND user_id = ?`,
		isDefault,
		now,
		id,
		owner,
	)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrMethodNotFound
	}
	return nil
}

func (r *methodRepo) Delete(ctx context.Context, conn *gorm.DB, id snowflake.ID, owner int64) error {
	res := conn.WithContext(ctx).Exec(
		`DELETE FROM payment_methods WHERE id = ? AND user_id = ?`,
		id,
		owner,
	)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrMethodNotFound
	}
	return nil
}

func (r *methodRepo) DeleteByExternalID(ctx context.Context, conn *gorm.DB, externalID string) (bool, error) {
	res := conn.WithContext(ctx).Exec(
		`DELETE FROM payment_methods WHERE external_id = ?`,
		externalID,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}
