package repository

import (
	"context"
	"fmt"

	"github.com/smallbiznis/payrecon/internal/payment/domain"
	"github.com/smallbiznis/payrecon/pkg/db"
	"gorm.io/gorm"
)

type ledgerRepo struct{}

func ProvideLedger() domain.LedgerRepository {
	return &ledgerRepo{}
}

func (r *ledgerRepo) HasProcessed(ctx context.Context, conn *gorm.DB, eventID string) (bool, error) {
	var count int64
	err := conn.WithContext(ctx).Raw(
		`SELECT COUNT(1) FROM payment_event_ledger WHERE event_id = ?`,
		eventID,
	).Scan(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// MarkProcessed is a plain insert: the primary key on event_id is what makes
// concurrent marks of the same event fail.
func (r *ledgerRepo) MarkProcessed(ctx context.Context, conn *gorm.DB, entry *domain.LedgerEntry) error {
	err := conn.WithContext(ctx).Exec(
		`INSERT INTO payment_event_ledger (event_id, event_type, payment_id, outcome, payload, processed_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		entry.EventID,
		entry.EventType,
		entry.PaymentID,
		entry.Outcome,
		entry.Payload,
		entry.ProcessedAt,
	).Error
	if err == nil {
		return nil
	}
	if db.IsDuplicateKeyErr(err) {
		return fmt.Errorf("%w: %s", domain.ErrDuplicateEvent, entry.EventID)
	}
	return err
}
