package scheduler

import (
	"context"
	"time"

	"github.com/smallbiznis/payrecon/internal/payment/domain"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var staleStatuses = []domain.Status{domain.StatusPending, domain.StatusProcessing}

// FetchStalePaymentsForWork claims a batch of payments that never saw a
// processor outcome. The claim transaction is short; each payment is then
// re-locked by the engine when its polled state is applied.
func (s *Scheduler) FetchStalePaymentsForWork(ctx context.Context, now time.Time, limit int) ([]*domain.Payment, error) {
	if limit <= 0 {
		limit = s.cfg.BatchSize
	}
	claimCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	var payments []*domain.Payment
	err := s.db.WithContext(claimCtx).Transaction(func(tx *gorm.DB) error {
		var err error
		payments, err = s.payments.ClaimStale(claimCtx, tx, staleStatuses, now.Add(-s.cfg.StaleIntentAge), limit)
		return err
	})
	if err != nil {
		return nil, err
	}
	return payments, nil
}

// acquireJobLock keeps a job single-flight across instances. When Redis is
// unreachable the job still runs; SKIP LOCKED claims keep batches disjoint.
func (s *Scheduler) acquireJobLock(ctx context.Context, job string) (func(), bool) {
	if s.jobLock == nil {
		return func() {}, true
	}
	release, ok, err := s.jobLock.Acquire(ctx, job, s.cfg.LockTTL)
	if err != nil {
		s.logger(ctx).Warn("scheduler.lock.unavailable",
			zap.String("job", job),
			zap.Error(err),
		)
		return func() {}, true
	}
	return release, ok
}
