package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/payrecon/internal/clock"
	obsmetrics "github.com/smallbiznis/payrecon/internal/observability/metrics"
	"github.com/smallbiznis/payrecon/internal/payment/domain"
	"github.com/smallbiznis/payrecon/internal/payment/reconcile"
	"github.com/smallbiznis/payrecon/internal/ratelimit"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var ErrInvalidConfig = errors.New("scheduler: invalid config")

type Params struct {
	fx.In

	DB        *gorm.DB
	Log       *zap.Logger
	GenID     *snowflake.Node
	Clock     clock.Clock
	Engine    *reconcile.Engine
	Processor domain.Processor
	Payments  domain.PaymentRepository
	JobLock   *ratelimit.JobLock `optional:"true"`
	Config    Config             `optional:"true"`
}

type Scheduler struct {
	db        *gorm.DB
	log       *zap.Logger
	cfg       Config
	genID     *snowflake.Node
	clock     clock.Clock
	engine    *reconcile.Engine
	processor domain.Processor
	payments  domain.PaymentRepository
	jobLock   *ratelimit.JobLock
}

func New(p Params) (*Scheduler, error) {
	if p.DB == nil || p.Log == nil || p.GenID == nil || p.Clock == nil || p.Engine == nil || p.Processor == nil || p.Payments == nil {
		return nil, ErrInvalidConfig
	}
	return &Scheduler{
		db:        p.DB,
		log:       p.Log.Named("scheduler").With(zap.String("component", "scheduler")),
		cfg:       p.Config.withDefaults(),
		genID:     p.GenID,
		clock:     p.Clock,
		engine:    p.Engine,
		processor: p.Processor,
		payments:  p.Payments,
		jobLock:   p.JobLock,
	}, nil
}

func (s *Scheduler) runJob(
	parent context.Context,
	name string,
	batchSize int,
	timeout time.Duration,
	fn func(ctx context.Context) error,
) error {
	schedMetrics := obsmetrics.Scheduler()
	release, ok := s.acquireJobLock(parent, name)
	if !ok {
		schedMetrics.IncBatchDeferred(name, obsmetrics.SchedulerJobReasonLockHeld)
		s.log.Debug("job lock held elsewhere", zap.String("job", name))
		return nil
	}
	defer release()

	start := s.clock.Now()
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	ctx, run, owner := s.ensureJobRun(ctx, name, batchSize)
	if owner {
		s.logJobStart(ctx, run)
	}
	log := s.logger(ctx).With(
		zap.String("job", name),
		zap.String("run_id", run.runID),
	)
	schedMetrics.IncJobRun(name)

	err := fn(ctx)
	schedMetrics.ObserveJobDuration(name, s.clock.Now().Sub(start))
	if owner {
		if err != nil && run.errorCount == 0 {
			run.IncError()
		}
		s.logJobFinish(ctx, run)
	}
	if err == nil {
		return nil
	}

	// A deadline is a soft timeout; the next tick picks up the rest.
	isTimeout := errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)
	if isTimeout {
		schedMetrics.IncJobTimeout(name)
	}
	schedMetrics.IncJobError(name, err)
	if isTimeout {
		log.Warn("job timed out",
			zap.Duration("timeout", timeout),
			zap.Error(err),
		)
		return nil
	}

	return fmt.Errorf("%s: %w", name, err)
}

func (s *Scheduler) RunOnce(parent context.Context) error {
	var err error

	jobs := []struct {
		Name string
		Run  func(context.Context) error
	}{
		{JobOrderSync, s.OrderSyncJob},
		{JobStaleIntents, s.StaleIntentsJob},
	}

	for _, job := range jobs {
		if !s.isJobEnabled(job.Name) {
			continue
		}
		err = errors.Join(err, s.runJob(parent, job.Name, s.cfg.BatchSize, s.cfg.JobTimeout, job.Run))
	}
	return err
}

func (s *Scheduler) RunForever(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.RunInterval)
	defer ticker.Stop()
	nextRun := time.Now().Add(s.cfg.RunInterval)
	schedMetrics := obsmetrics.Scheduler()

	for {
		if err := s.RunOnce(ctx); err != nil {
			s.log.Warn("scheduler run failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		if runLag := time.Since(nextRun); runLag > 0 {
			schedMetrics.ObserveRunLoopLag(runLag)
		}
		nextRun = nextRun.Add(s.cfg.RunInterval)
	}
}

func (s *Scheduler) isJobEnabled(jobName string) bool {
	// Empty means every job runs in this process.
	if len(s.cfg.EnabledJobs) == 0 {
		return true
	}
	for _, enabled := range s.cfg.EnabledJobs {
		if strings.EqualFold(strings.TrimSpace(enabled), jobName) {
			return true
		}
	}
	return false
}

// OrderSyncJob writes the paid order for succeeded payments whose order did
// not sync when the payment succeeded.
func (s *Scheduler) OrderSyncJob(ctx context.Context) error {
	ctx, run, owner := s.ensureJobRun(ctx, JobOrderSync, s.cfg.BatchSize)
	if owner {
		s.logJobStart(ctx, run)
		defer s.logJobFinish(ctx, run)
	}
	schedMetrics := obsmetrics.Scheduler()

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		synced, err := s.engine.SyncPendingOrders(ctx, s.cfg.BatchSize)
		if err != nil {
			s.logSchedulerError(ctx, run, "scheduler.order_sync.failed", JobOrderSync, err)
			return err
		}
		run.AddProcessed(synced)
		schedMetrics.AddBatchProcessed(JobOrderSync, obsmetrics.LockResourceOrdersForSync, synced)
		if synced == 0 {
			schedMetrics.IncBatchDeferred(JobOrderSync, obsmetrics.SchedulerBatchDeferredReasonSkipLockedEmpty)
		}
		if synced < s.cfg.BatchSize {
			return nil
		}
	}
}

// StaleIntentsJob polls the processor for payments stuck in pending or
// processing past the stale age and feeds what it sees through the engine,
// the same path a confirm poll takes. One batch per run: intents the
// processor still reports as open stay claimable on the next tick.
func (s *Scheduler) StaleIntentsJob(ctx context.Context) error {
	ctx, run, owner := s.ensureJobRun(ctx, JobStaleIntents, s.cfg.BatchSize)
	if owner {
		s.logJobStart(ctx, run)
		defer s.logJobFinish(ctx, run)
	}
	schedMetrics := obsmetrics.Scheduler()

	payments, err := s.FetchStalePaymentsForWork(ctx, s.clock.Now(), s.cfg.BatchSize)
	if err != nil {
		s.logSchedulerError(ctx, run, "scheduler.stale_intents.claim_failed", JobStaleIntents, err)
		return err
	}
	if len(payments) == 0 {
		schedMetrics.IncBatchDeferred(JobStaleIntents, obsmetrics.SchedulerBatchDeferredReasonSkipLockedEmpty)
		return nil
	}

	var jobErr error
	processed := 0
	for _, p := range payments {
		if ctx.Err() != nil {
			return errors.Join(jobErr, ctx.Err())
		}
		s.logPaymentClaimed(ctx, JobStaleIntents, p)

		applied, err := s.reconcileStale(ctx, p)
		if err != nil {
			jobErr = errors.Join(jobErr, err)
			s.logSchedulerError(ctx, run, "scheduler.stale_intents.reconcile_failed", JobStaleIntents, err,
				zap.String("payment_id", p.ID.String()),
				zap.String("external_ref", externalRef(p)),
			)
			continue
		}
		if applied {
			processed++
		}
	}
	run.AddProcessed(processed)
	schedMetrics.AddBatchProcessed(JobStaleIntents, obsmetrics.LockResourceStalePayments, processed)
	return jobErr
}

func (s *Scheduler) reconcileStale(ctx context.Context, p *domain.Payment) (bool, error) {
	intentID := externalRef(p)
	if intentID == "" {
		return false, nil
	}
	res, err := s.ReconcileIntent(ctx, intentID)
	if err != nil {
		return false, err
	}
	return res.Applied, nil
}

// ReconcileIntent pulls the processor's current view of one intent and
// applies it through the engine. Operators run it by hand for a single
// payment; the stale job runs it for every claimed row.
func (s *Scheduler) ReconcileIntent(ctx context.Context, intentID string) (reconcile.Result, error) {
	intentID = strings.TrimSpace(intentID)
	if intentID == "" {
		return reconcile.Result{}, domain.ErrInvalidRequest
	}
	intent, err := s.processor.RetrieveIntent(ctx, intentID)
	if err != nil {
		obsmetrics.Scheduler().IncBatchDeferred(JobStaleIntents, obsmetrics.SchedulerBatchDeferredReasonProcessorError)
		return reconcile.Result{}, fmt.Errorf("retrieve intent %s: %w", intentID, err)
	}

	orderRef := strings.TrimSpace(intent.Metadata["order_ref"])
	res, err := s.engine.Handle(ctx, domain.IntentObserved{
		Envelope: domain.Envelope{
			Kind:       domain.EventIntentObserved,
			OccurredAt: s.clock.Now(),
		},
		IntentID:    intent.ID,
		Status:      intent.Status,
		AmountMinor: intent.AmountMinor,
		ChargeID:    intent.LatestChargeID,
		MethodID:    intent.MethodID,
		LastError:   intent.LastError,
		OrderRef:    orderRef,
	})
	if err != nil {
		return res, err
	}
	if res.To != res.From {
		s.logger(ctx).Info("scheduler.stale_intents.reconciled",
			zap.String("payment_id", res.PaymentID.String()),
			zap.String("intent_status", string(intent.Status)),
			zap.String("from", string(res.From)),
			zap.String("to", string(res.To)),
		)
	}
	return res, nil
}
