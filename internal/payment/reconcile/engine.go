package reconcile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/payrecon/internal/clock"
	"github.com/smallbiznis/payrecon/internal/config"
	obsmetrics "github.com/smallbiznis/payrecon/internal/observability/metrics"
	"github.com/smallbiznis/payrecon/internal/payment/domain"
	pkgdb "github.com/smallbiznis/payrecon/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const defaultLockTimeout = 5 * time.Second

// errRollback aborts a transaction without surfacing an error to the caller.
var errRollback = errors.New("reconcile: rollback")

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	Cfg        config.Config
	Clock      clock.Clock
	GenID      *snowflake.Node
	Ledger     domain.LedgerRepository
	Payments   domain.PaymentRepository
	Orders     domain.OrderRepository
	Methods    domain.MethodRepository
	Effects    domain.SideEffects
	Users      domain.UserDirectory
	Pricer     domain.ItemPricer   `optional:"true"`
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

// Engine applies processor events to payment records. Every path that changes
// a payment, webhook or local, goes through Handle under the record's row lock.
type Engine struct {
	db          *gorm.DB
	log         *zap.Logger
	clock       clock.Clock
	genID       *snowflake.Node
	lockTimeout time.Duration
	ledger      domain.LedgerRepository
	payments    domain.PaymentRepository
	orders      domain.OrderRepository
	methods     domain.MethodRepository
	effects     domain.SideEffects
	users       domain.UserDirectory
	pricer      domain.ItemPricer
	obsMetrics  *obsmetrics.Metrics
}

func NewEngine(p Params) *Engine {
	lockTimeout := p.Cfg.LockTimeout
	if lockTimeout <= 0 {
		lockTimeout = defaultLockTimeout
	}
	clk := p.Clock
	if clk == nil {
		clk = clock.System()
	}
	return &Engine{
		db:          p.DB,
		log:         p.Log.Named("payment.reconcile"),
		clock:       clk,
		genID:       p.GenID,
		lockTimeout: lockTimeout,
		ledger:      p.Ledger,
		payments:    p.Payments,
		orders:      p.Orders,
		methods:     p.Methods,
		effects:     p.Effects,
		users:       p.Users,
		pricer:      p.Pricer,
		obsMetrics:  p.ObsMetrics,
	}
}

// Result reports what Handle did with one event.
type Result struct {
	EventID   string
	EventType domain.EventType

	Duplicate      bool
	NotFound       bool
	Rejected       bool
	Applied        bool
	PartialSuccess bool

	PaymentID snowflake.ID
	From      domain.Status
	To        domain.Status
	Reason    error

	OrderCreated     bool
	OrdersRefunded   int64
	OrderError       error
	SideEffectErrors []error

	// Payment is the record as committed, nil when nothing was locked.
	Payment *domain.Payment
}

// Outcome is the metric and ledger label for the result.
func (r Result) Outcome() string {
	switch {
	case r.Duplicate:
		return obsmetrics.OutcomeDuplicate
	case r.NotFound:
		return obsmetrics.OutcomeNotFound
	case r.Rejected:
		return obsmetrics.OutcomeRejected
	case r.PartialSuccess:
		return obsmetrics.OutcomePartialSuccess
	case r.Applied:
		return obsmetrics.OutcomeApplied
	default:
		return obsmetrics.OutcomeNoop
	}
}

// Handle reconciles one event. Business outcomes (duplicate, not found,
// rejected) are reported in the Result; the error is reserved for failures
// the caller should surface or retry.
func (e *Engine) Handle(ctx context.Context, ev domain.Event) (Result, error) {
	if ev == nil {
		return Result{}, domain.ErrInvalidEvent
	}
	res := Result{EventID: strings.TrimSpace(ev.EventID()), EventType: ev.Type()}
	log := e.log.With(
		zap.String("event_id", res.EventID),
		zap.String("event_type", string(res.EventType)),
	)

	if res.EventID != "" {
		seen, err := e.ledger.HasProcessed(ctx, e.db, res.EventID)
		if err != nil {
			return e.finish(ctx, log, res, err)
		}
		if seen {
			res.Duplicate = true
			return e.finish(ctx, log, res, nil)
		}
	}

	switch ev.(type) {
	case domain.PaymentMethodAttached, domain.PaymentMethodDetached:
		err := e.handleMethodEvent(ctx, log, ev, &res)
		return e.finish(ctx, log, res, err)
	}

	var (
		committed domain.Payment
		d         decision
		locked    bool
	)
	err := e.inTx(ctx, func(tx *gorm.DB) error {
		now := e.clock.Now()
		p, err := e.lockFor(ctx, tx, ev)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				res.NotFound = true
				return errRollback
			}
			return err
		}
		locked = true
		res.PaymentID = p.ID
		res.From = p.Status
		res.To = p.Status

		d = decide(p, ev)
		if d.deferred {
			res.Reason = d.reason
			return errRollback
		}
		if d.reason != nil {
			res.Rejected = true
			res.Reason = d.reason
		}

		if d.transition {
			if d.to == domain.StatusFailed {
				err = p.Fail(d.detail, now)
			} else {
				err = p.Transition(d.to, now)
			}
			if err != nil {
				return fmt.Errorf("apply %s -> %s: %w", p.Status, d.to, err)
			}
			res.To = p.Status
			res.Applied = !res.Rejected
		}
		if d.settlementID != "" && p.SettlementID == nil {
			p.SettlementID = &d.settlementID
		}
		if d.methodRef != "" && p.PaymentMethodRef == nil {
			p.PaymentMethodRef = &d.methodRef
		}
		if d.orderRef != "" && p.OrderRef == nil {
			p.OrderRef = &d.orderRef
		}
		if d.mutates() {
			if !d.transition {
				p.UpdatedAt = now
			}
			if err := e.payments.Save(ctx, tx, p); err != nil {
				return err
			}
		}

		if d.cascadeRefund {
			n, err := e.orders.MarkRefundedByPayment(ctx, tx, p.ID, now)
			if err != nil {
				return err
			}
			res.OrdersRefunded = n
		}

		if res.EventID != "" {
			if err := e.markProcessed(ctx, tx, ev, &p.ID, res.Outcome(), now); err != nil {
				if errors.Is(err, domain.ErrDuplicateEvent) {
					res = Result{EventID: res.EventID, EventType: res.EventType, Duplicate: true}
					return errRollback
				}
				return err
			}
		}

		committed = *p
		return nil
	})
	if errors.Is(err, errRollback) {
		err = nil
		if d.deferred {
			err = fmt.Errorf("%w: %s", d.reason, res.EventType)
		}
		return e.finish(ctx, log, res, err)
	}
	if err != nil {
		return e.finish(ctx, log, res, err)
	}
	if !locked {
		return e.finish(ctx, log, res, nil)
	}

	res.Payment = &committed
	if res.To != res.From {
		obsmetrics.Payments().IncTransition(string(res.From), string(res.To))
		log.Info("payment transitioned",
			zap.String("payment_id", committed.ID.String()),
			zap.String("from", string(res.From)),
			zap.String("to", string(res.To)),
		)
	}
	if res.Rejected {
		log.Warn("event rejected",
			zap.String("payment_id", committed.ID.String()),
			zap.String("status", string(committed.Status)),
			zap.Error(res.Reason),
		)
	}

	effectsCtx := context.WithoutCancel(ctx)
	if res.Applied && committed.Status == domain.StatusSucceeded && committed.OrderRef != nil {
		order, created, err := e.SyncOrder(effectsCtx, committed.ID)
		if err != nil {
			res.PartialSuccess = true
			res.OrderError = err
			log.Error("order sync failed after payment success",
				zap.String("payment_id", committed.ID.String()),
				zap.Error(err),
			)
		} else if created {
			res.OrderCreated = true
			e.announceOrder(effectsCtx, log, &res, committed, order)
		}
	}
	e.dispatch(effectsCtx, log, &res, committed, d, ev)

	return e.finish(ctx, log, res, nil)
}

func (e *Engine) handleMethodEvent(ctx context.Context, log *zap.Logger, ev domain.Event, res *Result) error {
	return e.inTx(ctx, func(tx *gorm.DB) error {
		now := e.clock.Now()
		switch m := ev.(type) {
		case domain.PaymentMethodAttached:
			log.Info("payment method attached at processor",
				zap.String("method_id", m.MethodID),
				zap.String("customer_id", m.CustomerID),
			)
		case domain.PaymentMethodDetached:
			removed, err := e.methods.DeleteByExternalID(ctx, tx, m.MethodID)
			if err != nil {
				return err
			}
			res.Applied = removed
			log.Info("payment method detached at processor",
				zap.String("method_id", m.MethodID),
				zap.Bool("mirror_removed", removed),
			)
		}
		if res.EventID == "" {
			return nil
		}
		if err := e.markProcessed(ctx, tx, ev, nil, res.Outcome(), now); err != nil {
			if errors.Is(err, domain.ErrDuplicateEvent) {
				*res = Result{EventID: res.EventID, EventType: res.EventType, Duplicate: true}
				return errRollback
			}
			return err
		}
		return nil
	})
}

func (e *Engine) lockFor(ctx context.Context, tx *gorm.DB, ev domain.Event) (*domain.Payment, error) {
	switch v := ev.(type) {
	case domain.PaymentSucceeded:
		return e.payments.LockByExternalRef(ctx, tx, v.IntentID, nil)
	case domain.PaymentFailed:
		return e.payments.LockByExternalRef(ctx, tx, v.IntentID, nil)
	case domain.IntentObserved:
		return e.payments.LockByExternalRef(ctx, tx, v.IntentID, ownerScope(v.OwnerID))
	case domain.ChargeRefunded:
		p, err := e.payments.LockBySettlementID(ctx, tx, v.ChargeID, nil)
		if errors.Is(err, domain.ErrNotFound) && strings.TrimSpace(v.IntentID) != "" {
			return e.payments.LockByExternalRef(ctx, tx, v.IntentID, nil)
		}
		return p, err
	case domain.DisputeCreated:
		return e.payments.LockBySettlementID(ctx, tx, v.ChargeID, nil)
	case domain.RefundIssued:
		return e.payments.LockByID(ctx, tx, snowflake.ID(v.PaymentID), ownerScope(v.OwnerID))
	default:
		return nil, domain.ErrInvalidEvent
	}
}

func ownerScope(owner int64) *int64 {
	if owner == 0 {
		return nil
	}
	return &owner
}

func (e *Engine) markProcessed(ctx context.Context, tx *gorm.DB, ev domain.Event, paymentID *snowflake.ID, outcome string, now time.Time) error {
	return e.ledger.MarkProcessed(ctx, tx, &domain.LedgerEntry{
		EventID:     strings.TrimSpace(ev.EventID()),
		EventType:   string(ev.Type()),
		PaymentID:   paymentID,
		Outcome:     outcome,
		Payload:     ledgerPayload(ev),
		ProcessedAt: now,
	})
}

// ledgerPayload keeps the raw delivery when it is JSON, otherwise a minimal
// description of the event.
func ledgerPayload(ev domain.Event) datatypes.JSON {
	if raw := envelopeOf(ev).Raw; len(raw) > 0 && json.Valid(raw) {
		return datatypes.JSON(raw)
	}
	b, err := json.Marshal(map[string]string{
		"id":   ev.EventID(),
		"type": string(ev.Type()),
	})
	if err != nil {
		return nil
	}
	return datatypes.JSON(b)
}

func envelopeOf(ev domain.Event) domain.Envelope {
	switch v := ev.(type) {
	case domain.PaymentSucceeded:
		return v.Envelope
	case domain.PaymentFailed:
		return v.Envelope
	case domain.ChargeRefunded:
		return v.Envelope
	case domain.DisputeCreated:
		return v.Envelope
	case domain.PaymentMethodAttached:
		return v.Envelope
	case domain.PaymentMethodDetached:
		return v.Envelope
	case domain.IntentObserved:
		return v.Envelope
	case domain.RefundIssued:
		return v.Envelope
	default:
		return domain.Envelope{}
	}
}

// inTx runs fn in a transaction whose lock waits are bounded by the
// configured lock timeout. Exceeding it yields ErrLockTimeout.
func (e *Engine) inTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	lockCtx, cancel := context.WithTimeout(ctx, e.lockTimeout)
	defer cancel()

	err := e.db.WithContext(lockCtx).Transaction(func(tx *gorm.DB) error {
		if err := pkgdb.SetLocalLockTimeout(lockCtx, tx, e.lockTimeout); err != nil {
			return err
		}
		return fn(tx)
	})
	if err == nil || errors.Is(err, errRollback) || errors.Is(err, domain.ErrLockTimeout) {
		return err
	}
	if errors.Is(lockCtx.Err(), context.DeadlineExceeded) || pkgdb.IsLockTimeoutErr(err) {
		return fmt.Errorf("%w: %v", domain.ErrLockTimeout, err)
	}
	return err
}

func (e *Engine) finish(ctx context.Context, log *zap.Logger, res Result, err error) (Result, error) {
	outcome := res.Outcome()
	if err != nil {
		outcome = obsmetrics.OutcomeError
		if errors.Is(err, domain.ErrEventOutOfOrder) {
			log.Info("event deferred until the record catches up", zap.Error(err))
		} else {
			log.Error("reconcile failed", zap.Error(err))
		}
	}
	obsmetrics.Payments().IncOutcome(string(res.EventType), outcome)
	e.obsMetrics.RecordReconcileOutcome(ctx, sourceOf(res.EventType), string(res.EventType), outcome)
	return res, err
}

func sourceOf(t domain.EventType) string {
	switch t {
	case domain.EventIntentObserved:
		return "poll"
	case domain.EventRefundIssued:
		return "refund"
	default:
		return "webhook"
	}
}
