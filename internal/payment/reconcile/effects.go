package reconcile

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	obsmetrics "github.com/smallbiznis/payrecon/internal/observability/metrics"
	"github.com/smallbiznis/payrecon/internal/payment/domain"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// SyncOrder creates or updates the paid order for a succeeded payment. It
// re-locks the payment so a refund committed in between is never overwritten
// by a paid order.
func (e *Engine) SyncOrder(ctx context.Context, paymentID snowflake.ID) (*domain.Order, bool, error) {
	var (
		order   *domain.Order
		created bool
	)
	err := e.inTx(ctx, func(tx *gorm.DB) error {
		p, err := e.payments.LockByID(ctx, tx, paymentID, nil)
		if err != nil {
			return err
		}
		if p.Status != domain.StatusSucceeded || p.OrderRef == nil {
			return errRollback
		}
		order, created, err = e.upsertOrder(ctx, tx, p)
		return err
	})
	if errors.Is(err, errRollback) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return order, created, nil
}

// SyncPendingOrders is the retry path for orders that failed to sync after a
// payment succeeded. It returns how many orders were written.
func (e *Engine) SyncPendingOrders(ctx context.Context, limit int) (int, error) {
	type synced struct {
		payment domain.Payment
		order   *domain.Order
		created bool
	}
	var done []synced

	err := e.inTx(ctx, func(tx *gorm.DB) error {
		items, err := e.payments.ClaimUnsyncedOrders(ctx, tx, limit)
		if err != nil {
			return err
		}
		for _, p := range items {
			order, created, err := e.upsertOrder(ctx, tx, p)
			if err != nil {
				return fmt.Errorf("sync order for payment %s: %w", p.ID, err)
			}
			done = append(done, synced{payment: *p, order: order, created: created})
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	effectsCtx := context.WithoutCancel(ctx)
	for _, s := range done {
		if !s.created {
			continue
		}
		res := Result{PaymentID: s.payment.ID}
		e.announceOrder(effectsCtx, e.log, &res, s.payment, s.order)
	}
	return len(done), nil
}

func (e *Engine) upsertOrder(ctx context.Context, tx *gorm.DB, p *domain.Payment) (*domain.Order, bool, error) {
	now := e.clock.Now()
	order := &domain.Order{
		ID:        e.genID.Generate(),
		OrderRef:  *p.OrderRef,
		BuyerID:   p.UserID,
		PaymentID: p.ID,
		Amount:    p.Amount,
		Status:    domain.OrderStatusPaid,
		SyncedAt:  now,
		CreatedAt: now,
		UpdatedAt: now,
	}
	created, err := e.orders.UpsertPaid(ctx, tx, order)
	if err != nil {
		return nil, false, err
	}
	return order, created, nil
}

// dispatch hands the post-commit work for a decision to the side-effect
// dispatcher. Failures are recorded on the result and never returned.
func (e *Engine) dispatch(ctx context.Context, log *zap.Logger, res *Result, p domain.Payment, d decision, ev domain.Event) {
	if d.notice == noticeNone || (d.notice != noticeDispute && d.notice != noticeCaptured && res.To == res.From) {
		return
	}

	base := map[string]any{
		"payment_id": p.ID.String(),
		"amount":     domain.FormatAmount(p.Amount),
		"currency":   p.Currency,
		"status":     string(p.Status),
	}
	if p.ExternalRef != nil {
		base["payment_intent_id"] = *p.ExternalRef
	}
	if p.OrderRef != nil {
		base["order_ref"] = *p.OrderRef
	}
	if p.Description != "" {
		base["description"] = p.Description
	}

	switch d.notice {
	case noticeSucceeded:
		e.notify(ctx, log, res, p.UserID, domain.NotifyPaymentSucceeded, with(base, map[string]any{
			"message": "Payment processed successfully!",
		}))
		data := with(base, nil)
		if p.PaidAt != nil {
			data["paid_at"] = p.PaidAt.UTC().Format(time.RFC3339)
		}
		e.emailUser(ctx, log, res, p.UserID, domain.TemplatePaymentConfirmation, data)
		e.emailUser(ctx, log, res, p.UserID, domain.TemplatePaymentReceipt, data)

	case noticeFailed:
		detail := unknownFailure
		if p.ErrorDetail != nil {
			detail = *p.ErrorDetail
		}
		e.notify(ctx, log, res, p.UserID, domain.NotifyPaymentFailed, with(base, map[string]any{
			"error":   detail,
			"message": "Payment failed. Please try again.",
		}))
		e.emailUser(ctx, log, res, p.UserID, domain.TemplatePaymentFailed, with(base, map[string]any{
			"error": detail,
		}))

	case noticeRefunded:
		refund := p.Amount
		if d.refundMinor > 0 {
			refund = domain.FromMinorUnits(d.refundMinor)
		}
		amount := domain.FormatAmount(refund)
		e.notify(ctx, log, res, p.UserID, domain.NotifyPaymentRefunded, with(base, map[string]any{
			"refund_amount": amount,
			"message":       fmt.Sprintf("Refund of $%s processed!", amount),
		}))
		e.emailUser(ctx, log, res, p.UserID, domain.TemplateRefundNotice, with(base, map[string]any{
			"refund_amount": amount,
		}))

	case noticeDispute:
		dispute, _ := ev.(domain.DisputeCreated)
		data := with(base, map[string]any{
			"dispute_id":     dispute.DisputeID,
			"dispute_reason": dispute.Reason,
			"dispute_amount": domain.FormatAmount(domain.FromMinorUnits(dispute.AmountMinor)),
		})
		e.emailUser(ctx, log, res, p.UserID, domain.TemplateDisputeNotice, data)
		if user, err := e.users.Lookup(ctx, p.UserID); err == nil {
			data = with(data, map[string]any{"user_email": user.Email})
		}
		e.alert(ctx, log, res, fmt.Sprintf("New Dispute - Payment ID %s", p.ID), data)

	case noticeCaptured:
		data := with(base, map[string]any{
			"captured_amount": domain.FormatAmount(domain.FromMinorUnits(capturedMinor(ev))),
		})
		if p.SettlementID != nil {
			data["charge_id"] = *p.SettlementID
		}
		e.alert(ctx, log, res, fmt.Sprintf("Funds captured on %s payment - Payment ID %s", p.Status, p.ID), data)

	case noticeMismatch:
		detail := ""
		if p.ErrorDetail != nil {
			detail = *p.ErrorDetail
		}
		e.alert(ctx, log, res, fmt.Sprintf("Amount mismatch - Payment ID %s", p.ID), with(base, map[string]any{
			"error": detail,
		}))
	}
}

// announceOrder notifies buyer and seller that an order was created.
func (e *Engine) announceOrder(ctx context.Context, log *zap.Logger, res *Result, p domain.Payment, order *domain.Order) {
	if order == nil {
		return
	}
	data := map[string]any{
		"order_id":   order.ID.String(),
		"order_ref":  order.OrderRef,
		"payment_id": p.ID.String(),
		"amount":     domain.FormatAmount(order.Amount),
		"currency":   p.Currency,
	}
	var sellerID int64
	if e.pricer != nil {
		item, err := e.pricer.PriceFor(ctx, p.UserID, order.OrderRef)
		if err != nil {
			log.Warn("order item lookup failed", zap.String("order_ref", order.OrderRef), zap.Error(err))
		} else {
			data["item_title"] = item.Title
			sellerID = item.SellerID
		}
	}

	e.notify(ctx, log, res, p.UserID, domain.NotifyOrderCreated, with(data, map[string]any{
		"role":    "buyer",
		"message": "Your order has been created.",
	}))
	e.emailUser(ctx, log, res, p.UserID, domain.TemplateOrderWon, data)
	if sellerID != 0 {
		e.notify(ctx, log, res, sellerID, domain.NotifyOrderCreated, with(data, map[string]any{
			"role":    "seller",
			"message": "Your item has been sold.",
		}))
		e.emailUser(ctx, log, res, sellerID, domain.TemplateOrderSold, data)
	}
}

func (e *Engine) notify(ctx context.Context, log *zap.Logger, res *Result, userID int64, channel string, payload map[string]any) {
	payload["type"] = channel
	err := e.effects.Notify(ctx, userID, channel, payload)
	e.recordEffect(log, res, "push", channel, err)
}

func (e *Engine) emailUser(ctx context.Context, log *zap.Logger, res *Result, userID int64, template string, data map[string]any) {
	user, err := e.users.Lookup(ctx, userID)
	if err != nil {
		e.recordEffect(log, res, "email", template, fmt.Errorf("lookup user %d: %w", userID, err))
		return
	}
	data = with(data, map[string]any{"name": user.Name})
	err = e.effects.EnqueueEmail(ctx, user.Email, template, data)
	e.recordEffect(log, res, "email", template, err)
}

func (e *Engine) alert(ctx context.Context, log *zap.Logger, res *Result, subject string, data map[string]any) {
	err := e.effects.AlertOperators(ctx, subject, data)
	e.recordEffect(log, res, "alert", subject, err)
}

func (e *Engine) recordEffect(log *zap.Logger, res *Result, kind, name string, err error) {
	if err == nil {
		obsmetrics.Payments().IncSideEffect(kind, "queued")
		return
	}
	obsmetrics.Payments().IncSideEffect(kind, "failed")
	res.SideEffectErrors = append(res.SideEffectErrors, fmt.Errorf("%s %s: %w", kind, name, err))
	log.Warn("side effect not queued",
		zap.String("kind", kind),
		zap.String("name", name),
		zap.String("payment_id", res.PaymentID.String()),
		zap.Error(err),
	)
}

func with(base map[string]any, extra map[string]any) map[string]any {
	out := make(map[string]any, len(base)+len(extra))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range extra {
		out[k] = v
	}
	return out
}

func capturedMinor(ev domain.Event) int64 {
	switch e := ev.(type) {
	case domain.PaymentSucceeded:
		return e.AmountMinor
	case domain.IntentObserved:
		return e.AmountMinor
	default:
		return 0
	}
}
