package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/smallbiznis/payrecon/internal/audit/domain"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/payrecon/internal/payment/domain"
	"github.com/smallbiznis/payrecon/pkg/db/pagination"
	"go.uber.org/zap"
)

const (
	msgConfirmed             = "Payment confirmed"
	msgOrderCreationFailed   = "Payment confirmed but order creation failed"
	msgMethodRequired        = "Payment method required"
	msgConfirmationRequired  = "Payment confirmation required"
	msgStillProcessing       = "Payment is still processing"
	msgPaymentFailedTemplate = "Payment failed: %s"
)

type CreateIntentRequest struct {
	UserID   int64
	OrderRef string
}

type CreateIntentResponse struct {
	ClientSecret    string
	PaymentIntentID string
	Status          domain.IntentStatus
	PaymentID       snowflake.ID
	Amount          decimal.Decimal
	Currency        string
}

// CreateIntent prices the order server side, opens a processor intent for it
// and records a pending payment bound to that intent.
func (s *Service) CreateIntent(ctx context.Context, req CreateIntentRequest) (*CreateIntentResponse, error) {
	orderRef := strings.TrimSpace(req.OrderRef)
	if req.UserID == 0 || orderRef == "" {
		return nil, fmt.Errorf("%w: order_ref is required", domain.ErrInvalidRequest)
	}

	item, err := s.pricer.PriceFor(ctx, req.UserID, orderRef)
	if err != nil {
		return nil, err
	}
	if !item.Amount.IsPositive() {
		return nil, domain.ErrInvalidAmount
	}
	amountMinor, err := domain.ToMinorUnits(item.Amount)
	if err != nil {
		return nil, err
	}
	user, err := s.users.Lookup(ctx, req.UserID)
	if err != nil {
		return nil, fmt.Errorf("lookup user %d: %w", req.UserID, err)
	}

	paymentID := s.genID.Generate()
	description := fmt.Sprintf("Order #%s - %s", orderRef, user.Email)
	intent, err := s.processor.CreateIntent(ctx, domain.CreateIntentInput{
		AmountMinor: amountMinor,
		Currency:    s.currency,
		Description: description,
		Metadata: map[string]string{
			"user_id":    strconv.FormatInt(req.UserID, 10),
			"user_email": user.Email,
			"order_ref":  orderRef,
			"payment_id": paymentID.String(),
		},
		IdempotencyKey: "intent_" + paymentID.String(),
	})
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	externalRef := intent.ID
	payment := &domain.Payment{
		ID:          paymentID,
		UserID:      req.UserID,
		OrderRef:    &orderRef,
		ExternalRef: &externalRef,
		Amount:      item.Amount,
		Currency:    s.currency,
		Status:      domain.StatusPending,
		Description: description,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.payments.Insert(ctx, s.db, payment); err != nil {
		return nil, err
	}

	s.log.Info("payment intent created",
		zap.String("payment_id", paymentID.String()),
		zap.String("payment_intent_id", intent.ID),
		zap.Int64("user_id", req.UserID),
		zap.String("order_ref", orderRef),
	)

	return &CreateIntentResponse{
		ClientSecret:    intent.ClientSecret,
		PaymentIntentID: intent.ID,
		Status:          intent.Status,
		PaymentID:       paymentID,
		Amount:          item.Amount,
		Currency:        s.currency,
	}, nil
}

type ConfirmRequest struct {
	UserID          int64
	PaymentIntentID string
	OrderRef        string
}

type ConfirmResponse struct {
	Success       bool
	IntentStatus  domain.IntentStatus
	PaymentID     snowflake.ID
	PaymentStatus domain.Status
	OrderID       *snowflake.ID
	Message       string
}

// Confirm polls the processor for the caller's intent and reconciles the
// observed state through the engine, under the same row lock a webhook takes.
func (s *Service) Confirm(ctx context.Context, req ConfirmRequest) (*ConfirmResponse, error) {
	intentID := strings.TrimSpace(req.PaymentIntentID)
	if req.UserID == 0 || intentID == "" {
		return nil, fmt.Errorf("%w: payment_intent_id is required", domain.ErrInvalidRequest)
	}

	intent, err := s.processor.RetrieveIntent(ctx, intentID)
	if err != nil {
		return nil, err
	}

	orderRef := strings.TrimSpace(intent.Metadata["order_ref"])
	if orderRef == "" {
		orderRef = strings.TrimSpace(req.OrderRef)
	}
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
		OwnerID:     req.UserID,
	})
	if err != nil {
		return nil, err
	}
	if res.NotFound || res.Payment == nil {
		return nil, domain.ErrNotFound
	}

	p := res.Payment
	out := &ConfirmResponse{
		IntentStatus:  intent.Status,
		PaymentID:     p.ID,
		PaymentStatus: p.Status,
	}

	switch intent.Status {
	case domain.IntentSucceeded:
		if p.Status != domain.StatusSucceeded && p.Status != domain.StatusRefunded {
			out.Message = fmt.Sprintf(msgPaymentFailedTemplate, detailOf(p))
			return out, nil
		}
		out.Success = true
		out.Message = msgConfirmed
		if res.PartialSuccess {
			out.Message = msgOrderCreationFailed
			return out, nil
		}
		orders, err := s.orders.FindByPayment(ctx, s.db, p.ID)
		if err != nil {
			s.log.Warn("order lookup after confirm failed",
				zap.String("payment_id", p.ID.String()),
				zap.Error(err),
			)
		} else if len(orders) > 0 {
			out.OrderID = &orders[0].ID
		}
	case domain.IntentRequiresPaymentMethod:
		out.Message = msgMethodRequired
	case domain.IntentRequiresConfirmation:
		out.Message = msgConfirmationRequired
	case domain.IntentRequiresAction, domain.IntentProcessing, domain.IntentRequiresCapture:
		out.Message = msgStillProcessing
	default:
		out.Message = fmt.Sprintf(msgPaymentFailedTemplate, intent.Status)
	}
	return out, nil
}

func detailOf(p *domain.Payment) string {
	if p.ErrorDetail != nil && *p.ErrorDetail != "" {
		return *p.ErrorDetail
	}
	return string(p.Status)
}

type RefundRequest struct {
	UserID    int64
	PaymentID snowflake.ID
	// Amount is a decimal string; empty refunds the full amount.
	Amount string
}

type RefundResponse struct {
	RefundID  string
	Status    string
	PaymentID snowflake.ID
	Amount    decimal.Decimal
}

// Refund issues a refund at the processor by charge, then records it through
// the engine. A later charge.refunded webhook for the same charge converges on
// the same state.
func (s *Service) Refund(ctx context.Context, req RefundRequest) (*RefundResponse, error) {
	owner := req.UserID
	p, err := s.payments.FindByID(ctx, s.db, req.PaymentID, &owner)
	if err != nil {
		return nil, err
	}
	if p.Status != domain.StatusSucceeded {
		return nil, domain.ErrNotRefundable
	}
	if p.SettlementID == nil || strings.TrimSpace(*p.SettlementID) == "" {
		return nil, domain.ErrMissingSettlement
	}

	amount := p.Amount
	var partial *int64
	if raw := strings.TrimSpace(req.Amount); raw != "" {
		parsed, err := decimal.NewFromString(raw)
		if err != nil {
			return nil, domain.ErrInvalidRefundAmount
		}
		if !parsed.IsPositive() || parsed.GreaterThan(p.Amount) {
			return nil, domain.ErrInvalidRefundAmount
		}
		minor, err := domain.ToMinorUnits(parsed)
		if err != nil {
			return nil, domain.ErrInvalidRefundAmount
		}
		amount = parsed
		if !parsed.Equal(p.Amount) {
			partial = &minor
		}
	}
	amountMinor, err := domain.ToMinorUnits(amount)
	if err != nil {
		return nil, domain.ErrInvalidRefundAmount
	}

	// One refund per payment, so retries of any amount share a key and the
	// processor never issues a second refund for the same payment.
	refund, err := s.processor.RefundCharge(ctx, *p.SettlementID, partial,
		fmt.Sprintf("refund_%s", p.ID))
	if err != nil {
		return nil, err
	}

	s.record(ctx, auditdomain.Entry{
		Action:     auditdomain.ActionPaymentRefund,
		TargetType: auditdomain.TargetPayment,
		TargetID:   p.ID.String(),
		Metadata: map[string]any{
			"refund_id": refund.ID,
			"amount":    domain.FormatAmount(amount),
			"currency":  p.Currency,
			"partial":   partial != nil,
		},
	})

	res, err := s.engine.Handle(ctx, domain.RefundIssued{
		Envelope: domain.Envelope{
			Kind:       domain.EventRefundIssued,
			OccurredAt: s.clock.Now(),
		},
		PaymentID:   int64(p.ID),
		OwnerID:     req.UserID,
		RefundID:    refund.ID,
		AmountMinor: amountMinor,
	})
	if err != nil {
		// The processor already holds the refund; charge.refunded converges
		// the local record once it arrives.
		s.log.Error("refund issued but not recorded",
			zap.String("payment_id", p.ID.String()),
			zap.String("refund_id", refund.ID),
			zap.Error(err),
		)
		return nil, fmt.Errorf("refund %s issued but not recorded: %w", refund.ID, err)
	}
	if res.Rejected {
		s.log.Warn("refund issued on a payment that already moved",
			zap.String("payment_id", p.ID.String()),
			zap.String("refund_id", refund.ID),
			zap.Error(res.Reason),
		)
	} else {
		s.log.Info("refund issued",
			zap.String("payment_id", p.ID.String()),
			zap.String("refund_id", refund.ID),
			zap.String("amount", domain.FormatAmount(amount)),
		)
	}

	return &RefundResponse{
		RefundID:  refund.ID,
		Status:    refund.Status,
		PaymentID: p.ID,
		Amount:    amount,
	}, nil
}

// Get returns the caller's payment. Payments of other users are reported as
// not found.
func (s *Service) Get(ctx context.Context, userID int64, id snowflake.ID) (*domain.Payment, error) {
	return s.payments.FindByID(ctx, s.db, id, &userID)
}

type ListResponse struct {
	Payments []*domain.Payment
	PageInfo pagination.PageInfo
}

// List returns the caller's payments, newest first.
func (s *Service) List(ctx context.Context, userID int64, page pagination.Pagination) (*ListResponse, error) {
	if page.PageSize <= 0 {
		page.PageSize = 20
	}
	items, err := s.payments.List(ctx, s.db, userID, page)
	if err != nil {
		return nil, err
	}

	info := pagination.BuildCursorPageInfo(items, int32(page.PageSize), func(p *domain.Payment) string {
		token, err := pagination.EncodeCursor(pagination.Cursor{
			ID:        p.ID.String(),
			CreatedAt: p.CreatedAt.UTC().Format(time.RFC3339Nano),
		})
		if err != nil {
			return ""
		}
		return token
	})
	if len(items) > page.PageSize {
		items = items[:page.PageSize]
	}
	if !info.HasMore {
		info.NextPageToken = ""
	}
	return &ListResponse{Payments: items, PageInfo: *info}, nil
}
