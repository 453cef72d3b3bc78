package reconcile

import (
	"fmt"
	"strings"

	"github.com/smallbiznis/payrecon/internal/payment/domain"
)

const unknownFailure = "Unknown error"

type notice int

const (
	noticeNone notice = iota
	noticeSucceeded
	noticeFailed
	noticeRefunded
	noticeDispute
	noticeMismatch
	noticeCaptured
)

// decision is what an event means for the locked record. It carries no I/O
// and is applied by the engine inside the transaction.
type decision struct {
	transition bool
	to         domain.Status
	detail     string
	reason     error

	settlementID string
	methodRef    string
	orderRef     string

	cascadeRefund bool
	refundMinor   int64

	// deferred leaves the ledger unmarked so the processor redelivers once
	// the record has caught up.
	deferred bool

	notice notice
}

func (d decision) mutates() bool {
	return d.transition || d.settlementID != "" || d.methodRef != "" || d.orderRef != ""
}

func decide(p *domain.Payment, ev domain.Event) decision {
	switch e := ev.(type) {
	case domain.PaymentSucceeded:
		return decideSucceeded(p, e.AmountMinor, e.ChargeID, e.MethodID, e.OrderRef)
	case domain.PaymentFailed:
		return decideFailed(p, e.Message)
	case domain.ChargeRefunded:
		return decideRefunded(p, e.AmountRefundedMinor, true)
	case domain.RefundIssued:
		return decideRefunded(p, e.AmountMinor, false)
	case domain.DisputeCreated:
		return decision{notice: noticeDispute}
	case domain.IntentObserved:
		return decideObserved(p, e)
	default:
		return decision{}
	}
}

func decideSucceeded(p *domain.Payment, amountMinor int64, chargeID, methodID, orderRef string) decision {
	if p.Status == domain.StatusFailed || p.Status == domain.StatusCancelled {
		// The customer paid on an intent we already gave up on. The status
		// stays terminal; operators settle the captured funds by hand.
		d := decision{reason: domain.ErrCapturedOnTerminal, notice: noticeCaptured}
		if p.SettlementID == nil {
			d.settlementID = strings.TrimSpace(chargeID)
		}
		return d
	}
	if p.Status.Settled() {
		// A late success may still carry the charge id the first one lacked.
		if p.Status == domain.StatusSucceeded && p.SettlementID == nil && chargeID != "" {
			return decision{settlementID: chargeID}
		}
		return decision{}
	}

	reported := domain.FromMinorUnits(amountMinor)
	if !reported.Equal(p.Amount) {
		return decision{
			transition: true,
			to:         domain.StatusFailed,
			detail: fmt.Sprintf("Amount mismatch: processor %s != recorded %s",
				domain.FormatAmount(reported), domain.FormatAmount(p.Amount)),
			reason: domain.ErrAmountMismatch,
			notice: noticeMismatch,
		}
	}

	d := decision{
		transition:   true,
		to:           domain.StatusSucceeded,
		settlementID: chargeID,
		methodRef:    methodID,
		notice:       noticeSucceeded,
	}
	if p.OrderRef == nil && strings.TrimSpace(orderRef) != "" {
		d.orderRef = strings.TrimSpace(orderRef)
	}
	return d
}

func decideFailed(p *domain.Payment, message string) decision {
	if p.Status.Settled() {
		return decision{}
	}
	message = strings.TrimSpace(message)
	if message == "" {
		message = unknownFailure
	}
	return decision{
		transition: true,
		to:         domain.StatusFailed,
		detail:     message,
		notice:     noticeFailed,
	}
}

func decideRefunded(p *domain.Payment, refundMinor int64, fromProcessor bool) decision {
	switch p.Status {
	case domain.StatusSucceeded:
		return decision{
			transition:    true,
			to:            domain.StatusRefunded,
			cascadeRefund: true,
			refundMinor:   refundMinor,
			notice:        noticeRefunded,
		}
	case domain.StatusRefunded:
		// Orders may have been created after the first refund landed.
		return decision{cascadeRefund: true}
	case domain.StatusPending, domain.StatusProcessing:
		if fromProcessor {
			return decision{reason: domain.ErrEventOutOfOrder, deferred: true}
		}
		return decision{reason: domain.ErrNotRefundable}
	default:
		return decision{reason: domain.ErrNotRefundable}
	}
}

func decideObserved(p *domain.Payment, e domain.IntentObserved) decision {
	switch e.Status {
	case domain.IntentSucceeded:
		return decideSucceeded(p, e.AmountMinor, e.ChargeID, e.MethodID, e.OrderRef)
	case domain.IntentRequiresPaymentMethod, domain.IntentRequiresConfirmation,
		domain.IntentRequiresAction, domain.IntentProcessing, domain.IntentRequiresCapture:
		if p.Status != domain.StatusPending {
			return decision{}
		}
		return decision{transition: true, to: domain.StatusProcessing}
	default:
		if p.Status.Settled() {
			return decision{}
		}
		return decision{
			transition: true,
			to:         domain.StatusFailed,
			detail:     fmt.Sprintf("PaymentIntent status: %s", e.Status),
			notice:     noticeFailed,
		}
	}
}
