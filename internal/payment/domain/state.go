package domain

import (
	"strings"
	"time"
)

var transitions = map[Status][]Status{
	StatusPending:    {StatusProcessing, StatusSucceeded, StatusFailed, StatusCancelled},
	StatusProcessing: {StatusSucceeded, StatusFailed, StatusCancelled},
	StatusSucceeded:  {StatusRefunded},
}

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusSucceeded, StatusFailed, StatusRefunded, StatusCancelled:
		return true
	default:
		return false
	}
}

// Terminal reports whether no automatic transition leaves s. Succeeded is not
// terminal because a refund may still follow.
func (s Status) Terminal() bool {
	return s == StatusFailed || s == StatusRefunded || s == StatusCancelled
}

// Settled reports whether the processor outcome is final for this payment:
// later outcome events must not change it.
func (s Status) Settled() bool {
	return s == StatusSucceeded || s.Terminal()
}

func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Transition moves the payment to status "to", keeping paid_at in step with
// the succeeded state. It does not persist.
func (p *Payment) Transition(to Status, now time.Time) error {
	if !CanTransition(p.Status, to) {
		return ErrInvalidTransition
	}
	switch to {
	case StatusSucceeded:
		p.PaidAt = &now
		p.ErrorDetail = nil
	case StatusRefunded:
		p.PaidAt = nil
		p.RefundedAt = &now
	}
	p.Status = to
	p.UpdatedAt = now
	return nil
}

// Fail moves the payment to failed with the given detail.
func (p *Payment) Fail(detail string, now time.Time) error {
	if err := p.Transition(StatusFailed, now); err != nil {
		return err
	}
	detail = strings.TrimSpace(detail)
	p.ErrorDetail = &detail
	return nil
}

func lower(v string) string {
	return strings.ToLower(strings.TrimSpace(v))
}
