package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	OutcomeApplied        = "applied"
	OutcomeDuplicate      = "duplicate"
	OutcomeNotFound       = "not_found"
	OutcomeRejected       = "rejected"
	OutcomeNoop           = "noop"
	OutcomePartialSuccess = "partial_success"
	OutcomeError          = "error"
)

// PaymentMetrics tracks the reconciliation core: transitions, engine outcomes
// and post-commit side effects.
type PaymentMetrics struct {
	transitions *prometheus.CounterVec
	outcomes    *prometheus.CounterVec
	sideEffects *prometheus.CounterVec
	queueDepth  prometheus.Gauge
}

var (
	paymentMetricsOnce sync.Once
	paymentMetrics     *PaymentMetrics
)

// Payments returns the singleton payment metrics registry.
func Payments() *PaymentMetrics {
	return PaymentsWithConfig(Config{})
}

// PaymentsWithConfig returns the singleton payment metrics registry using config labels.
func PaymentsWithConfig(cfg Config) *PaymentMetrics {
	paymentMetricsOnce.Do(func() {
		paymentMetrics = newPaymentMetrics(prometheus.DefaultRegisterer, cfg)
	})
	return paymentMetrics
}

// ResetPaymentMetricsForTest resets the payment metrics singleton for tests.
func ResetPaymentMetricsForTest() {
	paymentMetricsOnce = sync.Once{}
	paymentMetrics = nil
}

func newPaymentMetrics(registerer prometheus.Registerer, cfg Config) *PaymentMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	labels := constLabels(cfg)

	transitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "payrecon_payment_transitions_total",
		Help:        "Payment status transitions committed by the reconciliation engine.",
		ConstLabels: labels,
	}, []string{"from", "to"})
	outcomes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "payrecon_reconcile_events_total",
		Help:        "Reconciliation results by event category and outcome.",
		ConstLabels: labels,
	}, []string{"event_type", "outcome"})
	sideEffects := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "payrecon_side_effects_total",
		Help:        "Post-commit side effects by kind and result.",
		ConstLabels: labels,
	}, []string{"kind", "result"})
	queueDepth := prometheus.NewGauge(prometheus.GaugeOpts{
		Name:        "payrecon_dispatch_queue_depth",
		Help:        "Side-effect tasks waiting in the in-process queue.",
		ConstLabels: labels,
	})

	registerer.MustRegister(transitions, outcomes, sideEffects, queueDepth)

	return &PaymentMetrics{
		transitions: transitions,
		outcomes:    outcomes,
		sideEffects: sideEffects,
		queueDepth:  queueDepth,
	}
}

func (m *PaymentMetrics) IncTransition(from, to string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(from, to).Inc()
}

func (m *PaymentMetrics) IncOutcome(eventType, outcome string) {
	if m == nil {
		return
	}
	m.outcomes.WithLabelValues(eventType, outcome).Inc()
}

func (m *PaymentMetrics) IncSideEffect(kind, result string) {
	if m == nil {
		return
	}
	m.sideEffects.WithLabelValues(kind, result).Inc()
}

func (m *PaymentMetrics) SetQueueDepth(depth int) {
	if m == nil {
		return
	}
	m.queueDepth.Set(float64(depth))
}
