package webhook

import (
	"context"
	"errors"

	obsmetrics "github.com/smallbiznis/payrecon/internal/observability/metrics"
	"github.com/smallbiznis/payrecon/internal/payment/domain"
	"github.com/smallbiznis/payrecon/internal/payment/gateway"
	"github.com/smallbiznis/payrecon/internal/payment/reconcile"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const provider = "stripe"

type Params struct {
	fx.In

	Log        *zap.Logger
	Gateway    *gateway.Gateway
	Engine     *reconcile.Engine
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

// Service is the inbound half of the processor integration: it authenticates
// a delivery, decodes it and hands the typed event to the engine.
type Service struct {
	log        *zap.Logger
	gateway    *gateway.Gateway
	engine     *reconcile.Engine
	obsMetrics *obsmetrics.Metrics
}

// Receipt is what the processor is told about an accepted delivery.
type Receipt struct {
	EventID   string
	EventType domain.EventType
	Duplicate bool
	Ignored   bool
	Outcome   string
}

func NewService(p Params) *Service {
	return &Service{
		log:        p.Log.Named("payment.webhook"),
		gateway:    p.Gateway,
		engine:     p.Engine,
		obsMetrics: p.ObsMetrics,
	}
}

// IngestWebhook verifies the signature before anything in the body is
// trusted. A returned ErrNotFound leaves the ledger unmarked so a redelivery
// can still apply once the record exists.
func (s *Service) IngestWebhook(ctx context.Context, payload []byte, signature string) (Receipt, error) {
	ev, err := s.gateway.VerifyAndParse(payload, signature)
	return s.ingest(ctx, ev, err)
}

// IngestUnsigned runs a delivery through the engine without a signature
// check. It backs the development self-test endpoint only.
func (s *Service) IngestUnsigned(ctx context.Context, payload []byte) (Receipt, error) {
	ev, err := gateway.Parse(payload)
	return s.ingest(ctx, ev, err)
}

func (s *Service) ingest(ctx context.Context, ev domain.Event, parseErr error) (Receipt, error) {
	var receipt Receipt
	if ev != nil {
		receipt.EventID = ev.EventID()
		receipt.EventType = ev.Type()
	}
	log := s.log.With(
		zap.String("event_id", receipt.EventID),
		zap.String("event_type", string(receipt.EventType)),
	)

	if parseErr != nil {
		if errors.Is(parseErr, domain.ErrEventIgnored) {
			receipt.Ignored = true
			receipt.Outcome = "ignored"
			log.Debug("webhook event ignored")
			s.record(ctx, receipt)
			return receipt, nil
		}
		receipt.Outcome = "rejected"
		log.Warn("webhook rejected", zap.Error(parseErr))
		s.record(ctx, receipt)
		return receipt, parseErr
	}

	res, err := s.engine.Handle(ctx, ev)
	receipt.Outcome = res.Outcome()
	receipt.Duplicate = res.Duplicate
	if err != nil {
		receipt.Outcome = obsmetrics.OutcomeError
		s.record(ctx, receipt)
		return receipt, err
	}
	s.record(ctx, receipt)
	if res.NotFound {
		log.Warn("webhook references unknown payment")
		return receipt, domain.ErrNotFound
	}
	if res.PartialSuccess {
		log.Warn("payment reconciled but order sync deferred", zap.Error(res.OrderError))
	}
	return receipt, nil
}

func (s *Service) record(ctx context.Context, r Receipt) {
	s.obsMetrics.RecordWebhookDelivery(ctx, provider, string(r.EventType), r.Outcome)
}
