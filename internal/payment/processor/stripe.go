package processor

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	obsmetrics "github.com/smallbiznis/payrecon/internal/observability/metrics"
	"github.com/smallbiznis/payrecon/internal/payment/domain"
	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Cfg        StripeSettings
	Log        *zap.Logger
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

// StripeSettings is the per-client configuration. Each client carries its own
// key so nothing global is mutated.
type StripeSettings struct {
	SecretKey string
	// BaseURL overrides the API endpoint; empty means the processor default.
	BaseURL           string
	MaxNetworkRetries int64
	Timeout           time.Duration
}

// Client implements domain.Processor on stripe-go.
type Client struct {
	api     *client.API
	log     *zap.Logger
	metrics *obsmetrics.Metrics
}

func New(p Params) (*Client, error) {
	if strings.TrimSpace(p.Cfg.SecretKey) == "" {
		return nil, errors.New("STRIPE_SECRET_KEY is required")
	}
	log := p.Log.Named("payment.processor")

	backendCfg := &stripe.BackendConfig{
		MaxNetworkRetries: stripe.Int64(p.Cfg.MaxNetworkRetries),
		LeveledLogger:     log.Sugar(),
	}
	if p.Cfg.BaseURL != "" {
		backendCfg.URL = stripe.String(p.Cfg.BaseURL)
	}
	if p.Cfg.Timeout > 0 {
		backendCfg.HTTPClient = &http.Client{Timeout: p.Cfg.Timeout}
	}
	backend := stripe.GetBackendWithConfig(stripe.APIBackend, backendCfg)

	api := &client.API{}
	api.Init(p.Cfg.SecretKey, &stripe.Backends{API: backend, Connect: backend, Uploads: backend})

	return &Client{api: api, log: log, metrics: p.ObsMetrics}, nil
}

func (c *Client) CreateIntent(ctx context.Context, input domain.CreateIntentInput) (*domain.Intent, error) {
	params := &stripe.PaymentIntentParams{
		Amount:      stripe.Int64(input.AmountMinor),
		Currency:    stripe.String(strings.ToLower(input.Currency)),
		Description: stripe.String(input.Description),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	params.Context = ctx
	for k, v := range input.Metadata {
		params.AddMetadata(k, v)
	}
	if input.IdempotencyKey != "" {
		params.SetIdempotencyKey(input.IdempotencyKey)
	}

	pi, err := c.api.PaymentIntents.New(params)
	err = c.observe(ctx, "create_intent", err)
	if err != nil {
		return nil, err
	}
	return toIntent(pi), nil
}

func (c *Client) RetrieveIntent(ctx context.Context, intentID string) (*domain.Intent, error) {
	params := &stripe.PaymentIntentParams{}
	params.Context = ctx

	pi, err := c.api.PaymentIntents.Get(intentID, params)
	err = c.observe(ctx, "retrieve_intent", err)
	if err != nil {
		return nil, err
	}
	return toIntent(pi), nil
}

// RefundCharge refunds the whole charge when amountMinor is nil.
func (c *Client) RefundCharge(ctx context.Context, chargeID string, amountMinor *int64, idempotencyKey string) (*domain.Refund, error) {
	params := &stripe.RefundParams{Charge: stripe.String(chargeID)}
	params.Context = ctx
	if amountMinor != nil {
		params.Amount = stripe.Int64(*amountMinor)
	}
	if idempotencyKey != "" {
		params.SetIdempotencyKey(idempotencyKey)
	}

	r, err := c.api.Refunds.New(params)
	err = c.observe(ctx, "refund_charge", err)
	if err != nil {
		return nil, err
	}
	return &domain.Refund{ID: r.ID, Status: string(r.Status), AmountMinor: r.Amount}, nil
}

func (c *Client) RetrievePaymentMethod(ctx context.Context, methodID string) (*domain.MethodDetails, error) {
	params := &stripe.PaymentMethodParams{}
	params.Context = ctx

	pm, err := c.api.PaymentMethods.Get(methodID, params)
	err = c.observe(ctx, "retrieve_method", err)
	if err != nil {
		return nil, err
	}
	details := &domain.MethodDetails{ID: pm.ID}
	if pm.Card != nil {
		details.Brand = string(pm.Card.Brand)
		details.Last4 = pm.Card.Last4
		details.ExpMonth = int(pm.Card.ExpMonth)
		details.ExpYear = int(pm.Card.ExpYear)
	}
	return details, nil
}

func (c *Client) DetachPaymentMethod(ctx context.Context, methodID string) error {
	params := &stripe.PaymentMethodDetachParams{}
	params.Context = ctx

	_, err := c.api.PaymentMethods.Detach(methodID, params)
	return c.observe(ctx, "detach_method", err)
}

func (c *Client) observe(ctx context.Context, operation string, err error) error {
	mapped := mapError(err)
	c.metrics.RecordProcessorCall(ctx, operation, outcomeOf(mapped))
	if mapped != nil {
		c.log.Warn("processor call failed", zap.String("operation", operation), zap.Error(mapped))
	}
	return mapped
}

func toIntent(pi *stripe.PaymentIntent) *domain.Intent {
	intent := &domain.Intent{
		ID:           pi.ID,
		ClientSecret: pi.ClientSecret,
		Status:       domain.IntentStatus(pi.Status),
		AmountMinor:  pi.Amount,
		Currency:     string(pi.Currency),
		Metadata:     pi.Metadata,
	}
	if pi.LatestCharge != nil {
		intent.LatestChargeID = pi.LatestCharge.ID
	}
	if pi.PaymentMethod != nil {
		intent.MethodID = pi.PaymentMethod.ID
	}
	if pi.LastPaymentError != nil {
		intent.LastError = pi.LastPaymentError.Msg
	}
	return intent
}

var _ domain.Processor = (*Client)(nil)
