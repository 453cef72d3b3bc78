package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/smallbiznis/payrecon/internal/audit/domain"
	"github.com/smallbiznis/payrecon/internal/clock"
	"github.com/smallbiznis/payrecon/internal/config"
	"github.com/smallbiznis/payrecon/internal/payment/domain"
	"github.com/smallbiznis/payrecon/internal/payment/reconcile"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB        *gorm.DB
	Log       *zap.Logger
	Cfg       config.Config
	Clock     clock.Clock
	GenID     *snowflake.Node
	Engine    *reconcile.Engine
	Processor domain.Processor
	Payments  domain.PaymentRepository
	Orders    domain.OrderRepository
	Methods   domain.MethodRepository
	Pricer    domain.ItemPricer
	Users     domain.UserDirectory
	Audit     auditdomain.Service `optional:"true"`
}

// Service implements the client-facing payment flows. It never changes a
// payment's status itself: every observed outcome goes through the engine.
type Service struct {
	db        *gorm.DB
	log       *zap.Logger
	clock     clock.Clock
	genID     *snowflake.Node
	currency  string
	engine    *reconcile.Engine
	processor domain.Processor
	payments  domain.PaymentRepository
	orders    domain.OrderRepository
	methods   domain.MethodRepository
	pricer    domain.ItemPricer
	users     domain.UserDirectory
	audit     auditdomain.Service
}

func NewService(p Params) *Service {
	clk := p.Clock
	if clk == nil {
		clk = clock.System()
	}
	currency := strings.ToUpper(strings.TrimSpace(p.Cfg.Stripe.Currency))
	if currency == "" {
		currency = domain.DefaultCurrency
	}
	return &Service{
		db:        p.DB,
		log:       p.Log.Named("payment.service"),
		clock:     clk,
		genID:     p.GenID,
		currency:  currency,
		engine:    p.Engine,
		processor: p.Processor,
		payments:  p.Payments,
		orders:    p.Orders,
		methods:   p.Methods,
		pricer:    p.Pricer,
		users:     p.Users,
		audit:     p.Audit,
	}
}

// record writes an audit entry. The action already happened, so a failed
// write is logged and never returned.
func (s *Service) record(ctx context.Context, entry auditdomain.Entry) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, entry); err != nil {
		s.log.Warn("audit record failed",
			zap.String("action", entry.Action),
			zap.String("target_id", entry.TargetID),
			zap.Error(err),
		)
	}
}
