package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smallbiznis/payrecon/internal/apikey"
	apikeydomain "github.com/smallbiznis/payrecon/internal/apikey/domain"
	"github.com/smallbiznis/payrecon/internal/audit"
	auditdomain "github.com/smallbiznis/payrecon/internal/audit/domain"
	"github.com/smallbiznis/payrecon/internal/authorization"
	"github.com/smallbiznis/payrecon/internal/config"
	"github.com/smallbiznis/payrecon/internal/observability"
	obsmiddleware "github.com/smallbiznis/payrecon/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/payrecon/internal/observability/metrics"
	obstracing "github.com/smallbiznis/payrecon/internal/observability/tracing"
	"github.com/smallbiznis/payrecon/internal/payment"
	paymentservice "github.com/smallbiznis/payrecon/internal/payment/service"
	"github.com/smallbiznis/payrecon/internal/payment/webhook"
	"github.com/smallbiznis/payrecon/internal/ratelimit"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	authorization.Module,
	audit.Module,
	apikey.Module,
	payment.Module,
	ratelimit.Module,
	fx.Provide(NewEngine),
	fx.Provide(NewServer),
	fx.Invoke(func(s *Server) { s.RegisterRoutes() }),
	fx.Invoke(RunHTTP),
)

func NewEngine(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	if httpMetrics != nil {
		r.Use(httpMetrics.GinMiddleware())
	}
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func RunHTTP(lc fx.Lifecycle, cfg config.Config, r *gin.Engine, log *zap.Logger) {
	srv := &http.Server{
		Addr:              net.JoinHostPort("", cfg.HTTPPort),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			ln, err := net.Listen("tcp", srv.Addr)
			if err != nil {
				return err
			}
			log.Info("http server listening", zap.String("addr", srv.Addr))
			go func() {
				if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Error("http server stopped", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine     *gin.Engine
	cfg        config.Config
	log        *zap.Logger
	paymentSvc *paymentservice.Service
	webhookSvc *webhook.Service
	apiKeySvc  apikeydomain.Service
	authzSvc   authorization.Service
	auditSvc   auditdomain.Service
	limiter    *ratelimit.APILimiter
	obsMetrics *obsmetrics.Metrics
}

type ServerParams struct {
	fx.In

	Gin        *gin.Engine
	Cfg        config.Config
	Log        *zap.Logger
	PaymentSvc *paymentservice.Service
	WebhookSvc *webhook.Service
	APIKeySvc  apikeydomain.Service
	AuthzSvc   authorization.Service
	AuditSvc   auditdomain.Service   `optional:"true"`
	Limiter    *ratelimit.APILimiter `optional:"true"`
	ObsMetrics *obsmetrics.Metrics   `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	return &Server{
		engine:     p.Gin,
		cfg:        p.Cfg,
		log:        p.Log.Named("http.server"),
		paymentSvc: p.PaymentSvc,
		webhookSvc: p.WebhookSvc,
		apiKeySvc:  p.APIKeySvc,
		authzSvc:   p.AuthzSvc,
		auditSvc:   p.AuditSvc,
		limiter:    p.Limiter,
		obsMetrics: p.ObsMetrics,
	}
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) RegisterRoutes() {
	api := s.engine.Group("/api")

	// -------- Payment Webhooks --------
	// The processor authenticates with a signature, not an API key.
	api.POST("/payments/webhooks/stripe", s.HandleStripeWebhook)

	authed := api.Group("", s.APIKeyRequired(), s.RateLimit())

	if s.cfg.IsDevelopment() {
		authed.POST("/payments/webhooks/test", s.authorizeAction(authorization.ObjectWebhook, authorization.ActionWebhookReplay), s.HandleTestWebhook)
	}

	// -------- Payments --------
	authed.POST("/payments/intents", s.authorizeAction(authorization.ObjectPayment, authorization.ActionPaymentCreate), s.CreatePaymentIntent)
	authed.POST("/payments/confirm", s.authorizeAction(authorization.ObjectPayment, authorization.ActionPaymentConfirm), s.ConfirmPayment)
	authed.GET("/payments", s.authorizeAction(authorization.ObjectPayment, authorization.ActionPaymentView), s.ListPayments)
	authed.GET("/payments/:id", s.authorizeAction(authorization.ObjectPayment, authorization.ActionPaymentView), s.GetPayment)
	authed.GET("/payments/:id/status", s.authorizeAction(authorization.ObjectPayment, authorization.ActionPaymentView), s.GetPaymentStatus)
	authed.POST("/payments/:id/refund", s.authorizeAction(authorization.ObjectPayment, authorization.ActionPaymentRefund), s.RefundPayment)
	authed.DELETE("/payments/:id", s.authorizeAction(authorization.ObjectPayment, authorization.ActionPaymentDelete), s.DeletePayment)

	// -------- Payment Methods --------
	authed.GET("/payment-methods", s.authorizeAction(authorization.ObjectPaymentMethod, authorization.ActionPaymentMethodView), s.ListPaymentMethods)
	authed.POST("/payment-methods", s.authorizeAction(authorization.ObjectPaymentMethod, authorization.ActionPaymentMethodCreate), s.CreatePaymentMethod)
	authed.GET("/payment-methods/:id", s.authorizeAction(authorization.ObjectPaymentMethod, authorization.ActionPaymentMethodView), s.GetPaymentMethod)
	authed.PATCH("/payment-methods/:id", s.authorizeAction(authorization.ObjectPaymentMethod, authorization.ActionPaymentMethodUpdate), s.UpdatePaymentMethod)
	authed.DELETE("/payment-methods/:id", s.authorizeAction(authorization.ObjectPaymentMethod, authorization.ActionPaymentMethodDelete), s.DeletePaymentMethod)

	// -------- Audit --------
	authed.GET("/audit-logs", s.authorizeAction(authorization.ObjectAuditLog, authorization.ActionAuditLogView), s.ListAuditLogs)
}
