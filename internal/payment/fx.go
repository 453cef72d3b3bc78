package payment

import (
	"github.com/smallbiznis/payrecon/internal/cache"
	"github.com/smallbiznis/payrecon/internal/payment/dispatch"
	"github.com/smallbiznis/payrecon/internal/payment/domain"
	"github.com/smallbiznis/payrecon/internal/payment/gateway"
	"github.com/smallbiznis/payrecon/internal/payment/processor"
	"github.com/smallbiznis/payrecon/internal/payment/reconcile"
	"github.com/smallbiznis/payrecon/internal/payment/repository"
	paymentservice "github.com/smallbiznis/payrecon/internal/payment/service"
	"github.com/smallbiznis/payrecon/internal/payment/webhook"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

// Core wires the reconciliation engine and everything it needs. The scheduler
// runs on Core alone; the API adds the client flows and the webhook intake.
var Core = fx.Module("payment.core",
	fx.Provide(
		repository.ProvideLedger,
		repository.ProvidePayments,
		repository.ProvideOrders,
		repository.ProvideMethods,
		repository.NewItemPricer,
		provideUsers,
		reconcile.NewEngine,
	),
	processor.Module,
	dispatch.Module,
)

var Module = fx.Module("payment",
	Core,
	gateway.Module,
	fx.Provide(
		paymentservice.NewService,
		webhook.NewService,
	),
)

func provideUsers(conn *gorm.DB) domain.UserDirectory {
	return cache.NewUserDirectory(repository.NewUserDirectory(conn))
}
