package processor

import (
	"time"

	"github.com/smallbiznis/payrecon/internal/config"
	"github.com/smallbiznis/payrecon/internal/payment/domain"
	"go.uber.org/fx"
)

var Module = fx.Module("payment.processor",
	fx.Provide(
		SettingsFromConfig,
		New,
		func(c *Client) domain.Processor { return c },
	),
)

func SettingsFromConfig(cfg config.Config) StripeSettings {
	return StripeSettings{
		SecretKey:         cfg.Stripe.SecretKey,
		MaxNetworkRetries: 2,
		Timeout:           30 * time.Second,
	}
}
