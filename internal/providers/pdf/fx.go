package pdf

import (
	"github.com/smallbiznis/payrecon/internal/config"
	"go.uber.org/fx"
)

var Module = fx.Module("providers.pdf",
	fx.Provide(func(cfg config.Config) Provider {
		return NewPDFProvider(cfg.AppName)
	}),
)
