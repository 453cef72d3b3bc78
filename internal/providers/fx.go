package providers

import (
	"github.com/smallbiznis/payrecon/internal/providers/email"
	"github.com/smallbiznis/payrecon/internal/providers/pdf"
	"github.com/smallbiznis/payrecon/internal/providers/slack"
	"go.uber.org/fx"
)

// Module provides the outbound delivery channels the dispatcher sends through.
var Module = fx.Module("providers",
	email.Module,
	slack.Module,
	pdf.Module,
)
