// Package bootstrap assembles the fx graphs shared by the binaries.
package bootstrap

import (
	"fmt"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/payrecon/internal/clock"
	"github.com/smallbiznis/payrecon/internal/config"
	"github.com/smallbiznis/payrecon/internal/migration"
	"github.com/smallbiznis/payrecon/internal/observability"
	"github.com/smallbiznis/payrecon/internal/payment"
	"github.com/smallbiznis/payrecon/internal/providers"
	"github.com/smallbiznis/payrecon/internal/ratelimit"
	"github.com/smallbiznis/payrecon/internal/scheduler"
	"github.com/smallbiznis/payrecon/internal/server"
	"github.com/smallbiznis/payrecon/pkg/db"
	"go.uber.org/fx"
)

// Infra is what every process needs before any payment code runs.
var Infra = fx.Options(
	config.Module,
	observability.Module,
	fx.Provide(RegisterSnowflake),
	db.Module,
	clock.Module,
	providers.Module,
)

// API serves the client flows and the webhook intake.
func API() fx.Option {
	return fx.Options(
		Infra,
		migration.Module,
		server.Module,
	)
}

// Scheduler runs the background jobs without an HTTP listener.
func Scheduler() fx.Option {
	return fx.Options(
		Infra,
		payment.Core,
		ratelimit.Module,
		scheduler.Module,
	)
}

// Worker is the graph for one-shot commands: the engine and its
// collaborators, no listeners and no job loop.
func Worker() fx.Option {
	return fx.Options(
		Infra,
		payment.Core,
		ratelimit.Module,
		fx.Provide(scheduler.ProvideConfig, scheduler.New),
	)
}

func RegisterSnowflake(cfg config.Config) (*snowflake.Node, error) {
	node, err := snowflake.NewNode(cfg.NodeID)
	if err != nil {
		return nil, fmt.Errorf("snowflake node %d: %w", cfg.NodeID, err)
	}
	return node, nil
}
