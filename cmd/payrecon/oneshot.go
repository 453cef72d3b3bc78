package main

import (
	"context"
	"time"

	"github.com/smallbiznis/payrecon/internal/config"
	pkglog "github.com/smallbiznis/payrecon/pkg/log"
	"github.com/spf13/cobra"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
)

const oneShotTimeout = 30 * time.Second

// runOneShot starts a graph, runs fn against the populated targets and stops
// the graph again. fx lifecycle output goes through the command logger.
func runOneShot(cmd *cobra.Command, graph func(log *zap.Logger) fx.Option, fn func(ctx context.Context) error, targets ...interface{}) error {
	cfg := config.Load()
	level, _ := cmd.Flags().GetString("log-level")
	log, err := pkglog.New(cfg.AppName, cfg.Environment, level)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	app := fx.New(
		graph(log),
		fx.WithLogger(func() fxevent.Logger {
			return &fxevent.ZapLogger{Logger: log.Named("fx").WithOptions(zap.IncreaseLevel(zap.WarnLevel))}
		}),
		fx.Populate(targets...),
	)
	if err := app.Err(); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), oneShotTimeout)
	defer cancel()
	if err := app.Start(ctx); err != nil {
		return err
	}
	defer func() {
		stopCtx, stopCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer stopCancel()
		if err := app.Stop(stopCtx); err != nil {
			log.Warn("shutdown failed", zap.Error(err))
		}
	}()

	return fn(ctx)
}
