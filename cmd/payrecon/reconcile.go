package main

import (
	"context"
	"fmt"

	"github.com/smallbiznis/payrecon/internal/bootstrap"
	obscontext "github.com/smallbiznis/payrecon/internal/observability/context"
	"github.com/smallbiznis/payrecon/internal/scheduler"
	pkglog "github.com/smallbiznis/payrecon/pkg/log"
	"github.com/smallbiznis/payrecon/pkg/log/ctxlogger"
	"github.com/spf13/cobra"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

func reconcileCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Pull one intent from the processor and apply its state",
		Long: `Reconcile fetches the processor's current view of a payment intent and
applies it through the same engine that handles webhooks. Use it when a
webhook was lost and the payment should not wait for the stale intent job.

Examples:
  payrecon reconcile --intent pi_3Nx...`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			intentID, _ := cmd.Flags().GetString("intent")
			var sched *scheduler.Scheduler
			graph := func(*zap.Logger) fx.Option { return bootstrap.Worker() }
			return runOneShot(cmd, graph, func(ctx context.Context) error {
				ctx = obscontext.WithActor(ctx, "system", "cli")
				ctx = ctxlogger.WithIntent(ctxlogger.WithCommand(ctx, "reconcile"), intentID)
				res, err := sched.ReconcileIntent(ctx, intentID)
				if err != nil {
					pkglog.L(ctx).Error("reconcile failed", zap.Error(err))
					return err
				}
				pkglog.L(ctx).Info("reconcile finished",
					zap.String("payment_id", res.PaymentID.String()),
					zap.String("outcome", res.Outcome()),
				)
				if res.NotFound {
					return fmt.Errorf("no payment recorded for intent %s", intentID)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "payment %s: %s -> %s (%s)\n",
					res.PaymentID, res.From, res.To, res.Outcome())
				return nil
			}, &sched)
		},
	}
	cmd.Flags().String("intent", "", "processor intent id")
	_ = cmd.MarkFlagRequired("intent")
	return cmd
}
