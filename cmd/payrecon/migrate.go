package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/smallbiznis/payrecon/internal/config"
	"github.com/smallbiznis/payrecon/internal/migration"
	"github.com/smallbiznis/payrecon/pkg/db"
	"github.com/spf13/cobra"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var errNotPostgres = errors.New("migrations only run against postgres")

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the database schema",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSchema(cmd, func(ctx context.Context, conn *gorm.DB) error {
				sqlDB, err := conn.DB()
				if err != nil {
					return err
				}
				if err := migration.RunMigrations(sqlDB); err != nil {
					return err
				}
				return printVersion(cmd, conn)
			})
		},
	})

	down := &cobra.Command{
		Use:   "down",
		Short: "Roll back the most recent migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			steps, _ := cmd.Flags().GetInt("steps")
			if steps <= 0 {
				return fmt.Errorf("--steps must be positive, got %d", steps)
			}
			return withSchema(cmd, func(ctx context.Context, conn *gorm.DB) error {
				sqlDB, err := conn.DB()
				if err != nil {
					return err
				}
				if err := migration.Rollback(sqlDB, steps); err != nil {
					return err
				}
				return printVersion(cmd, conn)
			})
		},
	}
	down.Flags().Int("steps", 1, "number of migrations to roll back")
	cmd.AddCommand(down)

	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the applied schema version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSchema(cmd, func(ctx context.Context, conn *gorm.DB) error {
				return printVersion(cmd, conn)
			})
		},
	})
	return cmd
}

func withSchema(cmd *cobra.Command, fn func(ctx context.Context, conn *gorm.DB) error) error {
	var (
		conn *gorm.DB
		cfg  config.Config
	)
	graph := func(log *zap.Logger) fx.Option {
		return fx.Options(
			config.Module,
			fx.Supply(log),
			db.Module,
		)
	}
	return runOneShot(cmd, graph, func(ctx context.Context) error {
		if cfg.DBType != "postgres" {
			return fmt.Errorf("%w: DATABASE_TYPE=%s", errNotPostgres, cfg.DBType)
		}
		return fn(ctx, conn)
	}, &conn, &cfg)
}

func printVersion(cmd *cobra.Command, conn *gorm.DB) error {
	sqlDB, err := conn.DB()
	if err != nil {
		return err
	}
	version, dirty, err := migration.Version(sqlDB)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "schema version %d (dirty=%t)\n", version, dirty)
	return nil
}
