package main

import (
	"context"
	"fmt"

	"github.com/smallbiznis/payrecon/internal/apikey"
	apikeydomain "github.com/smallbiznis/payrecon/internal/apikey/domain"
	"github.com/smallbiznis/payrecon/internal/audit"
	"github.com/smallbiznis/payrecon/internal/bootstrap"
	obscontext "github.com/smallbiznis/payrecon/internal/observability/context"
	"github.com/spf13/cobra"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

func apiKeyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "apikey",
		Short: "Manage API keys",
	}

	create := &cobra.Command{
		Use:   "create",
		Short: "Issue an API key for a user; the secret is printed once",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, _ := cmd.Flags().GetInt64("user")
			name, _ := cmd.Flags().GetString("name")
			role, _ := cmd.Flags().GetString("role")

			var svc apikeydomain.Service
			graph := func(*zap.Logger) fx.Option {
				return fx.Options(bootstrap.Infra, audit.Module, apikey.Module)
			}
			return runOneShot(cmd, graph, func(ctx context.Context) error {
				ctx = obscontext.WithActor(ctx, "system", "cli")
				secret, err := svc.Create(ctx, apikeydomain.CreateRequest{
					UserID: userID,
					Role:   role,
					Name:   name,
				})
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "id:      %s\napi_key: %s\n", secret.ID, secret.APIKey)
				return nil
			}, &svc)
		},
	}
	create.Flags().Int64("user", 0, "owning user id")
	create.Flags().String("name", "", "label for the key")
	create.Flags().String("role", apikeydomain.RoleUser, "user or admin")
	_ = create.MarkFlagRequired("user")
	_ = create.MarkFlagRequired("name")
	cmd.AddCommand(create)

	return cmd
}
