package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/amirphl/lead-lifecycle/app/services"
)

func newTokenCmd(env *environment) *cobra.Command {
	var role string
	cmd := &cobra.Command{
		Use:   "token [actor-id]",
		Short: "Issue an access and refresh token pair for an actor",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if role != services.RoleAgent && role != services.RoleAdmin {
				return fmt.Errorf("role must be %q or %q", services.RoleAgent, services.RoleAdmin)
			}
			return env.withOperators(cmd.Context(), func(_ context.Context, ops *operators) error {
				access, refresh, err := ops.tokens.GenerateTokens(args[0], role)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), map[string]string{
					"actor_id":      args[0],
					"role":          role,
					"access_token":  access,
					"refresh_token": refresh,
				})
			})
		},
	}
	cmd.Flags().StringVar(&role, "role", services.RoleAgent, "actor role (agent or admin)")
	return cmd
}
