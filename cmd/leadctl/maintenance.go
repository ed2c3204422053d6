package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/amirphl/lead-lifecycle/app/dto"
	businessflow "github.com/amirphl/lead-lifecycle/business_flow"
)

type runFlags struct {
	referenceDate string
	days          float64
	apiKey        string
}

func (f *runFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.referenceDate, "reference-date", "", "ISO-8601 date or timestamp to measure idleness from (default now)")
	cmd.Flags().Float64Var(&f.days, "days", 0, "idle days threshold (default from configuration)")
	cmd.Flags().StringVar(&f.apiKey, "api-key", "", "maintenance API key")
}

// request only carries flags the user actually set so the flows apply their own defaults
func (f *runFlags) request(cmd *cobra.Command, apiKey string) *dto.MaintenanceRunRequest {
	req := &dto.MaintenanceRunRequest{}
	if cmd.Flags().Changed("reference-date") {
		v := f.referenceDate
		req.ReferenceDate = &v
	}
	if cmd.Flags().Changed("days") {
		v := f.days
		req.DaysThreshold = &v
	}
	if apiKey != "" {
		req.APIKey = &apiKey
	}
	return req
}

func cliMetadata(command string) *businessflow.ClientMetadata {
	metadata := businessflow.NewClientMetadata("", "leadctl")
	metadata.AddAdditional("trigger", "cli")
	metadata.AddAdditional("command", command)
	return metadata
}

func newEscalateCmd(env *environment) *cobra.Command {
	var flags runFlags
	cmd := &cobra.Command{
		Use:   "escalate",
		Short: "Move active leads idle past the threshold to give_up",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return env.withOperators(cmd.Context(), func(ctx context.Context, ops *operators) error {
				res, err := ops.escalator.EscalateStaleLeads(ctx, flags.request(cmd, flags.apiKey), cliMetadata("escalate"))
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), res)
			})
		},
	}
	flags.register(cmd)
	return cmd
}

func newPurgeCmd(env *environment) *cobra.Command {
	var flags runFlags
	cmd := &cobra.Command{
		Use:   "purge",
		Short: "Delete terminal leads idle past the threshold",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return env.withOperators(cmd.Context(), func(ctx context.Context, ops *operators) error {
				res, err := ops.purger.PurgeAgedLeads(ctx, flags.request(cmd, flags.apiKey), cliMetadata("purge"))
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), res)
			})
		},
	}
	flags.register(cmd)
	return cmd
}

func newRunCmd(env *environment) *cobra.Command {
	var (
		referenceDate string
		escalationKey string
		purgeKey      string
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Escalate stale leads, then purge aged ones, with configured thresholds",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return env.withOperators(cmd.Context(), func(ctx context.Context, ops *operators) error {
				var ref *string
				if cmd.Flags().Changed("reference-date") {
					ref = &referenceDate
				}
				escReq := &dto.MaintenanceRunRequest{ReferenceDate: ref}
				if escalationKey != "" {
					escReq.APIKey = &escalationKey
				}
				escalated, err := ops.escalator.EscalateStaleLeads(ctx, escReq, cliMetadata("run"))
				if err != nil {
					return fmt.Errorf("escalation: %w", err)
				}

				purgeReq := &dto.MaintenanceRunRequest{ReferenceDate: ref}
				if purgeKey != "" {
					purgeReq.APIKey = &purgeKey
				}
				purged, err := ops.purger.PurgeAgedLeads(ctx, purgeReq, cliMetadata("run"))
				if err != nil {
					return fmt.Errorf("purge: %w", err)
				}

				return printJSON(cmd.OutOrStdout(), map[string]any{
					"escalation": escalated,
					"purge":      purged,
				})
			})
		},
	}
	cmd.Flags().StringVar(&referenceDate, "reference-date", "", "ISO-8601 date or timestamp to measure idleness from (default now)")
	cmd.Flags().StringVar(&escalationKey, "escalation-api-key", "", "API key for the escalation operator")
	cmd.Flags().StringVar(&purgeKey, "purge-api-key", "", "API key for the purge operator")
	return cmd
}

func newLastRunCmd(env *environment) *cobra.Command {
	return &cobra.Command{
		Use:       "last-run [operator]",
		Short:     "Show the last recorded run of an operator",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{businessflow.OperatorStaleLeadEscalator, businessflow.OperatorAgedLeadPurger},
		RunE: func(cmd *cobra.Command, args []string) error {
			return env.withOperators(cmd.Context(), func(ctx context.Context, ops *operators) error {
				summary, err := ops.runs.LastRun(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), summary)
			})
		},
	}
}

func newMigrateCmd(env *environment) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the leads and audit_log tables",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return env.withOperators(cmd.Context(), func(_ context.Context, ops *operators) error {
				if err := ops.migrate(); err != nil {
					return fmt.Errorf("migration failed: %w", err)
				}
				_, err := fmt.Fprintln(cmd.OutOrStdout(), "schema up to date")
				return err
			})
		},
	}
}
