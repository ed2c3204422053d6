package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/amirphl/lead-lifecycle/app/bootstrap"
	"github.com/amirphl/lead-lifecycle/app/services"
	businessflow "github.com/amirphl/lead-lifecycle/business_flow"
	"github.com/amirphl/lead-lifecycle/config"
	"github.com/amirphl/lead-lifecycle/logger"
	"github.com/amirphl/lead-lifecycle/models"
)

// operators is the slice of the application the CLI drives
type operators struct {
	escalator businessflow.StaleLeadEscalator
	purger    businessflow.AgedLeadPurger
	runs      businessflow.MaintenanceRunFlow
	tokens    services.TokenService
	migrate   func() error
}

// environment builds operators on demand so commands that fail flag parsing never dial a store
type environment struct {
	build   func(ctx context.Context) (*operators, func(), error)
	timeout time.Duration
}

func defaultEnvironment() *environment {
	return &environment{build: buildFromConfig}
}

func buildFromConfig(ctx context.Context) (*operators, func(), error) {
	cfg, err := config.LoadProductionConfig()
	if err != nil {
		return nil, nil, err
	}
	lg, err := logger.New(cfg.Logging)
	if err != nil {
		return nil, nil, err
	}

	c, err := bootstrap.Build(ctx, cfg, lg)
	if err != nil {
		_ = lg.Sync()
		return nil, nil, err
	}

	ops := &operators{
		escalator: c.Escalator,
		purger:    c.Purger,
		runs:      c.Runs,
		tokens:    c.TokenService,
		migrate: func() error {
			return c.DB.AutoMigrate(&models.Lead{}, &models.AuditLog{})
		},
	}
	cleanup := func() {
		c.Close()
		_ = lg.Sync()
	}
	lg.Debug("leadctl components ready", zap.String("environment", cfg.Deployment.Environment))
	return ops, cleanup, nil
}

func newRootCmd(env *environment) *cobra.Command {
	root := &cobra.Command{
		Use:   "leadctl",
		Short: "Lead lifecycle maintenance tool",
		Long: `leadctl runs the lead lifecycle operators against the configured database.

Configuration is read from the environment and an optional .env file, the same
way the HTTP service reads it.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().DurationVar(&env.timeout, "timeout", 5*time.Minute, "upper bound for one command, 0 disables it")

	root.AddCommand(
		newEscalateCmd(env),
		newPurgeCmd(env),
		newRunCmd(env),
		newLastRunCmd(env),
		newTokenCmd(env),
		newMigrateCmd(env),
	)
	return root
}

// withOperators builds the operators for the duration of fn
func (e *environment) withOperators(ctx context.Context, fn func(ctx context.Context, ops *operators) error) error {
	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	ops, cleanup, err := e.build(ctx)
	if err != nil {
		return err
	}
	defer cleanup()
	return fn(ctx, ops)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("failed to encode output: %w", err)
	}
	return nil
}
