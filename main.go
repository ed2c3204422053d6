// Package main provides the HTTP entry point for the lead lifecycle service
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/amirphl/lead-lifecycle/app/bootstrap"
	"github.com/amirphl/lead-lifecycle/app/handlers"
	"github.com/amirphl/lead-lifecycle/app/middleware"
	"github.com/amirphl/lead-lifecycle/app/router"
	"github.com/amirphl/lead-lifecycle/app/scheduler"
	"github.com/amirphl/lead-lifecycle/config"
	"github.com/amirphl/lead-lifecycle/logger"
)

func main() {
	cfg, err := config.LoadProductionConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	lg, err := logger.New(cfg.Logging)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer func() { _ = lg.Sync() }()

	lg.Info("Starting lead lifecycle service",
		zap.String("environment", cfg.Deployment.Environment),
		zap.String("version", cfg.Deployment.Version),
		zap.String("commit", cfg.Deployment.CommitHash),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	components, err := bootstrap.Build(ctx, cfg, lg)
	if err != nil {
		lg.Fatal("Failed to initialize application", zap.Error(err))
	}
	defer components.Close()

	if cfg.Scheduler.Enabled {
		s := scheduler.NewMaintenanceScheduler(components.Escalator, components.Purger, lg, scheduler.SchedulerOptions{
			Interval:   cfg.Scheduler.Interval,
			RunTimeout: cfg.Scheduler.RunTimeout,
			RunOnStart: cfg.Scheduler.RunOnStart,
		})
		components.OnClose(s.Start(ctx))
	}

	r := router.NewFiberRouter(
		handlers.NewLeadMaintenanceHandler(components.Escalator, components.Purger, components.Runs),
		handlers.NewLeadHandler(components.Leads),
		handlers.NewAuthHandler(components.Auth),
		handlers.NewAuditLogHandler(components.AuditLogs),
		middleware.NewAuthMiddleware(components.TokenService),
		lg,
		router.Options{
			AllowOrigins:     cfg.Security.AllowedOrigins,
			RateLimitPerMin:  cfg.Security.GlobalRateLimit,
			MaintenanceLimit: cfg.Security.MaintenanceRateLimit,
			MetricsEnabled:   cfg.Metrics.Enabled,
			MetricsPath:      cfg.Metrics.Path,
			BodyLimit:        cfg.Server.BodyLimit,
			ReadTimeout:      cfg.Server.ReadTimeout,
			WriteTimeout:     cfg.Server.WriteTimeout,
			IdleTimeout:      cfg.Server.IdleTimeout,
			ServiceVersion:   cfg.Deployment.Version,
			HealthChecks:     components.HealthChecks,
		},
	)
	r.SetupRoutes()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- r.Start(cfg.Server.Address())
	}()

	select {
	case sig := <-sigChan:
		lg.Info("Shutting down gracefully", zap.String("signal", sig.String()))
	case err := <-serverErr:
		lg.Error("Server stopped unexpectedly", zap.Error(err))
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := r.GetApp().ShutdownWithContext(shutdownCtx); err != nil {
		lg.Error("Error during shutdown", zap.Error(err))
	}

	lg.Info("Server stopped")
}
