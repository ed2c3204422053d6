// Package scheduler runs the lead maintenance operators on a fixed interval
package scheduler

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/amirphl/lead-lifecycle/app/dto"
	businessflow "github.com/amirphl/lead-lifecycle/business_flow"
)

const schedulerUserAgent = "lead-lifecycle-scheduler"

// MaintenanceScheduler periodically escalates stale leads and then purges aged ones
type MaintenanceScheduler struct {
	escalator businessflow.StaleLeadEscalator
	purger    businessflow.AgedLeadPurger
	logger    *zap.Logger

	interval   time.Duration
	runTimeout time.Duration
	runOnStart bool
}

// SchedulerOptions configures NewMaintenanceScheduler
type SchedulerOptions struct {
	Interval   time.Duration
	RunTimeout time.Duration
	RunOnStart bool
}

func NewMaintenanceScheduler(
	escalator businessflow.StaleLeadEscalator,
	purger businessflow.AgedLeadPurger,
	logger *zap.Logger,
	opts SchedulerOptions,
) *MaintenanceScheduler {
	if opts.Interval <= 0 {
		opts.Interval = 24 * time.Hour
	}
	if opts.RunTimeout <= 0 {
		opts.RunTimeout = 5 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &MaintenanceScheduler{
		escalator:  escalator,
		purger:     purger,
		logger:     logger.Named("scheduler"),
		interval:   opts.Interval,
		runTimeout: opts.RunTimeout,
		runOnStart: opts.RunOnStart,
	}
}

// Start launches the scheduler loop in a background goroutine and returns a stop function.
// The stop function blocks until an in-flight run has returned.
func (s *MaintenanceScheduler) Start(parent context.Context) func() {
	ctx, cancel := context.WithCancel(parent)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		if s.runOnStart {
			s.RunOnce(ctx)
		}

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.RunOnce(ctx)
			}
		}
	}()

	s.logger.Info("maintenance scheduler started", zap.Duration("interval", s.interval))

	return func() {
		cancel()
		wg.Wait()
		s.logger.Info("maintenance scheduler stopped")
	}
}

// RunOnce escalates first so a lead is never purged in the same pass it went idle.
// Both operators run as the system actor; configured API keys do not apply.
func (s *MaintenanceScheduler) RunOnce(parent context.Context) {
	if parent.Err() != nil {
		return
	}

	ctx, cancel := context.WithTimeout(parent, s.runTimeout)
	defer cancel()

	metadata := businessflow.NewClientMetadata("", schedulerUserAgent)
	metadata.AddAdditional("trigger", "scheduler")

	escalated, err := s.escalator.EscalateStaleLeadsAsSystem(ctx, &dto.MaintenanceRunRequest{}, metadata)
	if err != nil {
		s.logger.Error("scheduled escalation failed", zap.Error(err))
	} else {
		s.logger.Info("scheduled escalation finished", zap.Int("updated_count", escalated.UpdatedCount))
	}

	if ctx.Err() != nil {
		return
	}

	purged, err := s.purger.PurgeAgedLeadsAsSystem(ctx, &dto.MaintenanceRunRequest{}, metadata)
	if err != nil {
		s.logger.Error("scheduled purge failed", zap.Error(err))
		return
	}
	s.logger.Info("scheduled purge finished", zap.Int("deleted_count", purged.DeletedCount))
}
