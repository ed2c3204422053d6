package businessflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/amirphl/lead-lifecycle/app/dto"
	"github.com/amirphl/lead-lifecycle/app/services"
	"github.com/amirphl/lead-lifecycle/models"
	"github.com/amirphl/lead-lifecycle/repository"
	"github.com/amirphl/lead-lifecycle/utils"
)

// Maintenance operator names used in metrics, run summaries and events
const (
	OperatorStaleLeadEscalator = "stale_lead_escalator"
	OperatorAgedLeadPurger     = "aged_lead_purger"
)

// MaintenanceOperatorConfig is resolved once when an operator is constructed
type MaintenanceOperatorConfig struct {
	APIKey        string
	RequireAPIKey bool
	// DefaultThresholdDays is the raw configured value; unparsable values fall back
	DefaultThresholdDays string
	SystemActorID        string
	// BatchSize only applies to the purger; <= 0 deletes in one statement
	BatchSize int
}

// MaintenanceSinks are the best-effort side channels notified after a run. Nil members are no-ops.
type MaintenanceSinks struct {
	Events   services.LeadEventPublisher
	Mailer   services.RunReportMailer
	RunStore services.MaintenanceRunStore
	Metrics  services.MaintenanceMetrics
}

func (s MaintenanceSinks) withDefaults() MaintenanceSinks {
	if s.Events == nil {
		s.Events = services.NoopEventPublisher{}
	}
	if s.Mailer == nil {
		s.Mailer = services.NoopRunReportMailer{}
	}
	if s.RunStore == nil {
		s.RunStore = services.NoopRunStore{}
	}
	if s.Metrics == nil {
		s.Metrics = services.PrometheusMaintenanceMetrics{}
	}
	return s
}

// StaleLeadEscalator moves long-idle active leads to give_up.
// The AsSystem variant is for in-process triggers and ignores req.APIKey.
type StaleLeadEscalator interface {
	EscalateStaleLeads(ctx context.Context, req *dto.MaintenanceRunRequest, metadata *ClientMetadata) (*dto.EscalateStaleLeadsResponse, error)
	EscalateStaleLeadsAsSystem(ctx context.Context, req *dto.MaintenanceRunRequest, metadata *ClientMetadata) (*dto.EscalateStaleLeadsResponse, error)
}

// AgedLeadPurger permanently deletes long-idle terminal leads.
// The AsSystem variant is for in-process triggers and ignores req.APIKey.
type AgedLeadPurger interface {
	PurgeAgedLeads(ctx context.Context, req *dto.MaintenanceRunRequest, metadata *ClientMetadata) (*dto.PurgeAgedLeadsResponse, error)
	PurgeAgedLeadsAsSystem(ctx context.Context, req *dto.MaintenanceRunRequest, metadata *ClientMetadata) (*dto.PurgeAgedLeadsResponse, error)
}

// MaintenanceRunFlow exposes the last recorded run of each operator
type MaintenanceRunFlow interface {
	LastRun(ctx context.Context, operator string) (*dto.MaintenanceRunSummary, error)
}

// maintenanceRun carries the resolved parameters of one invocation
type maintenanceRun struct {
	id        string
	operator  string
	reference time.Time
	days      float64
	cutoff    time.Time
	startedAt time.Time
	metadata  *ClientMetadata
}

// maintenanceOperator holds what both operators share
type maintenanceOperator struct {
	name         string
	leadRepo     repository.LeadRepository
	auditRepo    repository.AuditLogRepository
	apiKeys      APIKeyPolicy
	thresholds   ThresholdPolicy
	systemActor  string
	sinks        MaintenanceSinks
	logger       *zap.Logger
	clock        func() time.Time
	newRunID     func() string
	successEvent string
	routingKey   string
}

func newMaintenanceOperator(name string, fallbackDays float64, leadRepo repository.LeadRepository, auditRepo repository.AuditLogRepository, cfg MaintenanceOperatorConfig, sinks MaintenanceSinks, logger *zap.Logger) maintenanceOperator {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("operator", name))

	thresholds, ok := NewThresholdPolicy(cfg.DefaultThresholdDays, fallbackDays)
	if !ok {
		logger.Warn("configured threshold is not a valid number of days, using fallback",
			zap.String("configured", cfg.DefaultThresholdDays),
			zap.Float64("fallback_days", fallbackDays),
		)
	}

	apiKeys := NewAPIKeyPolicy(cfg.APIKey, cfg.RequireAPIKey)
	if !apiKeys.Configured() {
		logger.Warn("no API key configured, requests carrying a key will be rejected",
			zap.Bool("key_required", apiKeys.Required()),
		)
	}

	systemActor := cfg.SystemActorID
	if systemActor == "" {
		systemActor = utils.DefaultSystemActorID
	}

	return maintenanceOperator{
		name:        name,
		leadRepo:    leadRepo,
		auditRepo:   auditRepo,
		apiKeys:     apiKeys,
		thresholds:  thresholds,
		systemActor: systemActor,
		sinks:       sinks.withDefaults(),
		logger:      logger,
		clock:       utils.UTCNow,
		newRunID:    func() string { return uuid.NewString() },
	}
}

// begin authorizes the request and resolves T, D and the cutoff. No store access happens here.
func (o *maintenanceOperator) begin(req *dto.MaintenanceRunRequest, metadata *ClientMetadata) (*maintenanceRun, error) {
	if req == nil {
		req = &dto.MaintenanceRunRequest{}
	}

	if err := o.apiKeys.Authorize(req.APIKey); err != nil {
		return nil, err
	}
	return o.resolve(req, metadata)
}

// resolve is begin without the API key check
func (o *maintenanceOperator) resolve(req *dto.MaintenanceRunRequest, metadata *ClientMetadata) (*maintenanceRun, error) {
	if req == nil {
		req = &dto.MaintenanceRunRequest{}
	}

	startedAt := o.clock()

	reference, err := ResolveReferenceTime(req.ReferenceDate, startedAt)
	if err != nil {
		return nil, err
	}

	days, err := o.thresholds.Resolve(req.DaysThreshold)
	if err != nil {
		return nil, err
	}

	return &maintenanceRun{
		id:        o.newRunID(),
		operator:  o.name,
		reference: reference,
		days:      days,
		cutoff:    Cutoff(reference, days),
		startedAt: startedAt,
		metadata:  metadata,
	}, nil
}

func (o *maintenanceOperator) summary(run *maintenanceRun, affected int) dto.MaintenanceRunSummary {
	finishedAt := o.clock()
	return dto.MaintenanceRunSummary{
		RunID:         run.id,
		Operator:      run.operator,
		ReferenceDate: formatTimestamp(run.reference),
		DaysThreshold: run.days,
		Cutoff:        formatTimestamp(run.cutoff),
		AffectedCount: affected,
		StartedAt:     formatTimestamp(run.startedAt),
		FinishedAt:    formatTimestamp(finishedAt),
		DurationMs:    finishedAt.Sub(run.startedAt).Milliseconds(),
	}
}

// fail records a persistence failure and returns the error handed to the caller
func (o *maintenanceOperator) fail(ctx context.Context, run *maintenanceRun, cause error) error {
	o.sinks.Metrics.ObserveRun(o.name, services.OutcomeFailure, 0, o.clock().Sub(run.startedAt))

	o.logger.Error("maintenance run failed",
		zap.String("run_id", run.id),
		zap.Time("cutoff", run.cutoff),
		zap.Error(cause),
	)

	errMsg := cause.Error()
	o.audit(ctx, run, models.AuditActionMaintenanceFailed, fmt.Sprintf("%s run failed", o.name), false, &errMsg, nil)

	return newPersistenceError(fmt.Sprintf("Failed to run %s", o.name), cause)
}

// finish notifies every side channel. Failures are logged and never surface to the caller.
func (o *maintenanceOperator) finish(ctx context.Context, run *maintenanceRun, action string, leads []dto.LeadSnapshotDTO) {
	summary := o.summary(run, len(leads))

	o.sinks.Metrics.ObserveRun(o.name, services.OutcomeSuccess, len(leads), time.Duration(summary.DurationMs)*time.Millisecond)

	o.logger.Info("maintenance run completed",
		zap.String("run_id", run.id),
		zap.Time("reference_date", run.reference),
		zap.Float64("days_threshold", run.days),
		zap.Time("cutoff", run.cutoff),
		zap.Int("affected", len(leads)),
	)

	ids := make([]uint, 0, len(leads))
	for _, l := range leads {
		ids = append(ids, l.ID)
	}
	o.audit(ctx, run, action, fmt.Sprintf("%s affected %d lead(s)", o.name, len(leads)), true, nil, map[string]any{
		"affected_count": len(leads),
		"lead_ids":       ids,
	})

	if err := o.sinks.RunStore.SaveLastRun(ctx, summary); err != nil {
		o.logger.Warn("failed to store run summary", zap.String("run_id", run.id), zap.Error(err))
	}

	if len(leads) == 0 {
		return
	}

	event := services.LeadLifecycleEvent{
		Event:         o.successEvent,
		RunID:         run.id,
		Operator:      o.name,
		ReferenceDate: summary.ReferenceDate,
		DaysThreshold: run.days,
		Cutoff:        summary.Cutoff,
		Leads:         leads,
		OccurredAt:    summary.FinishedAt,
	}
	if err := o.sinks.Events.PublishLeadEvent(ctx, o.routingKey, event); err != nil {
		o.logger.Warn("failed to publish lead event", zap.String("run_id", run.id), zap.Error(err))
	}

	if err := o.sinks.Mailer.SendRunReport(ctx, summary, leads); err != nil {
		o.logger.Warn("failed to send run report", zap.String("run_id", run.id), zap.Error(err))
	}
}

func (o *maintenanceOperator) audit(ctx context.Context, run *maintenanceRun, action, description string, success bool, errorMsg *string, extra map[string]any) {
	meta := map[string]any{
		"run_id":         run.id,
		"operator":       run.operator,
		"reference_date": formatTimestamp(run.reference),
		"days_threshold": run.days,
		"cutoff":         formatTimestamp(run.cutoff),
	}
	for k, v := range extra {
		meta[k] = v
	}
	raw, err := json.Marshal(meta)
	if err != nil {
		raw = nil
	}

	entry := &models.AuditLog{
		ActorID:      utils.ToPtr(o.systemActor),
		Action:       action,
		Description:  &description,
		Metadata:     raw,
		Success:      utils.ToPtr(success),
		ErrorMessage: errorMsg,
	}
	if run.metadata != nil {
		entry.IPAddress = &run.metadata.IPAddress
		entry.UserAgent = &run.metadata.UserAgent
		if run.metadata.RequestID != "" {
			entry.RequestID = &run.metadata.RequestID
		}
	}

	if err := o.auditRepo.Save(ctx, entry); err != nil {
		o.logger.Warn("failed to write audit log", zap.String("action", action), zap.Error(err))
	}
}

// StaleLeadEscalatorImpl implements StaleLeadEscalator
type StaleLeadEscalatorImpl struct {
	maintenanceOperator
}

// NewStaleLeadEscalator creates the escalation operator; the threshold falls back to 14 days
func NewStaleLeadEscalator(
	leadRepo repository.LeadRepository,
	auditRepo repository.AuditLogRepository,
	cfg MaintenanceOperatorConfig,
	sinks MaintenanceSinks,
	logger *zap.Logger,
) StaleLeadEscalator {
	op := newMaintenanceOperator(OperatorStaleLeadEscalator, utils.DefaultEscalationThresholdDays, leadRepo, auditRepo, cfg, sinks, logger)
	op.successEvent = models.AuditActionLeadsEscalated
	op.routingKey = services.RoutingKeyLeadsEscalated
	return &StaleLeadEscalatorImpl{maintenanceOperator: op}
}

// EscalateStaleLeads sets every active lead idle since before the cutoff to give_up in one statement
func (s *StaleLeadEscalatorImpl) EscalateStaleLeads(ctx context.Context, req *dto.MaintenanceRunRequest, metadata *ClientMetadata) (*dto.EscalateStaleLeadsResponse, error) {
	run, err := s.begin(req, metadata)
	if err != nil {
		return nil, err
	}
	return s.escalate(ctx, run)
}

// EscalateStaleLeadsAsSystem runs the escalation for the scheduler, which holds no plaintext key
func (s *StaleLeadEscalatorImpl) EscalateStaleLeadsAsSystem(ctx context.Context, req *dto.MaintenanceRunRequest, metadata *ClientMetadata) (*dto.EscalateStaleLeadsResponse, error) {
	run, err := s.resolve(req, metadata)
	if err != nil {
		return nil, err
	}
	return s.escalate(ctx, run)
}

func (s *StaleLeadEscalatorImpl) escalate(ctx context.Context, run *maintenanceRun) (*dto.EscalateStaleLeadsResponse, error) {
	snapshots, err := s.leadRepo.TransitionStale(ctx,
		models.EscalationEligibleStatuses,
		models.LeadStatusGiveUp,
		run.cutoff,
		s.clock(),
		s.systemActor,
	)
	if err != nil {
		return nil, s.fail(ctx, run, err)
	}

	leads := ToLeadSnapshotDTOs(snapshots)
	s.finish(ctx, run, models.AuditActionLeadsEscalated, leads)

	message := "No stale leads to escalate"
	if len(leads) > 0 {
		message = fmt.Sprintf("Escalated %d stale lead(s) to %s", len(leads), models.LeadStatusGiveUp)
	}

	return &dto.EscalateStaleLeadsResponse{
		Success:       true,
		Message:       message,
		UpdatedCount:  len(leads),
		UpdatedLeads:  leads,
		ReferenceDate: formatTimestamp(run.reference),
		DaysThreshold: run.days,
		Cutoff:        formatTimestamp(run.cutoff),
	}, nil
}

// AgedLeadPurgerImpl implements AgedLeadPurger
type AgedLeadPurgerImpl struct {
	maintenanceOperator
	batchSize int
}

// NewAgedLeadPurger creates the purge operator; the threshold falls back to 90 days
func NewAgedLeadPurger(
	leadRepo repository.LeadRepository,
	auditRepo repository.AuditLogRepository,
	cfg MaintenanceOperatorConfig,
	sinks MaintenanceSinks,
	logger *zap.Logger,
) AgedLeadPurger {
	op := newMaintenanceOperator(OperatorAgedLeadPurger, utils.DefaultPurgeThresholdDays, leadRepo, auditRepo, cfg, sinks, logger)
	op.successEvent = models.AuditActionLeadsPurged
	op.routingKey = services.RoutingKeyLeadsPurged
	return &AgedLeadPurgerImpl{maintenanceOperator: op, batchSize: cfg.BatchSize}
}

// PurgeAgedLeads deletes every terminal lead idle since before the cutoff and reports exactly the deleted rows
func (p *AgedLeadPurgerImpl) PurgeAgedLeads(ctx context.Context, req *dto.MaintenanceRunRequest, metadata *ClientMetadata) (*dto.PurgeAgedLeadsResponse, error) {
	run, err := p.begin(req, metadata)
	if err != nil {
		return nil, err
	}
	return p.purge(ctx, run)
}

// PurgeAgedLeadsAsSystem runs the purge for the scheduler, which holds no plaintext key
func (p *AgedLeadPurgerImpl) PurgeAgedLeadsAsSystem(ctx context.Context, req *dto.MaintenanceRunRequest, metadata *ClientMetadata) (*dto.PurgeAgedLeadsResponse, error) {
	run, err := p.resolve(req, metadata)
	if err != nil {
		return nil, err
	}
	return p.purge(ctx, run)
}

func (p *AgedLeadPurgerImpl) purge(ctx context.Context, run *maintenanceRun) (*dto.PurgeAgedLeadsResponse, error) {
	snapshots, err := p.leadRepo.DeleteStale(ctx, models.TerminalStatuses, run.cutoff, p.batchSize)
	if err != nil {
		return nil, p.fail(ctx, run, err)
	}

	leads := ToLeadSnapshotDTOs(snapshots)
	p.finish(ctx, run, models.AuditActionLeadsPurged, leads)

	message := "No aged leads to purge"
	if len(leads) > 0 {
		message = fmt.Sprintf("Purged %d aged lead(s)", len(leads))
	}

	return &dto.PurgeAgedLeadsResponse{
		Success:       true,
		Message:       message,
		DeletedCount:  len(leads),
		DeletedLeads:  leads,
		ReferenceDate: formatTimestamp(run.reference),
		DaysThreshold: run.days,
		Cutoff:        formatTimestamp(run.cutoff),
	}, nil
}

// MaintenanceRunFlowImpl implements MaintenanceRunFlow
type MaintenanceRunFlowImpl struct {
	runStore services.MaintenanceRunStore
}

func NewMaintenanceRunFlow(runStore services.MaintenanceRunStore) MaintenanceRunFlow {
	if runStore == nil {
		runStore = services.NoopRunStore{}
	}
	return &MaintenanceRunFlowImpl{runStore: runStore}
}

// LastRun returns the stored summary of the operator's most recent successful run
func (f *MaintenanceRunFlowImpl) LastRun(ctx context.Context, operator string) (*dto.MaintenanceRunSummary, error) {
	if operator != OperatorStaleLeadEscalator && operator != OperatorAgedLeadPurger {
		return nil, NewBusinessError(CodeNotFound, "Unknown maintenance operator", ErrUnknownOperator)
	}

	summary, err := f.runStore.LastRun(ctx, operator)
	if err != nil {
		if errors.Is(err, services.ErrRunNotRecorded) {
			return nil, NewBusinessError(CodeNotFound, "No run recorded for operator", ErrRunSummaryNotFound)
		}
		return nil, NewBusinessError(CodeInternal, "Failed to read last run", err)
	}
	return summary, nil
}
