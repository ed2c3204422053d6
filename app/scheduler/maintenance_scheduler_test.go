package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/amirphl/lead-lifecycle/app/dto"
	"github.com/amirphl/lead-lifecycle/app/services"
	businessflow "github.com/amirphl/lead-lifecycle/business_flow"
	"github.com/amirphl/lead-lifecycle/models"
	"github.com/amirphl/lead-lifecycle/repository"
	"github.com/amirphl/lead-lifecycle/utils"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// callLog records operator invocations in order
type callLog struct {
	mu    sync.Mutex
	calls []string
	keys  []*string
}

func (l *callLog) add(name string, key *string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = append(l.calls, name)
	l.keys = append(l.keys, key)
}

func (l *callLog) snapshot() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.calls...)
}

type fakeEscalator struct {
	log *callLog
	err error
}

func (f *fakeEscalator) EscalateStaleLeads(_ context.Context, req *dto.MaintenanceRunRequest, _ *businessflow.ClientMetadata) (*dto.EscalateStaleLeadsResponse, error) {
	f.log.add("escalate-keyed", req.APIKey)
	return &dto.EscalateStaleLeadsResponse{Success: true}, nil
}

func (f *fakeEscalator) EscalateStaleLeadsAsSystem(_ context.Context, req *dto.MaintenanceRunRequest, _ *businessflow.ClientMetadata) (*dto.EscalateStaleLeadsResponse, error) {
	f.log.add("escalate", req.APIKey)
	if f.err != nil {
		return nil, f.err
	}
	return &dto.EscalateStaleLeadsResponse{Success: true, UpdatedCount: 2}, nil
}

type fakePurger struct {
	log *callLog
}

func (f *fakePurger) PurgeAgedLeads(_ context.Context, req *dto.MaintenanceRunRequest, _ *businessflow.ClientMetadata) (*dto.PurgeAgedLeadsResponse, error) {
	f.log.add("purge-keyed", req.APIKey)
	return &dto.PurgeAgedLeadsResponse{Success: true}, nil
}

func (f *fakePurger) PurgeAgedLeadsAsSystem(_ context.Context, req *dto.MaintenanceRunRequest, _ *businessflow.ClientMetadata) (*dto.PurgeAgedLeadsResponse, error) {
	f.log.add("purge", req.APIKey)
	return &dto.PurgeAgedLeadsResponse{Success: true, DeletedCount: 1}, nil
}

// countingLeadRepository only supports the two bulk statements the operators issue
type countingLeadRepository struct {
	repository.LeadRepository

	mu          sync.Mutex
	transitions int
	deletes     int
}

func (r *countingLeadRepository) TransitionStale(context.Context, []string, string, time.Time, time.Time, string) ([]models.LeadSnapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.transitions++
	return []models.LeadSnapshot{{ID: 1, Status: models.LeadStatusGiveUp}}, nil
}

func (r *countingLeadRepository) DeleteStale(context.Context, []string, time.Time, int) ([]models.LeadSnapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deletes++
	return nil, nil
}

type discardAuditRepository struct {
	repository.AuditLogRepository
}

func (discardAuditRepository) Save(context.Context, *models.AuditLog) error { return nil }

func TestRunOnceEscalatesBeforePurging(t *testing.T) {
	log := &callLog{}
	s := NewMaintenanceScheduler(&fakeEscalator{log: log}, &fakePurger{log: log}, zap.NewNop(), SchedulerOptions{})

	s.RunOnce(context.Background())

	assert.Equal(t, []string{"escalate", "purge"}, log.snapshot())
}

func TestRunOnceSendsNoAPIKey(t *testing.T) {
	log := &callLog{}
	s := NewMaintenanceScheduler(&fakeEscalator{log: log}, &fakePurger{log: log}, nil, SchedulerOptions{})

	s.RunOnce(context.Background())

	require.Len(t, log.keys, 2)
	assert.Nil(t, log.keys[0])
	assert.Nil(t, log.keys[1])
}

func TestRunOnceReachesStoreWhenKeysAreBcryptHashes(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("maintenance-secret"), bcrypt.MinCost)
	require.NoError(t, err)

	leads := &countingLeadRepository{}
	cfg := businessflow.MaintenanceOperatorConfig{APIKey: string(hash), RequireAPIKey: true}
	sinks := businessflow.MaintenanceSinks{RunStore: services.NoopRunStore{}}
	escalator := businessflow.NewStaleLeadEscalator(leads, discardAuditRepository{}, cfg, sinks, zap.NewNop())
	purger := businessflow.NewAgedLeadPurger(leads, discardAuditRepository{}, cfg, sinks, zap.NewNop())

	// presenting the stored hash as a key is still rejected on the keyed path
	_, err = escalator.EscalateStaleLeads(context.Background(), &dto.MaintenanceRunRequest{APIKey: utils.ToPtr(string(hash))}, nil)
	require.Error(t, err)

	NewMaintenanceScheduler(escalator, purger, zap.NewNop(), SchedulerOptions{}).RunOnce(context.Background())

	leads.mu.Lock()
	defer leads.mu.Unlock()
	assert.Equal(t, 1, leads.transitions)
	assert.Equal(t, 1, leads.deletes)
}

func TestRunOnceContinuesAfterEscalationFailure(t *testing.T) {
	log := &callLog{}
	s := NewMaintenanceScheduler(&fakeEscalator{log: log, err: errors.New("db down")}, &fakePurger{log: log}, zap.NewNop(), SchedulerOptions{})

	s.RunOnce(context.Background())

	assert.Equal(t, []string{"escalate", "purge"}, log.snapshot())
}

func TestRunOnceSkipsCancelledContext(t *testing.T) {
	log := &callLog{}
	s := NewMaintenanceScheduler(&fakeEscalator{log: log}, &fakePurger{log: log}, zap.NewNop(), SchedulerOptions{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s.RunOnce(ctx)

	assert.Empty(t, log.snapshot())
}

func TestStartRunsOnTickAndStops(t *testing.T) {
	log := &callLog{}
	s := NewMaintenanceScheduler(&fakeEscalator{log: log}, &fakePurger{log: log}, zap.NewNop(), SchedulerOptions{
		Interval:   10 * time.Millisecond,
		RunOnStart: true,
	})

	stop := s.Start(context.Background())
	require.Eventually(t, func() bool {
		return len(log.snapshot()) >= 4
	}, 2*time.Second, 5*time.Millisecond)
	stop()

	calls := log.snapshot()
	for i := 0; i+1 < len(calls); i += 2 {
		assert.Equal(t, "escalate", calls[i])
		assert.Equal(t, "purge", calls[i+1])
	}

	settled := len(log.snapshot())
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, settled, len(log.snapshot()))
}

func TestStartStopsWithParentContext(t *testing.T) {
	log := &callLog{}
	s := NewMaintenanceScheduler(&fakeEscalator{log: log}, &fakePurger{log: log}, zap.NewNop(), SchedulerOptions{Interval: time.Hour})

	ctx, cancel := context.WithCancel(context.Background())
	stop := s.Start(ctx)
	cancel()
	stop()

	assert.Empty(t, log.snapshot())
}
