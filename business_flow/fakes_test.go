package businessflow

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/amirphl/lead-lifecycle/app/dto"
	"github.com/amirphl/lead-lifecycle/app/services"
	"github.com/amirphl/lead-lifecycle/models"
	"github.com/amirphl/lead-lifecycle/repository"
)

var errStoreDown = errors.New("connection refused")

// fakeLeadRepository is an in-memory LeadRepository with the same predicate semantics as the SQL one
type fakeLeadRepository struct {
	mu     sync.Mutex
	leads  map[uint]*models.Lead
	nextID uint

	transitionErr error
	deleteErr     error
	saveErr       error

	transitionCalls int
	deleteCalls     int
	lastBatchSize   int
}

var _ repository.LeadRepository = (*fakeLeadRepository)(nil)

func newFakeLeadRepository(leads ...models.Lead) *fakeLeadRepository {
	r := &fakeLeadRepository{leads: make(map[uint]*models.Lead), nextID: 1}
	for i := range leads {
		l := leads[i]
		if l.ID == 0 {
			l.ID = r.nextID
		}
		if l.ID >= r.nextID {
			r.nextID = l.ID + 1
		}
		r.leads[l.ID] = &l
	}
	return r
}

func (r *fakeLeadRepository) get(id uint) *models.Lead {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.leads[id]
	if !ok {
		return nil
	}
	cp := *l
	return &cp
}

func (r *fakeLeadRepository) sortedIDs() []uint {
	ids := make([]uint, 0, len(r.leads))
	for id := range r.leads {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func (r *fakeLeadRepository) ByID(_ context.Context, id uint) (*models.Lead, error) {
	return r.get(id), nil
}

func matchesFilter(l *models.Lead, f models.LeadFilter) bool {
	if f.ID != nil && l.ID != *f.ID {
		return false
	}
	if f.PhoneNumber != nil && l.PhoneNumber != *f.PhoneNumber {
		return false
	}
	if len(f.Statuses) > 0 && !contains(f.Statuses, l.Status) {
		return false
	}
	if f.AssignedTo != nil && (l.AssignedTo == nil || *l.AssignedTo != *f.AssignedTo) {
		return false
	}
	if f.UpdatedBefore != nil && !l.UpdatedAt.Before(*f.UpdatedBefore) {
		return false
	}
	if f.UpdatedAfter != nil && l.UpdatedAt.Before(*f.UpdatedAfter) {
		return false
	}
	return true
}

func (r *fakeLeadRepository) ByFilter(_ context.Context, filter models.LeadFilter, _ string, limit, offset int) ([]*models.Lead, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []*models.Lead
	for _, id := range r.sortedIDs() {
		l := r.leads[id]
		if matchesFilter(l, filter) {
			cp := *l
			out = append(out, &cp)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].UpdatedAt.After(out[j].UpdatedAt)
		}
		return out[i].ID > out[j].ID
	})
	if offset > len(out) {
		return nil, nil
	}
	out = out[offset:]
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

func (r *fakeLeadRepository) Save(_ context.Context, lead *models.Lead) error {
	if r.saveErr != nil {
		return r.saveErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, l := range r.leads {
		if l.PhoneNumber == lead.PhoneNumber {
			return repository.ErrDuplicateKey
		}
	}
	lead.ID = r.nextID
	r.nextID++
	cp := *lead
	r.leads[lead.ID] = &cp
	return nil
}

func (r *fakeLeadRepository) Count(ctx context.Context, filter models.LeadFilter) (int64, error) {
	items, _ := r.ByFilter(ctx, filter, "", 0, 0)
	return int64(len(items)), nil
}

func (r *fakeLeadRepository) Exists(ctx context.Context, filter models.LeadFilter) (bool, error) {
	n, _ := r.Count(ctx, filter)
	return n > 0, nil
}

func (r *fakeLeadRepository) ByPhoneNumber(ctx context.Context, phone string) (*models.Lead, error) {
	items, _ := r.ByFilter(ctx, models.LeadFilter{PhoneNumber: &phone}, "", 1, 0)
	if len(items) == 0 {
		return nil, nil
	}
	return items[0], nil
}

func (r *fakeLeadRepository) UpdateStatus(_ context.Context, id uint, status, updatedBy string, updatedAt time.Time) (*models.Lead, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.leads[id]
	if !ok {
		return nil, nil
	}
	l.Status = status
	l.UpdatedBy = updatedBy
	l.UpdatedAt = updatedAt
	cp := *l
	return &cp, nil
}

func (r *fakeLeadRepository) TransitionStale(_ context.Context, from []string, to string, cutoff, updatedAt time.Time, updatedBy string) ([]models.LeadSnapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.transitionCalls++
	if r.transitionErr != nil {
		return nil, r.transitionErr
	}

	out := []models.LeadSnapshot{}
	for _, id := range r.sortedIDs() {
		l := r.leads[id]
		if contains(from, l.Status) && l.UpdatedAt.Before(cutoff) {
			l.Status = to
			l.UpdatedAt = updatedAt
			l.UpdatedBy = updatedBy
			out = append(out, l.Snapshot())
		}
	}
	return out, nil
}

func (r *fakeLeadRepository) DeleteStale(_ context.Context, statuses []string, cutoff time.Time, batchSize int) ([]models.LeadSnapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deleteCalls++
	r.lastBatchSize = batchSize
	if r.deleteErr != nil {
		return nil, r.deleteErr
	}

	out := []models.LeadSnapshot{}
	for _, id := range r.sortedIDs() {
		l := r.leads[id]
		if contains(statuses, l.Status) && l.UpdatedAt.Before(cutoff) {
			out = append(out, l.Snapshot())
			delete(r.leads, id)
		}
	}
	return out, nil
}

func contains(values []string, v string) bool {
	for _, s := range values {
		if s == v {
			return true
		}
	}
	return false
}

// fakeAuditRepository records saved entries
type fakeAuditRepository struct {
	mu      sync.Mutex
	entries []*models.AuditLog
	saveErr error
	listErr error
}

var _ repository.AuditLogRepository = (*fakeAuditRepository)(nil)

func (r *fakeAuditRepository) ByID(context.Context, uint) (*models.AuditLog, error) { return nil, nil }

func (r *fakeAuditRepository) ByFilter(_ context.Context, filter models.AuditLogFilter, _ string, limit, offset int) ([]*models.AuditLog, error) {
	if r.listErr != nil {
		return nil, r.listErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.AuditLog
	for i := len(r.entries) - 1; i >= 0; i-- {
		e := r.entries[i]
		if filter.Action != nil && e.Action != *filter.Action {
			continue
		}
		if filter.ActorID != nil && (e.ActorID == nil || *e.ActorID != *filter.ActorID) {
			continue
		}
		if filter.LeadID != nil && (e.LeadID == nil || *e.LeadID != *filter.LeadID) {
			continue
		}
		if filter.Success != nil && e.IsFailed() == *filter.Success {
			continue
		}
		if filter.CreatedAfter != nil && e.CreatedAt.Before(*filter.CreatedAfter) {
			continue
		}
		if filter.CreatedBefore != nil && !e.CreatedAt.Before(*filter.CreatedBefore) {
			continue
		}
		out = append(out, e)
	}
	if offset > 0 {
		if offset >= len(out) {
			return nil, nil
		}
		out = out[offset:]
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *fakeAuditRepository) Save(_ context.Context, entry *models.AuditLog) error {
	if r.saveErr != nil {
		return r.saveErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, entry)
	return nil
}

func (r *fakeAuditRepository) Count(ctx context.Context, filter models.AuditLogFilter) (int64, error) {
	items, err := r.ByFilter(ctx, filter, "", 0, 0)
	return int64(len(items)), err
}

func (r *fakeAuditRepository) Exists(ctx context.Context, filter models.AuditLogFilter) (bool, error) {
	n, _ := r.Count(ctx, filter)
	return n > 0, nil
}

func (r *fakeAuditRepository) actions() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e.Action)
	}
	return out
}

type publishedEvent struct {
	routingKey string
	event      services.LeadLifecycleEvent
}

type recordingPublisher struct {
	events []publishedEvent
	err    error
}

func (p *recordingPublisher) PublishLeadEvent(_ context.Context, routingKey string, event services.LeadLifecycleEvent) error {
	p.events = append(p.events, publishedEvent{routingKey: routingKey, event: event})
	return p.err
}

func (p *recordingPublisher) Close() error { return nil }

type recordingMailer struct {
	reports []dto.MaintenanceRunSummary
	err     error
}

func (m *recordingMailer) SendRunReport(_ context.Context, summary dto.MaintenanceRunSummary, _ []dto.LeadSnapshotDTO) error {
	m.reports = append(m.reports, summary)
	return m.err
}

type memoryRunStore struct {
	runs map[string]dto.MaintenanceRunSummary
	err  error
}

func newMemoryRunStore() *memoryRunStore {
	return &memoryRunStore{runs: make(map[string]dto.MaintenanceRunSummary)}
}

func (s *memoryRunStore) SaveLastRun(_ context.Context, summary dto.MaintenanceRunSummary) error {
	if s.err != nil {
		return s.err
	}
	s.runs[summary.Operator] = summary
	return nil
}

func (s *memoryRunStore) LastRun(_ context.Context, operator string) (*dto.MaintenanceRunSummary, error) {
	if s.err != nil {
		return nil, s.err
	}
	run, ok := s.runs[operator]
	if !ok {
		return nil, services.ErrRunNotRecorded
	}
	return &run, nil
}

type observedRun struct {
	operator string
	outcome  string
	affected int
}

type recordingMetrics struct {
	runs []observedRun
}

func (m *recordingMetrics) ObserveRun(operator, outcome string, affected int, _ time.Duration) {
	m.runs = append(m.runs, observedRun{operator: operator, outcome: outcome, affected: affected})
}
