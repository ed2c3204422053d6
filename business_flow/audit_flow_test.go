package businessflow

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amirphl/lead-lifecycle/app/dto"
	"github.com/amirphl/lead-lifecycle/models"
	"github.com/amirphl/lead-lifecycle/utils"
)

func seedAuditLogs(t *testing.T) *fakeAuditRepository {
	t.Helper()
	audit := &fakeAuditRepository{}
	entries := []struct {
		actor   string
		action  string
		success bool
		age     time.Duration
	}{
		{"agent-1", models.AuditActionLeadCreated, true, days(5)},
		{OperatorStaleLeadEscalator, models.AuditActionLeadsEscalated, true, days(3)},
		{OperatorAgedLeadPurger, models.AuditActionMaintenanceFailed, false, days(2)},
		{"agent-1", models.AuditActionLeadStatusChanged, true, days(1)},
	}
	for _, e := range entries {
		require.NoError(t, audit.Save(context.Background(), &models.AuditLog{
			ActorID:   utils.ToPtr(e.actor),
			Action:    e.action,
			Success:   utils.ToPtr(e.success),
			CreatedAt: fixedNow.Add(-e.age),
		}))
	}
	return audit
}

func TestListAuditLogs(t *testing.T) {
	tests := []struct {
		name    string
		req     *dto.ListAuditLogsRequest
		actions []string
	}{
		{
			name:    "newest first",
			req:     nil,
			actions: []string{models.AuditActionLeadStatusChanged, models.AuditActionMaintenanceFailed, models.AuditActionLeadsEscalated, models.AuditActionLeadCreated},
		},
		{
			name:    "by actor",
			req:     &dto.ListAuditLogsRequest{ActorID: utils.ToPtr("agent-1")},
			actions: []string{models.AuditActionLeadStatusChanged, models.AuditActionLeadCreated},
		},
		{
			name:    "by action",
			req:     &dto.ListAuditLogsRequest{Action: utils.ToPtr(models.AuditActionLeadsEscalated)},
			actions: []string{models.AuditActionLeadsEscalated},
		},
		{
			name:    "failed only",
			req:     &dto.ListAuditLogsRequest{FailedOnly: true},
			actions: []string{models.AuditActionMaintenanceFailed},
		},
		{
			name:    "created window",
			req:     &dto.ListAuditLogsRequest{CreatedAfter: utils.ToPtr(fixedNow.Add(-days(4)).Format(time.RFC3339)), CreatedBefore: utils.ToPtr(fixedNow.Add(-days(2)).Format(time.RFC3339))},
			actions: []string{models.AuditActionLeadsEscalated},
		},
		{
			name:    "second page",
			req:     &dto.ListAuditLogsRequest{Page: 2, PageSize: 3},
			actions: []string{models.AuditActionLeadCreated},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			flow := NewAuditLogFlow(seedAuditLogs(t))

			resp, err := flow.ListAuditLogs(context.Background(), tt.req)
			require.NoError(t, err)

			got := make([]string, 0, len(resp.Items))
			for _, item := range resp.Items {
				got = append(got, item.Action)
			}
			assert.Equal(t, tt.actions, got)
		})
	}
}

func TestListAuditLogsReportsPaging(t *testing.T) {
	flow := NewAuditLogFlow(seedAuditLogs(t))

	resp, err := flow.ListAuditLogs(context.Background(), &dto.ListAuditLogsRequest{PageSize: 3})
	require.NoError(t, err)
	assert.Equal(t, int64(4), resp.Total)
	assert.Equal(t, 2, resp.TotalPages)
	assert.Equal(t, 1, resp.Page)
	require.Len(t, resp.Items, 3)
	assert.False(t, resp.Items[1].Success)
}

func TestListAuditLogsErrors(t *testing.T) {
	flow := NewAuditLogFlow(&fakeAuditRepository{listErr: errStoreDown})

	_, err := flow.ListAuditLogs(context.Background(), &dto.ListAuditLogsRequest{})
	assert.True(t, IsPersistenceFailure(err))

	_, err = flow.ListAuditLogs(context.Background(), &dto.ListAuditLogsRequest{CreatedAfter: utils.ToPtr("yesterday")})
	assert.True(t, IsValidationError(err))

	_, err = flow.ListAuditLogs(context.Background(), &dto.ListAuditLogsRequest{Page: -1})
	assert.True(t, IsInvalidPage(err))
}
