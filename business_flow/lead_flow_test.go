package businessflow

import (
	"bytes"
	"context"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/amirphl/lead-lifecycle/app/dto"
	"github.com/amirphl/lead-lifecycle/models"
	"github.com/amirphl/lead-lifecycle/utils"
)

var (
	agent = Actor{ID: "agent-1", Role: "agent"}
	admin = Actor{ID: "admin-1", Role: "admin"}
)

func newTestLeadFlow(leads ...models.Lead) (*LeadFlowImpl, *fakeLeadRepository, *fakeAuditRepository) {
	repo := newFakeLeadRepository(leads...)
	audit := &fakeAuditRepository{}
	flow := NewLeadFlow(repo, audit, nil).(*LeadFlowImpl)
	flow.clock = func() time.Time { return fixedNow }
	return flow, repo, audit
}

func TestNormalizePhoneNumber(t *testing.T) {
	tests := []struct {
		raw      string
		expected string
		check    func(error) bool
	}{
		{raw: "+1 (555) 123-4567", expected: "+15551234567"},
		{raw: "09121234567", expected: "09121234567"},
		{raw: "  ", check: IsLeadPhoneRequired},
		{raw: "12345", check: IsLeadPhoneInvalid},
		{raw: "+1555abc4567", check: IsLeadPhoneInvalid},
		{raw: "++15551234567", check: IsLeadPhoneInvalid},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, err := NormalizePhoneNumber(tt.raw)
			if tt.check != nil {
				require.Error(t, err)
				assert.True(t, tt.check(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestCreateLead(t *testing.T) {
	flow, repo, audit := newTestLeadFlow()
	ctx := context.Background()

	lead, err := flow.CreateLead(ctx, &dto.CreateLeadRequest{
		PhoneNumber: "+1 555 000 1111",
		FirstName:   utils.ToPtr(" Ada "),
		Source:      utils.ToPtr(""),
	}, agent, NewClientMetadata("127.0.0.1", "test"))
	require.NoError(t, err)

	assert.Equal(t, "+15550001111", lead.PhoneNumber)
	assert.Equal(t, models.LeadStatusNew, lead.Status)
	assert.Equal(t, "Ada", *lead.FirstName)
	assert.Nil(t, lead.Source)
	assert.Equal(t, agent.ID, lead.CreatedBy)
	assert.Equal(t, agent.ID, lead.UpdatedBy)
	assert.NotNil(t, repo.get(lead.ID))
	assert.Equal(t, []string{models.AuditActionLeadCreated}, audit.actions())

	_, err = flow.CreateLead(ctx, &dto.CreateLeadRequest{PhoneNumber: "+15550001111"}, agent, nil)
	require.Error(t, err)
	assert.True(t, IsLeadPhoneAlreadyExists(err))

	_, err = flow.CreateLead(ctx, &dto.CreateLeadRequest{PhoneNumber: "+15550002222", Status: utils.ToPtr("won")}, agent, nil)
	assert.True(t, IsInvalidLeadStatus(err))
}

func TestCreateLeadPersistenceFailure(t *testing.T) {
	flow, repo, _ := newTestLeadFlow()
	repo.saveErr = errStoreDown

	_, err := flow.CreateLead(context.Background(), &dto.CreateLeadRequest{PhoneNumber: "+15550003333"}, agent, nil)
	require.Error(t, err)
	assert.True(t, IsPersistenceFailure(err))
}

func TestGetLead(t *testing.T) {
	flow, _, _ := newTestLeadFlow(agedLead(1, models.LeadStatusNew, days(1)))

	lead, err := flow.GetLead(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, uint(1), lead.ID)

	_, err = flow.GetLead(context.Background(), 99)
	assert.True(t, IsLeadNotFound(err))
}

func TestListLeads(t *testing.T) {
	flow, _, _ := newTestLeadFlow(
		agedLead(1, models.LeadStatusNew, days(3)),
		agedLead(2, models.LeadStatusNew, days(1)),
		agedLead(3, models.LeadStatusGiveUp, days(2)),
	)
	ctx := context.Background()

	resp, err := flow.ListLeads(ctx, &dto.ListLeadsRequest{Statuses: []string{models.LeadStatusNew}})
	require.NoError(t, err)
	assert.Equal(t, int64(2), resp.Total)
	require.Len(t, resp.Items, 2)
	assert.Equal(t, uint(2), resp.Items[0].ID)
	assert.Equal(t, uint(1), resp.Items[1].ID)
	assert.Equal(t, 1, resp.Page)
	assert.Equal(t, defaultLeadPageSize, resp.PageSize)

	resp, err = flow.ListLeads(ctx, &dto.ListLeadsRequest{Page: 2, PageSize: 2})
	require.NoError(t, err)
	assert.Equal(t, int64(3), resp.Total)
	assert.Equal(t, 2, resp.TotalPages)
	require.Len(t, resp.Items, 1)
	assert.Equal(t, uint(1), resp.Items[0].ID)

	resp, err = flow.ListLeads(ctx, &dto.ListLeadsRequest{UpdatedBefore: utils.ToPtr(fixedNow.Add(-days(2)).Format(time.RFC3339))})
	require.NoError(t, err)
	assert.Equal(t, int64(1), resp.Total)

	_, err = flow.ListLeads(ctx, &dto.ListLeadsRequest{Page: -1})
	assert.True(t, IsInvalidPage(err))
	_, err = flow.ListLeads(ctx, &dto.ListLeadsRequest{PageSize: 101})
	assert.True(t, IsInvalidPageSize(err))
	_, err = flow.ListLeads(ctx, &dto.ListLeadsRequest{Page: math.MaxInt, PageSize: 100})
	assert.True(t, IsInvalidPage(err))
	_, err = flow.ListLeads(ctx, &dto.ListLeadsRequest{Statuses: []string{"bogus"}})
	assert.True(t, IsInvalidLeadStatus(err))
	_, err = flow.ListLeads(ctx, &dto.ListLeadsRequest{UpdatedAfter: utils.ToPtr("soon")})
	assert.True(t, IsValidationError(err))
}

func TestUpdateLeadStatus(t *testing.T) {
	tests := []struct {
		name    string
		current string
		next    string
		actor   Actor
		check   func(error) bool
	}{
		{name: "agent advances active lead", current: models.LeadStatusNew, next: models.LeadStatusAssigned, actor: agent},
		{name: "agent gives up", current: models.LeadStatusFollowUp, next: models.LeadStatusGiveUp, actor: agent},
		{name: "agent moves between terminal statuses", current: models.LeadStatusGiveUp, next: models.LeadStatusUnqualified, actor: agent},
		{name: "agent cannot reopen", current: models.LeadStatusGiveUp, next: models.LeadStatusFollowUp, actor: agent, check: IsLeadStatusTransitionNotAllowed},
		{name: "admin can reopen", current: models.LeadStatusUnqualified, next: models.LeadStatusAssigned, actor: admin},
		{name: "unknown status", current: models.LeadStatusNew, next: "lost", actor: admin, check: IsInvalidLeadStatus},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			flow, repo, audit := newTestLeadFlow(agedLead(1, tt.current, days(5)))

			lead, err := flow.UpdateLeadStatus(context.Background(), 1, &dto.UpdateLeadStatusRequest{Status: tt.next}, tt.actor, nil)
			if tt.check != nil {
				require.Error(t, err)
				assert.True(t, tt.check(err))
				assert.Equal(t, tt.current, repo.get(1).Status)
				assert.Empty(t, audit.actions())
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.next, lead.Status)
			stored := repo.get(1)
			assert.Equal(t, tt.next, stored.Status)
			assert.Equal(t, tt.actor.ID, stored.UpdatedBy)
			assert.Equal(t, fixedNow, stored.UpdatedAt)
			assert.Equal(t, []string{models.AuditActionLeadStatusChanged}, audit.actions())
		})
	}

	t.Run("missing lead", func(t *testing.T) {
		flow, _, _ := newTestLeadFlow()
		_, err := flow.UpdateLeadStatus(context.Background(), 42, &dto.UpdateLeadStatusRequest{Status: models.LeadStatusNew}, admin, nil)
		assert.True(t, IsLeadNotFound(err))
	})
}

func TestExportLeads(t *testing.T) {
	flow, _, _ := newTestLeadFlow(
		agedLead(1, models.LeadStatusNew, days(3)),
		agedLead(2, models.LeadStatusGiveUp, days(1)),
	)

	filename, content, err := flow.ExportLeads(context.Background(), &dto.ListLeadsRequest{})
	require.NoError(t, err)
	assert.Equal(t, "leads_20260301_120000.xlsx", filename)

	xl, err := excelize.OpenReader(bytes.NewReader(content))
	require.NoError(t, err)
	defer func() { _ = xl.Close() }()

	assert.Equal(t, []string{leadExportSheet}, xl.GetSheetList())
	rows, err := xl.GetRows(leadExportSheet)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "phone_number", rows[0][1])
	assert.Equal(t, "2", rows[1][0])
	assert.Equal(t, models.LeadStatusGiveUp, rows[1][7])
	assert.Equal(t, "1", rows[2][0])
}

func TestPageWindow(t *testing.T) {
	edge := math.MaxInt/maxLeadPageSize + 1

	tests := []struct {
		name       string
		page, size int
		offset     int
		check      func(error) bool
	}{
		{name: "defaults", offset: 0},
		{name: "third page", page: 3, size: 10, offset: 20},
		{name: "last representable page", page: edge, size: maxLeadPageSize, offset: (edge - 1) * maxLeadPageSize},
		{name: "offset would overflow", page: edge + 1, size: maxLeadPageSize, check: IsInvalidPage},
		{name: "max int page", page: math.MaxInt, size: 2, check: IsInvalidPage},
		{name: "negative page", page: -3, size: 10, check: IsInvalidPage},
		{name: "oversized page", page: 1, size: maxLeadPageSize + 1, check: IsInvalidPageSize},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, offset, err := pageWindow(tt.page, tt.size)
			if tt.check != nil {
				require.Error(t, err)
				assert.True(t, tt.check(err))
				assert.True(t, IsValidationError(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.offset, offset)
			assert.GreaterOrEqual(t, offset, 0)
		})
	}
}
