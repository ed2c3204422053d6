package repository_test

import (
	"context"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amirphl/lead-lifecycle/models"
	"github.com/amirphl/lead-lifecycle/repository"
	testingutil "github.com/amirphl/lead-lifecycle/testing"
	"github.com/amirphl/lead-lifecycle/utils"
)

func snapshotIDs(snapshots []models.LeadSnapshot) []uint {
	ids := make([]uint, 0, len(snapshots))
	for _, s := range snapshots {
		ids = append(ids, s.ID)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func TestLeadRepository(t *testing.T) {
	testDB := testingutil.RequireTestDB(t)
	fixtures := testingutil.NewTestFixtures(testDB)
	repo := repository.NewLeadRepository(testDB.DB)
	ctx := testingutil.CreateTestContext()
	now := time.Now().UTC().Truncate(time.Microsecond)

	t.Run("SaveAndByID", func(t *testing.T) {
		require.NoError(t, testDB.ClearAllTables())

		lead := &models.Lead{
			PhoneNumber: testingutil.UniquePhoneNumber(),
			FirstName:   utils.ToPtr("Ada"),
			Status:      models.LeadStatusNew,
			CreatedBy:   "agent-1",
			UpdatedBy:   "agent-1",
		}
		require.NoError(t, repo.Save(ctx, lead))
		require.NotZero(t, lead.ID)

		found, err := repo.ByID(ctx, lead.ID)
		require.NoError(t, err)
		require.NotNil(t, found)
		assert.Equal(t, lead.PhoneNumber, found.PhoneNumber)
		assert.Equal(t, models.LeadStatusNew, found.Status)
	})

	t.Run("ByIDNotFound", func(t *testing.T) {
		found, err := repo.ByID(ctx, 999999)
		assert.NoError(t, err)
		assert.Nil(t, found)
	})

	t.Run("DuplicatePhoneNumber", func(t *testing.T) {
		require.NoError(t, testDB.ClearAllTables())

		phone := testingutil.UniquePhoneNumber()
		first := &models.Lead{PhoneNumber: phone, Status: models.LeadStatusNew, CreatedBy: "a", UpdatedBy: "a"}
		require.NoError(t, repo.Save(ctx, first))

		second := &models.Lead{PhoneNumber: phone, Status: models.LeadStatusNew, CreatedBy: "a", UpdatedBy: "a"}
		err := repo.Save(ctx, second)
		require.Error(t, err)
		assert.ErrorIs(t, err, repository.ErrDuplicateKey)
	})

	t.Run("ByPhoneNumber", func(t *testing.T) {
		require.NoError(t, testDB.ClearAllTables())

		lead, err := fixtures.CreateTestLead(models.LeadStatusAssigned, now)
		require.NoError(t, err)

		found, err := repo.ByPhoneNumber(ctx, lead.PhoneNumber)
		require.NoError(t, err)
		require.NotNil(t, found)
		assert.Equal(t, lead.ID, found.ID)

		missing, err := repo.ByPhoneNumber(ctx, "+10000000000")
		require.NoError(t, err)
		assert.Nil(t, missing)
	})

	t.Run("ByFilterAndCount", func(t *testing.T) {
		require.NoError(t, testDB.ClearAllTables())

		_, err := fixtures.CreateAgedLead(models.LeadStatusNew, now, time.Hour)
		require.NoError(t, err)
		_, err = fixtures.CreateAgedLead(models.LeadStatusNew, now, 30*24*time.Hour)
		require.NoError(t, err)
		_, err = fixtures.CreateAgedLead(models.LeadStatusFunded, now, 30*24*time.Hour)
		require.NoError(t, err)

		leads, err := repo.ByFilter(ctx, models.LeadFilter{Statuses: []string{models.LeadStatusNew}}, "", 0, 0)
		require.NoError(t, err)
		assert.Len(t, leads, 2)
		assert.True(t, !leads[0].UpdatedAt.Before(leads[1].UpdatedAt), "default order is most recently updated first")

		before := now.Add(-24 * time.Hour)
		count, err := repo.Count(ctx, models.LeadFilter{UpdatedBefore: &before})
		require.NoError(t, err)
		assert.Equal(t, int64(2), count)

		exists, err := repo.Exists(ctx, models.LeadFilter{Statuses: []string{models.LeadStatusQualified}})
		require.NoError(t, err)
		assert.False(t, exists)

		page, err := repo.ByFilter(ctx, models.LeadFilter{}, "id ASC", 1, 1)
		require.NoError(t, err)
		assert.Len(t, page, 1)
	})

	t.Run("UpdateStatus", func(t *testing.T) {
		require.NoError(t, testDB.ClearAllTables())

		lead, err := fixtures.CreateAgedLead(models.LeadStatusNew, now, 48*time.Hour)
		require.NoError(t, err)

		updated, err := repo.UpdateStatus(ctx, lead.ID, models.LeadStatusQualified, "agent-7", now)
		require.NoError(t, err)
		require.NotNil(t, updated)
		assert.Equal(t, models.LeadStatusQualified, updated.Status)
		assert.Equal(t, "agent-7", updated.UpdatedBy)
		assert.True(t, updated.UpdatedAt.Equal(now))

		missing, err := repo.UpdateStatus(ctx, 999999, models.LeadStatusQualified, "agent-7", now)
		require.NoError(t, err)
		assert.Nil(t, missing)
	})

	t.Run("TransitionStaleMovesOnlyEligibleLeadsPastCutoff", func(t *testing.T) {
		require.NoError(t, testDB.ClearAllTables())

		cutoff := now.Add(-14 * 24 * time.Hour)

		staleNew, err := fixtures.CreateTestLead(models.LeadStatusNew, cutoff.Add(-time.Second))
		require.NoError(t, err)
		staleFollowUp, err := fixtures.CreateTestLead(models.LeadStatusFollowUp, cutoff.Add(-time.Hour))
		require.NoError(t, err)
		atCutoff, err := fixtures.CreateTestLead(models.LeadStatusAssigned, cutoff)
		require.NoError(t, err)
		fresh, err := fixtures.CreateTestLead(models.LeadStatusRS, now)
		require.NoError(t, err)
		staleFunded, err := fixtures.CreateTestLead(models.LeadStatusFunded, cutoff.Add(-time.Hour))
		require.NoError(t, err)

		snapshots, err := repo.TransitionStale(ctx, models.EscalationEligibleStatuses, models.LeadStatusGiveUp, cutoff, now, "system")
		require.NoError(t, err)
		assert.Equal(t, []uint{staleNew.ID, staleFollowUp.ID}, snapshotIDs(snapshots))
		for _, s := range snapshots {
			assert.Equal(t, models.LeadStatusGiveUp, s.Status)
		}

		reloaded, err := fixtures.ReloadLead(staleNew.ID)
		require.NoError(t, err)
		assert.Equal(t, models.LeadStatusGiveUp, reloaded.Status)
		assert.Equal(t, "system", reloaded.UpdatedBy)
		assert.True(t, reloaded.UpdatedAt.Equal(now))

		for id, want := range map[uint]string{
			atCutoff.ID:    models.LeadStatusAssigned,
			fresh.ID:       models.LeadStatusRS,
			staleFunded.ID: models.LeadStatusFunded,
		} {
			l, err := fixtures.ReloadLead(id)
			require.NoError(t, err)
			assert.Equal(t, want, l.Status)
		}

		again, err := repo.TransitionStale(ctx, models.EscalationEligibleStatuses, models.LeadStatusGiveUp, cutoff, now, "system")
		require.NoError(t, err)
		assert.Empty(t, again)
	})

	t.Run("TransitionStaleWithEmptyStatusList", func(t *testing.T) {
		snapshots, err := repo.TransitionStale(ctx, nil, models.LeadStatusGiveUp, now, now, "system")
		require.NoError(t, err)
		assert.NotNil(t, snapshots)
		assert.Empty(t, snapshots)
	})

	t.Run("DeleteStaleRemovesExactlyTheReturnedRows", func(t *testing.T) {
		require.NoError(t, testDB.ClearAllTables())

		cutoff := now.Add(-90 * 24 * time.Hour)

		oldGiveUp, err := fixtures.CreateTestLead(models.LeadStatusGiveUp, cutoff.Add(-time.Minute))
		require.NoError(t, err)
		oldUnqualified, err := fixtures.CreateTestLead(models.LeadStatusUnqualified, cutoff.Add(-24*time.Hour))
		require.NoError(t, err)
		boundary, err := fixtures.CreateTestLead(models.LeadStatusGiveUp, cutoff)
		require.NoError(t, err)
		oldActive, err := fixtures.CreateTestLead(models.LeadStatusNew, cutoff.Add(-24*time.Hour))
		require.NoError(t, err)

		deleted, err := repo.DeleteStale(ctx, models.TerminalStatuses, cutoff, 0)
		require.NoError(t, err)
		assert.Equal(t, []uint{oldGiveUp.ID, oldUnqualified.ID}, snapshotIDs(deleted))

		for id, want := range map[uint]bool{
			oldGiveUp.ID:      false,
			oldUnqualified.ID: false,
			boundary.ID:       true,
			oldActive.ID:      true,
		} {
			exists, err := fixtures.LeadExists(id)
			require.NoError(t, err)
			assert.Equal(t, want, exists, "lead %d", id)
		}
	})

	t.Run("DeleteStaleInBatches", func(t *testing.T) {
		require.NoError(t, testDB.ClearAllTables())

		cutoff := now.Add(-90 * 24 * time.Hour)
		var want []uint
		for i := 0; i < 7; i++ {
			lead, err := fixtures.CreateTestLead(models.LeadStatusGiveUp, cutoff.Add(-time.Duration(i+1)*time.Hour))
			require.NoError(t, err)
			want = append(want, lead.ID)
		}
		keep, err := fixtures.CreateTestLead(models.LeadStatusGiveUp, now)
		require.NoError(t, err)

		deleted, err := repo.DeleteStale(ctx, models.TerminalStatuses, cutoff, 3)
		require.NoError(t, err)
		assert.Equal(t, want, snapshotIDs(deleted))

		remaining, err := repo.Count(ctx, models.LeadFilter{})
		require.NoError(t, err)
		assert.Equal(t, int64(1), remaining)

		exists, err := fixtures.LeadExists(keep.ID)
		require.NoError(t, err)
		assert.True(t, exists)
	})

	t.Run("WritesInsideTransactionRollBack", func(t *testing.T) {
		require.NoError(t, testDB.ClearAllTables())

		lead, err := fixtures.CreateAgedLead(models.LeadStatusNew, now, 30*24*time.Hour)
		require.NoError(t, err)

		err = repository.WithTransaction(ctx, testDB.DB, func(txCtx context.Context) error {
			_, err := repo.TransitionStale(txCtx, models.EscalationEligibleStatuses, models.LeadStatusGiveUp, now, now, "system")
			require.NoError(t, err)
			return assert.AnError
		})
		require.ErrorIs(t, err, assert.AnError)

		reloaded, err := fixtures.ReloadLead(lead.ID)
		require.NoError(t, err)
		assert.Equal(t, models.LeadStatusNew, reloaded.Status)
	})
}
