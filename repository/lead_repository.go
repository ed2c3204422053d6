// Package repository provides data access layer implementations and interfaces for database operations
package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/amirphl/lead-lifecycle/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// LeadRepositoryImpl implements LeadRepository interface
type LeadRepositoryImpl struct {
	*BaseRepository[models.Lead, models.LeadFilter]
}

// NewLeadRepository creates a new lead repository
func NewLeadRepository(db *gorm.DB) LeadRepository {
	return &LeadRepositoryImpl{
		BaseRepository: NewBaseRepository[models.Lead, models.LeadFilter](db),
	}
}

// ByPhoneNumber retrieves a lead by its phone number
func (r *LeadRepositoryImpl) ByPhoneNumber(ctx context.Context, phoneNumber string) (*models.Lead, error) {
	items, err := r.ByFilter(ctx, models.LeadFilter{PhoneNumber: &phoneNumber}, "", 1, 0)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, nil
	}
	return items[0], nil
}

// applyFilter applies filter criteria to a GORM query
func (r *LeadRepositoryImpl) applyFilter(query *gorm.DB, filter models.LeadFilter) *gorm.DB {
	if filter.ID != nil {
		query = query.Where("id = ?", *filter.ID)
	}
	if filter.PhoneNumber != nil {
		query = query.Where("phone_number = ?", *filter.PhoneNumber)
	}
	if len(filter.Statuses) > 0 {
		query = query.Where("status IN ?", filter.Statuses)
	}
	if filter.AssignedTo != nil {
		query = query.Where("assigned_to = ?", *filter.AssignedTo)
	}
	if filter.UpdatedBefore != nil {
		query = query.Where("updated_at < ?", *filter.UpdatedBefore)
	}
	if filter.UpdatedAfter != nil {
		query = query.Where("updated_at >= ?", *filter.UpdatedAfter)
	}
	if filter.CreatedAfter != nil {
		query = query.Where("created_at >= ?", *filter.CreatedAfter)
	}
	if filter.CreatedBefore != nil {
		query = query.Where("created_at < ?", *filter.CreatedBefore)
	}
	return query
}

// ByFilter retrieves leads based on filter criteria
func (r *LeadRepositoryImpl) ByFilter(ctx context.Context, filter models.LeadFilter, orderBy string, limit, offset int) ([]*models.Lead, error) {
	db := r.getDB(ctx)
	query := r.applyFilter(db.Model(&models.Lead{}), filter)

	if orderBy == "" {
		orderBy = "updated_at DESC, id DESC"
	}
	query = query.Order(orderBy)

	if limit > 0 {
		query = query.Limit(limit)
	}
	if offset > 0 {
		query = query.Offset(offset)
	}

	var leads []*models.Lead
	if err := query.Find(&leads).Error; err != nil {
		return nil, fmt.Errorf("failed to find leads by filter: %w", err)
	}
	return leads, nil
}

// Count returns the number of leads matching the filter
func (r *LeadRepositoryImpl) Count(ctx context.Context, filter models.LeadFilter) (int64, error) {
	db := r.getDB(ctx)
	query := r.applyFilter(db.Model(&models.Lead{}), filter)

	var count int64
	if err := query.Count(&count).Error; err != nil {
		return 0, fmt.Errorf("failed to count leads: %w", err)
	}
	return count, nil
}

// Exists checks if any lead matching the filter exists
func (r *LeadRepositoryImpl) Exists(ctx context.Context, filter models.LeadFilter) (bool, error) {
	count, err := r.Count(ctx, filter)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// UpdateStatus sets status and audit columns of one lead and returns the updated row.
// A missing lead yields (nil, nil).
func (r *LeadRepositoryImpl) UpdateStatus(ctx context.Context, id uint, status, updatedBy string, updatedAt time.Time) (lead *models.Lead, err error) {
	if id == 0 {
		return nil, errors.New("lead ID is required for update")
	}

	db, shouldCommit, err := r.getDBForWrite(ctx)
	if err != nil {
		return nil, err
	}
	defer finishWrite(db, shouldCommit, &err)

	var updated []models.Lead
	err = db.Model(&updated).
		Clauses(clause.Returning{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":     status,
			"updated_at": updatedAt,
			"updated_by": updatedBy,
		}).Error
	if err != nil {
		return nil, fmt.Errorf("failed to update lead %d status: %w", id, err)
	}
	if len(updated) == 0 {
		return nil, nil
	}
	return &updated[0], nil
}

// TransitionStale issues UPDATE ... WHERE status IN (from) AND updated_at < cutoff RETURNING *
func (r *LeadRepositoryImpl) TransitionStale(ctx context.Context, from []string, to string, cutoff, updatedAt time.Time, updatedBy string) (snapshots []models.LeadSnapshot, err error) {
	if len(from) == 0 {
		return []models.LeadSnapshot{}, nil
	}

	db, shouldCommit, err := r.getDBForWrite(ctx)
	if err != nil {
		return nil, err
	}
	defer finishWrite(db, shouldCommit, &err)

	var updated []models.Lead
	err = db.Model(&updated).
		Clauses(clause.Returning{}).
		Where("status IN ? AND updated_at < ?", from, cutoff).
		Updates(map[string]any{
			"status":     to,
			"updated_at": updatedAt,
			"updated_by": updatedBy,
		}).Error
	if err != nil {
		return nil, fmt.Errorf("failed to transition stale leads: %w", err)
	}

	return toSnapshots(updated), nil
}

// DeleteStale issues DELETE ... WHERE status IN (statuses) AND updated_at < cutoff RETURNING *.
// The predicate and the deletion are one statement, so the returned rows are exactly the rows removed.
func (r *LeadRepositoryImpl) DeleteStale(ctx context.Context, statuses []string, cutoff time.Time, batchSize int) ([]models.LeadSnapshot, error) {
	if len(statuses) == 0 {
		return []models.LeadSnapshot{}, nil
	}
	if batchSize > 0 {
		return r.deleteStaleInBatches(ctx, statuses, cutoff, batchSize)
	}

	db := r.getDB(ctx)

	var deleted []models.Lead
	err := db.Clauses(clause.Returning{}).
		Where("status IN ? AND updated_at < ?", statuses, cutoff).
		Delete(&deleted).Error
	if err != nil {
		return nil, fmt.Errorf("failed to delete stale leads: %w", err)
	}

	return toSnapshots(deleted), nil
}

// deleteStaleInBatches repeats a LIMITed, predicate-checked delete until a short batch is seen.
// Each batch commits on its own; rows already removed stay removed if a later batch fails.
func (r *LeadRepositoryImpl) deleteStaleInBatches(ctx context.Context, statuses []string, cutoff time.Time, batchSize int) ([]models.LeadSnapshot, error) {
	db := r.getDB(ctx)
	result := make([]models.LeadSnapshot, 0)

	for {
		candidates := db.Model(&models.Lead{}).
			Select("id").
			Where("status IN ? AND updated_at < ?", statuses, cutoff).
			Order("id").
			Limit(batchSize).
			Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"})

		var deleted []models.Lead
		err := db.Clauses(clause.Returning{}).
			Where("id IN (?)", candidates).
			Where("status IN ? AND updated_at < ?", statuses, cutoff).
			Delete(&deleted).Error
		if err != nil {
			return nil, fmt.Errorf("failed to delete stale leads batch after %d rows: %w", len(result), err)
		}

		result = append(result, toSnapshots(deleted)...)
		if len(deleted) < batchSize {
			return result, nil
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
	}
}

func toSnapshots(leads []models.Lead) []models.LeadSnapshot {
	snapshots := make([]models.LeadSnapshot, 0, len(leads))
	for i := range leads {
		snapshots = append(snapshots, leads[i].Snapshot())
	}
	return snapshots
}
