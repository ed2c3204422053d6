// Package repository provides data access layer implementations and interfaces for database operations
package repository

import (
	"context"
	"time"

	"github.com/amirphl/lead-lifecycle/models"
)

// RepositoryContext key for transaction in context
type contextKey string

const TxContextKey contextKey = "tx"

type Repository[T any, F any] interface {
	ByID(ctx context.Context, id uint) (*T, error)
	ByFilter(ctx context.Context, filter F, orderBy string, limit, offset int) ([]*T, error)
	Save(ctx context.Context, entity *T) error
	Count(ctx context.Context, filter F) (int64, error)
	Exists(ctx context.Context, filter F) (bool, error)
}

// LeadRepository defines operations for leads, including the bulk lifecycle statements
type LeadRepository interface {
	Repository[models.Lead, models.LeadFilter]
	ByPhoneNumber(ctx context.Context, phoneNumber string) (*models.Lead, error)
	UpdateStatus(ctx context.Context, id uint, status, updatedBy string, updatedAt time.Time) (*models.Lead, error)

	// TransitionStale moves every lead whose status is in from and whose updated_at is
	// strictly before cutoff to status to, in one statement, and returns the affected rows.
	TransitionStale(ctx context.Context, from []string, to string, cutoff, updatedAt time.Time, updatedBy string) ([]models.LeadSnapshot, error)

	// DeleteStale removes every lead whose status is in statuses and whose updated_at is
	// strictly before cutoff and returns the deleted rows. batchSize <= 0 issues a single
	// statement; otherwise rows are removed in predicate-checked batches of batchSize.
	DeleteStale(ctx context.Context, statuses []string, cutoff time.Time, batchSize int) ([]models.LeadSnapshot, error)
}

// AuditLogRepository defines operations for audit logs
type AuditLogRepository interface {
	Repository[models.AuditLog, models.AuditLogFilter]
}
