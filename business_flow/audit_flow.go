package businessflow

import (
	"context"
	"strings"
	"time"

	"github.com/amirphl/lead-lifecycle/app/dto"
	"github.com/amirphl/lead-lifecycle/models"
	"github.com/amirphl/lead-lifecycle/repository"
	"github.com/amirphl/lead-lifecycle/utils"
)

// AuditLogFlow lets admins read the audit trail written by the lead and maintenance flows
type AuditLogFlow interface {
	ListAuditLogs(ctx context.Context, req *dto.ListAuditLogsRequest) (*dto.ListAuditLogsResponse, error)
}

// AuditLogFlowImpl implements AuditLogFlow
type AuditLogFlowImpl struct {
	auditRepo repository.AuditLogRepository
}

func NewAuditLogFlow(auditRepo repository.AuditLogRepository) AuditLogFlow {
	return &AuditLogFlowImpl{auditRepo: auditRepo}
}

func (f *AuditLogFlowImpl) ListAuditLogs(ctx context.Context, req *dto.ListAuditLogsRequest) (*dto.ListAuditLogsResponse, error) {
	if req == nil {
		req = &dto.ListAuditLogsRequest{}
	}

	filter, err := buildAuditLogFilter(req)
	if err != nil {
		return nil, err
	}

	page, pageSize, offset, err := pageWindow(req.Page, req.PageSize)
	if err != nil {
		return nil, err
	}

	total, err := f.auditRepo.Count(ctx, filter)
	if err != nil {
		return nil, newPersistenceError("Failed to count audit logs", err)
	}

	entries, err := f.auditRepo.ByFilter(ctx, filter, "created_at DESC, id DESC", pageSize, offset)
	if err != nil {
		return nil, newPersistenceError("Failed to list audit logs", err)
	}

	items := make([]dto.AuditLogDTO, 0, len(entries))
	for _, e := range entries {
		items = append(items, ToAuditLogDTO(*e))
	}

	return &dto.ListAuditLogsResponse{
		Items:      items,
		Total:      total,
		Page:       page,
		PageSize:   pageSize,
		TotalPages: int((total + int64(pageSize) - 1) / int64(pageSize)),
	}, nil
}

func buildAuditLogFilter(req *dto.ListAuditLogsRequest) (models.AuditLogFilter, error) {
	filter := models.AuditLogFilter{
		Action:  trimmedOrNil(req.Action),
		ActorID: trimmedOrNil(req.ActorID),
		LeadID:  req.LeadID,
	}
	if req.FailedOnly {
		filter.Success = utils.ToPtr(false)
	}

	var err error
	if filter.CreatedAfter, err = optionalTimestamp(req.CreatedAfter); err != nil {
		return filter, newValidationError("created_after must be an ISO-8601 date or timestamp", ErrInvalidReferenceDate)
	}
	if filter.CreatedBefore, err = optionalTimestamp(req.CreatedBefore); err != nil {
		return filter, newValidationError("created_before must be an ISO-8601 date or timestamp", ErrInvalidReferenceDate)
	}
	return filter, nil
}

func optionalTimestamp(s *string) (*time.Time, error) {
	if s == nil || strings.TrimSpace(*s) == "" {
		return nil, nil
	}
	t, err := utils.ParseISO8601(*s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// ToAuditLogDTO converts an audit entry to its API representation
func ToAuditLogDTO(entry models.AuditLog) dto.AuditLogDTO {
	return dto.AuditLogDTO{
		ID:           entry.ID,
		ActorID:      entry.ActorID,
		LeadID:       entry.LeadID,
		Action:       entry.Action,
		Description:  entry.Description,
		IPAddress:    entry.IPAddress,
		RequestID:    entry.RequestID,
		Metadata:     entry.Metadata,
		Success:      !entry.IsFailed(),
		ErrorMessage: entry.ErrorMessage,
		CreatedAt:    entry.CreatedAt.UTC().Format(time.RFC3339),
	}
}
