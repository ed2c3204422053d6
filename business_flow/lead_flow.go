package businessflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/amirphl/lead-lifecycle/app/dto"
	"github.com/amirphl/lead-lifecycle/models"
	"github.com/amirphl/lead-lifecycle/repository"
	"github.com/amirphl/lead-lifecycle/utils"
)

const (
	defaultLeadPageSize = 20
	maxLeadPageSize     = 100
	leadExportSheet     = "leads"
)

var (
	phoneNumberPattern = regexp.MustCompile(`^\+?[0-9]{7,20}$`)
	phoneNumberCleaner = strings.NewReplacer(" ", "", "-", "", "(", "", ")", "", ".", "")
)

// LeadFlow handles day-to-day lead management by CRM actors
type LeadFlow interface {
	CreateLead(ctx context.Context, req *dto.CreateLeadRequest, actor Actor, metadata *ClientMetadata) (*dto.LeadDTO, error)
	GetLead(ctx context.Context, id uint) (*dto.LeadDTO, error)
	ListLeads(ctx context.Context, req *dto.ListLeadsRequest) (*dto.ListLeadsResponse, error)
	UpdateLeadStatus(ctx context.Context, id uint, req *dto.UpdateLeadStatusRequest, actor Actor, metadata *ClientMetadata) (*dto.LeadDTO, error)
	ExportLeads(ctx context.Context, req *dto.ListLeadsRequest) (filename string, content []byte, err error)
}

// LeadFlowImpl implements LeadFlow
type LeadFlowImpl struct {
	leadRepo  repository.LeadRepository
	auditRepo repository.AuditLogRepository
	logger    *zap.Logger
	clock     func() time.Time
}

func NewLeadFlow(leadRepo repository.LeadRepository, auditRepo repository.AuditLogRepository, logger *zap.Logger) LeadFlow {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LeadFlowImpl{
		leadRepo:  leadRepo,
		auditRepo: auditRepo,
		logger:    logger,
		clock:     utils.UTCNow,
	}
}

// NormalizePhoneNumber strips common separators and validates the result
func NormalizePhoneNumber(raw string) (string, error) {
	phone := phoneNumberCleaner.Replace(strings.TrimSpace(raw))
	if phone == "" {
		return "", newValidationError("phone_number is required", ErrLeadPhoneRequired)
	}
	if !phoneNumberPattern.MatchString(phone) {
		return "", newValidationError("phone_number must contain 7 to 20 digits", ErrLeadPhoneInvalid)
	}
	return phone, nil
}

func (f *LeadFlowImpl) CreateLead(ctx context.Context, req *dto.CreateLeadRequest, actor Actor, metadata *ClientMetadata) (*dto.LeadDTO, error) {
	phone, err := NormalizePhoneNumber(req.PhoneNumber)
	if err != nil {
		return nil, err
	}

	status := models.LeadStatusNew
	if req.Status != nil && *req.Status != "" {
		if !models.IsValidLeadStatus(*req.Status) {
			return nil, newValidationError("Unknown lead status", ErrInvalidLeadStatus)
		}
		status = *req.Status
	}

	existing, err := f.leadRepo.ByPhoneNumber(ctx, phone)
	if err != nil {
		return nil, newPersistenceError("Failed to check phone number", err)
	}
	if existing != nil {
		return nil, NewBusinessError(CodeConflict, "A lead with this phone number already exists", ErrLeadPhoneAlreadyExists)
	}

	now := f.clock()
	lead := &models.Lead{
		PhoneNumber: phone,
		FirstName:   trimmedOrNil(req.FirstName),
		LastName:    trimmedOrNil(req.LastName),
		Email:       trimmedOrNil(req.Email),
		Source:      trimmedOrNil(req.Source),
		AssignedTo:  trimmedOrNil(req.AssignedTo),
		Status:      status,
		CreatedAt:   now,
		UpdatedAt:   now,
		CreatedBy:   actor.ID,
		UpdatedBy:   actor.ID,
	}

	if err := f.leadRepo.Save(ctx, lead); err != nil {
		if errors.Is(err, repository.ErrDuplicateKey) {
			return nil, NewBusinessError(CodeConflict, "A lead with this phone number already exists", ErrLeadPhoneAlreadyExists)
		}
		return nil, newPersistenceError("Failed to create lead", err)
	}

	f.audit(ctx, actor, lead.ID, models.AuditActionLeadCreated, "lead created", metadata, map[string]any{
		"status": lead.Status,
	})

	out := ToLeadDTO(*lead)
	return &out, nil
}

func (f *LeadFlowImpl) GetLead(ctx context.Context, id uint) (*dto.LeadDTO, error) {
	lead, err := f.leadRepo.ByID(ctx, id)
	if err != nil {
		return nil, newPersistenceError("Failed to load lead", err)
	}
	if lead == nil {
		return nil, NewBusinessError(CodeNotFound, "Lead not found", ErrLeadNotFound)
	}
	out := ToLeadDTO(*lead)
	return &out, nil
}

func (f *LeadFlowImpl) ListLeads(ctx context.Context, req *dto.ListLeadsRequest) (*dto.ListLeadsResponse, error) {
	filter, err := buildLeadFilter(req)
	if err != nil {
		return nil, err
	}

	page, pageSize, offset, err := pageWindow(req.Page, req.PageSize)
	if err != nil {
		return nil, err
	}

	total, err := f.leadRepo.Count(ctx, filter)
	if err != nil {
		return nil, newPersistenceError("Failed to count leads", err)
	}

	leads, err := f.leadRepo.ByFilter(ctx, filter, "", pageSize, offset)
	if err != nil {
		return nil, newPersistenceError("Failed to list leads", err)
	}

	items := make([]dto.LeadDTO, 0, len(leads))
	for _, l := range leads {
		items = append(items, ToLeadDTO(*l))
	}

	return &dto.ListLeadsResponse{
		Items:      items,
		Total:      total,
		Page:       page,
		PageSize:   pageSize,
		TotalPages: int((total + int64(pageSize) - 1) / int64(pageSize)),
	}, nil
}

// UpdateLeadStatus changes one lead's status; reopening a terminal lead requires the admin role
func (f *LeadFlowImpl) UpdateLeadStatus(ctx context.Context, id uint, req *dto.UpdateLeadStatusRequest, actor Actor, metadata *ClientMetadata) (*dto.LeadDTO, error) {
	if !models.IsValidLeadStatus(req.Status) {
		return nil, newValidationError("Unknown lead status", ErrInvalidLeadStatus)
	}

	current, err := f.leadRepo.ByID(ctx, id)
	if err != nil {
		return nil, newPersistenceError("Failed to load lead", err)
	}
	if current == nil {
		return nil, NewBusinessError(CodeNotFound, "Lead not found", ErrLeadNotFound)
	}

	if current.IsTerminal() && !models.IsTerminalStatus(req.Status) && !actor.IsAdmin() {
		return nil, NewBusinessErrorf(CodeConflict, "Only admins can reopen a %s lead", ErrLeadStatusTransitionNotAllowed, current.Status)
	}

	updated, err := f.leadRepo.UpdateStatus(ctx, id, req.Status, actor.ID, f.clock())
	if err != nil {
		return nil, newPersistenceError("Failed to update lead status", err)
	}
	if updated == nil {
		return nil, NewBusinessError(CodeNotFound, "Lead not found", ErrLeadNotFound)
	}

	f.audit(ctx, actor, id, models.AuditActionLeadStatusChanged, "lead status changed", metadata, map[string]any{
		"from": current.Status,
		"to":   updated.Status,
	})

	out := ToLeadDTO(*updated)
	return &out, nil
}

// ExportLeads renders up to MaxExportRows filtered leads into a single-sheet workbook
func (f *LeadFlowImpl) ExportLeads(ctx context.Context, req *dto.ListLeadsRequest) (string, []byte, error) {
	filter, err := buildLeadFilter(req)
	if err != nil {
		return "", nil, err
	}

	leads, err := f.leadRepo.ByFilter(ctx, filter, "", utils.MaxExportRows, 0)
	if err != nil {
		return "", nil, newPersistenceError("Failed to fetch leads for export", err)
	}

	xl := excelize.NewFile()
	defer func() { _ = xl.Close() }()

	if err := xl.SetSheetName(xl.GetSheetName(0), leadExportSheet); err != nil {
		return "", nil, NewBusinessError(CodeInternal, "Failed to prepare workbook", fmt.Errorf("%w: %w", ErrExportFailed, err))
	}

	header := []string{"id", "phone_number", "first_name", "last_name", "email", "source", "assigned_to", "status", "created_at", "updated_at", "created_by", "updated_by"}
	if err := xl.SetSheetRow(leadExportSheet, "A1", &header); err != nil {
		return "", nil, NewBusinessError(CodeInternal, "Failed to write workbook header", fmt.Errorf("%w: %w", ErrExportFailed, err))
	}

	for i, l := range leads {
		record := []string{
			strconv.FormatUint(uint64(l.ID), 10),
			l.PhoneNumber,
			derefString(l.FirstName),
			derefString(l.LastName),
			derefString(l.Email),
			derefString(l.Source),
			derefString(l.AssignedTo),
			l.Status,
			l.CreatedAt.UTC().Format(time.RFC3339),
			l.UpdatedAt.UTC().Format(time.RFC3339),
			l.CreatedBy,
			l.UpdatedBy,
		}
		cellRef, _ := excelize.CoordinatesToCellName(1, i+2)
		if err := xl.SetSheetRow(leadExportSheet, cellRef, &record); err != nil {
			return "", nil, NewBusinessError(CodeInternal, "Failed to write workbook row", fmt.Errorf("%w: %w", ErrExportFailed, err))
		}
	}

	buf, err := xl.WriteToBuffer()
	if err != nil {
		return "", nil, NewBusinessError(CodeInternal, "Failed to write Excel file", fmt.Errorf("%w: %w", ErrExportFailed, err))
	}

	filename := fmt.Sprintf("leads_%s.xlsx", f.clock().Format("20060102_150405"))
	return filename, buf.Bytes(), nil
}

func buildLeadFilter(req *dto.ListLeadsRequest) (models.LeadFilter, error) {
	filter := models.LeadFilter{}
	if req == nil {
		return filter, nil
	}

	for _, s := range req.Statuses {
		if !models.IsValidLeadStatus(s) {
			return filter, newValidationError("Unknown lead status", ErrInvalidLeadStatus)
		}
	}
	filter.Statuses = req.Statuses
	filter.AssignedTo = trimmedOrNil(req.AssignedTo)

	if req.PhoneNumber != nil && strings.TrimSpace(*req.PhoneNumber) != "" {
		phone, err := NormalizePhoneNumber(*req.PhoneNumber)
		if err != nil {
			return filter, err
		}
		filter.PhoneNumber = &phone
	}

	if req.UpdatedBefore != nil && strings.TrimSpace(*req.UpdatedBefore) != "" {
		t, err := utils.ParseISO8601(*req.UpdatedBefore)
		if err != nil {
			return filter, newValidationError("updated_before must be an ISO-8601 date or timestamp", ErrInvalidReferenceDate)
		}
		filter.UpdatedBefore = &t
	}
	if req.UpdatedAfter != nil && strings.TrimSpace(*req.UpdatedAfter) != "" {
		t, err := utils.ParseISO8601(*req.UpdatedAfter)
		if err != nil {
			return filter, newValidationError("updated_after must be an ISO-8601 date or timestamp", ErrInvalidReferenceDate)
		}
		filter.UpdatedAfter = &t
	}
	return filter, nil
}

func (f *LeadFlowImpl) audit(ctx context.Context, actor Actor, leadID uint, action, description string, metadata *ClientMetadata, extra map[string]any) {
	raw, _ := json.Marshal(extra)

	entry := &models.AuditLog{
		ActorID:     utils.ToPtr(actor.ID),
		LeadID:      utils.ToPtr(leadID),
		Action:      action,
		Description: &description,
		Metadata:    raw,
		Success:     utils.ToPtr(true),
	}
	if metadata != nil {
		entry.IPAddress = &metadata.IPAddress
		entry.UserAgent = &metadata.UserAgent
		if metadata.RequestID != "" {
			entry.RequestID = &metadata.RequestID
		}
	}

	if err := f.auditRepo.Save(ctx, entry); err != nil {
		f.logger.Warn("failed to write audit log", zap.String("action", action), zap.Uint("lead_id", leadID), zap.Error(err))
	}
}

func trimmedOrNil(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	return &v
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
