package handlers

import (
	"fmt"
	"strconv"

	"github.com/gofiber/fiber/v3"

	"github.com/amirphl/lead-lifecycle/app/dto"
	businessflow "github.com/amirphl/lead-lifecycle/business_flow"
)

// AuditLogHandlerInterface defines the contract for audit trail handlers
type AuditLogHandlerInterface interface {
	List(c fiber.Ctx) error
}

// AuditLogHandler serves the audit trail to admins
type AuditLogHandler struct {
	flow businessflow.AuditLogFlow
}

func NewAuditLogHandler(flow businessflow.AuditLogFlow) *AuditLogHandler {
	return &AuditLogHandler{flow: flow}
}

// parseAuditQuery reads action, actor_id, lead_id, failed, created_after, created_before, page and page_size
func parseAuditQuery(c fiber.Ctx) (*dto.ListAuditLogsRequest, error) {
	req := &dto.ListAuditLogsRequest{}

	if v := c.Query("action"); v != "" {
		req.Action = &v
	}
	if v := c.Query("actor_id"); v != "" {
		req.ActorID = &v
	}
	if v := c.Query("created_after"); v != "" {
		req.CreatedAfter = &v
	}
	if v := c.Query("created_before"); v != "" {
		req.CreatedBefore = &v
	}
	if v := c.Query("lead_id"); v != "" {
		id, err := strconv.ParseUint(v, 10, 64)
		if err != nil || id == 0 {
			return nil, fmt.Errorf("lead_id must be a positive integer")
		}
		leadID := uint(id)
		req.LeadID = &leadID
	}
	if v := c.Query("failed"); v != "" {
		failed, err := strconv.ParseBool(v)
		if err != nil {
			return nil, fmt.Errorf("failed must be a boolean")
		}
		req.FailedOnly = failed
	}

	var err error
	if v := c.Query("page"); v != "" {
		if req.Page, err = strconv.Atoi(v); err != nil {
			return nil, fmt.Errorf("page must be an integer")
		}
	}
	if v := c.Query("page_size"); v != "" {
		if req.PageSize, err = strconv.Atoi(v); err != nil {
			return nil, fmt.Errorf("page_size must be an integer")
		}
	}
	return req, nil
}

// List returns a page of audit entries, newest first
// @Router /api/v1/maintenance/audit-logs [get]
func (h *AuditLogHandler) List(c fiber.Ctx) error {
	req, err := parseAuditQuery(c)
	if err != nil {
		return errorResponse(c, fiber.StatusBadRequest, "Invalid query parameters", businessflow.CodeValidationError, err.Error())
	}

	ctx, cancel := createRequestContext(c, "/api/v1/maintenance/audit-logs")
	defer cancel()

	result, err := h.flow.ListAuditLogs(ctx, req)
	if err != nil {
		return businessErrorResponse(c, err)
	}
	return successResponse(c, fiber.StatusOK, "Audit logs retrieved successfully", result)
}
