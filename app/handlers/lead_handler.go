package handlers

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"

	"github.com/amirphl/lead-lifecycle/app/dto"
	"github.com/amirphl/lead-lifecycle/app/middleware"
	businessflow "github.com/amirphl/lead-lifecycle/business_flow"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// LeadHandlerInterface defines the contract for lead handlers
type LeadHandlerInterface interface {
	Create(c fiber.Ctx) error
	Get(c fiber.Ctx) error
	List(c fiber.Ctx) error
	UpdateStatus(c fiber.Ctx) error
	Export(c fiber.Ctx) error
}

// LeadHandler handles lead CRUD requests from authenticated actors
type LeadHandler struct {
	flow      businessflow.LeadFlow
	validator *validator.Validate
}

func NewLeadHandler(flow businessflow.LeadFlow) *LeadHandler {
	return &LeadHandler{
		flow:      flow,
		validator: validator.New(),
	}
}

func actorFrom(c fiber.Ctx) (businessflow.Actor, bool) {
	id, ok := c.Locals(middleware.LocalActorID).(string)
	if !ok || id == "" {
		return businessflow.Actor{}, false
	}
	role, _ := c.Locals(middleware.LocalActorRole).(string)
	return businessflow.Actor{ID: id, Role: role}, true
}

func leadIDParam(c fiber.Ctx) (uint, error) {
	id, err := strconv.ParseUint(c.Params("id"), 10, 64)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("invalid lead id %q", c.Params("id"))
	}
	return uint(id), nil
}

// Create Lead
// @Router /api/v1/leads [post]
func (h *LeadHandler) Create(c fiber.Ctx) error {
	actor, ok := actorFrom(c)
	if !ok {
		return errorResponse(c, fiber.StatusUnauthorized, "Actor not found in context", "MISSING_ACTOR", nil)
	}

	var req dto.CreateLeadRequest
	if err := c.Bind().JSON(&req); err != nil {
		return errorResponse(c, fiber.StatusBadRequest, "Invalid request body", businessflow.CodeValidationError, err.Error())
	}
	if err := h.validator.Struct(&req); err != nil {
		return errorResponse(c, fiber.StatusBadRequest, "Validation failed", businessflow.CodeValidationError, validationMessages(err))
	}

	ctx, cancel := createRequestContext(c, "/api/v1/leads")
	defer cancel()

	lead, err := h.flow.CreateLead(ctx, &req, actor, clientMetadata(c))
	if err != nil {
		return businessErrorResponse(c, err)
	}
	return successResponse(c, fiber.StatusCreated, "Lead created successfully", lead)
}

// Get Lead
// @Router /api/v1/leads/{id} [get]
func (h *LeadHandler) Get(c fiber.Ctx) error {
	id, err := leadIDParam(c)
	if err != nil {
		return errorResponse(c, fiber.StatusBadRequest, "Invalid lead id", businessflow.CodeValidationError, err.Error())
	}

	ctx, cancel := createRequestContext(c, "/api/v1/leads/:id")
	defer cancel()

	lead, err := h.flow.GetLead(ctx, id)
	if err != nil {
		return businessErrorResponse(c, err)
	}
	return successResponse(c, fiber.StatusOK, "Lead retrieved successfully", lead)
}

// parseListQuery reads status (comma separated or repeated), assigned_to, phone_number,
// updated_before, updated_after, page and page_size
func parseListQuery(c fiber.Ctx) (*dto.ListLeadsRequest, error) {
	req := &dto.ListLeadsRequest{}

	for _, raw := range strings.Split(c.Query("status"), ",") {
		if s := strings.TrimSpace(raw); s != "" {
			req.Statuses = append(req.Statuses, s)
		}
	}
	if v := c.Query("assigned_to"); v != "" {
		req.AssignedTo = &v
	}
	if v := c.Query("phone_number"); v != "" {
		req.PhoneNumber = &v
	}
	if v := c.Query("updated_before"); v != "" {
		req.UpdatedBefore = &v
	}
	if v := c.Query("updated_after"); v != "" {
		req.UpdatedAfter = &v
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

// List Leads
// @Router /api/v1/leads [get]
func (h *LeadHandler) List(c fiber.Ctx) error {
	req, err := parseListQuery(c)
	if err != nil {
		return errorResponse(c, fiber.StatusBadRequest, "Invalid query parameters", businessflow.CodeValidationError, err.Error())
	}

	ctx, cancel := createRequestContext(c, "/api/v1/leads")
	defer cancel()

	result, err := h.flow.ListLeads(ctx, req)
	if err != nil {
		return businessErrorResponse(c, err)
	}
	return successResponse(c, fiber.StatusOK, "Leads retrieved successfully", result)
}

// UpdateStatus changes one lead's status
// @Router /api/v1/leads/{id}/status [patch]
func (h *LeadHandler) UpdateStatus(c fiber.Ctx) error {
	actor, ok := actorFrom(c)
	if !ok {
		return errorResponse(c, fiber.StatusUnauthorized, "Actor not found in context", "MISSING_ACTOR", nil)
	}

	id, err := leadIDParam(c)
	if err != nil {
		return errorResponse(c, fiber.StatusBadRequest, "Invalid lead id", businessflow.CodeValidationError, err.Error())
	}

	var req dto.UpdateLeadStatusRequest
	if err := c.Bind().JSON(&req); err != nil {
		return errorResponse(c, fiber.StatusBadRequest, "Invalid request body", businessflow.CodeValidationError, err.Error())
	}
	if err := h.validator.Struct(&req); err != nil {
		return errorResponse(c, fiber.StatusBadRequest, "Validation failed", businessflow.CodeValidationError, validationMessages(err))
	}

	ctx, cancel := createRequestContext(c, "/api/v1/leads/:id/status")
	defer cancel()

	lead, err := h.flow.UpdateLeadStatus(ctx, id, &req, actor, clientMetadata(c))
	if err != nil {
		return businessErrorResponse(c, err)
	}
	return successResponse(c, fiber.StatusOK, "Lead status updated successfully", lead)
}

// Export Leads as XLSX
// @Router /api/v1/leads/export [get]
func (h *LeadHandler) Export(c fiber.Ctx) error {
	req, err := parseListQuery(c)
	if err != nil {
		return errorResponse(c, fiber.StatusBadRequest, "Invalid query parameters", businessflow.CodeValidationError, err.Error())
	}

	ctx, cancel := createRequestContext(c, "/api/v1/leads/export")
	defer cancel()

	filename, content, err := h.flow.ExportLeads(ctx, req)
	if err != nil {
		return businessErrorResponse(c, err)
	}

	c.Set(fiber.HeaderContentType, xlsxContentType)
	c.Set(fiber.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", filename))
	return c.Status(fiber.StatusOK).Send(content)
}
