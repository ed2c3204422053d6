package handlers

import (
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"

	"github.com/amirphl/lead-lifecycle/app/dto"
	businessflow "github.com/amirphl/lead-lifecycle/business_flow"
)

// HeaderAPIKey carries the maintenance secret when the body omits api_key
const HeaderAPIKey = "X-API-Key"

// LeadMaintenanceHandlerInterface defines the contract for lead maintenance handlers
type LeadMaintenanceHandlerInterface interface {
	EscalateStaleLeads(c fiber.Ctx) error
	PurgeAgedLeads(c fiber.Ctx) error
	LastRun(c fiber.Ctx) error
}

// LeadMaintenanceHandler exposes the lifecycle jobs to external time-based triggers
type LeadMaintenanceHandler struct {
	escalator businessflow.StaleLeadEscalator
	purger    businessflow.AgedLeadPurger
	runs      businessflow.MaintenanceRunFlow
	validator *validator.Validate
}

func NewLeadMaintenanceHandler(escalator businessflow.StaleLeadEscalator, purger businessflow.AgedLeadPurger, runs businessflow.MaintenanceRunFlow) *LeadMaintenanceHandler {
	return &LeadMaintenanceHandler{
		escalator: escalator,
		purger:    purger,
		runs:      runs,
		validator: validator.New(),
	}
}

// bindRunRequest accepts an empty body; the header key is used when the body has none
func (h *LeadMaintenanceHandler) bindRunRequest(c fiber.Ctx) (*dto.MaintenanceRunRequest, error) {
	var req dto.MaintenanceRunRequest
	if len(strings.TrimSpace(string(c.Body()))) > 0 {
		if err := c.Bind().JSON(&req); err != nil {
			return nil, errorResponse(c, fiber.StatusBadRequest, "Invalid request body", businessflow.CodeValidationError, err.Error())
		}
	}

	if err := h.validator.Struct(&req); err != nil {
		return nil, errorResponse(c, fiber.StatusBadRequest, "Validation failed", businessflow.CodeValidationError, validationMessages(err))
	}

	if req.APIKey == nil {
		if key := c.Get(HeaderAPIKey); key != "" {
			req.APIKey = &key
		}
	}
	return &req, nil
}

// EscalateStaleLeads moves idle active leads to give_up
// @Router /api/v1/maintenance/leads/escalate-stale [post]
func (h *LeadMaintenanceHandler) EscalateStaleLeads(c fiber.Ctx) error {
	req, respErr := h.bindRunRequest(c)
	if req == nil {
		return respErr
	}

	ctx, cancel := createRequestContext(c, "/api/v1/maintenance/leads/escalate-stale")
	defer cancel()

	result, err := h.escalator.EscalateStaleLeads(ctx, req, clientMetadata(c))
	if err != nil {
		return businessErrorResponse(c, err)
	}
	return c.Status(fiber.StatusOK).JSON(result)
}

// PurgeAgedLeads permanently deletes idle terminal leads
// @Router /api/v1/maintenance/leads/purge-aged [post]
func (h *LeadMaintenanceHandler) PurgeAgedLeads(c fiber.Ctx) error {
	req, respErr := h.bindRunRequest(c)
	if req == nil {
		return respErr
	}

	ctx, cancel := createRequestContext(c, "/api/v1/maintenance/leads/purge-aged")
	defer cancel()

	result, err := h.purger.PurgeAgedLeads(ctx, req, clientMetadata(c))
	if err != nil {
		return businessErrorResponse(c, err)
	}
	return c.Status(fiber.StatusOK).JSON(result)
}

// LastRun returns the most recent run summary of an operator
// @Router /api/v1/maintenance/runs/{operator}/last [get]
func (h *LeadMaintenanceHandler) LastRun(c fiber.Ctx) error {
	ctx, cancel := createRequestContext(c, "/api/v1/maintenance/runs/:operator/last")
	defer cancel()

	summary, err := h.runs.LastRun(ctx, c.Params("operator"))
	if err != nil {
		return businessErrorResponse(c, err)
	}
	return successResponse(c, fiber.StatusOK, "Last run retrieved", summary)
}
