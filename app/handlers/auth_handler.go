package handlers

import (
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"

	"github.com/amirphl/lead-lifecycle/app/dto"
	"github.com/amirphl/lead-lifecycle/app/middleware"
	businessflow "github.com/amirphl/lead-lifecycle/business_flow"
)

// AuthHandlerInterface defines the contract for session handlers
type AuthHandlerInterface interface {
	Refresh(c fiber.Ctx) error
	Logout(c fiber.Ctx) error
}

// AuthHandler rotates and revokes actor tokens
type AuthHandler struct {
	flow      businessflow.AuthFlow
	validator *validator.Validate
}

func NewAuthHandler(flow businessflow.AuthFlow) *AuthHandler {
	return &AuthHandler{
		flow:      flow,
		validator: validator.New(),
	}
}

// Refresh exchanges a refresh token for a new token pair
// @Router /api/v1/auth/refresh [post]
func (h *AuthHandler) Refresh(c fiber.Ctx) error {
	var req dto.RefreshTokenRequest
	if err := c.Bind().JSON(&req); err != nil {
		return errorResponse(c, fiber.StatusBadRequest, "Invalid request body", businessflow.CodeValidationError, err.Error())
	}
	if err := h.validator.Struct(&req); err != nil {
		return errorResponse(c, fiber.StatusBadRequest, "Validation failed", businessflow.CodeValidationError, validationMessages(err))
	}

	ctx, cancel := createRequestContext(c, "/api/v1/auth/refresh")
	defer cancel()

	pair, err := h.flow.RefreshSession(ctx, &req, clientMetadata(c))
	if err != nil {
		return businessErrorResponse(c, err)
	}
	return successResponse(c, fiber.StatusOK, "Token refreshed successfully", pair)
}

// Logout revokes the bearer token, plus the refresh token when the body names one
// @Router /api/v1/auth/logout [post]
func (h *AuthHandler) Logout(c fiber.Ctx) error {
	actor, ok := actorFrom(c)
	if !ok {
		return errorResponse(c, fiber.StatusUnauthorized, "Actor not found in context", "MISSING_ACTOR", nil)
	}
	token, _ := c.Locals(middleware.LocalAccessToken).(string)
	if token == "" {
		return errorResponse(c, fiber.StatusUnauthorized, "Access token is required", "MISSING_ACCESS_TOKEN", nil)
	}

	var req dto.LogoutRequest
	if len(strings.TrimSpace(string(c.Body()))) > 0 {
		if err := c.Bind().JSON(&req); err != nil {
			return errorResponse(c, fiber.StatusBadRequest, "Invalid request body", businessflow.CodeValidationError, err.Error())
		}
		if err := h.validator.Struct(&req); err != nil {
			return errorResponse(c, fiber.StatusBadRequest, "Validation failed", businessflow.CodeValidationError, validationMessages(err))
		}
	}

	ctx, cancel := createRequestContext(c, "/api/v1/auth/logout")
	defer cancel()

	if err := h.flow.Logout(ctx, token, &req, actor, clientMetadata(c)); err != nil {
		return businessErrorResponse(c, err)
	}
	return successResponse(c, fiber.StatusOK, "Logged out successfully", nil)
}
