// Package handlers contains HTTP request handlers and presentation layer logic for the API endpoints
package handlers

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/requestid"

	"github.com/amirphl/lead-lifecycle/app/dto"
	businessflow "github.com/amirphl/lead-lifecycle/business_flow"
	"github.com/amirphl/lead-lifecycle/utils"
)

func getValidationErrorMessage(err validator.FieldError) string {
	switch err.Tag() {
	case "required":
		return err.Field() + " is required"
	case "email":
		return "Invalid email format"
	case "min":
		return err.Field() + " must be at least " + err.Param() + " characters"
	case "max":
		return err.Field() + " must be at most " + err.Param() + " characters"
	case "oneof":
		return err.Field() + " must be one of: " + err.Param()
	case "numeric":
		return err.Field() + " must contain only numbers"
	case "gte":
		return fmt.Sprintf("%s must be greater than or equal to %s", err.Field(), err.Param())
	case "lte":
		return fmt.Sprintf("%s must be less than or equal to %s", err.Field(), err.Param())
	default:
		return err.Field() + " is invalid"
	}
}

func validationMessages(err error) []string {
	var fieldErrors validator.ValidationErrors
	if !errors.As(err, &fieldErrors) {
		return []string{err.Error()}
	}
	messages := make([]string, 0, len(fieldErrors))
	for _, fe := range fieldErrors {
		messages = append(messages, getValidationErrorMessage(fe))
	}
	return messages
}

func errorResponse(c fiber.Ctx, statusCode int, message, errorCode string, details any) error {
	return c.Status(statusCode).JSON(dto.APIResponse{
		Success: false,
		Message: message,
		Error: dto.ErrorDetail{
			Code:    errorCode,
			Details: details,
		},
	})
}

func successResponse(c fiber.Ctx, statusCode int, message string, data any) error {
	return c.Status(statusCode).JSON(dto.APIResponse{
		Success: true,
		Message: message,
		Data:    data,
	})
}

// businessErrorResponse maps a flow error onto the HTTP status of its class.
// Persistence and unexpected errors never expose store details.
func businessErrorResponse(c fiber.Ctx, err error) error {
	var be *businessflow.BusinessError
	if !errors.As(err, &be) {
		return errorResponse(c, fiber.StatusInternalServerError, "An internal server error occurred", businessflow.CodeInternal, nil)
	}

	switch be.Code {
	case businessflow.CodeValidationError:
		return errorResponse(c, fiber.StatusBadRequest, be.Message, be.Code, errorDetails(be))
	case businessflow.CodeAuthError:
		return errorResponse(c, fiber.StatusUnauthorized, be.Message, be.Code, nil)
	case businessflow.CodeNotFound:
		return errorResponse(c, fiber.StatusNotFound, be.Message, be.Code, nil)
	case businessflow.CodeConflict:
		return errorResponse(c, fiber.StatusConflict, be.Message, be.Code, errorDetails(be))
	case businessflow.CodePersistence:
		return errorResponse(c, fiber.StatusInternalServerError, be.Message, be.Code, nil)
	default:
		return errorResponse(c, fiber.StatusInternalServerError, "An internal server error occurred", businessflow.CodeInternal, nil)
	}
}

func errorDetails(be *businessflow.BusinessError) any {
	if be.Err == nil {
		return nil
	}
	return be.Err.Error()
}

func requestIDOf(c fiber.Ctx) string {
	if id := requestid.FromContext(c); id != "" {
		return id
	}
	return c.Get(fiber.HeaderXRequestID)
}

func clientMetadata(c fiber.Ctx) *businessflow.ClientMetadata {
	metadata := businessflow.NewClientMetadata(c.IP(), c.Get(fiber.HeaderUserAgent))
	metadata.SetRequestID(requestIDOf(c))
	return metadata
}

func createRequestContext(c fiber.Ctx, endpoint string) (context.Context, context.CancelFunc) {
	timeout := utils.DefaultRequestTimeout
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	ctx = context.WithValue(ctx, utils.RequestIDKey, requestIDOf(c))
	ctx = context.WithValue(ctx, utils.UserAgentKey, c.Get(fiber.HeaderUserAgent))
	ctx = context.WithValue(ctx, utils.IPAddressKey, c.IP())
	ctx = context.WithValue(ctx, utils.EndpointKey, endpoint)
	ctx = context.WithValue(ctx, utils.TimeoutKey, timeout)
	return ctx, cancel
}
