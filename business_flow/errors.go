// Package businessflow contains the core business logic and use cases for lead lifecycle workflows
package businessflow

import (
	"errors"
	"fmt"
)

// Business flow error constants
var (
	// Maintenance request errors
	ErrInvalidReferenceDate = errors.New("invalid reference date")
	ErrInvalidDaysThreshold = errors.New("days threshold must be a finite non-negative number")
	ErrAPIKeyMismatch       = errors.New("api key mismatch")
	ErrAPIKeyMissing        = errors.New("api key is required")
	ErrPersistenceFailure   = errors.New("persistence failure")
	ErrUnknownOperator      = errors.New("unknown maintenance operator")
	ErrRunSummaryNotFound   = errors.New("no run recorded for operator")

	// Lead-related errors
	ErrLeadNotFound                   = errors.New("lead not found")
	ErrLeadPhoneRequired              = errors.New("lead phone number is required")
	ErrLeadPhoneInvalid               = errors.New("lead phone number is invalid")
	ErrLeadPhoneAlreadyExists         = errors.New("lead phone number already exists")
	ErrInvalidLeadStatus              = errors.New("invalid lead status")
	ErrLeadStatusTransitionNotAllowed = errors.New("lead status transition not allowed")
	ErrInvalidPage                    = errors.New("invalid page")
	ErrInvalidPageSize                = errors.New("page size must be between 1 and 100")
	ErrExportFailed                   = errors.New("lead export failed")

	// Session errors
	ErrInvalidRefreshToken = errors.New("invalid refresh token")
	ErrInvalidAccessToken  = errors.New("invalid access token")
	ErrTokenActorMismatch  = errors.New("token belongs to another actor")
)

// Error codes carried by BusinessError and surfaced in API responses
const (
	CodeValidationError = "VALIDATION_ERROR"
	CodeAuthError       = "AUTH_ERROR"
	CodePersistence     = "PERSISTENCE_ERROR"
	CodeNotFound        = "NOT_FOUND"
	CodeConflict        = "CONFLICT"
	CodeInternal        = "INTERNAL_ERROR"
)

type BusinessError struct {
	Code    string
	Message string
	Err     error
}

func (e *BusinessError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *BusinessError) Unwrap() error {
	return e.Err
}

func NewBusinessError(code, message string, err error) *BusinessError {
	return &BusinessError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

func NewBusinessErrorf(code, message string, err error, args ...any) *BusinessError {
	return &BusinessError{
		Code:    code,
		Message: fmt.Sprintf(message, args...),
		Err:     err,
	}
}

func newValidationError(message string, err error) *BusinessError {
	return NewBusinessError(CodeValidationError, message, err)
}

func newAuthError(message string, err error) *BusinessError {
	return NewBusinessError(CodeAuthError, message, err)
}

// newPersistenceError keeps both the sentinel and the store error in the chain
func newPersistenceError(message string, err error) *BusinessError {
	return NewBusinessError(CodePersistence, message, fmt.Errorf("%w: %w", ErrPersistenceFailure, err))
}

// IsValidationError reports whether err is a client-side input error
func IsValidationError(err error) bool {
	var be *BusinessError
	return errors.As(err, &be) && be.Code == CodeValidationError
}

// IsAuthError reports whether err is an API key failure
func IsAuthError(err error) bool {
	var be *BusinessError
	return errors.As(err, &be) && be.Code == CodeAuthError
}

func IsPersistenceFailure(err error) bool {
	return errors.Is(err, ErrPersistenceFailure)
}

func IsInvalidReferenceDate(err error) bool {
	return errors.Is(err, ErrInvalidReferenceDate)
}

func IsInvalidDaysThreshold(err error) bool {
	return errors.Is(err, ErrInvalidDaysThreshold)
}

func IsAPIKeyMismatch(err error) bool {
	return errors.Is(err, ErrAPIKeyMismatch)
}

func IsAPIKeyMissing(err error) bool {
	return errors.Is(err, ErrAPIKeyMissing)
}

func IsUnknownOperator(err error) bool {
	return errors.Is(err, ErrUnknownOperator)
}

func IsRunSummaryNotFound(err error) bool {
	return errors.Is(err, ErrRunSummaryNotFound)
}

func IsLeadNotFound(err error) bool {
	return errors.Is(err, ErrLeadNotFound)
}

func IsLeadPhoneRequired(err error) bool {
	return errors.Is(err, ErrLeadPhoneRequired)
}

func IsLeadPhoneInvalid(err error) bool {
	return errors.Is(err, ErrLeadPhoneInvalid)
}

func IsLeadPhoneAlreadyExists(err error) bool {
	return errors.Is(err, ErrLeadPhoneAlreadyExists)
}

func IsInvalidLeadStatus(err error) bool {
	return errors.Is(err, ErrInvalidLeadStatus)
}

func IsLeadStatusTransitionNotAllowed(err error) bool {
	return errors.Is(err, ErrLeadStatusTransitionNotAllowed)
}

func IsInvalidPage(err error) bool {
	return errors.Is(err, ErrInvalidPage)
}

func IsInvalidPageSize(err error) bool {
	return errors.Is(err, ErrInvalidPageSize)
}

func IsExportFailed(err error) bool {
	return errors.Is(err, ErrExportFailed)
}

func IsInvalidRefreshToken(err error) bool {
	return errors.Is(err, ErrInvalidRefreshToken)
}

func IsTokenActorMismatch(err error) bool {
	return errors.Is(err, ErrTokenActorMismatch)
}
