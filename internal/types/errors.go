package types

import (
	"fmt"
	"net/http"
	"strings"
)

// ErrorCode is a typed string for categorizing application errors.
type ErrorCode string

// Error code constants. Handlers and engines use these instead of literals.
const (
	// Validation (400)
	ErrCodeValidationMissingField  ErrorCode = "validation_missing_required_field"
	ErrCodeValidationMoisture      ErrorCode = "validation_moisture_out_of_range"
	ErrCodeValidationTemperature   ErrorCode = "validation_temperature_out_of_range"
	ErrCodeValidationHumidity      ErrorCode = "validation_humidity_out_of_range"
	ErrCodeValidationBattery       ErrorCode = "validation_battery_out_of_range"
	ErrCodeValidationTimestamp     ErrorCode = "validation_invalid_timestamp"
	ErrCodeValidationDeviceID      ErrorCode = "validation_invalid_device_id"
	ErrCodeValidationPayload       ErrorCode = "validation_malformed_payload"
	ErrCodeValidationDays          ErrorCode = "validation_invalid_days_since_sowing"
	ErrCodeValidationMonth         ErrorCode = "validation_invalid_month"
	ErrCodeValidationFarmContext   ErrorCode = "validation_invalid_farm_context"
	ErrCodeValidationCommand       ErrorCode = "validation_invalid_command"
	ErrCodeValidationDeviceStatus  ErrorCode = "validation_invalid_device_status"
	ErrCodeValidationEmptyQuery    ErrorCode = "validation_empty_query"
	ErrCodeValidationKnowledgeBase ErrorCode = "validation_knowledge_base_invalid"

	// Not Found (404)
	ErrCodeNotFoundCrop     ErrorCode = "not_found_crop"
	ErrCodeNotFoundSoil     ErrorCode = "not_found_soil"
	ErrCodeNotFoundStage    ErrorCode = "not_found_stage"
	ErrCodeNotFoundDevice   ErrorCode = "not_found_device"
	ErrCodeNotFoundSchedule ErrorCode = "not_found_fertilizer_schedule"

	// Internal/Upstream (500/502)
	ErrCodeInternalDB          ErrorCode = "internal_database_error"
	ErrCodeInternalUnexpected  ErrorCode = "internal_unexpected_error"
	ErrCodeInternalTransport   ErrorCode = "internal_device_transport_error"
	ErrCodeUpstreamVision      ErrorCode = "upstream_vision_unavailable"
	ErrCodeUpstreamUnavailable ErrorCode = "upstream_unavailable"
	ErrCodeUpstreamRateLimited ErrorCode = "upstream_rate_limited"
)

// HTTPStatus maps an ErrorCode to its corresponding HTTP status code.
// Returns 500 for unrecognized error codes.
func (c ErrorCode) HTTPStatus() int {
	s := string(c)
	switch {
	case strings.HasPrefix(s, "validation_"):
		return http.StatusBadRequest
	case strings.HasPrefix(s, "not_found_"):
		return http.StatusNotFound
	case s == string(ErrCodeUpstreamRateLimited):
		return http.StatusTooManyRequests
	case strings.HasPrefix(s, "upstream_"):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// AppError is the standard application error type. Knowledge-base lookups,
// engines, the sensor service and the HTTP layer all express failures as
// AppError so the router and handlers can map them consistently.
type AppError struct {
	Code    ErrorCode      `json:"code"`
	Message string         `json:"message"`
	Err     error          `json:"-"`
	Details map[string]any `json:"details,omitempty"`
}

// Error implements the error interface.
func (e *AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error for errors.Is/errors.As support.
func (e *AppError) Unwrap() error {
	return e.Err
}

// HTTPStatus returns the HTTP status code corresponding to this error's code.
func (e *AppError) HTTPStatus() int {
	return e.Code.HTTPStatus()
}

// IsValidation reports whether the error was caused by bad input.
func (e *AppError) IsValidation() bool {
	return strings.HasPrefix(string(e.Code), "validation_")
}

// IsNotFound reports whether the error is an unknown-key lookup failure.
func (e *AppError) IsNotFound() bool {
	return strings.HasPrefix(string(e.Code), "not_found_")
}

// WithDetails returns a copy of the error with the provided details merged in.
func (e *AppError) WithDetails(details map[string]any) *AppError {
	merged := make(map[string]any, len(e.Details)+len(details))
	for k, v := range e.Details {
		merged[k] = v
	}
	for k, v := range details {
		merged[k] = v
	}
	return &AppError{
		Code:    e.Code,
		Message: e.Message,
		Err:     e.Err,
		Details: merged,
	}
}

// NewAppError creates a new AppError with the given code, message, and optional
// underlying error.
func NewAppError(code ErrorCode, message string, err error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// NewAppErrorWithDetails creates a new AppError carrying structured details.
func NewAppErrorWithDetails(code ErrorCode, message string, err error, details map[string]any) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
		Details: details,
	}
}
