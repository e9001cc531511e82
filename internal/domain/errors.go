package domain

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors shared across the service, storage and transport layers.
var (
	ErrNotFound          = errors.New("not found")
	ErrEmptyImage        = errors.New("image is empty")
	ErrVisionUnavailable = errors.New("vision analysis service unavailable")
)

// Codes carried in APIError.Code.
const (
	ErrValidation     = "VALIDATION_ERROR"
	ErrNotFoundCode   = "NOT_FOUND"
	ErrVisionAPI      = "VISION_API_ERROR"
	ErrRateLimit      = "RATE_LIMIT_EXCEEDED"
	ErrInternalServer = "INTERNAL_SERVER_ERROR"
)

// APIError is the JSON body of every failed HTTP request.
type APIError struct {
	Code      string    `json:"code"`
	Message   string    `json:"message"`
	Details   string    `json:"details,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	RequestID string    `json:"request_id"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NewAPIError stamps an error body with the current time.
func NewAPIError(code, message, details, requestID string) *APIError {
	return &APIError{
		Code:      code,
		Message:   message,
		Details:   details,
		Timestamp: time.Now().UTC(),
		RequestID: requestID,
	}
}

// ValidationError reports a rejected request field. Transports map it to a client error.
type ValidationError struct {
	Field   string      `json:"field"`
	Message string      `json:"message"`
	Value   interface{} `json:"value"`
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for field '%s': %s", e.Field, e.Message)
}

func NewValidationError(field, message string, value interface{}) *ValidationError {
	return &ValidationError{Field: field, Message: message, Value: value}
}
