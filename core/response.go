package core

import (
	"encoding/json"
	"errors"
	"net/http"
)

// ErrorCategory classifies request failures so handlers map them to a
// consistent HTTP status.
type ErrorCategory string

const (
	// CategoryInputError indicates the request envelope was malformed
	// Example: body is not JSON, multipart form has no "file" field
	CategoryInputError ErrorCategory = "INPUT_ERROR"

	// CategoryNotFound indicates the requested memory entry doesn't exist
	CategoryNotFound ErrorCategory = "NOT_FOUND"

	// CategoryPayloadTooLarge indicates the request body exceeded the upload limit
	CategoryPayloadTooLarge ErrorCategory = "PAYLOAD_TOO_LARGE"

	// CategoryServiceError indicates a backing store could not be reached
	CategoryServiceError ErrorCategory = "SERVICE_ERROR"

	// CategoryProcessingError covers every classification or extraction
	// failure. These always surface as 500 with the error message as detail.
	CategoryProcessingError ErrorCategory = "PROCESSING_ERROR"
)

// GenericErrorDetail is returned when a handler panics.
const GenericErrorDetail = "An unexpected error occurred. Please try again later."

// RequestError is a failure carrying the category used to pick a status code.
type RequestError struct {
	Category ErrorCategory
	Message  string
	Err      error
}

func (e *RequestError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return string(e.Category)
}

func (e *RequestError) Unwrap() error {
	return e.Err
}

// NewRequestError creates a categorized request error
func NewRequestError(category ErrorCategory, message string, err error) *RequestError {
	return &RequestError{Category: category, Message: message, Err: err}
}

// ErrorResponse is the body written for every failed request.
type ErrorResponse struct {
	Detail   string        `json:"detail"`
	Category ErrorCategory `json:"category,omitempty"`
}

// HTTPStatusForCategory returns the appropriate HTTP status code for an error category.
//
// Mapping:
//   - CategoryInputError      → 400 Bad Request
//   - CategoryNotFound        → 404 Not Found
//   - CategoryPayloadTooLarge → 413 Request Entity Too Large
//   - CategoryServiceError    → 503 Service Unavailable
//   - everything else         → 500 Internal Server Error
func HTTPStatusForCategory(category ErrorCategory) int {
	switch category {
	case CategoryInputError:
		return http.StatusBadRequest // 400
	case CategoryNotFound:
		return http.StatusNotFound // 404
	case CategoryPayloadTooLarge:
		return http.StatusRequestEntityTooLarge // 413
	case CategoryServiceError:
		return http.StatusServiceUnavailable // 503
	default:
		return http.StatusInternalServerError // 500
	}
}

// CategoryForError picks the category for an arbitrary error. Anything that is
// not an explicit RequestError or a missing entry is a processing failure.
func CategoryForError(err error) ErrorCategory {
	var reqErr *RequestError
	if errors.As(err, &reqErr) {
		return reqErr.Category
	}
	if IsNotFound(err) {
		return CategoryNotFound
	}
	return CategoryProcessingError
}

// WriteJSON encodes v with the given status. Encoding failures are logged since
// the header is already written by then.
func WriteJSON(w http.ResponseWriter, status int, v interface{}, logger Logger) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil && logger != nil {
		logger.Error("Failed to encode response", map[string]interface{}{
			"error":  err.Error(),
			"status": status,
		})
	}
}

// WriteError writes an ErrorResponse for err using its category.
func WriteError(w http.ResponseWriter, err error, logger Logger) {
	category := CategoryForError(err)
	WriteJSON(w, HTTPStatusForCategory(category), ErrorResponse{
		Detail:   err.Error(),
		Category: category,
	}, logger)
}
