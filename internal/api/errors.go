// errors.go - Structured error handling for API responses
package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/tactical-map/backend/internal/catalog"
	"github.com/tactical-map/backend/internal/pins"
	"github.com/tactical-map/backend/internal/prefs"
	"github.com/tactical-map/backend/internal/session"
	"github.com/tactical-map/backend/internal/snapshot"
	"github.com/tactical-map/backend/internal/storage"
)

// ShowErrorDetails includes the cause of unexpected errors in responses.
var ShowErrorDetails = true

// APIError represents a structured API error response
type APIError struct {
	Status  int    `json:"-"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

// Error implements the error interface
func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func newError(status int, code, message string) *APIError {
	return &APIError{Status: status, Code: code, Message: message}
}

// NewBadRequestError creates a 400 Bad Request error
func NewBadRequestError(message string, cause error) *APIError {
	err := newError(http.StatusBadRequest, "BAD_REQUEST", message)
	if cause != nil {
		err.Details = cause.Error()
	}
	return err
}

// NewValidationError creates a 400 validation error for a specific field
func NewValidationError(field string) *APIError {
	return newError(http.StatusBadRequest, "VALIDATION_ERROR", fmt.Sprintf("validation failed for field: %s", field))
}

// NewUnauthorizedError creates a 401 error
func NewUnauthorizedError(message string) *APIError {
	return newError(http.StatusUnauthorized, "UNAUTHORIZED", message)
}

// NewForbiddenError creates a 403 error
func NewForbiddenError(message string) *APIError {
	return newError(http.StatusForbidden, "FORBIDDEN", message)
}

// NewNotFoundError creates a 404 Not Found error
func NewNotFoundError(resource string, id string) *APIError {
	return newError(http.StatusNotFound, "NOT_FOUND", fmt.Sprintf("%s not found: %s", resource, id))
}

// NewInternalError creates a 500 Internal Server Error
func NewInternalError(message string, cause error) *APIError {
	err := newError(http.StatusInternalServerError, "INTERNAL_ERROR", message)
	if cause != nil && ShowErrorDetails {
		err.Details = cause.Error()
	}
	return err
}

// errorMapping pairs domain sentinels with the response they produce. The
// first match wins.
var errorMapping = []struct {
	target error
	status int
	code   string
}{
	{session.ErrIdentityRequired, http.StatusUnauthorized, "IDENTITY_REQUIRED"},
	{session.ErrNotApproved, http.StatusForbidden, "NOT_APPROVED"},
	{session.ErrNotOwner, http.StatusForbidden, "NOT_OWNER"},
	{session.ErrRoomNotFound, http.StatusNotFound, "ROOM_NOT_FOUND"},
	{session.ErrNotPending, http.StatusNotFound, "NOT_PENDING"},
	{session.ErrInvalidRoomID, http.StatusBadRequest, "INVALID_ROOM"},
	{pins.ErrPinNotFound, http.StatusNotFound, "PIN_NOT_FOUND"},
	{pins.ErrOutOfBounds, http.StatusBadRequest, "OUT_OF_BOUNDS"},
	{pins.ErrUnknownMap, http.StatusBadRequest, "UNKNOWN_MAP"},
	{pins.ErrUnknownLayer, http.StatusBadRequest, "UNKNOWN_LAYER"},
	{pins.ErrUnknownMarker, http.StatusBadRequest, "UNKNOWN_MARKER"},
	{pins.ErrNoteTooLong, http.StatusBadRequest, "NOTE_TOO_LONG"},
	{pins.ErrTitleTooLong, http.StatusBadRequest, "TITLE_TOO_LONG"},
	{pins.ErrInvalidProfile, http.StatusBadRequest, "INVALID_PROFILE"},
	{pins.ErrUnknownProfile, http.StatusNotFound, "UNKNOWN_PROFILE"},
	{pins.ErrDefaultProfile, http.StatusBadRequest, "DEFAULT_PROFILE"},
	{pins.ErrProfileExists, http.StatusConflict, "PROFILE_EXISTS"},
	{pins.ErrConfirmationRequired, http.StatusBadRequest, "CONFIRMATION_REQUIRED"},
	{pins.ErrImageTooLarge, http.StatusRequestEntityTooLarge, "IMAGE_TOO_LARGE"},
	{snapshot.ErrTooManyPixels, http.StatusRequestEntityTooLarge, "IMAGE_TOO_LARGE"},
	{pins.ErrTooManyPins, http.StatusConflict, "PIN_LIMIT"},
	{pins.ErrRateLimited, http.StatusTooManyRequests, "RATE_LIMITED"},
	{catalog.ErrEmptyLabel, http.StatusBadRequest, "VALIDATION_ERROR"},
	{catalog.ErrUnknownCategory, http.StatusBadRequest, "UNKNOWN_CATEGORY"},
	{catalog.ErrMarkerNotFound, http.StatusNotFound, "MARKER_NOT_FOUND"},
	{catalog.ErrBuiltinMarker, http.StatusBadRequest, "BUILTIN_MARKER"},
	{catalog.ErrNotCreator, http.StatusForbidden, "NOT_CREATOR"},
	{prefs.ErrUnknownMarker, http.StatusBadRequest, "UNKNOWN_MARKER"},
	{prefs.ErrEmptyIcon, http.StatusBadRequest, "VALIDATION_ERROR"},
	{prefs.ErrIconTooLarge, http.StatusRequestEntityTooLarge, "IMAGE_TOO_LARGE"},
	{prefs.ErrIconNotFound, http.StatusNotFound, "ICON_NOT_FOUND"},
	{prefs.ErrLibraryFull, http.StatusConflict, "LIBRARY_FULL"},
	{storage.ErrNotFound, http.StatusNotFound, "NOT_FOUND"},
	{storage.ErrAlreadyExists, http.StatusConflict, "CONFLICT"},
}

// FromError converts a domain error into an APIError. Errors without a
// mapping become 500s.
func FromError(err error) *APIError {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}
	for _, m := range errorMapping {
		if errors.Is(err, m.target) {
			return newError(m.status, m.code, err.Error())
		}
	}
	return NewInternalError("operation failed", err)
}

// ErrorHandler middleware for Echo
// Usage: e.HTTPErrorHandler = api.ErrorHandler
func ErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	var apiErr *APIError
	var httpErr *echo.HTTPError

	switch {
	case errors.As(err, &apiErr):
	case errors.As(err, &httpErr):
		apiErr = &APIError{
			Status:  httpErr.Code,
			Code:    "HTTP_ERROR",
			Message: fmt.Sprintf("%v", httpErr.Message),
		}
	default:
		apiErr = FromError(err)
	}

	if apiErr.Status >= http.StatusInternalServerError {
		fmt.Printf("[API] %s %s: %v\n", c.Request().Method, c.Request().URL.Path, err)
	}

	if c.Request().Method == http.MethodHead {
		c.NoContent(apiErr.Status)
		return
	}
	c.JSON(apiErr.Status, apiErr)
}
