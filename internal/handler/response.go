package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"bustrack/internal/backend"
	"bustrack/internal/location"
	"bustrack/internal/store"
	"bustrack/internal/trip"
)

// ErrorResponse represents an error response. Remediation, when present,
// tells the operator what to do about it.
type ErrorResponse struct {
	Error       string `json:"error"`
	Remediation string `json:"remediation,omitempty"`
}

// respondError sends an error response with the appropriate HTTP status code.
func respondError(c *gin.Context, err error) {
	code := mapErrorToHTTPStatus(err)
	response := ErrorResponse{Error: err.Error()}
	if code == http.StatusForbidden {
		response.Remediation = "open the system location settings and grant location access"
	}
	c.JSON(code, response)
}

// respondJSON sends a JSON response with the given status code.
func respondJSON(c *gin.Context, code int, data any) {
	c.JSON(code, data)
}

// mapErrorToHTTPStatus maps orchestrator/store errors to HTTP status codes.
func mapErrorToHTTPStatus(err error) int {
	switch {
	// Not found errors
	case errors.Is(err, store.ErrNotFound),
		errors.Is(err, backend.ErrNotFound):
		return http.StatusNotFound

	// Validation errors - Bad Request
	case errors.Is(err, trip.ErrUnknownRecoveryAction):
		return http.StatusBadRequest

	// Conflict errors
	case errors.Is(err, trip.ErrNoPendingRecovery):
		return http.StatusConflict

	// Permission errors - the operator has to act outside the app
	case errors.Is(err, location.ErrServicesDisabled),
		errors.Is(err, location.ErrPermissionDenied),
		errors.Is(err, location.ErrPermissionPermanentlyDenied):
		return http.StatusForbidden

	// Default to internal server error
	default:
		return http.StatusInternalServerError
	}
}
