package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"bustrack/internal/domain"
	"bustrack/internal/trip"
)

// TripHandler handles HTTP requests for the trip lifecycle.
type TripHandler struct {
	orchestrator *trip.Orchestrator
}

// NewTripHandler creates a new TripHandler.
func NewTripHandler(orchestrator *trip.Orchestrator) *TripHandler {
	return &TripHandler{orchestrator: orchestrator}
}

// TripStateResponse is the HTTP view of the trip state.
type TripStateResponse struct {
	TripID       string            `json:"trip_id,omitempty"`
	Status       string            `json:"status"`
	StartedAt    string            `json:"started_at,omitempty"`
	LastLocation *domain.GpsSample `json:"last_location,omitempty"`
	ErrorMessage string            `json:"error_message,omitempty"`
}

func tripStateResponse(state *domain.TripState) TripStateResponse {
	response := TripStateResponse{
		TripID:       state.TripID,
		Status:       string(state.Status),
		LastLocation: state.LastLocation,
		ErrorMessage: state.ErrorMessage,
	}
	if state.StartedAt != nil {
		response.StartedAt = state.StartedAt.Format("2006-01-02T15:04:05Z07:00")
	}
	return response
}

// GetTrip handles GET /v1/trip
func (h *TripHandler) GetTrip(c *gin.Context) {
	state, err := h.orchestrator.CurrentState(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, tripStateResponse(state))
}

// StartTrip handles POST /v1/trip/start
func (h *TripHandler) StartTrip(c *gin.Context) {
	state, err := h.orchestrator.StartTrip(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, tripStateResponse(state))
}

// StopTrip handles POST /v1/trip/stop
func (h *TripHandler) StopTrip(c *gin.Context) {
	state, err := h.orchestrator.StopTrip(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, tripStateResponse(state))
}

// RecoveryResponse describes a pending recovery decision.
type RecoveryResponse struct {
	Pending    bool   `json:"pending"`
	TripID     string `json:"trip_id,omitempty"`
	StartedAt  string `json:"started_at,omitempty"`
	DetectedAt string `json:"detected_at,omitempty"`
}

// GetRecovery handles GET /v1/trip/recovery
func (h *TripHandler) GetRecovery(c *gin.Context) {
	pending := h.orchestrator.Pending()
	if pending == nil {
		respondJSON(c, http.StatusOK, RecoveryResponse{Pending: false})
		return
	}

	response := RecoveryResponse{
		Pending:    true,
		TripID:     pending.TripID,
		DetectedAt: pending.DetectedAt.Format("2006-01-02T15:04:05Z07:00"),
	}
	if pending.StartedAt != nil {
		response.StartedAt = pending.StartedAt.Format("2006-01-02T15:04:05Z07:00")
	}

	respondJSON(c, http.StatusOK, response)
}

// ResolveRecoveryRequest is the operator's decision for an interrupted trip.
type ResolveRecoveryRequest struct {
	Action string `json:"action" binding:"required"`
}

// ResolveRecovery handles POST /v1/trip/recovery
func (h *TripHandler) ResolveRecovery(c *gin.Context) {
	var req ResolveRecoveryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	state, err := h.orchestrator.ResolveRecovery(c.Request.Context(), trip.RecoveryAction(req.Action))
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, tripStateResponse(state))
}
