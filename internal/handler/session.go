package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"bustrack/internal/store"
)

// SessionHandler stores the bearer token issued by the auth provider, so
// every execution context can read it from the durable session store.
type SessionHandler struct {
	sessions   store.Sessions
	operatorID string
}

// NewSessionHandler creates a new SessionHandler.
func NewSessionHandler(sessions store.Sessions, operatorID string) *SessionHandler {
	return &SessionHandler{sessions: sessions, operatorID: operatorID}
}

// SetSessionRequest carries the bearer token.
type SetSessionRequest struct {
	Token string `json:"token" binding:"required"`
}

// SessionResponse confirms the token was stored.
type SessionResponse struct {
	Updated bool `json:"updated"`
}

// SetSession handles POST /v1/session
func (h *SessionHandler) SetSession(c *gin.Context) {
	var req SetSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	if err := h.sessions.SetToken(c.Request.Context(), h.operatorID, req.Token); err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, SessionResponse{Updated: true})
}
