package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"bustrack/internal/queue"
	"bustrack/internal/store"
)

// QueueHandler exposes the offline queue over HTTP.
type QueueHandler struct {
	queue      *queue.Service
	sessions   store.Sessions
	operatorID string
}

// NewQueueHandler creates a new QueueHandler.
func NewQueueHandler(queue *queue.Service, sessions store.Sessions, operatorID string) *QueueHandler {
	return &QueueHandler{queue: queue, sessions: sessions, operatorID: operatorID}
}

// QueueDepthResponse reports how many samples await delivery.
type QueueDepthResponse struct {
	Depth int64 `json:"depth"`
}

// GetQueue handles GET /v1/queue
func (h *QueueHandler) GetQueue(c *gin.Context) {
	depth, err := h.queue.Depth(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, QueueDepthResponse{Depth: depth})
}

// FlushResponse reports a completed flush pass.
type FlushResponse struct {
	Sent int `json:"sent"`
}

// FlushQueue handles POST /v1/queue/flush
func (h *QueueHandler) FlushQueue(c *gin.Context) {
	token, err := h.sessions.Token(c.Request.Context(), h.operatorID)
	if err != nil {
		respondError(c, err)
		return
	}
	if token == "" {
		c.JSON(http.StatusConflict, ErrorResponse{
			Error:       "no session token stored",
			Remediation: "store a session token before flushing",
		})
		return
	}

	sent, err := h.queue.Flush(c.Request.Context(), token)
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, FlushResponse{Sent: sent})
}
