// Package capture processes location fixes delivered by the scheduler.
// Each invocation starts from durable state only: the handler shares no
// memory with the orchestrator and may outlive the process that started
// the trip.
package capture

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"bustrack/internal/domain"
	"bustrack/internal/location"
	"bustrack/internal/observability"
	"bustrack/internal/store"
	"bustrack/internal/telemetry"
)

// Sender delivers a single sample. *telemetry.Sender satisfies it.
type Sender interface {
	Send(ctx context.Context, token string, sample *domain.GpsSample) error
}

// Buffer parks samples that could not be delivered. *queue.Service
// satisfies it.
type Buffer interface {
	Enqueue(ctx context.Context, sample *domain.GpsSample) error
}

// Handler turns scheduler fix deliveries into telemetry sends.
type Handler struct {
	states     store.TripStates
	markers    store.Markers
	sessions   store.Sessions
	sender     Sender
	buffer     Buffer
	operatorID string
	logger     *slog.Logger
}

// NewHandler creates a capture handler for the given operator.
func NewHandler(
	states store.TripStates,
	markers store.Markers,
	sessions store.Sessions,
	sender Sender,
	buffer Buffer,
	operatorID string,
	logger *slog.Logger,
) *Handler {
	return &Handler{
		states:     states,
		markers:    markers,
		sessions:   sessions,
		sender:     sender,
		buffer:     buffer,
		operatorID: operatorID,
		logger:     logger,
	}
}

// HandleFixes processes one scheduler delivery. It never returns an error
// and never panics: a failure escaping here would kill the runner loop and
// silently end tracking, so everything is logged and swallowed.
func (h *Handler) HandleFixes(ctx context.Context, fixes []location.Fix) {
	defer func() {
		if r := recover(); r != nil {
			h.fail("capture handler panicked", fmt.Errorf("panic: %v", r))
		}
	}()

	if len(fixes) == 0 {
		return
	}

	state, err := h.states.Get(ctx, h.operatorID)
	if err != nil {
		h.fail("loading trip state", err)
		return
	}
	// Fixes can still arrive after a stop raced with scheduler teardown.
	if !state.Active() {
		return
	}

	fix := fixes[len(fixes)-1]
	recordedAt, err := time.Parse(time.RFC3339, fix.RecordedAt)
	if err != nil {
		h.fail("parsing fix timestamp", err)
		return
	}

	lastSent, err := h.markers.LastSent(ctx, h.operatorID)
	if err != nil {
		h.fail("loading last-sent marker", err)
		return
	}
	// The scheduler may redeliver a fix; only strictly newer ones count.
	if !recordedAt.After(lastSent) {
		return
	}

	sample := &domain.GpsSample{
		Lat:        fix.Lat,
		Lng:        fix.Lng,
		Speed:      fix.Speed,
		Heading:    fix.Heading,
		RecordedAt: fix.RecordedAt,
		TripID:     state.TripID,
	}

	if err := h.states.SetLastLocation(ctx, h.operatorID, sample); err != nil {
		h.logger.Warn("caching last location", "operator_id", h.operatorID, "error", err)
	}

	token, err := h.sessions.Token(ctx, h.operatorID)
	if err != nil {
		h.fail("loading session token", err)
		return
	}
	if token == "" {
		if err := h.buffer.Enqueue(ctx, sample); err != nil {
			h.fail("queueing sample without session", err)
		}
		return
	}

	err = h.sender.Send(ctx, token, sample)
	switch {
	case err == nil:
		if err := h.markers.SetLastSent(ctx, h.operatorID, recordedAt); err != nil {
			h.logger.Warn("advancing last-sent marker", "operator_id", h.operatorID, "error", err)
		}
		observability.SamplesSent.Inc()
	case telemetry.Retryable(err):
		h.logger.Warn("delivery failed, queueing sample",
			"operator_id", h.operatorID, "trip_id", state.TripID, "error", err)
		if qerr := h.buffer.Enqueue(ctx, sample); qerr != nil {
			h.fail("queueing undelivered sample", qerr)
		}
	default:
		h.logger.Warn("dropping rejected sample",
			"operator_id", h.operatorID, "trip_id", state.TripID, "error", err)
		observability.SamplesDropped.Inc()
	}
}

func (h *Handler) fail(msg string, err error) {
	h.logger.Error(msg, "operator_id", h.operatorID, "error", err)
	observability.CaptureError(err, map[string]any{"operator_id": h.operatorID}, h.logger)
	observability.CaptureFailures.Inc()
}
