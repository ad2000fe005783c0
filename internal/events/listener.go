package events

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/redis/go-redis/v9"

	"bustrack/internal/domain"
	"bustrack/internal/location"
	"bustrack/internal/observability"
	"bustrack/internal/store"
)

// Sender delivers a single sample. *telemetry.Sender satisfies it.
type Sender interface {
	Send(ctx context.Context, token string, sample *domain.GpsSample) error
}

// Responder answers a location ping with one fresh high-accuracy fix,
// sent directly instead of through the offline queue. A response that
// fails is simply lost; the dispatcher re-pings.
type Responder struct {
	states     store.TripStates
	sessions   store.Sessions
	locations  location.Service
	sender     Sender
	operatorID string
	logger     *slog.Logger

	busy atomic.Bool
}

// NewResponder creates a ping responder for the given operator.
func NewResponder(
	states store.TripStates,
	sessions store.Sessions,
	locations location.Service,
	sender Sender,
	operatorID string,
	logger *slog.Logger,
) *Responder {
	return &Responder{
		states:     states,
		sessions:   sessions,
		locations:  locations,
		sender:     sender,
		operatorID: operatorID,
		logger:     logger,
	}
}

// Respond handles one ping. While a response is in flight, further pings
// collapse onto it: the busy guard makes overlapping responses from rapid
// repeated pings impossible.
func (r *Responder) Respond(ctx context.Context) {
	if !r.busy.CompareAndSwap(false, true) {
		return
	}
	defer r.busy.Store(false)

	state, err := r.states.Get(ctx, r.operatorID)
	if err != nil {
		r.logger.Error("loading trip state for ping", "operator_id", r.operatorID, "error", err)
		return
	}
	if !state.Active() {
		return
	}

	fix, err := r.locations.Current(ctx)
	if err != nil {
		r.logger.Warn("acquiring ping fix", "operator_id", r.operatorID, "error", err)
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

	if err := r.states.SetLastLocation(ctx, r.operatorID, sample); err != nil {
		r.logger.Warn("caching ping location", "operator_id", r.operatorID, "error", err)
	}

	token, err := r.sessions.Token(ctx, r.operatorID)
	if err != nil {
		r.logger.Error("loading session token for ping", "operator_id", r.operatorID, "error", err)
		return
	}
	if token == "" {
		return
	}

	if err := r.sender.Send(ctx, token, sample); err != nil {
		r.logger.Warn("ping response lost", "operator_id", r.operatorID, "error", err)
		return
	}
	observability.PingsAnswered.Inc()
	observability.SamplesSent.Inc()
}

// Listener subscribes to the operator's ping channel while a trip is
// active and dispatches each request to the responder.
type Listener struct {
	client     *redis.Client
	responder  *Responder
	operatorID string
	logger     *slog.Logger

	mu  sync.Mutex
	sub *redis.PubSub
}

// NewListener creates a ping listener for the given operator.
func NewListener(client *redis.Client, responder *Responder, operatorID string, logger *slog.Logger) *Listener {
	return &Listener{
		client:     client,
		responder:  responder,
		operatorID: operatorID,
		logger:     logger,
	}
}

// Start subscribes to the ping channel and begins dispatching. Calling it
// while already listening is a no-op.
func (l *Listener) Start(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.sub != nil {
		return nil
	}

	sub := l.client.Subscribe(ctx, PingChannel(l.operatorID))
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return fmt.Errorf("subscribing to ping channel: %w", err)
	}
	l.sub = sub

	// Responses outlive the start call's context; a response already in
	// flight when the listener stops is allowed to finish.
	runCtx := context.WithoutCancel(ctx)
	go func() {
		for msg := range sub.Channel() {
			observability.PingsReceived.Inc()
			l.logger.Debug("ping received", "operator_id", l.operatorID, "payload", msg.Payload)
			go l.responder.Respond(runCtx)
		}
	}()

	l.logger.Info("ping listener started", "operator_id", l.operatorID)
	return nil
}

// Stop unsubscribes from the ping channel. In-flight responses finish on
// their own.
func (l *Listener) Stop() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.sub == nil {
		return
	}
	_ = l.sub.Close()
	l.sub = nil
	l.logger.Info("ping listener stopped", "operator_id", l.operatorID)
}
