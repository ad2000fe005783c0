// Package trip owns the trip lifecycle state machine: idle, active,
// stopping, back to idle. The orchestrator is the only writer of status
// transitions; the capture loop, running in its own context, only ever
// updates the cached last location.
package trip

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"bustrack/internal/backend"
	"bustrack/internal/domain"
	"bustrack/internal/location"
	"bustrack/internal/store"
)

const defaultCaptureInterval = 12 * time.Second

// Broadcaster publishes lifecycle events to the organization channel.
// *events.Publisher satisfies it.
type Broadcaster interface {
	TripStarted(ctx context.Context, orgID, operatorID, tripID string) error
	TripEnded(ctx context.Context, orgID, operatorID, tripID string) error
}

// Notifier pushes human-facing notifications. *events.NotificationService
// satisfies it.
type Notifier interface {
	NotifyTripStarted(ctx context.Context, operatorID, tripID string) error
	NotifyTripEnded(ctx context.Context, operatorID, tripID string) error
	NotifyRecoveryPending(ctx context.Context, operatorID, tripID string) error
}

// PingListener is the ping subscription the orchestrator turns on and off
// with the trip. *events.Listener satisfies it.
type PingListener interface {
	Start(ctx context.Context) error
	Stop()
}

// Flusher drains the offline queue. *queue.Service satisfies it.
type Flusher interface {
	Flush(ctx context.Context, token string) (int, error)
}

// Deps bundles the orchestrator's collaborators.
type Deps struct {
	States      store.TripStates
	Tasks       store.Tasks
	Sessions    store.Sessions
	Records     backend.Records
	Locations   location.Service
	Listener    PingListener
	Broadcaster Broadcaster
	Notifier    Notifier
	Queue       Flusher
	OperatorID  string
	OrgID       string
	Interval    time.Duration
	Logger      *slog.Logger
}

// Orchestrator drives the trip lifecycle for one vehicle operator.
type Orchestrator struct {
	states      store.TripStates
	tasks       store.Tasks
	sessions    store.Sessions
	records     backend.Records
	locations   location.Service
	listener    PingListener
	broadcaster Broadcaster
	notifier    Notifier
	queue       Flusher
	operatorID  string
	orgID       string
	interval    time.Duration
	logger      *slog.Logger

	mu          sync.Mutex
	starting    atomic.Bool
	recoverOnce sync.Once
	pendingMu   sync.Mutex
	pending     *PendingRecovery
}

// NewOrchestrator creates a trip orchestrator.
func NewOrchestrator(deps Deps) *Orchestrator {
	interval := deps.Interval
	if interval <= 0 {
		interval = defaultCaptureInterval
	}
	return &Orchestrator{
		states:      deps.States,
		tasks:       deps.Tasks,
		sessions:    deps.Sessions,
		records:     deps.Records,
		locations:   deps.Locations,
		listener:    deps.Listener,
		broadcaster: deps.Broadcaster,
		notifier:    deps.Notifier,
		queue:       deps.Queue,
		operatorID:  deps.OperatorID,
		orgID:       deps.OrgID,
		interval:    interval,
		logger:      deps.Logger,
	}
}

// StartTrip begins tracking: a fresh trip identifier goes active in the
// durable state, a remote trip record opens, and the capture task is
// registered. Calling it while a trip is active, or while another start
// is still in flight, is a no-op returning the current state.
func (o *Orchestrator) StartTrip(ctx context.Context) (*domain.TripState, error) {
	if !o.starting.CompareAndSwap(false, true) {
		return o.states.Get(ctx, o.operatorID)
	}
	defer o.starting.Store(false)

	o.mu.Lock()
	defer o.mu.Unlock()

	state, err := o.states.Get(ctx, o.operatorID)
	if err != nil {
		return nil, fmt.Errorf("loading trip state: %w", err)
	}
	if state.Active() {
		o.logger.Info("start ignored, trip already active",
			"operator_id", o.operatorID, "trip_id", state.TripID)
		return state, nil
	}

	if err := o.ensurePermissions(ctx); err != nil {
		return nil, err
	}

	startedAt := time.Now().UTC()
	state = &domain.TripState{
		TripID:    uuid.New().String(),
		Status:    domain.TripStatusActive,
		StartedAt: &startedAt,
	}
	if err := o.states.Put(ctx, o.operatorID, state); err != nil {
		return nil, fmt.Errorf("persisting trip state: %w", err)
	}

	record := &backend.TripRecord{
		TripID:     state.TripID,
		OperatorID: o.operatorID,
		Active:     true,
		StartedAt:  startedAt,
	}
	if err := o.records.Create(ctx, record); err != nil {
		o.resetIdle(ctx, fmt.Sprintf("creating remote trip record: %v", err))
		return nil, fmt.Errorf("creating remote trip record: %w", err)
	}

	task := &domain.CaptureTask{
		Name:         domain.CaptureTaskName,
		Interval:     o.interval,
		RegisteredAt: time.Now().UTC(),
	}
	if err := o.tasks.Register(ctx, o.operatorID, task); err != nil {
		// The remote record already opened; close it so the trip is not
		// left dangling active server-side.
		if cerr := o.records.Close(ctx, state.TripID); cerr != nil {
			o.logger.Warn("closing remote record after failed registration",
				"trip_id", state.TripID, "error", cerr)
		}
		o.resetIdle(ctx, fmt.Sprintf("registering capture task: %v", err))
		return nil, fmt.Errorf("registering capture task: %w", err)
	}

	if err := o.listener.Start(ctx); err != nil {
		o.logger.Warn("starting ping listener", "operator_id", o.operatorID, "error", err)
	}

	// Lifecycle fan-out is best-effort.
	if o.broadcaster != nil {
		_ = o.broadcaster.TripStarted(ctx, o.orgID, o.operatorID, state.TripID)
	}
	if o.notifier != nil {
		_ = o.notifier.NotifyTripStarted(ctx, o.operatorID, state.TripID)
	}

	o.flushLeftovers(ctx)

	o.logger.Info("trip started", "operator_id", o.operatorID, "trip_id", state.TripID)
	return state, nil
}

// StopTrip ends tracking. Every teardown step is best-effort: whatever
// fails, the state always comes back to idle, because being stuck outside
// idle is worse than losing a notification. A stop while idle is a no-op.
func (o *Orchestrator) StopTrip(ctx context.Context) (*domain.TripState, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	state, err := o.states.Get(ctx, o.operatorID)
	if err != nil {
		return nil, fmt.Errorf("loading trip state: %w", err)
	}
	if state.Status == domain.TripStatusIdle {
		return state, nil
	}

	tripID := state.TripID

	stopping := &domain.TripState{
		TripID:       tripID,
		Status:       domain.TripStatusStopping,
		StartedAt:    state.StartedAt,
		LastLocation: state.LastLocation,
	}
	if err := o.states.Put(ctx, o.operatorID, stopping); err != nil {
		o.logger.Warn("persisting stopping state", "trip_id", tripID, "error", err)
	}

	if tripID != "" {
		if err := o.records.Close(ctx, tripID); err != nil {
			o.logger.Warn("closing remote trip record", "trip_id", tripID, "error", err)
		}
	}

	if err := o.tasks.Unregister(ctx, o.operatorID); err != nil {
		o.logger.Warn("unregistering capture task", "operator_id", o.operatorID, "error", err)
	}

	o.listener.Stop()

	if token, terr := o.sessions.Token(ctx, o.operatorID); terr == nil && token != "" {
		if sent, ferr := o.queue.Flush(ctx, token); ferr != nil {
			o.logger.Warn("flushing offline queue", "error", ferr)
		} else if sent > 0 {
			o.logger.Info("flushed offline queue", "sent", sent)
		}
	}

	if o.broadcaster != nil {
		_ = o.broadcaster.TripEnded(ctx, o.orgID, o.operatorID, tripID)
	}
	if o.notifier != nil {
		_ = o.notifier.NotifyTripEnded(ctx, o.operatorID, tripID)
	}

	idle := domain.IdleTripState()
	if err := o.states.Put(context.WithoutCancel(ctx), o.operatorID, idle); err != nil {
		return nil, fmt.Errorf("resetting trip state: %w", err)
	}

	o.logger.Info("trip stopped", "operator_id", o.operatorID, "trip_id", tripID)
	return idle, nil
}

// CurrentState returns the persisted trip state.
func (o *Orchestrator) CurrentState(ctx context.Context) (*domain.TripState, error) {
	return o.states.Get(ctx, o.operatorID)
}

func (o *Orchestrator) ensurePermissions(ctx context.Context) error {
	enabled, err := o.locations.IsEnabled(ctx)
	if err != nil {
		return fmt.Errorf("checking location services: %w", err)
	}
	if !enabled {
		return location.ErrServicesDisabled
	}
	if err := o.locations.RequestForeground(ctx); err != nil {
		return err
	}
	if err := o.locations.RequestBackground(ctx); err != nil {
		return err
	}
	return nil
}

// resetIdle forces the state machine back to idle, recording why.
func (o *Orchestrator) resetIdle(ctx context.Context, message string) {
	state := domain.IdleTripState()
	state.ErrorMessage = message
	if err := o.states.Put(context.WithoutCancel(ctx), o.operatorID, state); err != nil {
		o.logger.Error("resetting trip state", "operator_id", o.operatorID, "error", err)
	}
}

// flushLeftovers drains samples queued before this trip, off the start
// path so a slow flush never delays the start response.
func (o *Orchestrator) flushLeftovers(ctx context.Context) {
	token, err := o.sessions.Token(ctx, o.operatorID)
	if err != nil || token == "" {
		return
	}

	flushCtx := context.WithoutCancel(ctx)
	go func() {
		sent, err := o.queue.Flush(flushCtx, token)
		if err != nil {
			o.logger.Warn("flushing leftover samples", "error", err)
			return
		}
		if sent > 0 {
			o.logger.Info("flushed leftover samples", "sent", sent)
		}
	}()
}
