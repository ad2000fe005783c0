package trip

import (
	"context"
	"errors"
	"fmt"
	"time"

	"bustrack/internal/backend"
	"bustrack/internal/domain"
)

// RecoveryAction is the operator's decision for an interrupted trip.
type RecoveryAction string

const (
	RecoveryActionEnd    RecoveryAction = "end"
	RecoveryActionResume RecoveryAction = "resume"
)

// PendingRecovery describes an interrupted trip awaiting a decision.
type PendingRecovery struct {
	TripID     string     `json:"trip_id"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	DetectedAt time.Time  `json:"detected_at"`
}

// Recover checks whether a previous process died mid-trip and either
// restores tracking silently or parks a resume-or-end decision for the
// operator. It runs its check at most once per process lifetime.
func (o *Orchestrator) Recover(ctx context.Context) error {
	var err error
	o.recoverOnce.Do(func() {
		err = o.recover(ctx)
	})
	return err
}

func (o *Orchestrator) recover(ctx context.Context) error {
	state, err := o.states.Get(ctx, o.operatorID)
	if err != nil {
		return fmt.Errorf("loading trip state: %w", err)
	}

	switch state.Status {
	case domain.TripStatusIdle:
		return nil
	case domain.TripStatusStopping:
		// A stop was interrupted partway; finish the teardown.
		if err := o.tasks.Unregister(ctx, o.operatorID); err != nil {
			o.logger.Warn("unregistering capture task", "operator_id", o.operatorID, "error", err)
		}
		o.resetIdle(ctx, "")
		o.logger.Info("finished interrupted stop", "trip_id", state.TripID)
		return nil
	}

	// Status is active. A live task registration means the scheduler kept
	// running through a plain restart; tracking continues untouched.
	task, err := o.tasks.Registered(ctx, o.operatorID)
	if err != nil {
		return fmt.Errorf("checking capture task: %w", err)
	}
	if task != nil {
		if lerr := o.listener.Start(ctx); lerr != nil {
			o.logger.Warn("restarting ping listener", "operator_id", o.operatorID, "error", lerr)
		}
		o.logger.Info("capture task still registered, tracking continues", "trip_id", state.TripID)
		return nil
	}

	// The registration lapsed: the process was killed mid-trip. The
	// backend record decides whether there is anything left to recover.
	record, err := o.records.Fetch(ctx, state.TripID)
	if err != nil {
		if errors.Is(err, backend.ErrNotFound) {
			o.resetIdle(ctx, "")
			return nil
		}
		return fmt.Errorf("fetching remote trip record: %w", err)
	}
	if !record.Active {
		// Already closed server-side; nothing to decide.
		o.resetIdle(ctx, "")
		return nil
	}

	pending := &PendingRecovery{
		TripID:     state.TripID,
		StartedAt:  state.StartedAt,
		DetectedAt: time.Now().UTC(),
	}
	o.pendingMu.Lock()
	o.pending = pending
	o.pendingMu.Unlock()

	if o.notifier != nil {
		_ = o.notifier.NotifyRecoveryPending(ctx, o.operatorID, state.TripID)
	}
	o.logger.Warn("interrupted trip needs a decision",
		"operator_id", o.operatorID, "trip_id", state.TripID)
	return nil
}

// Pending returns the recovery decision awaiting the operator, or nil.
func (o *Orchestrator) Pending() *PendingRecovery {
	o.pendingMu.Lock()
	defer o.pendingMu.Unlock()
	return o.pending
}

// ResolveRecovery applies the operator's decision for an interrupted trip.
// Ending closes the remote record and resets to idle; resuming re-registers
// the capture task and keeps the original trip identifier.
func (o *Orchestrator) ResolveRecovery(ctx context.Context, action RecoveryAction) (*domain.TripState, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.pendingMu.Lock()
	pending := o.pending
	o.pendingMu.Unlock()
	if pending == nil {
		return nil, ErrNoPendingRecovery
	}

	switch action {
	case RecoveryActionEnd:
		return o.endRecovered(ctx, pending)
	case RecoveryActionResume:
		return o.resumeRecovered(ctx, pending)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownRecoveryAction, action)
	}
}

func (o *Orchestrator) endRecovered(ctx context.Context, pending *PendingRecovery) (*domain.TripState, error) {
	if err := o.records.Close(ctx, pending.TripID); err != nil {
		o.logger.Warn("closing recovered trip record", "trip_id", pending.TripID, "error", err)
	}
	if o.broadcaster != nil {
		_ = o.broadcaster.TripEnded(ctx, o.orgID, o.operatorID, pending.TripID)
	}
	if o.notifier != nil {
		_ = o.notifier.NotifyTripEnded(ctx, o.operatorID, pending.TripID)
	}

	idle := domain.IdleTripState()
	if err := o.states.Put(context.WithoutCancel(ctx), o.operatorID, idle); err != nil {
		return nil, fmt.Errorf("resetting trip state: %w", err)
	}
	o.clearPending()

	o.logger.Info("recovered trip ended", "trip_id", pending.TripID)
	return idle, nil
}

func (o *Orchestrator) resumeRecovered(ctx context.Context, pending *PendingRecovery) (*domain.TripState, error) {
	if err := o.ensurePermissions(ctx); err != nil {
		return nil, err
	}

	task := &domain.CaptureTask{
		Name:         domain.CaptureTaskName,
		Interval:     o.interval,
		RegisteredAt: time.Now().UTC(),
	}
	if err := o.tasks.Register(ctx, o.operatorID, task); err != nil {
		// Decision stays pending so the operator can retry.
		return nil, fmt.Errorf("registering capture task: %w", err)
	}

	if err := o.listener.Start(ctx); err != nil {
		o.logger.Warn("starting ping listener", "operator_id", o.operatorID, "error", err)
	}
	o.clearPending()

	state, err := o.states.Get(ctx, o.operatorID)
	if err != nil {
		return nil, fmt.Errorf("loading trip state: %w", err)
	}
	o.logger.Info("recovered trip resumed", "trip_id", pending.TripID)
	return state, nil
}

func (o *Orchestrator) clearPending() {
	o.pendingMu.Lock()
	o.pending = nil
	o.pendingMu.Unlock()
}
