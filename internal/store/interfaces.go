package store

import (
	"context"
	"time"

	"bustrack/internal/domain"
)

// Every record behind these interfaces must be durable and reachable from
// any process: the capture runner, the agent API and the dispatcher tooling
// deliberately share no memory, only this store.

// TripStates persists the per-operator trip state record.
type TripStates interface {
	// Get returns the current state, or the idle state when none is stored.
	Get(ctx context.Context, operatorID string) (*domain.TripState, error)

	// Put replaces the stored state.
	Put(ctx context.Context, operatorID string, state *domain.TripState) error

	// SetLastLocation updates only the cached last-known position. Samples
	// that are not strictly newer than the cached one are ignored, as is the
	// write when no trip is running.
	SetLastLocation(ctx context.Context, operatorID string, sample *domain.GpsSample) error
}

// Queue is the durable store-and-forward buffer of undelivered samples,
// ordered oldest first.
type Queue interface {
	// Append adds a sample to the tail, dropping from the front when the
	// queue would exceed max entries.
	Append(ctx context.Context, operatorID string, sample *domain.GpsSample, max int64) error

	// Entries returns all queued samples, oldest first.
	Entries(ctx context.Context, operatorID string) ([]*domain.GpsSample, error)

	// DropFirst removes the n oldest entries. Entries appended concurrently
	// are unaffected.
	DropFirst(ctx context.Context, operatorID string, n int64) error

	// Len returns the number of queued samples.
	Len(ctx context.Context, operatorID string) (int64, error)
}

// Markers persists the last-sent timestamp used to deduplicate redelivered
// fixes. The marker is monotonic non-decreasing under normal operation.
type Markers interface {
	// LastSent returns the marker, or the zero time when none is stored.
	LastSent(ctx context.Context, operatorID string) (time.Time, error)

	// SetLastSent advances the marker.
	SetLastSent(ctx context.Context, operatorID string, ts time.Time) error
}

// Sessions persists the bearer token handed to the agent by the auth
// provider. Token issuance itself happens elsewhere.
type Sessions interface {
	// Token returns the stored bearer token, or "" when none is stored.
	Token(ctx context.Context, operatorID string) (string, error)

	// SetToken replaces the stored bearer token.
	SetToken(ctx context.Context, operatorID string, token string) error
}

// Tasks is the scheduler registry for the background capture task. A
// registration lapses unless renewed, so a trip whose process died shows up
// as active-but-unregistered.
type Tasks interface {
	// Register records the capture task for an operator.
	Register(ctx context.Context, operatorID string, task *domain.CaptureTask) error

	// Registered returns the current registration, or nil when none exists.
	Registered(ctx context.Context, operatorID string) (*domain.CaptureTask, error)

	// Renew extends the registration lease.
	Renew(ctx context.Context, operatorID string) error

	// Unregister removes the registration.
	Unregister(ctx context.Context, operatorID string) error
}
