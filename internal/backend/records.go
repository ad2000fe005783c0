// Package backend talks to the fleet backend's trip records API, the
// server-side source of truth that recovery consults after an
// interruption.
package backend

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound reports a trip the backend does not know.
var ErrNotFound = errors.New("trip record not found")

// TripRecord is the server-side view of a trip.
type TripRecord struct {
	TripID     string     `json:"trip_id"`
	OperatorID string     `json:"operator_id"`
	Active     bool       `json:"active"`
	StartedAt  time.Time  `json:"started_at"`
	EndedAt    *time.Time `json:"ended_at,omitempty"`
}

// Records is the trip records API.
type Records interface {
	// Create opens a new trip record.
	Create(ctx context.Context, record *TripRecord) error

	// Close marks a trip record inactive.
	Close(ctx context.Context, tripID string) error

	// Fetch returns a trip record, or ErrNotFound.
	Fetch(ctx context.Context, tripID string) (*TripRecord, error)
}
