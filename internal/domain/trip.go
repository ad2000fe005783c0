package domain

import "time"

// TripStatus represents the current status of a tracking session.
type TripStatus string

const (
	TripStatusIdle     TripStatus = "idle"
	TripStatusActive   TripStatus = "active"
	TripStatusStopping TripStatus = "stopping"
)

// TripState is the durable record of the current tracking session. It is the
// single source of truth shared by the orchestrator, the capture runner and
// any other process watching the trip; none of them may rely on in-memory
// state surviving a restart.
//
// Invariant: TripID is non-empty exactly when Status is not idle.
type TripState struct {
	TripID       string     `json:"trip_id,omitempty"`
	Status       TripStatus `json:"status"`
	StartedAt    *time.Time `json:"started_at,omitempty"`
	LastLocation *GpsSample `json:"last_location,omitempty"`
	ErrorMessage string     `json:"error_message,omitempty"`
}

// IdleTripState returns the state an operator is in when no trip is running.
func IdleTripState() *TripState {
	return &TripState{Status: TripStatusIdle}
}

// Active reports whether a trip is currently being tracked.
func (s *TripState) Active() bool {
	return s.Status == TripStatusActive
}
