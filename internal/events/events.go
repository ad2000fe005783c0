// Package events carries the pub/sub side of trip tracking: dispatcher
// pings on a per-operator channel and lifecycle broadcasts on a per-org
// channel.
package events

import "time"

// Event types carried over pub/sub.
const (
	EventLocationRequest = "location-request"
	EventTripStarted     = "trip-started"
	EventTripEnded       = "trip-ended"
)

// PingChannel names the per-operator channel dispatchers ping on.
func PingChannel(operatorID string) string {
	return "ping:" + operatorID
}

// TripChannel names the per-organization channel lifecycle events
// broadcast on.
func TripChannel(orgID string) string {
	return "trips:" + orgID
}

// PingRequest is the payload of a location-request event.
type PingRequest struct {
	Type        string    `json:"type"`
	RequestedAt time.Time `json:"requested_at"`
}

// TripEvent is the payload of a trip lifecycle broadcast.
type TripEvent struct {
	Type       string    `json:"type"`
	OperatorID string    `json:"operator_id"`
	TripID     string    `json:"trip_id"`
	At         time.Time `json:"at"`
}
