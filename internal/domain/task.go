package domain

import "time"

// CaptureTaskName identifies the recurring location-capture task in the
// scheduler registry. One task per operator.
const CaptureTaskName = "trip-location-capture"

// CaptureTask is the durable registration of the background capture loop.
// Its presence in the registry is what distinguishes a live trip from one
// interrupted by a crash: the runner keeps the registration alive while it
// is delivering fixes, so a registration that has lapsed with the trip still
// marked active means the process died mid-trip.
type CaptureTask struct {
	Name         string        `json:"name"`
	Interval     time.Duration `json:"interval"`
	RegisteredAt time.Time     `json:"registered_at"`
}
