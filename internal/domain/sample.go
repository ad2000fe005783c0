package domain

// GpsSample is a single position measurement. Immutable once constructed.
// The same shape is persisted in the offline queue and posted to the
// telemetry endpoint; vehicle identity is never carried in the payload, the
// remote side derives it from the bearer credential.
type GpsSample struct {
	Lat        float64  `json:"lat" validate:"gte=-90,lte=90"`
	Lng        float64  `json:"lng" validate:"gte=-180,lte=180"`
	Speed      *float64 `json:"speed,omitempty" validate:"omitempty,gte=0"`
	Heading    *float64 `json:"heading,omitempty" validate:"omitempty,gte=0,lte=360"`
	RecordedAt string   `json:"recorded_at" validate:"required"`
	TripID     string   `json:"trip_id,omitempty"`
}

// SpeedOrZero returns the measured speed in m/s, treating an absent reading
// as stationary.
func (s *GpsSample) SpeedOrZero() float64 {
	if s.Speed == nil {
		return 0
	}
	return *s.Speed
}
