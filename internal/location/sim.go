package location

import (
	"context"
	"math"
	"time"

	"bustrack/internal/geo"
)

// Simulator drives a route polyline at constant speed, deriving every fix
// from wall-clock elapsed time. It stands in for real positioning
// hardware; permission requests always succeed.
type Simulator struct {
	route   *Route
	legs    []leg
	total   float64
	started time.Time

	now func() time.Time
}

// leg is one route segment with its cumulative offset from the start.
type leg struct {
	from   RoutePoint
	to     RoutePoint
	offset float64
	length float64
}

// NewSimulator creates a simulator positioned at the route start.
func NewSimulator(route *Route) *Simulator {
	s := &Simulator{route: route, started: time.Now(), now: time.Now}

	offset := 0.0
	points := route.Points
	for i := range points {
		from := points[i]
		to := points[(i+1)%len(points)]
		length := geo.HaversineMeters(from.Lat, from.Lng, to.Lat, to.Lng)
		s.legs = append(s.legs, leg{from: from, to: to, offset: offset, length: length})
		offset += length
	}
	s.total = offset
	return s
}

var _ Service = (*Simulator)(nil)

// IsEnabled always reports true for the simulator.
func (s *Simulator) IsEnabled(_ context.Context) (bool, error) {
	return true, nil
}

// RequestForeground always succeeds for the simulator.
func (s *Simulator) RequestForeground(_ context.Context) error {
	return nil
}

// RequestBackground always succeeds for the simulator.
func (s *Simulator) RequestBackground(_ context.Context) error {
	return nil
}

// Current returns the simulated position for the current instant.
func (s *Simulator) Current(_ context.Context) (*Fix, error) {
	return s.fixAt(s.now()), nil
}

// Stream emits one fix per interval until ctx is canceled.
func (s *Simulator) Stream(ctx context.Context, interval time.Duration) (<-chan []Fix, error) {
	ch := make(chan []Fix)
	go func() {
		defer close(ch)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				fix := s.fixAt(s.now())
				select {
				case ch <- []Fix{*fix}:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return ch, nil
}

func (s *Simulator) fixAt(t time.Time) *Fix {
	travelled := 0.0
	if s.total > 0 {
		travelled = math.Mod(s.route.SpeedMps*t.Sub(s.started).Seconds(), s.total)
		if travelled < 0 {
			travelled += s.total
		}
	}

	current := s.legs[len(s.legs)-1]
	for _, l := range s.legs {
		if travelled < l.offset+l.length {
			current = l
			break
		}
	}

	frac := 0.0
	if current.length > 0 {
		frac = (travelled - current.offset) / current.length
	}

	speed := s.route.SpeedMps
	heading := geo.InitialBearing(current.from.Lat, current.from.Lng, current.to.Lat, current.to.Lng)
	return &Fix{
		Lat:        current.from.Lat + (current.to.Lat-current.from.Lat)*frac,
		Lng:        current.from.Lng + (current.to.Lng-current.from.Lng)*frac,
		Speed:      &speed,
		Heading:    &heading,
		RecordedAt: t.UTC().Format(time.RFC3339),
	}
}
