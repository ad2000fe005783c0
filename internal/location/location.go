// Package location abstracts the positioning source. The agent normally
// runs against the route simulator, but everything above this package
// only sees the Service interface.
package location

import (
	"context"
	"time"
)

// Fix is a single GPS measurement as delivered by the positioning source.
// RecordedAt carries the source timestamp as an RFC 3339 string so an
// unparsable value can be rejected downstream instead of silently zeroed.
type Fix struct {
	Lat        float64
	Lng        float64
	Speed      *float64
	Heading    *float64
	RecordedAt string
}

// Service is a positioning source.
type Service interface {
	// IsEnabled reports whether positioning is available at all.
	IsEnabled(ctx context.Context) (bool, error)

	// RequestForeground asks for while-in-use positioning.
	RequestForeground(ctx context.Context) error

	// RequestBackground asks for always-on positioning. Call it only
	// after RequestForeground succeeded.
	RequestBackground(ctx context.Context) error

	// Current acquires one high-accuracy fix.
	Current(ctx context.Context) (*Fix, error)

	// Stream emits fix batches at roughly the given interval until ctx
	// is canceled. Updates keep flowing while the vehicle is stationary.
	Stream(ctx context.Context, interval time.Duration) (<-chan []Fix, error)
}
