// Package livemap renders continuous vehicle motion from fixes that
// arrive every ten seconds or so. Between fixes the marker is projected
// ahead by dead reckoning; a late fix corrects the drift by animating
// from the currently rendered position instead of snapping.
package livemap

import (
	"time"

	"bustrack/internal/domain"
	"bustrack/internal/geo"
)

const (
	// Projection horizon bounds for clamp(interval * horizonFactor).
	minProjectionHorizon = 2 * time.Second
	maxProjectionHorizon = 8 * time.Second
	horizonFactor        = 1.3

	// movingSpeedFloor separates projecting ahead from settling in place.
	movingSpeedFloor = 0.5 // m/s

	// snapDistanceMeters treats a jump beyond this as GPS reacquisition.
	snapDistanceMeters = 500.0

	// signalLossGap snaps instead of animating after a silent stretch.
	signalLossGap = 10 * time.Second

	settleDuration  = 500 * time.Millisecond
	headingDuration = 400 * time.Millisecond
)

// Point is a map coordinate.
type Point struct {
	Lat float64
	Lng float64
}

// Marker is the rendered marker state at one instant.
type Marker struct {
	Point
	Heading float64
}

// Animation moves the marker from one point toward another with linear
// easing. Heading rotates separately, always the short way around.
type Animation struct {
	From            Point
	To              Point
	Start           time.Time
	Duration        time.Duration
	HeadingFrom     float64
	HeadingTo       float64
	HeadingDuration time.Duration
	Snap            bool
}

// Projector turns a sparse fix stream into marker animations. Not safe
// for concurrent use; the render loop owns it.
type Projector struct {
	anim      *Animation
	lastFixAt time.Time
}

// NewProjector creates an empty projector. The first fix snaps.
func NewProjector() *Projector {
	return &Projector{}
}

// Advance feeds one fix, observed at now, and returns the resulting
// animation. A moving vehicle is projected distance = speed * horizon
// ahead along its heading, where horizon is the fix interval scaled by
// 1.3 and clamped to [2s, 8s]; the animation starts from the currently
// rendered position so late fixes correct drift smoothly. A stationary
// vehicle settles onto the exact fix instead. The marker snaps, with no
// animation, on the first fix, after more than 10s without fixes, and on
// a discontinuity of more than 500m.
func (p *Projector) Advance(sample *domain.GpsSample, now time.Time) Animation {
	fix := Point{Lat: sample.Lat, Lng: sample.Lng}

	heading := 0.0
	if p.anim != nil {
		heading = p.anim.HeadingTo
	}
	if sample.Heading != nil {
		heading = geo.NormalizeBearing(*sample.Heading)
	}

	snap := p.anim == nil
	var rendered Marker
	if p.anim != nil {
		rendered, _ = p.RenderedAt(now)
		if now.Sub(p.lastFixAt) > signalLossGap {
			snap = true
		} else if geo.HaversineMeters(rendered.Lat, rendered.Lng, fix.Lat, fix.Lng) > snapDistanceMeters {
			snap = true
		}
	}

	interval := now.Sub(p.lastFixAt)
	speed := sample.SpeedOrZero()

	var anim Animation
	switch {
	case snap:
		anim = Animation{
			From:        fix,
			To:          fix,
			Start:       now,
			HeadingFrom: heading,
			HeadingTo:   heading,
			Snap:        true,
		}
	case speed > movingSpeedFloor:
		horizon := clampHorizon(time.Duration(float64(interval) * horizonFactor))
		toLat, toLng := geo.DestinationPoint(fix.Lat, fix.Lng, speed*horizon.Seconds(), heading)
		anim = Animation{
			From:            rendered.Point,
			To:              Point{Lat: toLat, Lng: toLng},
			Start:           now,
			Duration:        horizon,
			HeadingFrom:     rendered.Heading,
			HeadingTo:       heading,
			HeadingDuration: headingDuration,
		}
	default:
		anim = Animation{
			From:            rendered.Point,
			To:              fix,
			Start:           now,
			Duration:        settleDuration,
			HeadingFrom:     rendered.Heading,
			HeadingTo:       heading,
			HeadingDuration: headingDuration,
		}
	}

	p.anim = &anim
	p.lastFixAt = now
	return anim
}

// RenderedAt returns the marker state at the given instant. The second
// return is false until the first fix arrives.
func (p *Projector) RenderedAt(now time.Time) (Marker, bool) {
	if p.anim == nil {
		return Marker{}, false
	}
	a := p.anim

	progress := 1.0
	if a.Duration > 0 {
		progress = clamp01(float64(now.Sub(a.Start)) / float64(a.Duration))
	}
	lat := a.From.Lat + (a.To.Lat-a.From.Lat)*progress
	lng := a.From.Lng + (a.To.Lng-a.From.Lng)*progress

	headingProgress := 1.0
	if a.HeadingDuration > 0 {
		headingProgress = clamp01(float64(now.Sub(a.Start)) / float64(a.HeadingDuration))
	}
	heading := geo.NormalizeBearing(
		a.HeadingFrom + geo.ShortestAngleDelta(a.HeadingFrom, a.HeadingTo)*headingProgress)

	return Marker{Point: Point{Lat: lat, Lng: lng}, Heading: heading}, true
}

func clampHorizon(d time.Duration) time.Duration {
	if d < minProjectionHorizon {
		return minProjectionHorizon
	}
	if d > maxProjectionHorizon {
		return maxProjectionHorizon
	}
	return d
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
