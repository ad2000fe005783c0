package geo

import "math"

// EarthRadiusMeters is the mean earth radius used by all spherical math here.
const EarthRadiusMeters = 6371000.0

// HaversineMeters returns the great-circle distance between two coordinates.
func HaversineMeters(lat1, lng1, lat2, lng2 float64) float64 {
	dLat := radians(lat2 - lat1)
	dLng := radians(lng2 - lng1)

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(radians(lat1))*math.Cos(radians(lat2))*
			math.Sin(dLng/2)*math.Sin(dLng/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return EarthRadiusMeters * c
}

// DestinationPoint projects a point the given distance (meters) along a
// bearing (degrees clockwise from north). Distances here are short (a few
// seconds of vehicle travel), so the flat-earth approximation at the local
// latitude is exact enough and keeps the meters-to-degrees conversion
// obvious.
func DestinationPoint(lat, lng, distanceMeters, bearingDeg float64) (float64, float64) {
	bearing := radians(bearingDeg)
	dLat := distanceMeters * math.Cos(bearing) / EarthRadiusMeters
	dLng := distanceMeters * math.Sin(bearing) / (EarthRadiusMeters * math.Cos(radians(lat)))
	return lat + degrees(dLat), lng + degrees(dLng)
}

// InitialBearing returns the bearing (degrees, [0,360)) from the first point
// toward the second.
func InitialBearing(lat1, lng1, lat2, lng2 float64) float64 {
	phi1 := radians(lat1)
	phi2 := radians(lat2)
	dLng := radians(lng2 - lng1)

	y := math.Sin(dLng) * math.Cos(phi2)
	x := math.Cos(phi1)*math.Sin(phi2) - math.Sin(phi1)*math.Cos(phi2)*math.Cos(dLng)

	return NormalizeBearing(degrees(math.Atan2(y, x)))
}

// ShortestAngleDelta returns the signed rotation in (-180, 180] that takes
// the from bearing to the to bearing the short way around. 350 to 10 is +20,
// never -340.
func ShortestAngleDelta(fromDeg, toDeg float64) float64 {
	d := math.Mod(toDeg-fromDeg, 360)
	switch {
	case d > 180:
		d -= 360
	case d <= -180:
		d += 360
	}
	return d
}

// NormalizeBearing maps any angle in degrees onto [0, 360).
func NormalizeBearing(deg float64) float64 {
	d := math.Mod(deg, 360)
	if d < 0 {
		d += 360
	}
	return d
}

func radians(deg float64) float64 { return deg * math.Pi / 180 }

func degrees(rad float64) float64 { return rad * 180 / math.Pi }
