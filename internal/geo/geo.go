// Package geo provides spherical-Earth geometry on the WGS-84 equatorial radius.
package geo

import "math"

// EarthRadiusKm is the reference sphere radius used by coverage and footprints.
const EarthRadiusKm = 6378.137

const (
	degToRad = math.Pi / 180
	radToDeg = 180 / math.Pi
)

// GroundPoint is a location on the reference sphere.
type GroundPoint struct {
	LatDeg float64 `json:"lat"`
	LngDeg float64 `json:"lng"`
}

// Haversine returns the great-circle distance between a and b in kilometres.
func Haversine(a, b GroundPoint) float64 {
	lat1 := a.LatDeg * degToRad
	lat2 := b.LatDeg * degToRad
	dLat := (b.LatDeg - a.LatDeg) * degToRad
	dLng := (b.LngDeg - a.LngDeg) * degToRad

	sinLat := math.Sin(dLat / 2)
	sinLng := math.Sin(dLng / 2)

	h := sinLat*sinLat + math.Cos(lat1)*math.Cos(lat2)*sinLng*sinLng
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))

	return EarthRadiusKm * c
}

// Destination returns the point reached by travelling distanceKm from start
// along the initial bearing (radians, clockwise from north).
func Destination(start GroundPoint, distanceKm, bearingRad float64) GroundPoint {
	delta := distanceKm / EarthRadiusKm
	lat := start.LatDeg * degToRad
	lng := start.LngDeg * degToRad

	sinLat := math.Sin(lat)
	cosLat := math.Cos(lat)
	sinDelta := math.Sin(delta)
	cosDelta := math.Cos(delta)

	lat2 := math.Asin(sinLat*cosDelta + cosLat*sinDelta*math.Cos(bearingRad))
	lng2 := lng + math.Atan2(
		math.Sin(bearingRad)*sinDelta*cosLat,
		cosDelta-sinLat*math.Sin(lat2),
	)

	return GroundPoint{
		LatDeg: lat2 * radToDeg,
		LngDeg: NormalizeLng(lng2 * radToDeg),
	}
}

// NormalizeLng wraps a longitude in degrees into [-180, 180).
func NormalizeLng(deg float64) float64 {
	l := math.Mod(deg+180, 360)
	if l < 0 {
		l += 360
	}
	// A tiny negative remainder rounds up to exactly 360.
	if l >= 360 {
		l -= 360
	}
	return l - 180
}
