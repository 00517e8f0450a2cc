package coverage

import (
	"math"

	"github.com/star/constellation/internal/geo"
	"github.com/star/constellation/internal/propagation"
)

// DefaultMinElevationDeg is the usable-link threshold. Zero would count
// grazing horizon contacts and overstate coverage.
const DefaultMinElevationDeg = 35.0

// VisibilityRadiusKm is the ground radius inside which a satellite at
// heightKm counts as visible: the horizon distance sqrt(h(2R+h)) scaled by
// cos(minElevation). The footprint builder uses the same value.
func VisibilityRadiusKm(heightKm, minElevationDeg float64) float64 {
	if heightKm <= 0 {
		return 0
	}
	R := geo.EarthRadiusKm
	horizon := math.Sqrt(heightKm * (2*R + heightKm))
	return horizon * math.Cos(minElevationDeg*math.Pi/180)
}

// Covers reports whether p lies within the satellite's visibility radius.
func Covers(sat propagation.SatellitePosition, p geo.GroundPoint, minElevationDeg float64) bool {
	return geo.Haversine(sat.Ground(), p) <= VisibilityRadiusKm(sat.HeightKm, minElevationDeg)
}

// ElevationAngleDeg is the elevation of the satellite seen from p on a
// spherical Earth. It is reported alongside results and does not decide
// coverage.
func ElevationAngleDeg(sat propagation.SatellitePosition, p geo.GroundPoint) float64 {
	R := geo.EarthRadiusKm
	psi := geo.Haversine(sat.Ground(), p) / R
	k := R / (R + sat.HeightKm)
	return math.Atan2(math.Cos(psi)-k, math.Sin(psi)) * 180 / math.Pi
}
