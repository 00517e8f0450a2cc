package coverage

import (
	"fmt"
	"math"

	"github.com/star/constellation/internal/geo"
)

const (
	// DefaultResolutionDeg is the grid spacing used when none is configured.
	DefaultResolutionDeg = 2.0
	// MinResolutionDeg bounds the grid at roughly one million points.
	MinResolutionDeg = 0.25
	// MaxResolutionDeg keeps at least the two poles and one meridian pair.
	MaxResolutionDeg = 90.0
)

// Grid returns the evaluation points for resolutionDeg: longitudes from -180
// up to but excluding 180, latitudes from -90 to 90 inclusive. resolutionDeg
// must divide 180. Points are ordered longitude-major.
func Grid(resolutionDeg float64) ([]geo.GroundPoint, error) {
	if math.IsNaN(resolutionDeg) || resolutionDeg < MinResolutionDeg || resolutionDeg > MaxResolutionDeg {
		return nil, fmt.Errorf("grid resolution %v outside [%v, %v] degrees", resolutionDeg, MinResolutionDeg, MaxResolutionDeg)
	}
	// Rows must land on both poles.
	if rows := 180 / resolutionDeg; math.Abs(rows-math.Round(rows)) > 1e-9 {
		return nil, fmt.Errorf("grid resolution %v does not divide 180 degrees", resolutionDeg)
	}

	nLng, nLat := gridDims(resolutionDeg)
	points := make([]geo.GroundPoint, 0, nLng*nLat)
	for i := 0; i < nLng; i++ {
		lng := -180 + float64(i)*resolutionDeg
		for j := 0; j < nLat; j++ {
			points = append(points, geo.GroundPoint{LatDeg: -90 + float64(j)*resolutionDeg, LngDeg: lng})
		}
	}
	return points, nil
}

// PointCount is len(Grid(resolutionDeg)) without building the grid.
func PointCount(resolutionDeg float64) int {
	nLng, nLat := gridDims(resolutionDeg)
	return nLng * nLat
}

// gridDims counts steps with index arithmetic so accumulated float error
// never adds or drops a row.
func gridDims(r float64) (nLng, nLat int) {
	const eps = 1e-9
	nLng = int(math.Ceil(360/r - eps))
	nLat = int(math.Floor(180/r+eps)) + 1
	return nLng, nLat
}
