package propagation

import (
	"errors"
	"time"

	"github.com/star/constellation/internal/geo"
	"github.com/star/constellation/internal/tle"
)

// ErrPropagationFailure marks a single failed sample. Callers log and skip it.
var ErrPropagationFailure = errors.New("propagation failure")

// Propagator turns an encoded element set and an instant into a geodetic
// sub-satellite position. Implementations must be safe for concurrent use.
type Propagator interface {
	Propagate(entry tle.TLEEntry, t time.Time) (SatellitePosition, error)
}

// SatellitePosition is one satellite's state at one instant.
type SatellitePosition struct {
	SatelliteID  int        `json:"satellite_id"`
	Plane        int        `json:"plane"`
	LatDeg       float64    `json:"lat"`
	LngDeg       float64    `json:"lng"`
	HeightKm     float64    `json:"height_km"`
	PositionECEF [3]float64 `json:"position_ecef_km"`
	VelocityECEF [3]float64 `json:"velocity_ecef_kms"`
}

// Ground returns the sub-satellite point.
func (p SatellitePosition) Ground() geo.GroundPoint {
	return geo.GroundPoint{LatDeg: p.LatDeg, LngDeg: p.LngDeg}
}

// Keyframe holds the positions of all satellites at a single point in time.
type Keyframe struct {
	Timestamp  time.Time
	Satellites []SatellitePosition
	Failed     int
}

// PropConfig holds propagation configuration.
type PropConfig struct {
	Backend string        // "go-satellite" or "akhenakh"
	Workers int           // worker pool size (default: runtime.NumCPU())
	Step    time.Duration // keyframe interval
	Horizon time.Duration // keyframe horizon
}
