package propagation

import (
	"fmt"
	"strings"
	"sync"
	"time"

	satellite "github.com/joshuaferrara/go-satellite"

	"github.com/star/constellation/internal/tle"
	"github.com/star/constellation/internal/transform"
)

// GoSatellite propagates with github.com/joshuaferrara/go-satellite.
//
// go-satellite takes whole-second timestamps and hides SGP4 error codes from
// Propagate, so failures are detected from the output vector instead.
// Initialised records are cached by TLE text; the cache is safe for
// concurrent use.
type GoSatellite struct {
	records sync.Map // line1+line2 -> satellite.Satellite
}

// NewGoSatellite creates an empty go-satellite backend.
func NewGoSatellite() *GoSatellite {
	return &GoSatellite{}
}

// Propagate implements Propagator.
func (g *GoSatellite) Propagate(entry tle.TLEEntry, t time.Time) (SatellitePosition, error) {
	sat, err := g.record(entry)
	if err != nil {
		return SatellitePosition{}, err
	}

	t = t.UTC()
	pos, vel := satellite.Propagate(sat, t.Year(), int(t.Month()), t.Day(), t.Hour(), t.Minute(), t.Second())

	teme := transform.State{
		Pos: transform.Vec3{X: pos.X, Y: pos.Y, Z: pos.Z},
		Vel: transform.Vec3{X: vel.X, Y: vel.Y, Z: vel.Z},
	}
	return fromTEME(entry, teme, t)
}

func (g *GoSatellite) record(entry tle.TLEEntry) (satellite.Satellite, error) {
	key := entry.Line1 + entry.Line2
	if v, ok := g.records.Load(key); ok {
		return v.(satellite.Satellite), nil
	}

	if err := validateTLELines(entry.Line1, entry.Line2); err != nil {
		return satellite.Satellite{}, fmt.Errorf("%w: satellite %d: %v", ErrPropagationFailure, entry.SatelliteID, err)
	}
	sat := satellite.TLEToSat(entry.Line1, entry.Line2, satellite.GravityWGS84)
	if sat.Error != 0 {
		return satellite.Satellite{}, fmt.Errorf("%w: sgp4 init for satellite %d: code=%d %s",
			ErrPropagationFailure, entry.SatelliteID, sat.Error, sat.ErrorStr)
	}

	g.records.Store(key, sat)
	return sat, nil
}

// validateTLELines rejects input that would make go-satellite call
// log.Fatal inside its parser.
func validateTLELines(line1, line2 string) error {
	line1 = strings.TrimSpace(line1)
	line2 = strings.TrimSpace(line2)

	if len(line1) != tle.LineLength {
		return fmt.Errorf("line1 length %d, expected %d", len(line1), tle.LineLength)
	}
	if len(line2) != tle.LineLength {
		return fmt.Errorf("line2 length %d, expected %d", len(line2), tle.LineLength)
	}
	if line1[0] != '1' {
		return fmt.Errorf("line1 must start with '1', got '%c'", line1[0])
	}
	if line2[0] != '2' {
		return fmt.Errorf("line2 must start with '2', got '%c'", line2[0])
	}
	return nil
}

// fromTEME rotates an inertial state into the Earth-fixed frame and derives
// the geodetic sub-satellite point.
func fromTEME(entry tle.TLEEntry, teme transform.State, t time.Time) (SatellitePosition, error) {
	if !transform.Plausible(teme.Pos) {
		return SatellitePosition{}, fmt.Errorf("%w: satellite %d: implausible position %v",
			ErrPropagationFailure, entry.SatelliteID, teme.Pos)
	}

	ecef := transform.TEMEToECEF(teme, transform.GMST(t))
	g := transform.ECEFToGeodetic(ecef.Pos)

	return SatellitePosition{
		SatelliteID:  entry.SatelliteID,
		Plane:        entry.Plane,
		LatDeg:       g.LatDeg,
		LngDeg:       g.LngDeg,
		HeightKm:     g.HeightKm,
		PositionECEF: [3]float64{ecef.Pos.X, ecef.Pos.Y, ecef.Pos.Z},
		VelocityECEF: [3]float64{ecef.Vel.X, ecef.Vel.Y, ecef.Vel.Z},
	}, nil
}
