// Package transform converts SGP4 output between reference frames.
//
// TEME to Earth-fixed uses a GMST-only rotation (IAU-82, Vallado ch. 3),
// ignoring polar motion and the equation of the equinoxes. The error is tens
// of metres, far below the coverage grid resolution.
package transform

import (
	"math"
	"time"

	"github.com/soniakeys/meeus/v3/julian"
)

const j2000 = 2451545.0

// OmegaEarth is Earth's rotation rate in rad/s.
const OmegaEarth = 7.292115146706979e-5

// Vec3 is a Cartesian vector in kilometres (or km/s).
type Vec3 struct {
	X, Y, Z float64
}

// Norm returns the vector length.
func (v Vec3) Norm() float64 {
	return math.Sqrt(v.X*v.X + v.Y*v.Y + v.Z*v.Z)
}

// State is a position/velocity pair in one frame, km and km/s.
type State struct {
	Pos Vec3
	Vel Vec3
}

// GMST returns Greenwich Mean Sidereal Time in radians for t.
func GMST(t time.Time) float64 {
	tu := (julian.TimeToJD(t.UTC()) - j2000) / 36525.0

	// Seconds of time; 876600h = 3155760000 s.
	sec := 67310.54841 +
		(3155760000.0+8640184.812866)*tu +
		0.093104*tu*tu -
		6.2e-6*tu*tu*tu

	sec = math.Mod(sec, 86400)
	if sec < 0 {
		sec += 86400
	}
	return sec / 86400 * 2 * math.Pi
}

// TEMEToECEF rotates a TEME state into the Earth-fixed frame for the given
// GMST angle. Velocity is corrected for Earth rotation.
func TEMEToECEF(s State, gmst float64) State {
	c, sn := math.Cos(gmst), math.Sin(gmst)

	pos := Vec3{
		X: s.Pos.X*c + s.Pos.Y*sn,
		Y: -s.Pos.X*sn + s.Pos.Y*c,
		Z: s.Pos.Z,
	}
	vel := Vec3{
		X: s.Vel.X*c + s.Vel.Y*sn + OmegaEarth*pos.Y,
		Y: -s.Vel.X*sn + s.Vel.Y*c - OmegaEarth*pos.X,
		Z: s.Vel.Z,
	}
	return State{Pos: pos, Vel: vel}
}

// Plausible bounds for an Earth-orbiting position, km from the geocentre.
const (
	MinOrbitRadiusKm = 6200.0
	MaxOrbitRadiusKm = 50000.0
)

// Plausible reports whether p is finite and within the orbit radius bounds.
func Plausible(p Vec3) bool {
	for _, c := range [3]float64{p.X, p.Y, p.Z} {
		if math.IsNaN(c) || math.IsInf(c, 0) {
			return false
		}
	}
	r := p.Norm()
	return r >= MinOrbitRadiusKm && r <= MaxOrbitRadiusKm
}
