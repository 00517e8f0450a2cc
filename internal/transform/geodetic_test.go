package transform

import (
	"testing"

	"gonum.org/v1/gonum/floats/scalar"

	"github.com/star/constellation/internal/geo"
)

func TestObserverRadius(t *testing.T) {
	eq := NewObserver(geo.GroundPoint{}, 0)
	if r := eq.ECEF.Norm(); !scalar.EqualWithinAbs(r, 6378.137, 1e-6) {
		t.Errorf("equator radius = %f km", r)
	}
	pole := NewObserver(geo.GroundPoint{LatDeg: 90}, 0)
	if r := pole.ECEF.Norm(); !scalar.EqualWithinAbs(r, 6356.7523, 1e-3) {
		t.Errorf("pole radius = %f km", r)
	}
	raised := NewObserver(geo.GroundPoint{}, 0.1)
	if d := raised.ECEF.Norm() - eq.ECEF.Norm(); !scalar.EqualWithinAbs(d, 0.1, 1e-9) {
		t.Errorf("height offset = %f km, want 0.1", d)
	}
}

// TestGeodeticRoundTrip converts observer positions back to geodetic.
func TestGeodeticRoundTrip(t *testing.T) {
	points := []struct {
		p geo.GroundPoint
		h float64
	}{
		{geo.GroundPoint{LatDeg: 0, LngDeg: 0}, 0},
		{geo.GroundPoint{LatDeg: 45, LngDeg: -120}, 550},
		{geo.GroundPoint{LatDeg: -65, LngDeg: 179.5}, 1200},
		{geo.GroundPoint{LatDeg: 89, LngDeg: 10}, 400},
	}
	for _, pt := range points {
		g := ECEFToGeodetic(NewObserver(pt.p, pt.h).ECEF)
		if !scalar.EqualWithinAbs(g.LatDeg, pt.p.LatDeg, 1e-7) ||
			!scalar.EqualWithinAbs(g.LngDeg, pt.p.LngDeg, 1e-7) ||
			!scalar.EqualWithinAbs(g.HeightKm, pt.h, 1e-6) {
			t.Errorf("round trip of %+v h=%v gave %+v", pt.p, pt.h, g)
		}
	}
}

func TestLookOverhead(t *testing.T) {
	obs := NewObserver(geo.GroundPoint{}, 0)
	la := obs.Look(Vec3{X: obs.ECEF.X + 400})

	if !scalar.EqualWithinAbs(la.ElevationDeg, 90, 1e-6) {
		t.Errorf("elevation = %f, want 90", la.ElevationDeg)
	}
	if !scalar.EqualWithinAbs(la.RangeKm, 400, 1e-9) {
		t.Errorf("range = %f, want 400", la.RangeKm)
	}
}

func TestLookAzimuth(t *testing.T) {
	obs := NewObserver(geo.GroundPoint{}, 0)
	tests := []struct {
		name   string
		target geo.GroundPoint
		want   float64
	}{
		{"north", geo.GroundPoint{LatDeg: 10}, 0},
		{"east", geo.GroundPoint{LngDeg: 10}, 90},
		{"south", geo.GroundPoint{LatDeg: -10}, 180},
		{"west", geo.GroundPoint{LngDeg: -10}, 270},
	}
	for _, tt := range tests {
		la := obs.Look(NewObserver(tt.target, 400).ECEF)
		diff := la.AzimuthDeg - tt.want
		if diff > 180 {
			diff -= 360
		}
		if diff > 1 || diff < -1 {
			t.Errorf("%s: azimuth = %f, want %f", tt.name, la.AzimuthDeg, tt.want)
		}
		if la.ElevationDeg <= 0 {
			t.Errorf("%s: elevation %f should be above horizon", tt.name, la.ElevationDeg)
		}
	}
}

func TestLookBelowHorizon(t *testing.T) {
	obs := NewObserver(geo.GroundPoint{}, 0)
	la := obs.Look(NewObserver(geo.GroundPoint{LngDeg: 90}, 400).ECEF)
	if la.ElevationDeg >= 0 {
		t.Errorf("elevation = %f, want negative", la.ElevationDeg)
	}
}
