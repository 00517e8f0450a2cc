package geo

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/floats/scalar"
)

func TestHaversine(t *testing.T) {
	tests := []struct {
		name string
		a, b GroundPoint
		want float64
	}{
		{"same point", GroundPoint{10, 20}, GroundPoint{10, 20}, 0},
		{"quarter meridian", GroundPoint{0, 0}, GroundPoint{90, 0}, math.Pi / 2 * EarthRadiusKm},
		{"antipodal on equator", GroundPoint{0, 0}, GroundPoint{0, 180}, math.Pi * EarthRadiusKm},
		{"one degree of longitude at equator", GroundPoint{0, 0}, GroundPoint{0, 1}, EarthRadiusKm * math.Pi / 180},
		{"across the antimeridian", GroundPoint{0, 179.5}, GroundPoint{0, -179.5}, EarthRadiusKm * math.Pi / 180},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Haversine(tt.a, tt.b)
			if !scalar.EqualWithinAbs(got, tt.want, 1e-6) {
				t.Errorf("Haversine = %.6f km, want %.6f km", got, tt.want)
			}
		})
	}
}

func TestHaversineSymmetric(t *testing.T) {
	a := GroundPoint{LatDeg: 48.85, LngDeg: 2.35}
	b := GroundPoint{LatDeg: -33.87, LngDeg: 151.21}
	if d1, d2 := Haversine(a, b), Haversine(b, a); !scalar.EqualWithinAbs(d1, d2, 1e-9) {
		t.Errorf("distance not symmetric: %f vs %f", d1, d2)
	}
}

// TestDestinationDistance verifies the destination lies at the requested
// great-circle distance for every bearing.
func TestDestinationDistance(t *testing.T) {
	starts := []GroundPoint{{0, 0}, {45, 100}, {-60, -170}, {80, 179}}
	for _, start := range starts {
		for deg := 0.0; deg < 360; deg += 30 {
			p := Destination(start, 1000, deg*degToRad)
			if d := Haversine(start, p); !scalar.EqualWithinAbs(d, 1000, 1e-6) {
				t.Errorf("start %+v bearing %.0f: distance %.6f, want 1000", start, deg, d)
			}
		}
	}
}

func TestDestinationCardinal(t *testing.T) {
	dist := EarthRadiusKm * 10 * degToRad // 10 degrees of arc

	north := Destination(GroundPoint{0, 0}, dist, 0)
	if !scalar.EqualWithinAbs(north.LatDeg, 10, 1e-9) || !scalar.EqualWithinAbs(north.LngDeg, 0, 1e-9) {
		t.Errorf("north = %+v, want {10 0}", north)
	}

	east := Destination(GroundPoint{0, 0}, dist, math.Pi/2)
	if !scalar.EqualWithinAbs(east.LatDeg, 0, 1e-9) || !scalar.EqualWithinAbs(east.LngDeg, 10, 1e-9) {
		t.Errorf("east = %+v, want {0 10}", east)
	}

	wrapped := Destination(GroundPoint{0, 175}, dist, math.Pi/2)
	if !scalar.EqualWithinAbs(wrapped.LngDeg, -175, 1e-9) {
		t.Errorf("wrapped lng = %f, want -175", wrapped.LngDeg)
	}
}

func TestNormalizeLng(t *testing.T) {
	tests := []struct {
		in, want float64
	}{
		{0, 0},
		{179.9, 179.9},
		{180, -180},
		{-180, -180},
		{190, -170},
		{-190, 170},
		{540, -180},
		{-725, -5},
	}
	for _, tt := range tests {
		if got := NormalizeLng(tt.in); !scalar.EqualWithinAbs(got, tt.want, 1e-9) {
			t.Errorf("NormalizeLng(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestNormalizeLngHalfOpen(t *testing.T) {
	for _, in := range []float64{
		math.Nextafter(-180, -200),
		math.Nextafter(180, 200),
		math.Nextafter(-540, -600),
		math.Nextafter(180, 0),
	} {
		if got := NormalizeLng(in); got < -180 || got >= 180 {
			t.Errorf("NormalizeLng(%v) = %v, outside [-180, 180)", in, got)
		}
	}
}
