package constellation

import (
	"errors"
	"testing"
)

func TestDemoLayout(t *testing.T) {
	sets, err := Demo(testEpoch)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(sets) != 8 {
		t.Fatalf("got %d elements, want 8", len(sets))
	}

	wantAnomaly := []float64{45, 225, 135, 315, 225, 45, 315, 135}
	for i, s := range sets {
		if want := float64(i/2) * 90; s.RAANDeg != want {
			t.Errorf("element %d RAAN = %v, want %v", i, s.RAANDeg, want)
		}
		if s.TrueAnomalyDeg != wantAnomaly[i] {
			t.Errorf("element %d true anomaly = %v, want %v", i, s.TrueAnomalyDeg, wantAnomaly[i])
		}
		if s.AltitudeKm != DemoAltitudeKm {
			t.Errorf("element %d altitude = %v", i, s.AltitudeKm)
		}
		if s.SatelliteID != demoIDBase+i {
			t.Errorf("element %d id = %d", i, s.SatelliteID)
		}
	}
	if sets[0].Name != "Demo-1A" || sets[7].Name != "Demo-4B" {
		t.Errorf("names = %q .. %q", sets[0].Name, sets[7].Name)
	}
}

func TestDemoAltitudeOverride(t *testing.T) {
	sets, err := Demo(testEpoch, 400, 500, 600, 700)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i, s := range sets {
		if want := []float64{400, 500, 600, 700}[i/2]; s.AltitudeKm != want {
			t.Errorf("element %d altitude = %v, want %v", i, s.AltitudeKm, want)
		}
	}

	if _, err := Demo(testEpoch, 400, 500); !errors.Is(err, ErrInvalidParameter) {
		t.Errorf("short override: err = %v, want ErrInvalidParameter", err)
	}
	if _, err := Demo(testEpoch, 400, 500, 600, 5000); !errors.Is(err, ErrInvalidParameter) {
		t.Errorf("out of range override: err = %v, want ErrInvalidParameter", err)
	}
}
