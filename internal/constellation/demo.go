package constellation

import (
	"fmt"
	"math"
	"time"
)

// Demo constellation layout.
const (
	DemoPlanes             = 4
	DemoSatellitesPerPlane = 2
	DemoAltitudeKm         = 550.0
)

// demoStagger offsets each plane's first satellite so the planes do not
// cross the equator in lockstep.
var demoStagger = [4]float64{45, 135, 225, 315}

// Demo returns the fixed 8-satellite reference constellation. An optional
// list of exactly DemoPlanes altitudes overrides the default per plane.
func Demo(epoch time.Time, altitudes ...float64) ([]ElementSet, error) {
	alts := []float64{DemoAltitudeKm, DemoAltitudeKm, DemoAltitudeKm, DemoAltitudeKm}
	if len(altitudes) > 0 {
		if len(altitudes) != DemoPlanes {
			return nil, &ParamError{Field: "altitudesPerPlane", Value: len(altitudes), Bound: fmt.Sprintf("of length %d", DemoPlanes)}
		}
		if err := validateAltitudes(altitudes); err != nil {
			return nil, err
		}
		copy(alts, altitudes)
	}

	sets := make([]ElementSet, 0, DemoPlanes*DemoSatellitesPerPlane)
	id := demoIDBase
	for plane := 0; plane < DemoPlanes; plane++ {
		for slot := 0; slot < DemoSatellitesPerPlane; slot++ {
			anomaly := demoStagger[plane%len(demoStagger)] + float64(slot)*360/DemoSatellitesPerPlane
			sets = append(sets, ElementSet{
				AltitudeKm:     alts[plane],
				InclinationDeg: InclinationDeg,
				RAANDeg:        float64(plane) * 360 / DemoPlanes,
				TrueAnomalyDeg: math.Mod(anomaly, 360),
				Epoch:          epoch,
				SatelliteID:    id,
				Plane:          plane,
				Name:           fmt.Sprintf("Demo-%d%c", plane+1, 'A'+slot),
			})
			id++
		}
	}
	return sets, nil
}
