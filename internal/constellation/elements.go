// Package constellation synthesizes circular-orbit element sets for evenly
// spaced Walker-style constellations.
package constellation

import (
	"errors"
	"fmt"
	"time"
)

// Limits accepted by Synthesize.
const (
	MinSatellites = 1
	MaxSatellites = 60
	MinPlanes     = 1
	MaxPlanes     = 10
	MinAltitudeKm = 160.0
	MaxAltitudeKm = 2000.0
)

// InclinationDeg is shared by every generated orbit.
const InclinationDeg = 65.0

const (
	customIDBase = 30000
	demoIDBase   = 25000
)

// ErrInvalidParameter is returned for rejected constellation parameters.
var ErrInvalidParameter = errors.New("invalid constellation parameter")

// ParamError names the offending field and the bound it violated.
type ParamError struct {
	Field string
	Value any
	Bound string
}

func (e *ParamError) Error() string {
	return fmt.Sprintf("%s: %s must be %s, got %v", ErrInvalidParameter, e.Field, e.Bound, e.Value)
}

// Unwrap lets errors.Is match ErrInvalidParameter.
func (e *ParamError) Unwrap() error {
	return ErrInvalidParameter
}

// ElementSet describes one circular orbit. Eccentricity and argument of
// perigee are zero by construction.
type ElementSet struct {
	AltitudeKm     float64   `json:"altitude_km"`
	InclinationDeg float64   `json:"inclination_deg"`
	RAANDeg        float64   `json:"raan_deg"`
	TrueAnomalyDeg float64   `json:"true_anomaly_deg"`
	Epoch          time.Time `json:"epoch"`
	SatelliteID    int       `json:"satellite_id"`
	Plane          int       `json:"plane"`
	Name           string    `json:"name"`
}

// Validate checks general-mode parameters without generating anything.
func Validate(numSatellites, numPlanes int, altitudes []float64) error {
	if numSatellites < MinSatellites || numSatellites > MaxSatellites {
		return &ParamError{Field: "numSatellites", Value: numSatellites, Bound: fmt.Sprintf("in [%d, %d]", MinSatellites, MaxSatellites)}
	}
	if numPlanes < MinPlanes || numPlanes > MaxPlanes {
		return &ParamError{Field: "numPlanes", Value: numPlanes, Bound: fmt.Sprintf("in [%d, %d]", MinPlanes, MaxPlanes)}
	}
	if numSatellites < numPlanes {
		return &ParamError{Field: "numSatellites", Value: numSatellites, Bound: fmt.Sprintf(">= numPlanes (%d)", numPlanes)}
	}
	if len(altitudes) != numPlanes {
		return &ParamError{Field: "altitudesPerPlane", Value: len(altitudes), Bound: fmt.Sprintf("of length numPlanes (%d)", numPlanes)}
	}
	return validateAltitudes(altitudes)
}

func validateAltitudes(altitudes []float64) error {
	for i, alt := range altitudes {
		// NaN fails both comparisons, so test the accepted range instead.
		if !(alt >= MinAltitudeKm && alt <= MaxAltitudeKm) {
			return &ParamError{
				Field: fmt.Sprintf("altitudesPerPlane[%d]", i),
				Value: alt,
				Bound: fmt.Sprintf("in [%g, %g] km", MinAltitudeKm, MaxAltitudeKm),
			}
		}
	}
	return nil
}

// PlaneSizes returns the satellite count of each plane. The first
// numSatellites mod numPlanes planes carry one extra satellite.
func PlaneSizes(numSatellites, numPlanes int) []int {
	if numPlanes <= 0 {
		return nil
	}
	base := numSatellites / numPlanes
	extra := numSatellites % numPlanes

	sizes := make([]int, numPlanes)
	for i := range sizes {
		sizes[i] = base
		if i < extra {
			sizes[i]++
		}
	}
	return sizes
}

// PlaneOf maps a satellite's generation index to its plane and its slot
// within that plane. It returns (-1, -1) for an index outside the constellation.
func PlaneOf(index, numSatellites, numPlanes int) (plane, slot int) {
	if index < 0 {
		return -1, -1
	}
	for p, size := range PlaneSizes(numSatellites, numPlanes) {
		if index < size {
			return p, index
		}
		index -= size
	}
	return -1, -1
}

// Synthesize builds an evenly spaced constellation. Elements are emitted in
// plane-major order with sequential IDs, so identical inputs produce
// identical sets apart from the epoch.
func Synthesize(numSatellites, numPlanes int, altitudesPerPlane []float64, epoch time.Time) ([]ElementSet, error) {
	if err := Validate(numSatellites, numPlanes, altitudesPerPlane); err != nil {
		return nil, err
	}

	sets := make([]ElementSet, 0, numSatellites)
	id := customIDBase
	for plane, size := range PlaneSizes(numSatellites, numPlanes) {
		raan := float64(plane) * 360 / float64(numPlanes)
		for slot := 0; slot < size; slot++ {
			sets = append(sets, ElementSet{
				AltitudeKm:     altitudesPerPlane[plane],
				InclinationDeg: InclinationDeg,
				RAANDeg:        raan,
				TrueAnomalyDeg: float64(slot) * 360 / float64(size),
				Epoch:          epoch,
				SatelliteID:    id,
				Plane:          plane,
				Name:           fmt.Sprintf("Custom-%d%c", plane+1, 'A'+slot),
			})
			id++
		}
	}
	return sets, nil
}
