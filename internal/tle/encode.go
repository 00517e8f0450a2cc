package tle

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/soniakeys/meeus/v3/julian"

	"github.com/star/constellation/internal/constellation"
)

// LineLength is the fixed width of both TLE lines, checksum included.
const LineLength = 69

// Physical constants used for mean motion.
const (
	EarthRadiusKm = 6378.137
	MuKm3PerS2    = 398600.4418
)

// ErrEncodingDefect means an element value cannot be represented in its
// fixed-width column. It indicates a bug in the caller, not bad user input.
var ErrEncodingDefect = errors.New("TLE encoding defect")

// Fixed fields for synthetic circular orbits.
const (
	meanMotionDot  = " .00000000"
	meanMotionDDot = " 00000-0"
	bstar          = " 00000-0"
	elementSetNum  = 999
)

// MeanMotion returns revolutions per day for a circular orbit at altitudeKm.
func MeanMotion(altitudeKm float64) float64 {
	a := EarthRadiusKm + altitudeKm
	period := 2 * math.Pi * math.Sqrt(a*a*a/MuKm3PerS2)
	return 1440 / (period / 60)
}

// FormatEpoch renders t in UTC as YYDDD.DDDDDDDD.
func FormatEpoch(t time.Time) string {
	t = t.UTC()
	y, m, d := t.Date()
	midnight := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	day := float64(julian.DayOfYearGregorian(y, int(m), d)) + t.Sub(midnight).Seconds()/86400
	return fmt.Sprintf("%02d%012.8f", y%100, day)
}

// Checksum sums the digits of the first 68 columns, counting '-' as 1,
// modulo 10.
func Checksum(line string) int {
	n := min(len(line), LineLength-1)
	sum := 0
	for i := 0; i < n; i++ {
		switch c := line[i]; {
		case c >= '0' && c <= '9':
			sum += int(c - '0')
		case c == '-':
			sum++
		}
	}
	return sum % 10
}

// Encode renders one element set as a fixed-width two-line element pair.
func Encode(set constellation.ElementSet) (Lines, error) {
	if set.SatelliteID < 0 || set.SatelliteID > 99999 {
		return Lines{}, defect("satellite id", set.SatelliteID)
	}
	for _, f := range []struct {
		name string
		v    float64
	}{
		{"inclination", set.InclinationDeg},
		{"raan", set.RAANDeg},
		{"true anomaly", set.TrueAnomalyDeg},
		{"altitude", set.AltitudeKm},
	} {
		if math.IsNaN(f.v) || math.IsInf(f.v, 0) {
			return Lines{}, defect(f.name, f.v)
		}
	}

	// Two-digit years pivot at 57.
	if y := set.Epoch.UTC().Year(); y < 1957 || y > 2056 {
		return Lines{}, defect("epoch year", y)
	}
	epoch := FormatEpoch(set.Epoch)
	if len(epoch) != 14 {
		return Lines{}, defect("epoch", epoch)
	}

	intl := fmt.Sprintf("%02d%03dA", set.Epoch.UTC().Year()%100, set.SatelliteID%1000)

	line1 := fmt.Sprintf("1 %05dU %-8s %s %s %s %s 0 %4d",
		set.SatelliteID, intl, epoch, meanMotionDot, meanMotionDDot, bstar, elementSetNum)

	line2 := fmt.Sprintf("2 %05d %8.4f %8.4f %07d %8.4f %8.4f %11.8f%05d",
		set.SatelliteID,
		set.InclinationDeg,
		normalizeDeg(set.RAANDeg),
		0, // eccentricity, implied leading decimal point
		0.0,
		normalizeDeg(set.TrueAnomalyDeg),
		MeanMotion(set.AltitudeKm),
		0,
	)

	if len(line1) != LineLength-1 {
		return Lines{}, defect("line 1 width", len(line1))
	}
	if len(line2) != LineLength-1 {
		return Lines{}, defect("line 2 width", len(line2))
	}

	return Lines{
		Line1: line1 + fmt.Sprint(Checksum(line1)),
		Line2: line2 + fmt.Sprint(Checksum(line2)),
	}, nil
}

// MustEncode is like Encode but panics on an encoding defect.
func MustEncode(set constellation.ElementSet) Lines {
	l, err := Encode(set)
	if err != nil {
		panic(err)
	}
	return l
}

// EncodeAll encodes a whole constellation into catalogue entries.
func EncodeAll(sets []constellation.ElementSet) ([]TLEEntry, error) {
	entries := make([]TLEEntry, 0, len(sets))
	for _, s := range sets {
		l, err := Encode(s)
		if err != nil {
			return nil, fmt.Errorf("encoding satellite %d: %w", s.SatelliteID, err)
		}
		entries = append(entries, TLEEntry{
			SatelliteID: s.SatelliteID,
			Name:        s.Name,
			Plane:       s.Plane,
			Epoch:       s.Epoch,
			Line1:       l.Line1,
			Line2:       l.Line2,
		})
	}
	return entries, nil
}

// normalizeDeg maps an angle into [0, 360) and guards the rounding case
// where %8.4f would print 360.0000.
func normalizeDeg(v float64) float64 {
	v = math.Mod(v, 360)
	if v < 0 {
		v += 360
	}
	if v >= 359.99995 {
		v = 0
	}
	return v
}

func defect(field string, v any) error {
	return fmt.Errorf("%w: %s %v does not fit its column", ErrEncodingDefect, field, v)
}
