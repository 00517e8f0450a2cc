package tle

import (
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/soniakeys/meeus/v3/julian"
)

// Elements holds the orbital fields read back from a two-line pair.
type Elements struct {
	SatelliteID    int
	Epoch          time.Time
	InclinationDeg float64
	RAANDeg        float64
	Eccentricity   float64
	ArgPerigeeDeg  float64
	MeanAnomalyDeg float64
	MeanMotion     float64 // revolutions per day
}

// Decode parses the column fields of a two-line pair and verifies both
// checksums.
func Decode(line1, line2 string) (Elements, error) {
	var el Elements

	if err := checkLine(line1, '1'); err != nil {
		return el, errors.Wrap(err, "line 1")
	}
	if err := checkLine(line2, '2'); err != nil {
		return el, errors.Wrap(err, "line 2")
	}

	id, err := strconv.Atoi(strings.TrimSpace(line1[2:7]))
	if err != nil {
		return el, errors.Wrap(err, "invalid satellite number")
	}
	id2, err := strconv.Atoi(strings.TrimSpace(line2[2:7]))
	if err != nil {
		return el, errors.Wrap(err, "invalid line 2 satellite number")
	}
	if id != id2 {
		return el, errors.Errorf("satellite number mismatch: %d vs %d", id, id2)
	}
	el.SatelliteID = id

	el.Epoch, err = parseEpoch(strings.TrimSpace(line1[18:32]))
	if err != nil {
		return el, errors.Wrap(err, "invalid epoch")
	}

	fields := []struct {
		name string
		col  string
		dst  *float64
	}{
		{"inclination", line2[8:16], &el.InclinationDeg},
		{"raan", line2[17:25], &el.RAANDeg},
		{"eccentricity", "." + line2[26:33], &el.Eccentricity},
		{"argument of perigee", line2[34:42], &el.ArgPerigeeDeg},
		{"mean anomaly", line2[43:51], &el.MeanAnomalyDeg},
		{"mean motion", line2[52:63], &el.MeanMotion},
	}
	for _, f := range fields {
		v, err := strconv.ParseFloat(strings.TrimSpace(f.col), 64)
		if err != nil {
			return el, errors.Wrapf(err, "invalid %s", f.name)
		}
		*f.dst = v
	}

	return el, nil
}

func checkLine(line string, prefix byte) error {
	if len(line) != LineLength {
		return errors.Errorf("length %d, want %d", len(line), LineLength)
	}
	if line[0] != prefix || line[1] != ' ' {
		return errors.Errorf("line does not start with %q", string(prefix)+" ")
	}
	want := Checksum(line)
	got := int(line[LineLength-1] - '0')
	if got != want {
		return errors.Errorf("checksum %d, computed %d", got, want)
	}
	return nil
}

// parseEpoch converts a TLE epoch string in YYDDD.DDDDDDDD format to time.Time.
// Year 00-56 → 2000s, 57-99 → 1900s.
func parseEpoch(s string) (time.Time, error) {
	if len(s) < 5 {
		return time.Time{}, errors.Errorf("epoch string too short: %q", s)
	}

	year, err := strconv.Atoi(s[:2])
	if err != nil {
		return time.Time{}, errors.Wrapf(err, "invalid epoch year %q", s[:2])
	}
	if year >= 57 {
		year += 1900
	} else {
		year += 2000
	}

	day, err := strconv.ParseFloat(s[2:], 64)
	if err != nil {
		return time.Time{}, errors.Wrapf(err, "invalid epoch day %q", s[2:])
	}

	// Day 0 of January is December 31 of the prior year, so day-of-year
	// adds directly.
	jd := julian.CalendarGregorianToJD(year, 1, 0) + day
	return julian.JDToTime(jd).Round(time.Millisecond), nil
}
