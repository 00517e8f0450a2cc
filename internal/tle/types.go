package tle

import (
	"time"

	"github.com/star/constellation/internal/constellation"
)

// TLEEntry represents a single satellite's two-line element set.
type TLEEntry struct {
	SatelliteID int       `json:"satellite_id"`
	Name        string    `json:"name"`
	Plane       int       `json:"plane"`
	Epoch       time.Time `json:"epoch"`
	Line1       string    `json:"line1"`
	Line2       string    `json:"line2"`
}

// Lines is the encoded form of one element set.
type Lines struct {
	Line1 string `json:"line1"`
	Line2 string `json:"line2"`
}

// Constellation is one accepted generation: the parameters it came from,
// the synthesized elements and their encoded TLEs.
type Constellation struct {
	Source      string
	GeneratedAt time.Time
	NumPlanes   int
	Altitudes   []float64
	Elements    []constellation.ElementSet
	Satellites  []TLEEntry
}

// Size returns the number of satellites, tolerating a nil receiver.
func (c *Constellation) Size() int {
	if c == nil {
		return 0
	}
	return len(c.Satellites)
}
