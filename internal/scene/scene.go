// Package scene describes what a renderer shows at one instant and how to
// move a renderer from one instant to the next.
package scene

import (
	"fmt"
	"time"

	"github.com/star/constellation/internal/coverage"
	"github.com/star/constellation/internal/footprint"
	"github.com/star/constellation/internal/geo"
	"github.com/star/constellation/internal/propagation"
)

// Sink is a rendering target that holds entities by id.
type Sink interface {
	UpsertPosition(id string, pos propagation.SatellitePosition)
	UpsertFootprint(id string, ring []geo.GroundPoint, color footprint.Color)
	Remove(id string)
}

// CoverageSink is implemented by sinks that also display the global
// coverage figure.
type CoverageSink interface {
	SetCoverage(res coverage.Result)
}

// Frame is the full scene at one instant.
type Frame struct {
	Timestamp  time.Time                       `json:"timestamp"`
	Positions  []propagation.SatellitePosition `json:"positions"`
	Footprints []footprint.Polygon             `json:"footprints"`
	Coverage   coverage.Result                 `json:"coverage"`
	Failed     int                             `json:"failed"`
}

// PositionID names the position entity of a satellite.
func PositionID(satelliteID int) string {
	return fmt.Sprintf("sat-%d", satelliteID)
}

// Apply brings sink from prev to next: every entity of next is upserted and
// entities of prev missing from next are removed. prev may be nil.
func Apply(sink Sink, prev, next *Frame) {
	keep := make(map[string]bool)
	if next != nil {
		for _, p := range next.Positions {
			id := PositionID(p.SatelliteID)
			keep[id] = true
			sink.UpsertPosition(id, p)
		}
		for _, fp := range next.Footprints {
			keep[fp.EntityID] = true
			sink.UpsertFootprint(fp.EntityID, fp.Ring, fp.Fill)
		}
		if cs, ok := sink.(CoverageSink); ok {
			cs.SetCoverage(next.Coverage)
		}
	}

	if prev == nil {
		return
	}
	for _, p := range prev.Positions {
		if id := PositionID(p.SatelliteID); !keep[id] {
			sink.Remove(id)
		}
	}
	for _, fp := range prev.Footprints {
		if !keep[fp.EntityID] {
			sink.Remove(fp.EntityID)
		}
	}
}
