package scene

import (
	"github.com/star/constellation/internal/coverage"
	"github.com/star/constellation/internal/footprint"
	"github.com/star/constellation/internal/geo"
	"github.com/star/constellation/internal/propagation"
)

// Op kinds carried over the wire to remote renderers.
const (
	OpUpsertPosition  = "upsert_position"
	OpUpsertFootprint = "upsert_footprint"
	OpRemove          = "remove"
	OpCoverage        = "coverage"
)

// Op is one sink call in serialisable form.
type Op struct {
	Type     string                         `json:"type"`
	ID       string                         `json:"id,omitempty"`
	Position *propagation.SatellitePosition `json:"position,omitempty"`
	Ring     []geo.GroundPoint              `json:"ring,omitempty"`
	Color    *footprint.Color               `json:"color,omitempty"`
	Coverage *coverage.Result               `json:"coverage,omitempty"`
}

// Recorder is a Sink that records the calls made on it.
type Recorder struct {
	Ops []Op
}

// UpsertPosition implements Sink.
func (r *Recorder) UpsertPosition(id string, pos propagation.SatellitePosition) {
	r.Ops = append(r.Ops, Op{Type: OpUpsertPosition, ID: id, Position: &pos})
}

// UpsertFootprint implements Sink.
func (r *Recorder) UpsertFootprint(id string, ring []geo.GroundPoint, color footprint.Color) {
	r.Ops = append(r.Ops, Op{Type: OpUpsertFootprint, ID: id, Ring: ring, Color: &color})
}

// Remove implements Sink.
func (r *Recorder) Remove(id string) {
	r.Ops = append(r.Ops, Op{Type: OpRemove, ID: id})
}

// SetCoverage implements CoverageSink.
func (r *Recorder) SetCoverage(res coverage.Result) {
	r.Ops = append(r.Ops, Op{Type: OpCoverage, Coverage: &res})
}

// Diff returns the ops that move a renderer from prev to next.
func Diff(prev, next *Frame) []Op {
	var r Recorder
	Apply(&r, prev, next)
	return r.Ops
}
