package scene

import (
	"context"
	"time"

	"github.com/star/constellation/internal/coverage"
	"github.com/star/constellation/internal/footprint"
	"github.com/star/constellation/internal/propagation"
	"github.com/star/constellation/internal/tle"
)

// Builder assembles frames from the store's current constellation.
type Builder struct {
	store      *tle.Store
	engine     *propagation.Engine
	aggregator *coverage.Aggregator
}

// NewBuilder creates a frame builder.
func NewBuilder(store *tle.Store, engine *propagation.Engine, aggregator *coverage.Aggregator) *Builder {
	return &Builder{store: store, engine: engine, aggregator: aggregator}
}

// Build propagates the current constellation to t and derives its
// footprints and coverage. Failed satellites are left out and counted.
func (b *Builder) Build(ctx context.Context, t time.Time) (*Frame, error) {
	c := b.store.Get()
	if c == nil {
		return nil, propagation.ErrNoConstellation
	}
	return b.BuildFor(ctx, c, t)
}

// BuildFor is Build against an explicit constellation.
func (b *Builder) BuildFor(ctx context.Context, c *tle.Constellation, t time.Time) (*Frame, error) {
	kf := b.engine.PropagateEntries(ctx, c.Satellites, t)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	minEl := b.aggregator.Config().MinElevationDeg
	fps := make([]footprint.Polygon, 0, len(kf.Satellites))
	for _, pos := range kf.Satellites {
		fps = append(fps, footprint.ForPosition(pos, minEl, c.NumPlanes))
	}

	cov := b.aggregator.EvaluatePositions(kf.Satellites, t)
	cov.Failed = kf.Failed

	return &Frame{
		Timestamp:  t,
		Positions:  kf.Satellites,
		Footprints: fps,
		Coverage:   cov,
		Failed:     kf.Failed,
	}, nil
}
