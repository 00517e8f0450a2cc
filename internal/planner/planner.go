// Package planner turns accepted parameters into the constellation the
// rest of the service propagates.
package planner

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/star/constellation/internal/constellation"
	"github.com/star/constellation/internal/metrics"
	"github.com/star/constellation/internal/params"
	"github.com/star/constellation/internal/tle"
)

// Sources recorded on generated constellations.
const (
	SourceCustom = "custom"
	SourceDemo   = "demo"
	SourceCache  = "cache"
)

// Planner regenerates the store's constellation. It implements
// params.Applier.
type Planner struct {
	store  *tle.Store
	cache  *tle.Cache
	logger *slog.Logger
	now    func() time.Time
}

// New creates a planner. cache may be nil to skip persistence.
func New(store *tle.Store, cache *tle.Cache, logger *slog.Logger) *Planner {
	return &Planner{store: store, cache: cache, logger: logger, now: time.Now}
}

// Apply synthesizes and encodes p at the current time and makes it the
// current constellation. Nothing is stored on error.
func (pl *Planner) Apply(ctx context.Context, p params.Params) error {
	epoch := pl.epoch()
	sets, err := p.Synthesize(epoch)
	if err != nil {
		return err
	}
	_, err = pl.install(ctx, SourceCustom, epoch, p.NumPlanes, p.AltitudesPerPlane, sets)
	return err
}

// LoadDemo installs the 8-satellite demo constellation. altitudes, when
// given, overrides the per-plane altitude.
func (pl *Planner) LoadDemo(ctx context.Context, altitudes ...float64) (*tle.Constellation, error) {
	epoch := pl.epoch()
	sets, err := constellation.Demo(epoch, altitudes...)
	if err != nil {
		return nil, err
	}
	alts := make([]float64, constellation.DemoPlanes)
	for i := range alts {
		alts[i] = sets[i*constellation.DemoSatellitesPerPlane].AltitudeKm
	}
	return pl.install(ctx, SourceDemo, epoch, constellation.DemoPlanes, alts, sets)
}

// Restore loads the newest constellation from the disk cache.
func (pl *Planner) Restore() (*tle.Constellation, error) {
	if pl.cache == nil {
		return nil, fmt.Errorf("no TLE cache configured")
	}
	c, err := pl.cache.Restore(pl.logger)
	if err != nil {
		return nil, err
	}
	pl.store.Set(c)
	metrics.SetConstellationSize(c.Size())
	pl.logger.Info("restored constellation from cache",
		"satellites", c.Size(),
		"planes", c.NumPlanes,
		"generated_at", c.GeneratedAt.Format(time.RFC3339),
	)
	return c, nil
}

func (pl *Planner) install(ctx context.Context, source string, epoch time.Time, planes int, alts []float64, sets []constellation.ElementSet) (*tle.Constellation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	entries, err := tle.EncodeAll(sets)
	if err != nil {
		// Synthesized elements always fit the format; a defect here is a bug.
		return nil, fmt.Errorf("encoding %s constellation: %w", source, err)
	}

	c := &tle.Constellation{
		Source:      source,
		GeneratedAt: epoch,
		NumPlanes:   planes,
		Altitudes:   append([]float64(nil), alts...),
		Elements:    sets,
		Satellites:  entries,
	}

	pl.store.Lock()
	pl.store.Set(c)
	pl.store.Unlock()
	metrics.SetConstellationSize(c.Size())

	if pl.cache != nil {
		if err := pl.cache.Save(c); err != nil {
			pl.logger.Warn("failed to cache constellation", "error", err)
		}
	}

	pl.logger.Info("constellation generated",
		"source", source,
		"satellites", c.Size(),
		"planes", planes,
		"epoch", epoch.Format(time.RFC3339),
	)
	return c, nil
}

func (pl *Planner) epoch() time.Time {
	return pl.now().UTC().Truncate(time.Millisecond)
}
