package coverage

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"runtime"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/star/constellation/internal/geo"
	"github.com/star/constellation/internal/metrics"
	"github.com/star/constellation/internal/propagation"
	"github.com/star/constellation/internal/tle"
)

// Config holds aggregator settings.
type Config struct {
	ResolutionDeg   float64 // grid spacing (default 2)
	MinElevationDeg float64 // usable-link threshold (default 35)
	Workers         int     // grid chunks evaluated in parallel (default NumCPU)
}

// Result is the coverage of one instant.
type Result struct {
	GlobalPercentage float64   `json:"global_percentage"`
	CoveredPoints    int       `json:"covered_points"`
	TotalPoints      int       `json:"total_points"`
	EvaluatedAt      time.Time `json:"evaluated_at"`
	ResolutionDeg    float64   `json:"resolution_deg"`
	MinElevationDeg  float64   `json:"min_elevation_deg"`
	Satellites       int       `json:"satellites"`
	Failed           int       `json:"failed"`
}

// Complete reports whether every requested satellite contributed.
func (r Result) Complete() bool {
	return r.Failed == 0
}

// Aggregator computes the union coverage of a constellation over the grid.
type Aggregator struct {
	prop   propagation.Propagator
	pool   *propagation.WorkerPool
	config Config
	grids  *gridCache
	logger *slog.Logger
}

type gridCache struct {
	mu    sync.Mutex
	grids map[float64][]geo.GroundPoint
}

func (c *gridCache) get(resolution float64) ([]geo.GroundPoint, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if g, ok := c.grids[resolution]; ok {
		return g, nil
	}
	g, err := Grid(resolution)
	if err != nil {
		return nil, err
	}
	c.grids[resolution] = g
	return g, nil
}

// NewAggregator creates an aggregator that propagates through prop. Zero
// config values take their defaults; an invalid resolution is an error.
func NewAggregator(prop propagation.Propagator, config Config, logger *slog.Logger) (*Aggregator, error) {
	if config.ResolutionDeg == 0 {
		config.ResolutionDeg = DefaultResolutionDeg
	}
	if config.MinElevationDeg == 0 {
		config.MinElevationDeg = DefaultMinElevationDeg
	}
	if config.Workers <= 0 {
		config.Workers = runtime.NumCPU()
	}
	if err := checkElevation(config.MinElevationDeg); err != nil {
		return nil, err
	}

	a := &Aggregator{
		prop:   prop,
		pool:   propagation.NewWorkerPool(config.Workers, logger),
		config: config,
		grids:  &gridCache{grids: make(map[float64][]geo.GroundPoint)},
		logger: logger,
	}
	if _, err := a.grids.get(config.ResolutionDeg); err != nil {
		return nil, err
	}
	return a, nil
}

// Config returns the effective configuration.
func (a *Aggregator) Config() Config {
	return a.config
}

// With returns an aggregator sharing a's propagator and grid cache but
// using a different resolution and elevation threshold. A zero resolution
// or a negative elevation keeps a's setting.
func (a *Aggregator) With(resolutionDeg, minElevationDeg float64) (*Aggregator, error) {
	b := *a
	if resolutionDeg != 0 {
		b.config.ResolutionDeg = resolutionDeg
	}
	if minElevationDeg >= 0 {
		b.config.MinElevationDeg = minElevationDeg
	}
	if err := checkElevation(b.config.MinElevationDeg); err != nil {
		return nil, err
	}
	if _, err := b.grids.get(b.config.ResolutionDeg); err != nil {
		return nil, err
	}
	return &b, nil
}

func checkElevation(deg float64) error {
	if math.IsNaN(deg) || deg < 0 || deg >= 90 {
		return fmt.Errorf("minimum elevation %v outside [0, 90) degrees", deg)
	}
	return nil
}

// Evaluate propagates every entry to t and returns the union coverage.
// Satellites that fail to propagate are logged, counted in Result.Failed and
// left out.
func (a *Aggregator) Evaluate(ctx context.Context, entries []tle.TLEEntry, t time.Time) (Result, error) {
	positions, _, failed := a.pool.PropagateBatch(ctx, a.prop, entries, t)
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	res := a.EvaluatePositions(positions, t)
	res.Failed = failed
	return res, nil
}

// EvaluatePositions returns the union coverage of positions at t. A grid
// point covered by several satellites counts once. The grid is split into
// chunks evaluated concurrently; the result equals a sequential pass.
func (a *Aggregator) EvaluatePositions(positions []propagation.SatellitePosition, t time.Time) Result {
	start := time.Now()
	grid, _ := a.grids.get(a.config.ResolutionDeg)

	sats := make([]footprintDisk, 0, len(positions))
	for _, p := range positions {
		r := VisibilityRadiusKm(p.HeightKm, a.config.MinElevationDeg)
		if r <= 0 {
			continue
		}
		sats = append(sats, footprintDisk{center: p.Ground(), radiusKm: r})
	}

	chunks := a.config.Workers
	if chunks > len(grid) {
		chunks = len(grid)
	}
	counts := make([]int, chunks)
	size := (len(grid) + chunks - 1) / chunks

	var g errgroup.Group
	for c := 0; c < chunks; c++ {
		lo := c * size
		hi := min(lo+size, len(grid))
		g.Go(func() error {
			counts[c] = countCovered(grid[lo:hi], sats)
			return nil
		})
	}
	_ = g.Wait()

	covered := 0
	for _, n := range counts {
		covered += n
	}

	res := Result{
		CoveredPoints:   covered,
		TotalPoints:     len(grid),
		EvaluatedAt:     t.UTC(),
		ResolutionDeg:   a.config.ResolutionDeg,
		MinElevationDeg: a.config.MinElevationDeg,
		Satellites:      len(positions),
	}
	if len(grid) > 0 {
		res.GlobalPercentage = math.Round(10000*float64(covered)/float64(len(grid))) / 100
	}

	duration := time.Since(start)
	metrics.RecordCoverage(res.GlobalPercentage, duration)
	a.logger.Debug("coverage evaluated",
		"satellites", len(positions),
		"covered", covered,
		"total", len(grid),
		"percentage", res.GlobalPercentage,
		"duration_ms", duration.Milliseconds(),
	)
	return res
}

type footprintDisk struct {
	center   geo.GroundPoint
	radiusKm float64
}

func countCovered(points []geo.GroundPoint, sats []footprintDisk) int {
	n := 0
	for _, p := range points {
		for _, s := range sats {
			if geo.Haversine(s.center, p) <= s.radiusKm {
				n++
				break
			}
		}
	}
	return n
}
