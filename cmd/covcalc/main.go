// Command covcalc synthesizes a constellation offline and prints its TLEs,
// its global coverage and optionally its footprints or a coverage timeline.
//
//	covcalc --satellites 24 --planes 4 --altitudes 550
//	covcalc --demo --time 2026-02-06T12:00:00Z --footprints
//	covcalc --demo --timeline --horizon 1h --step 5m
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/pflag"

	"github.com/star/constellation/internal/constellation"
	"github.com/star/constellation/internal/coverage"
	"github.com/star/constellation/internal/footprint"
	"github.com/star/constellation/internal/params"
	"github.com/star/constellation/internal/propagation"
	"github.com/star/constellation/internal/tle"
)

type options struct {
	satellites   int
	planes       int
	altitudes    []float64
	demo         bool
	at           string
	resolution   float64
	minElevation float64
	backend      string
	footprints   bool
	timeline     bool
	horizon      time.Duration
	step         time.Duration
	jsonOut      bool
}

func parseFlags(args []string) (options, error) {
	var o options
	fs := pflag.NewFlagSet("covcalc", pflag.ContinueOnError)
	fs.IntVarP(&o.satellites, "satellites", "n", 0, "number of satellites")
	fs.IntVarP(&o.planes, "planes", "p", 0, "number of orbital planes")
	fs.Float64SliceVarP(&o.altitudes, "altitudes", "a", nil, "altitude in km, one value for every plane or one per plane")
	fs.BoolVar(&o.demo, "demo", false, "use the 8-satellite demo constellation")
	fs.StringVarP(&o.at, "time", "t", "", "evaluation time and element epoch, RFC 3339 (default now)")
	fs.Float64Var(&o.resolution, "resolution", coverage.DefaultResolutionDeg, "grid resolution in degrees")
	fs.Float64Var(&o.minElevation, "min-elevation", coverage.DefaultMinElevationDeg, "minimum elevation in degrees")
	fs.StringVar(&o.backend, "backend", propagation.BackendGoSatellite, "propagator: go-satellite or akhenakh")
	fs.BoolVar(&o.footprints, "footprints", false, "print footprint polygons")
	fs.BoolVar(&o.timeline, "timeline", false, "print coverage at every step over the horizon")
	fs.DurationVar(&o.horizon, "horizon", time.Hour, "timeline horizon")
	fs.DurationVar(&o.step, "step", 5*time.Minute, "timeline step")
	fs.BoolVar(&o.jsonOut, "json", false, "print JSON instead of text")
	if err := fs.Parse(args); err != nil {
		return o, err
	}
	if o.timeline && (o.step <= 0 || o.horizon < 0) {
		return o, fmt.Errorf("--step must be positive and --horizon non-negative")
	}
	return o, nil
}

// elements builds the element sets the options describe, through the same
// intake path as the HTTP service.
func (o options) elements(epoch time.Time) ([]constellation.ElementSet, int, error) {
	if o.demo {
		sets, err := constellation.Demo(epoch, o.altitudes...)
		return sets, constellation.DemoPlanes, err
	}

	req := params.Request{NumSatellites: &o.satellites, NumPlanes: &o.planes}
	if len(o.altitudes) > 0 {
		req.AltitudesPerPlane = &params.Altitudes{Values: o.altitudes, Scalar: len(o.altitudes) == 1}
	}
	p, err := params.Normalize(req)
	if err != nil {
		return nil, 0, err
	}
	sets, err := p.Synthesize(epoch)
	return sets, p.NumPlanes, err
}

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))

	o, err := parseFlags(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	if err := run(context.Background(), o, os.Stdout, logger); err != nil {
		fmt.Fprintln(os.Stderr, "covcalc:", err)
		os.Exit(1)
	}
}

type report struct {
	Satellites []tle.TLEEntry      `json:"satellites"`
	Coverage   coverage.Result     `json:"coverage"`
	Footprints []footprint.Polygon `json:"footprints,omitempty"`
	Timeline   []coverage.Result   `json:"timeline,omitempty"`
}

func run(ctx context.Context, o options, out io.Writer, logger *slog.Logger) error {
	at := time.Now().UTC()
	if o.at != "" {
		t, err := time.Parse(time.RFC3339, o.at)
		if err != nil {
			return fmt.Errorf("--time: %w", err)
		}
		at = t.UTC()
	}

	sets, planes, err := o.elements(at)
	if err != nil {
		return err
	}
	entries, err := tle.EncodeAll(sets)
	if err != nil {
		return err
	}

	prop, err := propagation.NewPropagator(o.backend)
	if err != nil {
		return err
	}
	agg, err := coverage.NewAggregator(prop, coverage.Config{ResolutionDeg: o.resolution}, logger)
	if err != nil {
		return err
	}
	// Zero config values mean "default"; With takes an explicit 0 deg mask.
	if agg, err = agg.With(0, o.minElevation); err != nil {
		return err
	}

	store := tle.NewStore()
	store.Set(&tle.Constellation{Source: "covcalc", GeneratedAt: at, NumPlanes: planes, Elements: sets, Satellites: entries})
	engine := propagation.NewEngine(store, prop, propagation.PropConfig{Step: o.step, Horizon: o.horizon}, logger)

	kf, err := engine.PropagateToTime(ctx, at)
	if err != nil {
		return err
	}
	rep := report{Satellites: entries, Coverage: agg.EvaluatePositions(kf.Satellites, at)}
	rep.Coverage.Failed = kf.Failed

	if o.footprints {
		for _, pos := range kf.Satellites {
			rep.Footprints = append(rep.Footprints, footprint.ForPosition(pos, o.minElevation, planes))
		}
	}
	if o.timeline {
		kfs, err := engine.GenerateKeyframes(ctx, at)
		if err != nil {
			return err
		}
		for _, k := range kfs {
			res := agg.EvaluatePositions(k.Satellites, k.Timestamp)
			res.Failed = k.Failed
			rep.Timeline = append(rep.Timeline, res)
		}
	}

	if o.jsonOut {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(rep)
	}
	return writeText(out, rep)
}

func writeText(out io.Writer, rep report) error {
	if _, err := out.Write(tle.Format(rep.Satellites)); err != nil {
		return err
	}

	c := rep.Coverage
	fmt.Fprintf(out, "\ncoverage at %s: %.2f%% (%d/%d points, %g deg grid, %g deg elevation, %d satellites, %d failed)\n",
		c.EvaluatedAt.Format(time.RFC3339), c.GlobalPercentage, c.CoveredPoints, c.TotalPoints,
		c.ResolutionDeg, c.MinElevationDeg, c.Satellites, c.Failed)

	for _, fp := range rep.Footprints {
		fmt.Fprintf(out, "%s plane %d center (%.3f, %.3f) radius %.1f km fill %s, %d vertices\n",
			fp.EntityID, fp.Plane, fp.Center.LatDeg, fp.Center.LngDeg, fp.RadiusKm, fp.Fill.Hex(), len(fp.Ring))
	}

	if len(rep.Timeline) > 0 {
		fmt.Fprintln(out, "\ntime                  coverage")
		for _, r := range rep.Timeline {
			fmt.Fprintf(out, "%s  %6.2f%%\n", r.EvaluatedAt.Format(time.RFC3339), r.GlobalPercentage)
		}
	}
	return nil
}
