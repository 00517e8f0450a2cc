// Command diag checks a TLE file (an export or a cache snapshot): it decodes
// every entry and lists the access passes over one observer.
//
//	diag --file /tmp/constellation/tle/tle_1770838763000.txt --lat 39.74 --lng -104.99
//	diag --demo --hours 12
package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/pflag"

	"github.com/star/constellation/internal/constellation"
	"github.com/star/constellation/internal/geo"
	"github.com/star/constellation/internal/passes"
	"github.com/star/constellation/internal/propagation"
	"github.com/star/constellation/internal/tle"
)

type options struct {
	file         string
	demo         bool
	lat, lng     float64
	heightKm     float64
	hours        float64
	minElevation float64
	limit        int
}

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, nil))

	var o options
	fs := pflag.NewFlagSet("diag", pflag.ExitOnError)
	fs.StringVarP(&o.file, "file", "f", "", "TLE file to check")
	fs.BoolVar(&o.demo, "demo", false, "check the demo constellation instead of a file")
	fs.Float64Var(&o.lat, "lat", 39.7392, "observer latitude in degrees")
	fs.Float64Var(&o.lng, "lng", -104.9903, "observer longitude in degrees")
	fs.Float64Var(&o.heightKm, "height-km", 1.609, "observer height in km")
	fs.Float64Var(&o.hours, "hours", 24, "prediction window in hours")
	fs.Float64Var(&o.minElevation, "min-elevation", 10, "minimum elevation in degrees")
	fs.IntVar(&o.limit, "limit", 5, "number of satellites to predict, 0 for all")
	_ = fs.Parse(os.Args[1:])

	if err := run(context.Background(), o, time.Now().UTC(), os.Stdout, logger); err != nil {
		fmt.Println("ERROR:", err)
		os.Exit(1)
	}
}

func loadEntries(o options, now time.Time, logger *slog.Logger) ([]tle.TLEEntry, error) {
	if o.demo {
		sets, err := constellation.Demo(now)
		if err != nil {
			return nil, err
		}
		return tle.EncodeAll(sets)
	}
	if o.file == "" {
		return nil, fmt.Errorf("either --file or --demo is required")
	}
	data, err := os.ReadFile(o.file)
	if err != nil {
		return nil, fmt.Errorf("reading TLE file: %w", err)
	}
	return tle.Parse(bytes.NewReader(data), logger)
}

func run(ctx context.Context, o options, now time.Time, out io.Writer, logger *slog.Logger) error {
	entries, err := loadEntries(o, now, logger)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Loaded %d TLE entries\n", len(entries))
	if len(entries) == 0 {
		return nil
	}

	for _, e := range entries {
		el, err := tle.Decode(e.Line1, e.Line2)
		if err != nil {
			fmt.Fprintf(out, "  %s: ERROR %s\n", e.Name, err)
			continue
		}
		fmt.Fprintf(out, "  %s (id %d, plane %d) epoch %s inc=%.4f raan=%.4f ma=%.4f n=%.8f\n",
			e.Name, el.SatelliteID, e.Plane, el.Epoch.Format(time.RFC3339),
			el.InclinationDeg, el.RAANDeg, el.MeanAnomalyDeg, el.MeanMotion)
	}

	subset := entries
	if o.limit > 0 && len(subset) > o.limit {
		subset = subset[:o.limit]
	}

	req := passes.Request{
		Observer:        geo.GroundPoint{LatDeg: o.lat, LngDeg: o.lng},
		HeightKm:        o.heightKm,
		Entries:         subset,
		Start:           now,
		Duration:        time.Duration(o.hours * float64(time.Hour)),
		MinElevationDeg: o.minElevation,
	}
	fmt.Fprintf(out, "\nPrediction start: %s\n", now.Format(time.RFC3339))

	res, err := passes.Predict(ctx, propagation.NewGoSatellite(), req)
	if err != nil {
		return err
	}

	total := 0
	for _, sat := range res.Satellites {
		if sat.Error != "" {
			fmt.Fprintf(out, "  satellite %d: ERROR %s\n", sat.SatelliteID, sat.Error)
			continue
		}
		fmt.Fprintf(out, "  satellite %d: %d passes\n", sat.SatelliteID, len(sat.Passes))
		total += len(sat.Passes)
		for j, p := range sat.Passes {
			fmt.Fprintf(out, "    pass %d: start=%s maxEl=%.1f° dur=%.0fs\n",
				j, p.Start.Format(time.RFC3339), p.MaxElevationDeg, p.DurationSeconds)
		}
	}
	fmt.Fprintf(out, "\nTotal passes found: %d\n", total)
	fmt.Fprintf(out, "Access: %.2f%% in %d windows\n", res.AccessPercent, len(res.Windows))
	return nil
}
