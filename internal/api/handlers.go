package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/url"
	"runtime"
	"strconv"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/star/constellation/internal/cache"
	"github.com/star/constellation/internal/constellation"
	"github.com/star/constellation/internal/coverage"
	"github.com/star/constellation/internal/footprint"
	"github.com/star/constellation/internal/geo"
	"github.com/star/constellation/internal/params"
	"github.com/star/constellation/internal/passes"
	"github.com/star/constellation/internal/planner"
	"github.com/star/constellation/internal/propagation"
	"github.com/star/constellation/internal/tle"
)

const (
	maxBodyBytes = 64 << 10

	// Per-request CPU budgets.
	maxCoverageWork      = 200_000_000 // grid points x satellites
	maxTrajectorySamples = 500_000
	maxAccessSamples     = 2_000_000 // satellites x 30s scan steps

	defaultTrajectoryHours = 1.5
	maxTrajectoryHours     = 24
	defaultAccessHours     = 24
)

var errBadQuery = errors.New("invalid query parameter")

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"success": false, "error": msg})
}

// errorStatus maps error kinds to HTTP status codes.
func errorStatus(err error) int {
	switch {
	case errors.Is(err, constellation.ErrInvalidParameter),
		errors.Is(err, passes.ErrInvalidRequest),
		errors.Is(err, errBadQuery):
		return http.StatusBadRequest
	case errors.Is(err, propagation.ErrNoConstellation):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func fail(w http.ResponseWriter, logger *slog.Logger, msg string, err error) {
	status := errorStatus(err)
	if status >= http.StatusInternalServerError && status != http.StatusServiceUnavailable {
		logger.Error(msg, "error", err)
		writeError(w, status, "internal error")
		return
	}
	writeError(w, status, err.Error())
}

// parseTime reads ?t= as RFC 3339, defaulting to now.
func parseTime(q url.Values) (time.Time, error) {
	v := q.Get("t")
	if v == "" {
		return time.Now().UTC(), nil
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: t must be an RFC 3339 timestamp", errBadQuery)
	}
	return t.UTC(), nil
}

// parseFloat reads an optional float in [lo, hi].
func parseFloat(q url.Values, name string, def, lo, hi float64) (float64, error) {
	v := q.Get(name)
	if v == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || math.IsNaN(f) || f < lo || f > hi {
		return 0, fmt.Errorf("%w: %s must be a number in [%g, %g]", errBadQuery, name, lo, hi)
	}
	return f, nil
}

func requireFloat(q url.Values, name string, lo, hi float64) (float64, error) {
	if !q.Has(name) {
		return 0, fmt.Errorf("%w: %s is required", errBadQuery, name)
	}
	return parseFloat(q, name, 0, lo, hi)
}

func hoursDuration(h float64) time.Duration {
	return time.Duration(h * float64(time.Hour))
}

type constellationSummary struct {
	Source      string    `json:"source"`
	GeneratedAt time.Time `json:"generated_at"`
	Satellites  int       `json:"satellites"`
	Planes      int       `json:"planes"`
	Altitudes   []float64 `json:"altitudes_km"`
}

func summarize(c *tle.Constellation) *constellationSummary {
	if c == nil {
		return nil
	}
	return &constellationSummary{
		Source:      c.Source,
		GeneratedAt: c.GeneratedAt,
		Satellites:  c.Size(),
		Planes:      c.NumPlanes,
		Altitudes:   c.Altitudes,
	}
}

// postConstellationHandler accepts new constellation parameters. The
// watcher regenerates the constellation on its next poll.
func postConstellationHandler(logger *slog.Logger, ps params.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req, err := params.Decode(http.MaxBytesReader(w, r.Body, maxBodyBytes))
		if err != nil {
			logger.Info("constellation parameters rejected", "error", err)
			fail(w, logger, "decode parameters", err)
			return
		}
		p, err := params.Normalize(req)
		if err != nil {
			logger.Info("constellation parameters rejected", "error", err)
			fail(w, logger, "normalize parameters", err)
			return
		}

		rec, err := ps.Put(r.Context(), params.LatestKey, p)
		if err != nil {
			fail(w, logger, "store parameters", err)
			return
		}

		logger.Info("constellation parameters accepted",
			"satellites", p.NumSatellites,
			"planes", p.NumPlanes,
			"timestamp", rec.Timestamp,
		)
		writeJSON(w, http.StatusOK, map[string]any{
			"success":    true,
			"satellites": p.NumSatellites,
			"timestamp":  rec.Timestamp,
		})
	}
}

// getConstellationHandler returns the last accepted parameters and the
// constellation currently being served.
func getConstellationHandler(ps params.Store, store *tle.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rec, ok, err := ps.Get(r.Context(), params.LatestKey)
		if err != nil {
			writeError(w, errorStatus(err), err.Error())
			return
		}
		var data *params.Record
		if ok {
			data = &rec
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"success": true,
			"data":    data,
			"current": summarize(store.Get()),
		})
	}
}

// demoHandler installs the demo constellation. The body is optional:
// {"altitudesPerPlane": 600} or one altitude per demo plane.
func demoHandler(logger *slog.Logger, pl *planner.Planner) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			AltitudesPerPlane *params.Altitudes `json:"altitudesPerPlane"`
		}
		dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
		if err := dec.Decode(&body); err != nil && !errors.Is(err, io.EOF) {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
			return
		}

		var alts []float64
		if a := body.AltitudesPerPlane; a != nil {
			alts = a.Values
			if a.Scalar {
				alts = make([]float64, constellation.DemoPlanes)
				for i := range alts {
					alts[i] = a.Values[0]
				}
			}
		}

		c, err := pl.LoadDemo(r.Context(), alts...)
		if err != nil {
			fail(w, logger, "load demo", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"success":    true,
			"satellites": c.Size(),
			"source":     c.Source,
		})
	}
}

// tleExportHandler serves the current constellation as 3-line TLE text.
func tleExportHandler(store *tle.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c := store.Get()
		if c == nil {
			writeError(w, http.StatusServiceUnavailable, propagation.ErrNoConstellation.Error())
			return
		}
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Header().Set("Last-Modified", c.GeneratedAt.UTC().Format(http.TimeFormat))
		w.WriteHeader(http.StatusOK)
		w.Write(tle.Format(c.Satellites))
	}
}

// coverageHandler serves the union coverage at ?t=. Requests with the
// service defaults are answered from the frame cache when possible.
func coverageHandler(logger *slog.Logger, store *tle.Store, agg *coverage.Aggregator, frames *cache.FrameCache) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		t, err := parseTime(q)
		if err != nil {
			fail(w, logger, "parse time", err)
			return
		}
		res, err := parseFloat(q, "resolution", 0, coverage.MinResolutionDeg, coverage.MaxResolutionDeg)
		if err != nil {
			fail(w, logger, "parse resolution", err)
			return
		}
		minEl, err := parseFloat(q, "min_elevation", -1, 0, 89.99)
		if err != nil {
			fail(w, logger, "parse min_elevation", err)
			return
		}

		c := store.Get()
		if c == nil {
			fail(w, logger, "coverage", propagation.ErrNoConstellation)
			return
		}

		if frames != nil && !q.Has("t") && !q.Has("resolution") && !q.Has("min_elevation") {
			if f := frames.Get(t); f != nil {
				writeJSON(w, http.StatusOK, f.Coverage)
				return
			}
		}

		a, err := agg.With(res, minEl)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		if work := coverage.PointCount(a.Config().ResolutionDeg) * c.Size(); work > maxCoverageWork {
			writeError(w, http.StatusBadRequest, fmt.Sprintf(
				"coverage budget exceeded: %d grid-point checks (max %d), use a coarser resolution", work, maxCoverageWork))
			return
		}

		result, err := a.Evaluate(r.Context(), c.Satellites, t)
		if err != nil {
			fail(w, logger, "coverage", err)
			return
		}
		writeJSON(w, http.StatusOK, result)
	}
}

// footprintsHandler serves every satellite's footprint polygon at ?t=.
func footprintsHandler(logger *slog.Logger, frames *cache.FrameCache) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		t, err := parseTime(r.URL.Query())
		if err != nil {
			fail(w, logger, "parse time", err)
			return
		}
		f, err := frames.GetOrBuild(r.Context(), t)
		if err != nil {
			fail(w, logger, "footprints", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"timestamp":  f.Timestamp,
			"failed":     f.Failed,
			"footprints": f.Footprints,
		})
	}
}

// trajectoriesHandler samples every satellite's ground track over
// ?hours= from ?t=.
func trajectoriesHandler(logger *slog.Logger, store *tle.Store, engine *propagation.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		start, err := parseTime(q)
		if err != nil {
			fail(w, logger, "parse time", err)
			return
		}
		hours, err := parseFloat(q, "hours", defaultTrajectoryHours, 0.01, maxTrajectoryHours)
		if err != nil {
			fail(w, logger, "parse hours", err)
			return
		}

		c := store.Get()
		if c == nil {
			fail(w, logger, "trajectories", propagation.ErrNoConstellation)
			return
		}

		step := propagation.TrajectoryStep(c.Size())
		if q.Has("step") {
			sec, err := parseFloat(q, "step", 0, 10, 3600)
			if err != nil {
				fail(w, logger, "parse step", err)
				return
			}
			step = time.Duration(sec) * time.Second
		}

		end := start.Add(hoursDuration(hours))
		perSat := int(end.Sub(start)/step) + 1
		if total := perSat * c.Size(); total > maxTrajectorySamples {
			writeError(w, http.StatusBadRequest, fmt.Sprintf(
				"trajectory budget exceeded: %d samples (max %d), reduce hours or increase step", total, maxTrajectorySamples))
			return
		}

		trajectories := make([]propagation.Trajectory, len(c.Satellites))
		g, ctx := errgroup.WithContext(r.Context())
		g.SetLimit(runtime.NumCPU())
		for i, entry := range c.Satellites {
			g.Go(func() error {
				tr, err := propagation.SampleTrajectory(ctx, engine.Propagator(), entry, start, end, step, logger)
				trajectories[i] = tr
				return err
			})
		}
		if err := g.Wait(); err != nil {
			fail(w, logger, "trajectories", err)
			return
		}

		writeJSON(w, http.StatusOK, map[string]any{
			"start":        start,
			"end":          end,
			"step_seconds": step.Seconds(),
			"trajectories": trajectories,
		})
	}
}

// accessHandler lists the windows during which an observer at ?lat=&lng=
// sees at least one satellite above ?min_elevation=.
func accessHandler(logger *slog.Logger, store *tle.Store, engine *propagation.Engine, agg *coverage.Aggregator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		lat, err := requireFloat(q, "lat", -90, 90)
		if err != nil {
			fail(w, logger, "parse lat", err)
			return
		}
		lng, err := requireFloat(q, "lng", -180, 180)
		if err != nil {
			fail(w, logger, "parse lng", err)
			return
		}
		start, err := parseTime(q)
		if err != nil {
			fail(w, logger, "parse time", err)
			return
		}
		hours, err := parseFloat(q, "hours", defaultAccessHours, 0.01, passes.MaxDuration.Hours())
		if err != nil {
			fail(w, logger, "parse hours", err)
			return
		}
		minEl, err := parseFloat(q, "min_elevation", agg.Config().MinElevationDeg, 0, 89.99)
		if err != nil {
			fail(w, logger, "parse min_elevation", err)
			return
		}
		heightKm, err := parseFloat(q, "height_km", 0, -0.5, 9)
		if err != nil {
			fail(w, logger, "parse height_km", err)
			return
		}

		c := store.Get()
		if c == nil {
			fail(w, logger, "access", propagation.ErrNoConstellation)
			return
		}
		dur := hoursDuration(hours)
		if samples := c.Size() * int(dur/(30*time.Second)); samples > maxAccessSamples {
			writeError(w, http.StatusBadRequest, fmt.Sprintf(
				"access budget exceeded: %d samples (max %d), reduce hours", samples, maxAccessSamples))
			return
		}

		res, err := passes.Predict(r.Context(), engine.Propagator(), passes.Request{
			Observer:        geo.GroundPoint{LatDeg: lat, LngDeg: lng},
			HeightKm:        heightKm,
			Entries:         c.Satellites,
			Start:           start,
			Duration:        dur,
			MinElevationDeg: minEl,
		})
		if err != nil {
			fail(w, logger, "access", err)
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

type satelliteResponse struct {
	Satellite tle.TLEEntry                  `json:"satellite"`
	Elements  *constellation.ElementSet     `json:"elements,omitempty"`
	Position  propagation.SatellitePosition `json:"position"`
	Footprint footprint.Polygon             `json:"footprint"`
	Timestamp time.Time                     `json:"timestamp"`
}

// satelliteHandler serves one satellite's elements, position and footprint
// at ?t=.
func satelliteHandler(logger *slog.Logger, store *tle.Store, engine *propagation.Engine, agg *coverage.Aggregator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.Atoi(r.PathValue("id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "satellite id must be an integer")
			return
		}
		t, err := parseTime(r.URL.Query())
		if err != nil {
			fail(w, logger, "parse time", err)
			return
		}

		c := store.Get()
		if c == nil {
			fail(w, logger, "satellite", propagation.ErrNoConstellation)
			return
		}

		idx := -1
		for i, e := range c.Satellites {
			if e.SatelliteID == id {
				idx = i
				break
			}
		}
		if idx < 0 {
			writeError(w, http.StatusNotFound, fmt.Sprintf("satellite %d not found", id))
			return
		}
		entry := c.Satellites[idx]

		pos, err := engine.Propagator().Propagate(entry, t)
		if err != nil {
			logger.Warn("propagation failed", "satellite_id", id, "error", err)
			writeError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}

		resp := satelliteResponse{
			Satellite: entry,
			Position:  pos,
			Footprint: footprint.ForPosition(pos, agg.Config().MinElevationDeg, c.NumPlanes),
			Timestamp: t,
		}
		for i := range c.Elements {
			if c.Elements[i].SatelliteID == id {
				resp.Elements = &c.Elements[i]
				break
			}
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func cacheStatsHandler(frames *cache.FrameCache) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, frames.Stats())
	}
}
