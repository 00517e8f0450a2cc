// Package passes predicts access windows: the intervals during which a
// ground observer sees at least one satellite of the constellation above a
// minimum elevation.
package passes

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/star/constellation/internal/geo"
	"github.com/star/constellation/internal/propagation"
	"github.com/star/constellation/internal/tle"
	"github.com/star/constellation/internal/transform"
)

// ErrInvalidRequest marks a request with an out-of-range observer or window.
var ErrInvalidRequest = errors.New("invalid access request")

const (
	// MaxDuration bounds a single prediction window.
	MaxDuration = 72 * time.Hour

	coarseStep = 30 * time.Second
	refineTo   = time.Second
	minPassDur = 10 * time.Second
)

// Pass is one satellite's visibility interval above the minimum elevation.
type Pass struct {
	SatelliteID      int       `json:"satellite_id"`
	Plane            int       `json:"plane"`
	Start            time.Time `json:"start"`
	End              time.Time `json:"end"`
	DurationSeconds  float64   `json:"duration_seconds"`
	MaxElevationDeg  float64   `json:"max_elevation_deg"`
	MaxElevationTime time.Time `json:"max_elevation_time"`
	StartAzimuthDeg  float64   `json:"start_azimuth_deg"`
	EndAzimuthDeg    float64   `json:"end_azimuth_deg"`
}

// SatellitePasses holds the passes for one satellite.
type SatellitePasses struct {
	SatelliteID int    `json:"satellite_id"`
	Passes      []Pass `json:"passes"`
	Error       string `json:"error,omitempty"`
}

// Window is a merged interval during which at least one satellite is
// visible.
type Window struct {
	Start           time.Time `json:"start"`
	End             time.Time `json:"end"`
	DurationSeconds float64   `json:"duration_seconds"`
	Satellites      []int     `json:"satellites"`
}

// Request holds the parameters for an access prediction.
type Request struct {
	Observer        geo.GroundPoint
	HeightKm        float64
	Entries         []tle.TLEEntry
	Start           time.Time
	Duration        time.Duration
	MinElevationDeg float64
}

// Validate checks the observer and window bounds.
func (r Request) Validate() error {
	switch {
	case r.Observer.LatDeg < -90 || r.Observer.LatDeg > 90:
		return fmt.Errorf("%w: lat %g outside [-90, 90]", ErrInvalidRequest, r.Observer.LatDeg)
	case r.Observer.LngDeg < -180 || r.Observer.LngDeg > 180:
		return fmt.Errorf("%w: lng %g outside [-180, 180]", ErrInvalidRequest, r.Observer.LngDeg)
	case r.Duration <= 0 || r.Duration > MaxDuration:
		return fmt.Errorf("%w: duration %s outside (0, %s]", ErrInvalidRequest, r.Duration, MaxDuration)
	case r.MinElevationDeg < 0 || r.MinElevationDeg >= 90:
		return fmt.Errorf("%w: min_elevation %g outside [0, 90)", ErrInvalidRequest, r.MinElevationDeg)
	}
	return nil
}

// Result is the outcome of a prediction.
type Result struct {
	Observer        geo.GroundPoint   `json:"observer"`
	Start           time.Time         `json:"start"`
	End             time.Time         `json:"end"`
	MinElevationDeg float64           `json:"min_elevation_deg"`
	AccessPercent   float64           `json:"access_percent"`
	Windows         []Window          `json:"windows"`
	Satellites      []SatellitePasses `json:"satellites"`
}

// Predict computes per-satellite passes and the merged access windows.
// Each satellite is scanned in its own goroutine, bounded by a semaphore.
// A satellite that fails to propagate carries an error and contributes no
// passes.
func Predict(ctx context.Context, p propagation.Propagator, req Request) (Result, error) {
	if err := req.Validate(); err != nil {
		return Result{}, err
	}

	obs := transform.NewObserver(req.Observer, req.HeightKm)
	end := req.Start.Add(req.Duration)

	results := make([]SatellitePasses, len(req.Entries))
	sem := make(chan struct{}, runtime.NumCPU())
	var wg sync.WaitGroup

	for i, entry := range req.Entries {
		wg.Add(1)
		go func(idx int, e tle.TLEEntry) {
			defer wg.Done()

			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				results[idx] = SatellitePasses{SatelliteID: e.SatelliteID, Error: "cancelled"}
				return
			}

			s := scanner{prop: p, obs: obs, entry: e, minEl: req.MinElevationDeg}
			passes, err := s.scan(ctx, req.Start, end)
			results[idx] = SatellitePasses{SatelliteID: e.SatelliteID, Passes: passes}
			if err != nil {
				results[idx].Error = err.Error()
			}
		}(i, entry)
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	windows := mergeWindows(results)
	var open time.Duration
	for _, w := range windows {
		open += w.End.Sub(w.Start)
	}

	return Result{
		Observer:        req.Observer,
		Start:           req.Start,
		End:             end,
		MinElevationDeg: req.MinElevationDeg,
		AccessPercent:   float64(open) / float64(req.Duration) * 100,
		Windows:         windows,
		Satellites:      results,
	}, nil
}

// scanner walks one satellite through the window.
type scanner struct {
	prop  propagation.Propagator
	obs   transform.Observer
	entry tle.TLEEntry
	minEl float64
}

func (s scanner) look(t time.Time) (transform.LookAngles, error) {
	pos, err := s.prop.Propagate(s.entry, t)
	if err != nil {
		return transform.LookAngles{}, err
	}
	ecef := transform.Vec3{X: pos.PositionECEF[0], Y: pos.PositionECEF[1], Z: pos.PositionECEF[2]}
	return s.obs.Look(ecef), nil
}

// scan samples the window at coarseStep and bisects each threshold crossing
// down to refineTo. Passes shorter than the coarse step can be missed.
// Passes in progress at either edge are clipped to the window.
func (s scanner) scan(ctx context.Context, start, end time.Time) ([]Pass, error) {
	var (
		passes  []Pass
		cur     *Pass
		prevT   time.Time
		prevVis bool
	)

	for t := start; ; t = t.Add(coarseStep) {
		if t.After(end) {
			t = end
		}
		if err := ctx.Err(); err != nil {
			return passes, err
		}

		la, err := s.look(t)
		if err != nil {
			return passes, fmt.Errorf("satellite %d at %s: %w", s.entry.SatelliteID, t.UTC().Format(time.RFC3339), err)
		}
		vis := la.ElevationDeg >= s.minEl

		switch {
		case vis && cur == nil:
			rise, az := t, la.AzimuthDeg
			if !prevT.IsZero() && !prevVis {
				rise, az = s.crossing(prevT, t, true)
			}
			cur = &Pass{
				SatelliteID:      s.entry.SatelliteID,
				Plane:            s.entry.Plane,
				Start:            rise,
				StartAzimuthDeg:  az,
				MaxElevationDeg:  la.ElevationDeg,
				MaxElevationTime: t,
			}
		case !vis && cur != nil:
			cur.End, cur.EndAzimuthDeg = s.crossing(prevT, t, false)
			passes = s.close(passes, cur)
			cur = nil
		}
		if cur != nil && la.ElevationDeg > cur.MaxElevationDeg {
			cur.MaxElevationDeg = la.ElevationDeg
			cur.MaxElevationTime = t
		}

		prevT, prevVis = t, vis
		if !t.Before(end) {
			break
		}
	}

	if cur != nil {
		cur.End = end
		if la, err := s.look(end); err == nil {
			cur.EndAzimuthDeg = la.AzimuthDeg
		}
		passes = s.close(passes, cur)
	}
	return passes, nil
}

func (s scanner) close(passes []Pass, p *Pass) []Pass {
	p.DurationSeconds = p.End.Sub(p.Start).Seconds()
	if p.End.Sub(p.Start) < minPassDur {
		return passes
	}
	return append(passes, *p)
}

// crossing bisects (lo, hi] for the first instant whose visibility equals
// rising. It returns hi's azimuth if a sample fails.
func (s scanner) crossing(lo, hi time.Time, rising bool) (time.Time, float64) {
	la, err := s.look(hi)
	if err != nil {
		return hi, 0
	}
	az := la.AzimuthDeg
	for hi.Sub(lo) > refineTo {
		mid := lo.Add(hi.Sub(lo) / 2).Truncate(refineTo)
		if !mid.After(lo) {
			break
		}
		m, err := s.look(mid)
		if err != nil {
			break
		}
		if (m.ElevationDeg >= s.minEl) == rising {
			hi, az = mid, m.AzimuthDeg
		} else {
			lo = mid
		}
	}
	return hi, az
}

// mergeWindows unions every pass into non-overlapping windows sorted by
// start time.
func mergeWindows(sats []SatellitePasses) []Window {
	var all []Pass
	for _, s := range sats {
		all = append(all, s.Passes...)
	}
	if len(all) == 0 {
		return []Window{}
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].Start.Equal(all[j].Start) {
			return all[i].SatelliteID < all[j].SatelliteID
		}
		return all[i].Start.Before(all[j].Start)
	})

	var out []Window
	for _, p := range all {
		if n := len(out); n > 0 && !p.Start.After(out[n-1].End) {
			w := &out[n-1]
			if p.End.After(w.End) {
				w.End = p.End
			}
			w.Satellites = appendUnique(w.Satellites, p.SatelliteID)
			continue
		}
		out = append(out, Window{Start: p.Start, End: p.End, Satellites: []int{p.SatelliteID}})
	}
	for i := range out {
		out[i].DurationSeconds = out[i].End.Sub(out[i].Start).Seconds()
		sort.Ints(out[i].Satellites)
	}
	return out
}

func appendUnique(ids []int, id int) []int {
	for _, v := range ids {
		if v == id {
			return ids
		}
	}
	return append(ids, id)
}
