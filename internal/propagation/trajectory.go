package propagation

import (
	"context"
	"log/slog"
	"time"

	"github.com/star/constellation/internal/tle"
)

// TrajectoryStep picks a sampling interval that keeps the total sample count
// bounded as the constellation grows.
func TrajectoryStep(satellites int) time.Duration {
	switch {
	case satellites <= 8:
		return 60 * time.Second
	case satellites <= 16:
		return 120 * time.Second
	case satellites <= 32:
		return 240 * time.Second
	default:
		return 300 * time.Second
	}
}

// Trajectory is a satellite's sampled ground track.
type Trajectory struct {
	SatelliteID int                `json:"satellite_id"`
	Name        string             `json:"name"`
	Plane       int                `json:"plane"`
	Samples     []TrajectorySample `json:"samples"`
	Failed      int                `json:"failed"`
}

// TrajectorySample is one timestamped position.
type TrajectorySample struct {
	Time time.Time `json:"time"`
	SatellitePosition
}

// SampleTrajectory propagates entry over [start, end] every step. Failed
// samples are logged and omitted; a satellite with no successful samples
// yields an empty trajectory.
func SampleTrajectory(ctx context.Context, p Propagator, entry tle.TLEEntry, start, end time.Time, step time.Duration, logger *slog.Logger) (Trajectory, error) {
	tr := Trajectory{SatelliteID: entry.SatelliteID, Name: entry.Name, Plane: entry.Plane}
	if step <= 0 {
		step = TrajectoryStep(1)
	}

	for t := start; !t.After(end); t = t.Add(step) {
		if err := ctx.Err(); err != nil {
			return tr, err
		}
		pos, err := p.Propagate(entry, t)
		if err != nil {
			tr.Failed++
			logger.Warn("trajectory sample failed", "satellite_id", entry.SatelliteID, "time", t.UTC().Format(time.RFC3339), "error", err)
			continue
		}
		tr.Samples = append(tr.Samples, TrajectorySample{Time: t, SatellitePosition: pos})
	}
	return tr, nil
}
