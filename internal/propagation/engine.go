package propagation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/star/constellation/internal/metrics"
	"github.com/star/constellation/internal/tle"
)

// ErrNoConstellation is returned when the store is empty.
var ErrNoConstellation = errors.New("no constellation loaded")

// Engine propagates the store's current constellation.
type Engine struct {
	store  *tle.Store
	prop   Propagator
	pool   *WorkerPool
	config PropConfig
	logger *slog.Logger
}

// NewEngine creates a propagation engine over store using prop.
func NewEngine(store *tle.Store, prop Propagator, config PropConfig, logger *slog.Logger) *Engine {
	return &Engine{
		store:  store,
		prop:   prop,
		pool:   NewWorkerPool(config.Workers, logger),
		config: config,
		logger: logger,
	}
}

// Propagator returns the backend the engine was built with.
func (e *Engine) Propagator() Propagator {
	return e.prop
}

// PropagateToTime propagates every satellite in the current constellation to
// targetTime. Per-satellite failures are counted in Keyframe.Failed.
func (e *Engine) PropagateToTime(ctx context.Context, targetTime time.Time) (*Keyframe, error) {
	c := e.store.Get()
	if c == nil {
		return nil, ErrNoConstellation
	}
	return e.PropagateEntries(ctx, c.Satellites, targetTime), nil
}

// PropagateEntries propagates an explicit entry list.
func (e *Engine) PropagateEntries(ctx context.Context, entries []tle.TLEEntry, targetTime time.Time) *Keyframe {
	start := time.Now()
	positions, ok, failed := e.pool.PropagateBatch(ctx, e.prop, entries, targetTime)
	duration := time.Since(start)

	metrics.RecordPropagation(duration, ok, failed)

	e.logger.Debug("propagation complete",
		"satellites", len(entries),
		"success", ok,
		"errors", failed,
		"target_time", targetTime.UTC().Format(time.RFC3339),
		"duration_ms", duration.Milliseconds(),
	)

	return &Keyframe{
		Timestamp:  targetTime,
		Satellites: positions,
		Failed:     failed,
	}
}

// GenerateKeyframes produces keyframes from startTime over the configured
// horizon at the configured step.
func (e *Engine) GenerateKeyframes(ctx context.Context, startTime time.Time) ([]*Keyframe, error) {
	if e.store.Get() == nil {
		return nil, ErrNoConstellation
	}
	if e.config.Step <= 0 {
		return nil, fmt.Errorf("keyframe step must be positive, got %s", e.config.Step)
	}

	numFrames := int(e.config.Horizon/e.config.Step) + 1
	keyframes := make([]*Keyframe, 0, numFrames)

	for i := 0; i < numFrames; i++ {
		if err := ctx.Err(); err != nil {
			return keyframes, err
		}

		target := startTime.Add(time.Duration(i) * e.config.Step)
		kf, err := e.PropagateToTime(ctx, target)
		if err != nil {
			return keyframes, fmt.Errorf("keyframe %d at %s: %w", i, target.Format(time.RFC3339), err)
		}
		keyframes = append(keyframes, kf)
	}

	return keyframes, nil
}
