package propagation

import (
	"context"
	"errors"
	"log/slog"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/star/constellation/internal/tle"
)

// propagateJob is a unit of work for the worker pool.
type propagateJob struct {
	entry      tle.TLEEntry
	targetTime time.Time
}

// propagateResult is the output of a single satellite propagation.
type propagateResult struct {
	position    SatellitePosition
	err         error
	satelliteID int
}

// WorkerPool fans per-satellite propagation out over a fixed number of
// goroutines.
type WorkerPool struct {
	workers int
	logger  *slog.Logger
}

// NewWorkerPool creates a worker pool with the given number of workers.
func NewWorkerPool(workers int, logger *slog.Logger) *WorkerPool {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	return &WorkerPool{
		workers: workers,
		logger:  logger,
	}
}

// PropagateBatch propagates every entry to targetTime. Failed satellites are
// logged and skipped; the result is sorted by satellite ID so it does not
// depend on scheduling.
func (wp *WorkerPool) PropagateBatch(ctx context.Context, p Propagator, entries []tle.TLEEntry, targetTime time.Time) ([]SatellitePosition, int, int) {
	if len(entries) == 0 {
		return nil, 0, 0
	}

	jobs := make(chan propagateJob, wp.workers*2)
	results := make(chan propagateResult, wp.workers*2)

	var wg sync.WaitGroup
	for i := 0; i < wp.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for job := range jobs {
				pos, err := p.Propagate(job.entry, job.targetTime)
				select {
				case results <- propagateResult{position: pos, err: err, satelliteID: job.entry.SatelliteID}:
				case <-ctx.Done():
					return
				}
			}
		}()
	}

	go func() {
		defer close(jobs)
		for _, entry := range entries {
			select {
			case jobs <- propagateJob{entry: entry, targetTime: targetTime}:
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	positions := make([]SatellitePosition, 0, len(entries))
	var successCount, errorCount int

	for result := range results {
		if result.err != nil {
			errorCount++
			level := slog.LevelWarn
			if !errors.Is(result.err, ErrPropagationFailure) {
				level = slog.LevelError
			}
			wp.logger.Log(ctx, level, "propagation failed",
				"satellite_id", result.satelliteID,
				"time", targetTime.UTC().Format(time.RFC3339),
				"error", result.err,
			)
			continue
		}
		successCount++
		positions = append(positions, result.position)
	}

	sort.Slice(positions, func(i, j int) bool {
		return positions[i].SatelliteID < positions[j].SatelliteID
	})
	return positions, successCount, errorCount
}
