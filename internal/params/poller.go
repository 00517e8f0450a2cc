package params

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// DefaultPollInterval matches the front end's polling cadence.
const DefaultPollInterval = 5 * time.Second

// Puller is called once per poll.
type Puller interface {
	Pull(ctx context.Context) error
}

// PullerFunc adapts a function to Puller.
type PullerFunc func(ctx context.Context) error

// Pull calls f.
func (f PullerFunc) Pull(ctx context.Context) error {
	return f(ctx)
}

// Poller runs a Puller immediately and then every interval until its
// context is cancelled. Pull errors are logged and do not stop the loop.
type Poller struct {
	interval time.Duration
	puller   Puller
	logger   *slog.Logger
}

// NewPoller creates a poller. A non-positive interval uses
// DefaultPollInterval.
func NewPoller(interval time.Duration, puller Puller, logger *slog.Logger) *Poller {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &Poller{interval: interval, puller: puller, logger: logger}
}

// Run blocks until ctx is done and returns ctx.Err().
func (p *Poller) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.pull(ctx)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			p.pull(ctx)
		}
	}
}

func (p *Poller) pull(ctx context.Context) {
	if err := p.puller.Pull(ctx); err != nil && ctx.Err() == nil {
		p.logger.Error("poll failed", "error", err)
	}
}

// Applier regenerates state from an accepted parameter set.
type Applier interface {
	Apply(ctx context.Context, p Params) error
}

// Watcher is a Puller that hands each newer record under its key to an
// Applier. A record is marked seen only after it applied cleanly, so a
// failed apply is retried on the next poll.
type Watcher struct {
	store   Store
	key     string
	applier Applier
	logger  *slog.Logger

	mu   sync.Mutex
	last int64
}

// NewWatcher creates a watcher over store[key].
func NewWatcher(store Store, key string, applier Applier, logger *slog.Logger) *Watcher {
	return &Watcher{store: store, key: key, applier: applier, logger: logger}
}

// Pull implements Puller.
func (w *Watcher) Pull(ctx context.Context) error {
	rec, ok, err := w.store.Get(ctx, w.key)
	if err != nil || !ok {
		return err
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if rec.Timestamp <= w.last {
		return nil
	}

	w.logger.Info("new constellation parameters",
		"num_satellites", rec.Params.NumSatellites,
		"num_planes", rec.Params.NumPlanes,
		"timestamp", rec.Timestamp,
	)
	if err := w.applier.Apply(ctx, rec.Params); err != nil {
		return err
	}
	w.last = rec.Timestamp
	return nil
}

// LastApplied returns the timestamp of the last applied record, or 0.
func (w *Watcher) LastApplied() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.last
}
