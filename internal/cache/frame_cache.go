// Package cache provides an in-memory scene frame cache with a rolling window.
//
// The cache holds frames for [now, now+horizon] at a fixed step. A background
// worker builds frames at the leading edge and evicts expired ones from the
// trailing edge. When the constellation changes, the whole window is rebuilt
// against the new one and swapped in without interrupting reads.
package cache

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/star/constellation/internal/metrics"
	"github.com/star/constellation/internal/propagation"
	"github.com/star/constellation/internal/scene"
	"github.com/star/constellation/internal/tle"
)

// Config holds cache configuration.
type Config struct {
	Step    time.Duration // frame interval (default: 5s)
	Horizon time.Duration // how far ahead to cache (default: 600s)
	Buffer  time.Duration // keep frames this long past their time (default: 60s)
}

// FrameBuilder builds one frame of an explicit constellation.
type FrameBuilder interface {
	BuildFor(ctx context.Context, c *tle.Constellation, t time.Time) (*scene.Frame, error)
}

type cacheEntry struct {
	frame       *scene.Frame
	generatedAt time.Time
}

// FrameCache is an in-memory cache of scene frames keyed by step-aligned
// time. Safe for concurrent use.
type FrameCache struct {
	mu      sync.RWMutex
	entries map[time.Time]*cacheEntry

	config  Config
	builder FrameBuilder
	store   *tle.Store
	logger  *slog.Logger
	now     func() time.Time

	// Constellation the entries were built from.
	current atomic.Pointer[tle.Constellation]

	hits      atomic.Int64
	misses    atomic.Int64
	evictions atomic.Int64

	inCutover atomic.Bool
}

// NewFrameCache creates a frame cache. A non-positive step defaults to 5s.
func NewFrameCache(config Config, builder FrameBuilder, store *tle.Store, logger *slog.Logger) *FrameCache {
	if config.Step <= 0 {
		config.Step = 5 * time.Second
	}
	logger.Info("cache initialized",
		"step_seconds", config.Step.Seconds(),
		"horizon_seconds", config.Horizon.Seconds(),
		"buffer_seconds", config.Buffer.Seconds(),
	)

	return &FrameCache{
		entries: make(map[time.Time]*cacheEntry),
		config:  config,
		builder: builder,
		store:   store,
		logger:  logger,
		now:     time.Now,
	}
}

// Step returns the frame interval.
func (c *FrameCache) Step() time.Duration {
	return c.config.Step
}

// RoundToStep rounds t down to a step boundary in UTC.
func (c *FrameCache) RoundToStep(t time.Time) time.Time {
	return t.UTC().Truncate(c.config.Step)
}

// fresh reports whether the cached frames were built from the store's
// current constellation. Between a store change and the end of the cutover
// they were not.
func (c *FrameCache) fresh() bool {
	return c.current.Load() == c.store.Get()
}

// Get returns the frame for t rounded to the step, or nil. Frames of a
// replaced constellation are misses.
func (c *FrameCache) Get(t time.Time) *scene.Frame {
	key := c.RoundToStep(t)

	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()

	if ok && c.fresh() {
		c.hits.Add(1)
		metrics.IncCacheHit()
		return entry.frame
	}

	c.misses.Add(1)
	metrics.IncCacheMiss()
	return nil
}

// GetLatest returns the most recent frame at or before now, looking back at
// most ten steps. Like Get it misses while a cutover is pending.
func (c *FrameCache) GetLatest() *scene.Frame {
	now := c.RoundToStep(c.now())
	if !c.fresh() {
		c.misses.Add(1)
		metrics.IncCacheMiss()
		return nil
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	for i := 0; i < 10; i++ {
		key := now.Add(-time.Duration(i) * c.config.Step)
		if entry, ok := c.entries[key]; ok {
			c.hits.Add(1)
			metrics.IncCacheHit()
			return entry.frame
		}
	}

	c.misses.Add(1)
	metrics.IncCacheMiss()
	return nil
}

// GetOrBuild returns the cached frame for t, building it from the current
// constellation on a miss or while a cutover is pending. Built frames are not inserted, so off-window
// requests cannot grow the cache.
func (c *FrameCache) GetOrBuild(ctx context.Context, t time.Time) (*scene.Frame, error) {
	if f := c.Get(t); f != nil {
		return f, nil
	}
	con := c.store.Get()
	if con == nil {
		return nil, propagation.ErrNoConstellation
	}
	return c.builder.BuildFor(ctx, con, c.RoundToStep(t))
}

func (c *FrameCache) put(f *scene.Frame) {
	key := c.RoundToStep(f.Timestamp)

	c.mu.Lock()
	c.entries[key] = &cacheEntry{frame: f, generatedAt: c.now()}
	n := len(c.entries)
	c.mu.Unlock()

	metrics.SetCacheFrames(n)
}

// evictExpired removes frames older than now - buffer.
func (c *FrameCache) evictExpired() int {
	cutoff := c.now().Add(-c.config.Buffer)
	var removed int

	c.mu.Lock()
	for ts := range c.entries {
		if ts.Before(cutoff) {
			delete(c.entries, ts)
			removed++
		}
	}
	n := len(c.entries)
	c.mu.Unlock()

	if removed > 0 {
		c.evictions.Add(int64(removed))
		metrics.AddCacheEvictions(removed)
		metrics.SetCacheFrames(n)
		c.logger.Debug("cache eviction", "entries_removed", removed)
	}
	return removed
}

func (c *FrameCache) replaceAll(entries map[time.Time]*cacheEntry) {
	c.mu.Lock()
	c.entries = entries
	c.mu.Unlock()
	metrics.SetCacheFrames(len(entries))
}

// Stats holds cache statistics for the stats endpoint.
type Stats struct {
	Frames          int       `json:"frames"`
	OldestTimestamp time.Time `json:"oldest_timestamp"`
	NewestTimestamp time.Time `json:"newest_timestamp"`
	Hits            int64     `json:"hits"`
	Misses          int64     `json:"misses"`
	Evictions       int64     `json:"evictions"`
	InCutover       bool      `json:"in_cutover"`
	Satellites      int       `json:"satellites"`
}

// Stats returns current cache statistics.
func (c *FrameCache) Stats() Stats {
	c.mu.RLock()
	count := len(c.entries)
	var oldest, newest time.Time
	for ts := range c.entries {
		if oldest.IsZero() || ts.Before(oldest) {
			oldest = ts
		}
		if newest.IsZero() || ts.After(newest) {
			newest = ts
		}
	}
	c.mu.RUnlock()

	return Stats{
		Frames:          count,
		OldestTimestamp: oldest,
		NewestTimestamp: newest,
		Hits:            c.hits.Load(),
		Misses:          c.misses.Load(),
		Evictions:       c.evictions.Load(),
		InCutover:       c.inCutover.Load(),
		Satellites:      c.current.Load().Size(),
	}
}
