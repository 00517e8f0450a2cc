package cache

import (
	"context"
	"time"
)

// constellationChanged reports whether the store holds a different
// constellation than the one the cache was built from.
func (c *FrameCache) constellationChanged() bool {
	con := c.store.Get()
	return con != nil && con != c.current.Load()
}

// performCutover rebuilds the whole window against the store's current
// constellation and swaps it in. Until the swap the old frames stay stored
// but Get treats them as misses. A cancelled rebuild leaves them in place.
func (c *FrameCache) performCutover(ctx context.Context) {
	con := c.store.Get()
	if con == nil {
		return
	}

	old := c.current.Load()
	c.logger.Info("constellation cutover starting",
		"old_satellites", old.Size(),
		"new_satellites", con.Size(),
		"source", con.Source,
		"generated_at", con.GeneratedAt.UTC().Format(time.RFC3339),
	)

	c.inCutover.Store(true)
	defer c.inCutover.Store(false)

	start := time.Now()
	now := c.RoundToStep(c.now())
	numFrames := int(c.config.Horizon/c.config.Step) + 1
	entries := make(map[time.Time]*cacheEntry, numFrames)

	for i := 0; i < numFrames; i++ {
		if ctx.Err() != nil {
			c.logger.Warn("cutover cancelled by context")
			return
		}

		target := now.Add(time.Duration(i) * c.config.Step)
		f, err := c.builder.BuildFor(ctx, con, target)
		if err != nil {
			c.logger.Warn("cutover frame failed",
				"timestamp", target.Format(time.RFC3339),
				"error", err,
			)
			continue
		}
		entries[target] = &cacheEntry{frame: f, generatedAt: c.now()}
	}

	c.replaceAll(entries)
	c.current.Store(con)

	c.logger.Info("constellation cutover complete",
		"duration_ms", time.Since(start).Milliseconds(),
		"frames", len(entries),
	)
}
