package cache

import (
	"context"
	"time"
)

// Start runs the maintenance loop until ctx is cancelled. It waits for a
// constellation, fills [now, now+horizon], then each step builds the
// leading-edge frame, evicts expired ones and cuts over when the
// constellation changes.
func (c *FrameCache) Start(ctx context.Context) {
	if !c.waitForConstellation(ctx) {
		return
	}
	c.performCutover(ctx)

	ticker := time.NewTicker(c.config.Step)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("cache generator stopped")
			return
		case <-ticker.C:
			c.tick(ctx)
		}
	}
}

// waitForConstellation polls the store every second. Returns false if ctx
// is cancelled first.
func (c *FrameCache) waitForConstellation(ctx context.Context) bool {
	if c.store.Get() != nil {
		return true
	}

	c.logger.Info("cache waiting for a constellation")
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return false
		case <-ticker.C:
			if c.store.Get() != nil {
				c.logger.Info("constellation available, starting cache warmup")
				return true
			}
		}
	}
}

func (c *FrameCache) tick(ctx context.Context) {
	if c.constellationChanged() {
		c.performCutover(ctx)
		return
	}
	c.generateLeadingEdge(ctx)
	c.evictExpired()
}

// generateLeadingEdge builds any missing frames up to now+horizon.
func (c *FrameCache) generateLeadingEdge(ctx context.Context) {
	con := c.current.Load()
	if con == nil {
		return
	}
	now := c.RoundToStep(c.now())
	end := c.RoundToStep(c.now().Add(c.config.Horizon))

	for target := now; !target.After(end); target = target.Add(c.config.Step) {
		if ctx.Err() != nil {
			return
		}
		c.mu.RLock()
		_, ok := c.entries[target]
		c.mu.RUnlock()
		if ok {
			continue
		}

		start := time.Now()
		f, err := c.builder.BuildFor(ctx, con, target)
		if err != nil {
			c.logger.Warn("leading edge generation failed",
				"timestamp", target.Format(time.RFC3339),
				"error", err,
			)
			return
		}
		c.put(f)
		c.logger.Debug("leading edge generated",
			"timestamp", target.Format(time.RFC3339),
			"duration_ms", time.Since(start).Milliseconds(),
		)
	}
}
