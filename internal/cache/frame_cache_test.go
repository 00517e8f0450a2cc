package cache

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/star/constellation/internal/propagation"
	"github.com/star/constellation/internal/scene"
	"github.com/star/constellation/internal/tle"
)

var testNow = time.Date(2026, 2, 6, 12, 0, 3, 0, time.UTC)

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelWarn}))
}

func testConfig() Config {
	return Config{Step: 5 * time.Second, Horizon: 30 * time.Second, Buffer: 10 * time.Second}
}

// fakeBuilder records which constellation each frame was built from.
type fakeBuilder struct {
	mu     sync.Mutex
	built  map[*tle.Constellation]int
	calls  atomic.Int64
	failAt time.Time
}

func newFakeBuilder() *fakeBuilder {
	return &fakeBuilder{built: make(map[*tle.Constellation]int)}
}

func (b *fakeBuilder) BuildFor(_ context.Context, c *tle.Constellation, t time.Time) (*scene.Frame, error) {
	b.calls.Add(1)
	if t.Equal(b.failAt) {
		return nil, errors.New("build failed")
	}
	b.mu.Lock()
	b.built[c]++
	b.mu.Unlock()
	return &scene.Frame{Timestamp: t, Failed: c.Size()}, nil
}

func testConstellation(n int) *tle.Constellation {
	return &tle.Constellation{Source: "test", Satellites: make([]tle.TLEEntry, n)}
}

func newTestCache(t *testing.T, cfg Config) (*FrameCache, *tle.Store, *fakeBuilder, *time.Time) {
	t.Helper()
	store := tle.NewStore()
	b := newFakeBuilder()
	c := NewFrameCache(cfg, b, store, testLogger())
	now := testNow
	c.now = func() time.Time { return now }
	return c, store, b, &now
}

func TestRoundToStep(t *testing.T) {
	c, _, _, _ := newTestCache(t, testConfig())
	tests := []struct {
		input, expected time.Time
	}{
		{time.Date(2026, 2, 6, 12, 0, 3, 0, time.UTC), time.Date(2026, 2, 6, 12, 0, 0, 0, time.UTC)},
		{time.Date(2026, 2, 6, 12, 0, 7, 0, time.UTC), time.Date(2026, 2, 6, 12, 0, 5, 0, time.UTC)},
		{time.Date(2026, 2, 6, 12, 0, 10, 0, time.UTC), time.Date(2026, 2, 6, 12, 0, 10, 0, time.UTC)},
		{time.Date(2026, 2, 6, 13, 0, 10, 0, time.FixedZone("CET", 3600)), time.Date(2026, 2, 6, 12, 0, 10, 0, time.UTC)},
	}
	for _, tt := range tests {
		if got := c.RoundToStep(tt.input); !got.Equal(tt.expected) {
			t.Errorf("RoundToStep(%v) = %v, want %v", tt.input, got, tt.expected)
		}
	}
}

// TestCutoverFillsWindow verifies the first cutover builds every frame in
// [now, now+horizon] and that lookups hit.
func TestCutoverFillsWindow(t *testing.T) {
	c, store, b, _ := newTestCache(t, testConfig())
	con := testConstellation(3)
	store.Set(con)

	c.performCutover(context.Background())

	stats := c.Stats()
	if stats.Frames != 7 {
		t.Fatalf("frames = %d, want 7", stats.Frames)
	}
	if b.built[con] != 7 || stats.Satellites != 3 {
		t.Errorf("built %d frames from constellation, stats %+v", b.built[con], stats)
	}
	if f := c.Get(testNow); f == nil || !f.Timestamp.Equal(testNow.Truncate(5*time.Second)) {
		t.Errorf("Get(now) = %+v", f)
	}
	if f := c.GetLatest(); f == nil {
		t.Error("GetLatest returned nil")
	}
	if c.Get(testNow.Add(time.Hour)) != nil {
		t.Error("expected miss beyond horizon")
	}
	stats = c.Stats()
	if stats.Hits < 2 || stats.Misses < 1 {
		t.Errorf("hits=%d misses=%d", stats.Hits, stats.Misses)
	}
}

// TestCutoverOnChange verifies a new constellation replaces every frame.
func TestCutoverOnChange(t *testing.T) {
	c, store, b, _ := newTestCache(t, testConfig())
	first := testConstellation(2)
	store.Set(first)
	c.performCutover(context.Background())

	if c.constellationChanged() {
		t.Fatal("unchanged constellation reported as changed")
	}

	second := testConstellation(5)
	store.Set(second)
	if !c.constellationChanged() {
		t.Fatal("change not detected")
	}
	c.tick(context.Background())

	if b.built[second] != 7 {
		t.Errorf("built %d frames for new constellation", b.built[second])
	}
	if f := c.Get(testNow); f == nil || f.Failed != 5 {
		t.Errorf("frame after cutover = %+v, want built from new constellation", f)
	}
}

func TestCutoverSkipsFailedFrames(t *testing.T) {
	c, store, b, _ := newTestCache(t, testConfig())
	b.failAt = testNow.Truncate(5 * time.Second).Add(10 * time.Second)
	store.Set(testConstellation(1))

	c.performCutover(context.Background())
	if n := c.Stats().Frames; n != 6 {
		t.Errorf("frames = %d, want 6", n)
	}
	if c.Get(b.failAt) != nil {
		t.Error("failed frame present")
	}
}

// TestLeadingEdgeAndEviction advances the clock and checks the window rolls.
func TestLeadingEdgeAndEviction(t *testing.T) {
	c, store, _, now := newTestCache(t, testConfig())
	store.Set(testConstellation(1))
	c.performCutover(context.Background())

	*now = now.Add(20 * time.Second)
	c.tick(context.Background())

	end := c.RoundToStep(now.Add(30 * time.Second))
	if c.Get(end) == nil {
		t.Errorf("leading edge %v not generated", end)
	}
	stats := c.Stats()
	// Frames older than now-buffer (12:00:13) are gone: 12:00:00, :05, :10.
	if stats.Evictions != 3 {
		t.Errorf("evictions = %d, want 3", stats.Evictions)
	}
	if !stats.OldestTimestamp.Equal(time.Date(2026, 2, 6, 12, 0, 15, 0, time.UTC)) {
		t.Errorf("oldest = %v", stats.OldestTimestamp)
	}
	if !stats.NewestTimestamp.Equal(end) {
		t.Errorf("newest = %v, want %v", stats.NewestTimestamp, end)
	}
}

func TestCancelledCutoverKeepsOldFrames(t *testing.T) {
	c, store, _, _ := newTestCache(t, testConfig())
	first := testConstellation(2)
	store.Set(first)
	c.performCutover(context.Background())

	store.Set(testConstellation(9))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	c.performCutover(ctx)

	if n := c.Stats().Frames; n != 7 {
		t.Errorf("frames = %d, want the old 7 kept", n)
	}
	if !c.constellationChanged() {
		t.Error("cancelled cutover marked the new constellation as current")
	}
}

// TestStaleFramesMiss verifies frames of a replaced constellation are never
// served while the cutover is pending.
func TestStaleFramesMiss(t *testing.T) {
	c, store, _, _ := newTestCache(t, testConfig())
	store.Set(testConstellation(2))
	c.performCutover(context.Background())
	if f := c.Get(testNow); f == nil || f.Failed != 2 {
		t.Fatalf("frame before change = %+v", f)
	}

	store.Set(testConstellation(6))
	if f := c.Get(testNow); f != nil {
		t.Errorf("Get served a frame of the replaced constellation: %+v", f)
	}
	if f := c.GetLatest(); f != nil {
		t.Errorf("GetLatest served a frame of the replaced constellation: %+v", f)
	}
	f, err := c.GetOrBuild(context.Background(), testNow)
	if err != nil {
		t.Fatal(err)
	}
	if f.Failed != 6 {
		t.Errorf("GetOrBuild frame built from %d satellites, want 6", f.Failed)
	}

	c.performCutover(context.Background())
	if f := c.Get(testNow); f == nil || f.Failed != 6 {
		t.Errorf("frame after cutover = %+v", f)
	}
}

func TestGetOrBuild(t *testing.T) {
	c, store, b, _ := newTestCache(t, testConfig())
	if _, err := c.GetOrBuild(context.Background(), testNow); !errors.Is(err, propagation.ErrNoConstellation) {
		t.Errorf("err = %v, want ErrNoConstellation", err)
	}

	store.Set(testConstellation(4))
	far := testNow.Add(24 * time.Hour)
	f, err := c.GetOrBuild(context.Background(), far)
	if err != nil {
		t.Fatal(err)
	}
	if !f.Timestamp.Equal(c.RoundToStep(far)) || b.calls.Load() != 1 {
		t.Errorf("frame %v, builder calls %d", f.Timestamp, b.calls.Load())
	}
	if c.Stats().Frames != 0 {
		t.Error("off-window frame was cached")
	}
}

// TestStartStopsOnCancel verifies Start returns when cancelled while
// waiting for a constellation.
func TestStartStopsOnCancel(t *testing.T) {
	c, _, _, _ := newTestCache(t, testConfig())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		c.Start(ctx)
		close(done)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("Start did not return after cancel")
	}
}
