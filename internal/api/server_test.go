package api

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/star/constellation/internal/auth"
	"github.com/star/constellation/internal/cache"
	"github.com/star/constellation/internal/coverage"
	"github.com/star/constellation/internal/params"
	"github.com/star/constellation/internal/passes"
	"github.com/star/constellation/internal/planner"
	"github.com/star/constellation/internal/propagation"
	"github.com/star/constellation/internal/scene"
	"github.com/star/constellation/internal/stream"
	"github.com/star/constellation/internal/tle"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelWarn}))
}

type testEnv struct {
	handler http.Handler
	deps    Deps
}

func newTestEnv(t *testing.T, cfg Config) *testEnv {
	t.Helper()
	logger := testLogger()
	store := tle.NewStore()
	prop := propagation.NewGoSatellite()
	eng := propagation.NewEngine(store, prop, propagation.PropConfig{Workers: 2, Step: 5 * time.Second}, logger)
	agg, err := coverage.NewAggregator(prop, coverage.Config{ResolutionDeg: 5, Workers: 2}, logger)
	if err != nil {
		t.Fatal(err)
	}
	frames := cache.NewFrameCache(cache.Config{Step: 5 * time.Second, Horizon: 30 * time.Second, Buffer: 10 * time.Second},
		scene.NewBuilder(store, eng, agg), store, logger)

	deps := Deps{
		Store:      store,
		Params:     params.NewMemoryStore(),
		Planner:    planner.New(store, nil, logger),
		Engine:     eng,
		Aggregator: agg,
		Frames:     frames,
		Stream:     stream.NewHandler(frames, store, stream.Config{}, logger),
	}
	if cfg.RateLimit.RPS == 0 {
		cfg.RateLimit = RateLimitConfig{RPS: 1000, Burst: 1000}
	}
	return &testEnv{handler: NewHandler(cfg, deps, logger), deps: deps}
}

func (e *testEnv) loadDemo(t *testing.T) {
	t.Helper()
	if _, err := e.deps.Planner.LoadDemo(context.Background()); err != nil {
		t.Fatal(err)
	}
}

func (e *testEnv) do(t *testing.T, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, r)
	w := httptest.NewRecorder()
	e.handler.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.NewDecoder(w.Body).Decode(v); err != nil {
		t.Fatalf("decode response: %v (body %q)", err, w.Body.String())
	}
}

// TestPostConstellation verifies accepted parameters are broadcast, stored
// and visible through GET, and that the watcher then installs them.
func TestPostConstellation(t *testing.T) {
	env := newTestEnv(t, Config{})

	w := env.do(t, "POST", "/api/v1/constellation", `{"numSatellites":12,"numPlanes":3,"altitudesPerPlane":550}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	var post struct {
		Success    bool  `json:"success"`
		Satellites int   `json:"satellites"`
		Timestamp  int64 `json:"timestamp"`
	}
	decode(t, w, &post)
	if !post.Success || post.Satellites != 12 || post.Timestamp == 0 {
		t.Errorf("response = %+v", post)
	}

	w = env.do(t, "GET", "/api/v1/constellation", "")
	var get struct {
		Success bool           `json:"success"`
		Data    *params.Record `json:"data"`
	}
	decode(t, w, &get)
	if get.Data == nil || get.Data.Timestamp != post.Timestamp {
		t.Fatalf("GET data = %+v", get.Data)
	}
	if alts := get.Data.Params.AltitudesPerPlane; len(alts) != 3 || alts[0] != 550 || alts[2] != 550 {
		t.Errorf("altitudes = %v, want broadcast to 3 planes", alts)
	}

	watcher := params.NewWatcher(env.deps.Params, params.LatestKey, env.deps.Planner, testLogger())
	if err := watcher.Pull(context.Background()); err != nil {
		t.Fatal(err)
	}
	if c := env.deps.Store.Get(); c.Size() != 12 || c.NumPlanes != 3 || c.Source != planner.SourceCustom {
		t.Errorf("installed constellation: size %d planes %d source %s", c.Size(), c.NumPlanes, c.Source)
	}
}

func TestGetConstellationEmpty(t *testing.T) {
	env := newTestEnv(t, Config{})
	w := env.do(t, "GET", "/api/v1/constellation", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if body := strings.TrimSpace(w.Body.String()); body != `{"current":null,"data":null,"success":true}` {
		t.Errorf("body = %s", body)
	}
}

// TestPostConstellationRejects verifies every rejection is a 400 naming the
// offending field and that nothing is stored.
func TestPostConstellationRejects(t *testing.T) {
	tests := []struct {
		name  string
		body  string
		field string
	}{
		{"not json", `numSatellites=4`, "request body"},
		{"missing planes", `{"numSatellites":4,"altitudesPerPlane":550}`, "numPlanes"},
		{"too many satellites", `{"numSatellites":61,"numPlanes":3,"altitudesPerPlane":550}`, "numSatellites"},
		{"more planes than satellites", `{"numSatellites":2,"numPlanes":3,"altitudesPerPlane":550}`, "numSatellites"},
		{"wrong altitude count", `{"numSatellites":6,"numPlanes":3,"altitudesPerPlane":[550,600]}`, "altitudesPerPlane"},
		{"altitude too low", `{"numSatellites":6,"numPlanes":2,"altitudesPerPlane":[550,100]}`, "altitudesPerPlane[1]"},
		{"string altitude", `{"numSatellites":6,"numPlanes":2,"altitudesPerPlane":"high"}`, "altitudesPerPlane"},
	}
	env := newTestEnv(t, Config{})
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(t, "POST", "/api/v1/constellation", tt.body)
			if w.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400", w.Code)
			}
			var resp struct {
				Success bool   `json:"success"`
				Error   string `json:"error"`
			}
			decode(t, w, &resp)
			if resp.Success || !strings.Contains(resp.Error, tt.field) {
				t.Errorf("response = %+v, want error naming %q", resp, tt.field)
			}
		})
	}
	if _, ok, _ := env.deps.Params.Get(context.Background(), params.LatestKey); ok {
		t.Error("rejected parameters were stored")
	}
}

func TestNoConstellation(t *testing.T) {
	env := newTestEnv(t, Config{})
	for _, path := range []string{
		"/api/v1/constellation/tle",
		"/api/v1/coverage",
		"/api/v1/footprints",
		"/api/v1/trajectories",
		"/api/v1/access?lat=10&lng=20",
		"/api/v1/satellites/25000",
		"/readyz",
	} {
		if w := env.do(t, "GET", path, ""); w.Code != http.StatusServiceUnavailable {
			t.Errorf("GET %s: status = %d, want 503", path, w.Code)
		}
	}
}

func TestDemoAndTLEExport(t *testing.T) {
	env := newTestEnv(t, Config{})

	w := env.do(t, "POST", "/api/v1/constellation/demo", "")
	if w.Code != http.StatusOK {
		t.Fatalf("demo status = %d, body %s", w.Code, w.Body.String())
	}

	w = env.do(t, "GET", "/api/v1/constellation/tle", "")
	if w.Code != http.StatusOK {
		t.Fatalf("tle status = %d", w.Code)
	}
	entries, err := tle.Parse(w.Body, testLogger())
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 8 {
		t.Errorf("exported %d entries, want 8", len(entries))
	}

	w = env.do(t, "POST", "/api/v1/constellation/demo", `{"altitudesPerPlane":700}`)
	if w.Code != http.StatusOK {
		t.Fatalf("demo with altitude: status = %d, body %s", w.Code, w.Body.String())
	}
	if alts := env.deps.Store.Get().Altitudes; len(alts) != 4 || alts[3] != 700 {
		t.Errorf("altitudes = %v", alts)
	}

	if w := env.do(t, "POST", "/api/v1/constellation/demo", `{"altitudesPerPlane":[500,600]}`); w.Code != http.StatusBadRequest {
		t.Errorf("wrong altitude count: status = %d, want 400", w.Code)
	}
}

func TestCoverageEndpoint(t *testing.T) {
	env := newTestEnv(t, Config{})
	env.loadDemo(t)

	w := env.do(t, "GET", "/api/v1/coverage?resolution=10&min_elevation=0", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	var res coverage.Result
	decode(t, w, &res)
	if res.ResolutionDeg != 10 || res.MinElevationDeg != 0 || res.Satellites != 8 {
		t.Errorf("result = %+v", res)
	}
	if res.TotalPoints != coverage.PointCount(10) || res.GlobalPercentage <= 0 {
		t.Errorf("result = %+v", res)
	}

	for _, q := range []string{"?resolution=0.1", "?min_elevation=90", "?t=yesterday", "?resolution=abc", "?resolution=7", "?resolution=50"} {
		if w := env.do(t, "GET", "/api/v1/coverage"+q, ""); w.Code != http.StatusBadRequest {
			t.Errorf("GET coverage%s: status = %d, want 400", q, w.Code)
		}
	}
}

// TestCoverageAfterConstellationChange warms the frame cache, stops it, then
// installs a new constellation: answers must come from the new one even
// though the cached frames were never rebuilt.
func TestCoverageAfterConstellationChange(t *testing.T) {
	env := newTestEnv(t, Config{})
	env.loadDemo(t)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		env.deps.Frames.Start(ctx)
		close(done)
	}()
	deadline := time.Now().Add(10 * time.Second)
	for env.deps.Frames.GetLatest() == nil {
		if time.Now().After(deadline) {
			cancel()
			t.Fatal("frame cache never warmed")
		}
		time.Sleep(10 * time.Millisecond)
	}
	cancel()
	<-done

	w := env.do(t, "GET", "/api/v1/coverage", "")
	var before coverage.Result
	decode(t, w, &before)
	if before.Satellites != 8 {
		t.Fatalf("cached coverage has %d satellites, want 8", before.Satellites)
	}

	n, planes := 3, 3
	p, err := params.Normalize(params.Request{
		NumSatellites:     &n,
		NumPlanes:         &planes,
		AltitudesPerPlane: &params.Altitudes{Values: []float64{600}, Scalar: true},
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := env.deps.Planner.Apply(context.Background(), p); err != nil {
		t.Fatal(err)
	}

	w = env.do(t, "GET", "/api/v1/coverage", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	var after coverage.Result
	decode(t, w, &after)
	if after.Satellites != 3 {
		t.Errorf("coverage after change has %d satellites, want 3", after.Satellites)
	}

	w = env.do(t, "GET", "/api/v1/footprints", "")
	var fps struct {
		Footprints []json.RawMessage `json:"footprints"`
	}
	decode(t, w, &fps)
	if len(fps.Footprints) != 3 {
		t.Errorf("got %d footprints after change, want 3", len(fps.Footprints))
	}
}

func TestFootprintsEndpoint(t *testing.T) {
	env := newTestEnv(t, Config{})
	env.loadDemo(t)

	w := env.do(t, "GET", "/api/v1/footprints", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	var resp struct {
		Footprints []struct {
			ID   string `json:"id"`
			Ring []any  `json:"ring"`
		} `json:"footprints"`
	}
	decode(t, w, &resp)
	if len(resp.Footprints) != 8 {
		t.Fatalf("got %d footprints, want 8", len(resp.Footprints))
	}
	for _, fp := range resp.Footprints {
		if !strings.HasPrefix(fp.ID, "coverage-") || len(fp.Ring) != 33 {
			t.Errorf("footprint %s has %d ring points", fp.ID, len(fp.Ring))
		}
	}
}

func TestTrajectoriesEndpoint(t *testing.T) {
	env := newTestEnv(t, Config{})
	env.loadDemo(t)

	w := env.do(t, "GET", "/api/v1/trajectories?hours=0.5", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	var resp struct {
		StepSeconds  float64                  `json:"step_seconds"`
		Trajectories []propagation.Trajectory `json:"trajectories"`
	}
	decode(t, w, &resp)
	if resp.StepSeconds != 60 || len(resp.Trajectories) != 8 {
		t.Fatalf("step %v, %d trajectories", resp.StepSeconds, len(resp.Trajectories))
	}
	if n := len(resp.Trajectories[0].Samples); n != 31 {
		t.Errorf("samples = %d, want 31", n)
	}

	for _, q := range []string{"?hours=25", "?step=5000", "?step=1"} {
		if w := env.do(t, "GET", "/api/v1/trajectories"+q, ""); w.Code != http.StatusBadRequest {
			t.Errorf("GET trajectories%s: status = %d, want 400", q, w.Code)
		}
	}
}

func TestAccessEndpoint(t *testing.T) {
	env := newTestEnv(t, Config{})
	env.loadDemo(t)

	w := env.do(t, "GET", "/api/v1/access?lat=40.7&lng=-74&hours=12&min_elevation=10", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	var res passes.Result
	decode(t, w, &res)
	if len(res.Satellites) != 8 || res.MinElevationDeg != 10 {
		t.Errorf("result: %d satellites, min elevation %v", len(res.Satellites), res.MinElevationDeg)
	}
	if d := res.End.Sub(res.Start); d != 12*time.Hour {
		t.Errorf("window = %v, want 12h", d)
	}

	for _, q := range []string{"?lng=0", "?lat=0", "?lat=91&lng=0", "?lat=0&lng=0&hours=100"} {
		if w := env.do(t, "GET", "/api/v1/access"+q, ""); w.Code != http.StatusBadRequest {
			t.Errorf("GET access%s: status = %d, want 400", q, w.Code)
		}
	}
}

func TestSatelliteEndpoint(t *testing.T) {
	env := newTestEnv(t, Config{})
	env.loadDemo(t)

	w := env.do(t, "GET", "/api/v1/satellites/25003", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	var resp satelliteResponse
	decode(t, w, &resp)
	if resp.Satellite.SatelliteID != 25003 || resp.Position.SatelliteID != 25003 {
		t.Errorf("response for wrong satellite: %+v", resp.Satellite)
	}
	if resp.Elements == nil || resp.Elements.AltitudeKm != 550 {
		t.Errorf("elements = %+v", resp.Elements)
	}
	if resp.Footprint.EntityID != "coverage-25003" {
		t.Errorf("footprint id = %s", resp.Footprint.EntityID)
	}

	if w := env.do(t, "GET", "/api/v1/satellites/99", ""); w.Code != http.StatusNotFound {
		t.Errorf("unknown satellite: status = %d, want 404", w.Code)
	}
	if w := env.do(t, "GET", "/api/v1/satellites/abc", ""); w.Code != http.StatusBadRequest {
		t.Errorf("non-numeric id: status = %d, want 400", w.Code)
	}
}

func TestCacheStatsEndpoint(t *testing.T) {
	env := newTestEnv(t, Config{})
	w := env.do(t, "GET", "/api/v1/cache/stats", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var stats cache.Stats
	decode(t, w, &stats)
	if stats.Frames != 0 {
		t.Errorf("frames = %d on an idle cache", stats.Frames)
	}
}

// TestAuthGuardsMutations verifies the middleware chain applies auth to
// constellation changes.
func TestAuthGuardsMutations(t *testing.T) {
	env := newTestEnv(t, Config{Auth: auth.Config{Enabled: true, Token: "s3cret", PublicReads: true}})

	if w := env.do(t, "POST", "/api/v1/constellation/demo", ""); w.Code != http.StatusUnauthorized {
		t.Errorf("unauthenticated demo: status = %d, want 401", w.Code)
	}

	req := httptest.NewRequest("POST", "/api/v1/constellation/demo", nil)
	req.Header.Set("Authorization", "Bearer s3cret")
	w := httptest.NewRecorder()
	env.handler.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("authenticated demo: status = %d", w.Code)
	}

	if w := env.do(t, "GET", "/api/v1/constellation", ""); w.Code != http.StatusOK {
		t.Errorf("public read: status = %d", w.Code)
	}
}

func TestRateLimitMutations(t *testing.T) {
	env := newTestEnv(t, Config{RateLimit: RateLimitConfig{RPS: 0.001, Burst: 2}})

	body := `{"numSatellites":4,"numPlanes":2,"altitudesPerPlane":550}`
	for i := 0; i < 2; i++ {
		if w := env.do(t, "POST", "/api/v1/constellation", body); w.Code != http.StatusOK {
			t.Fatalf("request %d: status = %d", i+1, w.Code)
		}
	}
	w := env.do(t, "POST", "/api/v1/constellation", body)
	if w.Code != http.StatusTooManyRequests || w.Header().Get("Retry-After") == "" {
		t.Errorf("third request: status = %d, Retry-After %q", w.Code, w.Header().Get("Retry-After"))
	}
	if w := env.do(t, "GET", "/api/v1/constellation", ""); w.Code != http.StatusOK {
		t.Errorf("reads are not rate limited: status = %d", w.Code)
	}
}

func TestIPRateLimiterPrunesIdle(t *testing.T) {
	l := newIPRateLimiter(RateLimitConfig{RPS: 1, Burst: 1})
	now := time.Date(2026, 2, 6, 12, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }

	l.get("10.0.0.1")
	now = now.Add(limiterIdle + time.Second)
	l.get("10.0.0.2")
	l.pruneLocked(now)
	if _, ok := l.ips["10.0.0.1"]; ok {
		t.Error("idle limiter not pruned")
	}
	if _, ok := l.ips["10.0.0.2"]; !ok {
		t.Error("active limiter pruned")
	}
}

// TestSSEThroughMiddleware verifies the stream route flushes through the
// whole middleware chain.
func TestSSEThroughMiddleware(t *testing.T) {
	env := newTestEnv(t, Config{})
	env.loadDemo(t)
	srv := httptest.NewServer(env.handler)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, "GET", srv.URL+"/api/v1/stream/scene?step=1", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK || resp.Header.Get("Content-Type") != "text/event-stream" {
		t.Fatalf("status %d, content type %q", resp.StatusCode, resp.Header.Get("Content-Type"))
	}

	buf := make([]byte, 4096)
	var got strings.Builder
	for !strings.Contains(got.String(), `"type":"metadata"`) {
		n, err := resp.Body.Read(buf)
		got.Write(buf[:n])
		if err != nil {
			t.Fatalf("read: %v (got %q)", err, got.String())
		}
	}
}
