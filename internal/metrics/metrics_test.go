package metrics

import (
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNormalizeRoute(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		// Known exact routes.
		{"/healthz", "/healthz"},
		{"/readyz", "/readyz"},
		{"/metrics", "/metrics"},
		{"/", "other"},
		{"/api/v1/constellation", "/api/v1/constellation"},
		{"/api/v1/constellation/demo", "/api/v1/constellation/demo"},
		{"/api/v1/coverage", "/api/v1/coverage"},
		{"/api/v1/stream/scene", "/api/v1/stream/scene"},
		{"/api/v1/ws/scene", "/api/v1/ws/scene"},

		// Parameterized satellite routes collapse to one label.
		{"/api/v1/satellites/30000", "/api/v1/satellites/{id}"},
		{"/api/v1/satellites/25007", "/api/v1/satellites/{id}"},
		{"/api/v1/satellites/1", "/api/v1/satellites/{id}"},
		{"/api/v1/satellites/abc", "other"},
		{"/api/v1/satellites/", "other"},

		// Unknown/bot paths collapse to "other".
		{"/wp-admin", "other"},
		{"/robots.txt", "other"},
		{"/.env", "other"},
		{"/api/v2/coverage", "other"},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			if got := normalizeRoute(tt.path); got != tt.want {
				t.Errorf("normalizeRoute(%q) = %q, want %q", tt.path, got, tt.want)
			}
		})
	}
}

// TestMetricsCardinality verifies that 100 satellite ids produce exactly one
// distinct path label.
func TestMetricsCardinality(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		seen[normalizeRoute("/api/v1/satellites/"+strconv.Itoa(30000+i))] = true
	}
	if len(seen) != 1 {
		t.Errorf("expected 1 unique label for parameterized paths, got %d: %v", len(seen), seen)
	}
}

func TestMiddlewareRecordsStatus(t *testing.T) {
	h := Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	before := testutil.ToFloat64(httpRequestsTotal.WithLabelValues("/api/v1/coverage", "GET", "418"))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/v1/coverage", nil))
	after := testutil.ToFloat64(httpRequestsTotal.WithLabelValues("/api/v1/coverage", "GET", "418"))

	if after-before != 1 {
		t.Errorf("counter delta = %v, want 1", after-before)
	}
}

func TestRecordCoverage(t *testing.T) {
	RecordCoverage(12.5, 0)
	if got := testutil.ToFloat64(coveragePercent); got != 12.5 {
		t.Errorf("coverage gauge = %v, want 12.5", got)
	}
	SetConstellationSize(8)
	if got := testutil.ToFloat64(constellationSatellites); got != 8 {
		t.Errorf("size gauge = %v, want 8", got)
	}
}
