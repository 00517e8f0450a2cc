package metrics

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "constellation_http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"path", "method", "code"},
	)

	httpDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "constellation_http_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"path", "method"},
	)

	httpRateLimitedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "constellation_http_rate_limited_total",
		Help: "Requests rejected by the per-client rate limiter.",
	})

	propagationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "constellation_propagations_total",
			Help: "Satellite propagations by outcome.",
		},
		[]string{"result"},
	)

	propagationBatchSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "constellation_propagation_batch_seconds",
		Help:    "Duration of one constellation-wide propagation batch.",
		Buckets: prometheus.ExponentialBuckets(0.0005, 2, 12),
	})

	constellationSatellites = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "constellation_satellites",
		Help: "Number of satellites in the active constellation.",
	})

	coveragePercent = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "constellation_coverage_percent",
		Help: "Global coverage percentage from the most recent evaluation.",
	})

	coverageSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "constellation_coverage_evaluation_seconds",
		Help:    "Duration of one coverage grid evaluation.",
		Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
	})

	cacheEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "constellation_frame_cache_events_total",
			Help: "Frame cache lookups and evictions.",
		},
		[]string{"event"},
	)

	cacheFrames = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "constellation_frame_cache_frames",
		Help: "Frames currently held in the rolling cache.",
	})

	activeStreams = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "constellation_active_streams",
			Help: "Open push streams by transport.",
		},
		[]string{"transport"},
	)
)

func init() {
	prometheus.MustRegister(
		httpRequestsTotal,
		httpDurationSeconds,
		httpRateLimitedTotal,
		propagationsTotal,
		propagationBatchSeconds,
		constellationSatellites,
		coveragePercent,
		coverageSeconds,
		cacheEventsTotal,
		cacheFrames,
		activeStreams,
	)
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordPropagation records one batch and its per-satellite outcomes.
func RecordPropagation(d time.Duration, success, failed int) {
	propagationBatchSeconds.Observe(d.Seconds())
	propagationsTotal.WithLabelValues("success").Add(float64(success))
	propagationsTotal.WithLabelValues("failure").Add(float64(failed))
}

// SetConstellationSize publishes the active constellation size.
func SetConstellationSize(n int) {
	constellationSatellites.Set(float64(n))
}

// RecordCoverage records one coverage evaluation.
func RecordCoverage(percent float64, d time.Duration) {
	coveragePercent.Set(percent)
	coverageSeconds.Observe(d.Seconds())
}

// IncCacheHit, IncCacheMiss and AddCacheEvictions track frame cache traffic.
func IncCacheHit()  { cacheEventsTotal.WithLabelValues("hit").Inc() }
func IncCacheMiss() { cacheEventsTotal.WithLabelValues("miss").Inc() }

func AddCacheEvictions(n int) {
	cacheEventsTotal.WithLabelValues("evict").Add(float64(n))
}

// SetCacheFrames publishes the cache window size.
func SetCacheFrames(n int) {
	cacheFrames.Set(float64(n))
}

// StreamOpened and StreamClosed track open push connections.
func StreamOpened(transport string) { activeStreams.WithLabelValues(transport).Inc() }
func StreamClosed(transport string) { activeStreams.WithLabelValues(transport).Dec() }

// IncRateLimited counts one rejected request.
func IncRateLimited() {
	httpRateLimitedTotal.Inc()
}

// knownRoutes are exported verbatim as path labels; anything else collapses
// to "other" to bound label cardinality.
var knownRoutes = map[string]bool{
	"/healthz":                   true,
	"/readyz":                    true,
	"/metrics":                   true,
	"/api/v1/constellation":      true,
	"/api/v1/constellation/demo": true,
	"/api/v1/constellation/tle":  true,
	"/api/v1/coverage":           true,
	"/api/v1/footprints":         true,
	"/api/v1/trajectories":       true,
	"/api/v1/access":             true,
	"/api/v1/cache/stats":        true,
	"/api/v1/stream/scene":       true,
	"/api/v1/ws/scene":           true,
}

const satellitePrefix = "/api/v1/satellites/"

func normalizeRoute(path string) string {
	if knownRoutes[path] {
		return path
	}
	if id, ok := strings.CutPrefix(path, satellitePrefix); ok {
		if _, err := strconv.Atoi(id); err == nil {
			return satellitePrefix + "{id}"
		}
	}
	return "other"
}

// responseWriter wraps http.ResponseWriter to capture the status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Unwrap exposes the underlying writer to http.ResponseController so
// streaming handlers can flush through the middleware.
func (rw *responseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

// Flush lets SSE handlers flush through the middleware.
func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Hijack lets websocket upgrades pass through the middleware.
func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := rw.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not support hijacking")
	}
	rw.statusCode = http.StatusSwitchingProtocols
	return h.Hijack()
}

// Middleware records request count and duration for each request.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(rw, r)

		route := normalizeRoute(r.URL.Path)
		httpRequestsTotal.WithLabelValues(route, r.Method, strconv.Itoa(rw.statusCode)).Inc()
		httpDurationSeconds.WithLabelValues(route, r.Method).Observe(time.Since(start).Seconds())
	})
}
