package api

import (
	"bufio"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/star/constellation/internal/auth"
	"github.com/star/constellation/internal/cache"
	"github.com/star/constellation/internal/coverage"
	"github.com/star/constellation/internal/health"
	"github.com/star/constellation/internal/httputil"
	"github.com/star/constellation/internal/metrics"
	"github.com/star/constellation/internal/params"
	"github.com/star/constellation/internal/planner"
	"github.com/star/constellation/internal/propagation"
	"github.com/star/constellation/internal/stream"
	"github.com/star/constellation/internal/tle"
)

// Config holds HTTP server configuration.
type Config struct {
	Addr       string
	Auth       auth.Config
	RateLimit  RateLimitConfig
	TrustProxy bool // take the client IP from X-Forwarded-For
}

// Deps are the components the handlers serve from.
type Deps struct {
	Store      *tle.Store
	Params     params.Store
	Planner    *planner.Planner
	Engine     *propagation.Engine
	Aggregator *coverage.Aggregator
	Frames     *cache.FrameCache
	Stream     *stream.Handler
}

// Server holds the HTTP server and its dependencies.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer creates a configured HTTP server.
func NewServer(cfg Config, deps Deps, logger *slog.Logger) *Server {
	return &Server{
		httpServer: &http.Server{
			Addr:              cfg.Addr,
			Handler:           NewHandler(cfg, deps, logger),
			ReadTimeout:       10 * time.Second,
			ReadHeaderTimeout: 5 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       120 * time.Second,
		},
		logger: logger,
	}
}

// NewHandler registers every route and wraps the mux in the middleware
// chain: metrics -> logging -> rate limit -> auth -> mux.
func NewHandler(cfg Config, deps Deps, logger *slog.Logger) http.Handler {
	logger = logger.With("component", "api")
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", health.Healthz)
	mux.HandleFunc("GET /readyz", health.Readyz(deps.Store))
	mux.Handle("GET /metrics", metrics.Handler())

	mux.HandleFunc("POST /api/v1/constellation", postConstellationHandler(logger, deps.Params))
	mux.HandleFunc("GET /api/v1/constellation", getConstellationHandler(deps.Params, deps.Store))
	mux.HandleFunc("POST /api/v1/constellation/demo", demoHandler(logger, deps.Planner))
	mux.HandleFunc("GET /api/v1/constellation/tle", tleExportHandler(deps.Store))
	mux.HandleFunc("GET /api/v1/coverage", coverageHandler(logger, deps.Store, deps.Aggregator, deps.Frames))
	mux.HandleFunc("GET /api/v1/footprints", footprintsHandler(logger, deps.Frames))
	mux.HandleFunc("GET /api/v1/trajectories", trajectoriesHandler(logger, deps.Store, deps.Engine))
	mux.HandleFunc("GET /api/v1/access", accessHandler(logger, deps.Store, deps.Engine, deps.Aggregator))
	mux.HandleFunc("GET /api/v1/satellites/{id}", satelliteHandler(logger, deps.Store, deps.Engine, deps.Aggregator))
	mux.HandleFunc("GET /api/v1/cache/stats", cacheStatsHandler(deps.Frames))

	if deps.Stream != nil {
		mux.HandleFunc("GET /api/v1/stream/scene", deps.Stream.HandleSSE)
		mux.HandleFunc("GET /api/v1/ws/scene", deps.Stream.HandleWebSocket)
	}

	var handler http.Handler = mux
	handler = auth.Middleware(cfg.Auth)(handler)
	handler = rateLimitMiddleware(newIPRateLimiter(cfg.RateLimit), cfg.TrustProxy, logger)(handler)
	handler = loggingMiddleware(logger, cfg.TrustProxy)(handler)
	handler = metrics.Middleware(handler)
	return handler
}

// HTTPServer returns the underlying *http.Server for external control (e.g. shutdown).
func (s *Server) HTTPServer() *http.Server {
	return s.httpServer
}

// ListenAndServe starts the HTTP server.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// probePath returns true for health/readiness probe paths that should not log at INFO.
func probePath(path string) bool {
	return path == "/healthz" || path == "/readyz" || path == "/metrics"
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (sr *statusRecorder) WriteHeader(code int) {
	sr.statusCode = code
	sr.ResponseWriter.WriteHeader(code)
}

// Flush lets SSE handlers flush through the middleware.
func (sr *statusRecorder) Flush() {
	if f, ok := sr.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (sr *statusRecorder) Unwrap() http.ResponseWriter {
	return sr.ResponseWriter
}

func (sr *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := sr.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not support hijacking")
	}
	sr.statusCode = http.StatusSwitchingProtocols
	return h.Hijack()
}

func loggingMiddleware(logger *slog.Logger, trustProxy bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			sr := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(sr, r)

			duration := time.Since(start)
			level := slog.LevelInfo
			if probePath(r.URL.Path) {
				level = slog.LevelDebug
			}

			logger.Log(r.Context(), level, "request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", strconv.Itoa(sr.statusCode),
				"duration_ms", duration.Milliseconds(),
				"remote_ip", httputil.ClientIP(r, trustProxy),
			)
		})
	}
}
