// Package stream pushes scene updates to remote renderers over Server-Sent
// Events (GET /api/v1/stream/scene) and WebSocket (GET /api/v1/ws/scene).
//
// Both transports send the same JSON messages. The first is metadata about
// the loaded constellation:
//
//	{"type":"metadata","source":"demo","generated_at":"...","satellites":8,"planes":4}
//
// Then, once per step, the sink operations that move the renderer from the
// previous frame to the current one:
//
//	{"type":"scene","t":"2026-02-06T04:00:00Z","ops":[{"type":"upsert_position",...},...]}
//
// Satellites that vanish between frames (for example after the constellation
// is regenerated) arrive as "remove" ops.
package stream

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/star/constellation/internal/httputil"
	"github.com/star/constellation/internal/metrics"
	"github.com/star/constellation/internal/scene"
	"github.com/star/constellation/internal/tle"
)

// Transport labels used in metrics and logs.
const (
	TransportSSE       = "sse"
	TransportWebSocket = "websocket"
)

// Config holds streaming configuration.
type Config struct {
	MaxConcurrentPerIP int           // concurrent streams per IP (default: 10)
	MaxConcurrent      int           // concurrent streams overall (default: 1000)
	KeepaliveInterval  time.Duration // keep-alive interval (default: 30s)
	TrustProxy         bool          // take the client IP from X-Forwarded-For
}

// FrameSource serves step-aligned frames.
type FrameSource interface {
	Get(t time.Time) *scene.Frame
	Step() time.Duration
}

// Handler serves both streaming transports.
type Handler struct {
	frames  FrameSource
	store   *tle.Store
	config  Config
	limiter *connLimiter
	logger  *slog.Logger
}

// NewHandler creates a streaming handler.
func NewHandler(frames FrameSource, store *tle.Store, config Config, logger *slog.Logger) *Handler {
	if config.MaxConcurrentPerIP <= 0 {
		config.MaxConcurrentPerIP = 10
	}
	if config.MaxConcurrent <= 0 {
		config.MaxConcurrent = 1000
	}
	if config.KeepaliveInterval <= 0 {
		config.KeepaliveInterval = 30 * time.Second
	}
	return &Handler{
		frames:  frames,
		store:   store,
		config:  config,
		limiter: newConnLimiter(config.MaxConcurrentPerIP, config.MaxConcurrent),
		logger:  logger.With("component", "stream"),
	}
}

// Active returns the number of open streams.
func (h *Handler) Active() int {
	return h.limiter.active()
}

type metadataMessage struct {
	Type        string `json:"type"`
	Source      string `json:"source"`
	GeneratedAt string `json:"generated_at"`
	Satellites  int    `json:"satellites"`
	Planes      int    `json:"planes"`
}

type sceneMessage struct {
	Type string     `json:"type"`
	T    string     `json:"t"`
	Ops  []scene.Op `json:"ops"`
}

func (h *Handler) metadata() *metadataMessage {
	c := h.store.Get()
	if c == nil {
		return nil
	}
	return &metadataMessage{
		Type:        "metadata",
		Source:      c.Source,
		GeneratedAt: c.GeneratedAt.UTC().Format(time.RFC3339),
		Satellites:  c.Size(),
		Planes:      c.NumPlanes,
	}
}

// parseStep reads ?step= in whole seconds (1-60). Missing means the frame
// source's step.
func (h *Handler) parseStep(r *http.Request) (time.Duration, bool) {
	v := r.URL.Query().Get("step")
	if v == "" {
		return h.frames.Step(), true
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 1 || n > 60 {
		return 0, false
	}
	return time.Duration(n) * time.Second, true
}

// admit enforces the concurrent stream limits. On success the caller must
// call the returned release func.
func (h *Handler) admit(w http.ResponseWriter, r *http.Request, transport string) (string, func(), bool) {
	ip := httputil.ClientIP(r, h.config.TrustProxy)
	if !h.limiter.acquire(ip) {
		metrics.IncRateLimited()
		h.logger.Warn("stream limit exceeded",
			"transport", transport,
			"remote_ip", ip,
			"current_count", h.limiter.count(ip),
		)
		w.Header().Set("Retry-After", "30")
		writeJSONError(w, http.StatusTooManyRequests, "too many concurrent streams")
		return ip, nil, false
	}

	metrics.StreamOpened(transport)
	start := time.Now()
	h.logger.Info("stream connected",
		"transport", transport,
		"remote_ip", ip,
		"user_agent", r.Header.Get("User-Agent"),
	)
	return ip, func() {
		h.limiter.release(ip)
		metrics.StreamClosed(transport)
		h.logger.Info("stream disconnected",
			"transport", transport,
			"remote_ip", ip,
			"duration_seconds", int(time.Since(start).Seconds()),
		)
	}, true
}

// sender is one transport's write side.
type sender interface {
	send(v any) error
	keepalive() error
}

// run writes metadata, then a scene diff per step, until ctx is done or a
// write fails.
func (h *Handler) run(ctx context.Context, s sender, step time.Duration, ip string) {
	if meta := h.metadata(); meta != nil {
		if err := s.send(meta); err != nil {
			h.logger.Warn("stream send error (metadata)", "remote_ip", ip, "error", err)
			return
		}
	}

	var prev *scene.Frame
	push := func(t time.Time) error {
		f := h.frames.Get(t)
		if f == nil {
			h.logger.Debug("stream cache miss", "timestamp", t.UTC().Format(time.RFC3339), "remote_ip", ip)
			return nil
		}
		if f == prev {
			return nil
		}
		msg := sceneMessage{Type: "scene", T: f.Timestamp.UTC().Format(time.RFC3339), Ops: scene.Diff(prev, f)}
		if err := s.send(msg); err != nil {
			return err
		}
		prev = f
		return nil
	}

	if err := push(time.Now()); err != nil {
		h.logger.Warn("stream send error", "remote_ip", ip, "error", err)
		return
	}

	ticker := time.NewTicker(step)
	defer ticker.Stop()
	keepalive := time.NewTicker(h.config.KeepaliveInterval)
	defer keepalive.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case t := <-ticker.C:
			if err := push(t); err != nil {
				h.logger.Warn("stream send error", "remote_ip", ip, "error", err)
				return
			}
			keepalive.Reset(h.config.KeepaliveInterval)
		case <-keepalive.C:
			if err := s.keepalive(); err != nil {
				h.logger.Warn("stream keepalive error", "remote_ip", ip, "error", err)
				return
			}
		}
	}
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
