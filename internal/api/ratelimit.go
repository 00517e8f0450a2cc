package api

import (
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/star/constellation/internal/httputil"
	"github.com/star/constellation/internal/metrics"
)

// RateLimitConfig bounds mutating requests per client IP.
type RateLimitConfig struct {
	RPS   float64 // sustained requests per second (default: 1)
	Burst int     // bucket size (default: 5)
}

const (
	limiterIdle    = 10 * time.Minute
	limiterMaxKeep = 10000
)

type ipLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// ipRateLimiter hands out one token bucket per client IP. Idle buckets are
// dropped once the table grows past limiterMaxKeep.
type ipRateLimiter struct {
	mu  sync.Mutex
	ips map[string]*ipLimiter
	r   rate.Limit
	b   int
	now func() time.Time
}

func newIPRateLimiter(cfg RateLimitConfig) *ipRateLimiter {
	if cfg.RPS <= 0 {
		cfg.RPS = 1
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 5
	}
	return &ipRateLimiter{
		ips: make(map[string]*ipLimiter),
		r:   rate.Limit(cfg.RPS),
		b:   cfg.Burst,
		now: time.Now,
	}
}

func (l *ipRateLimiter) get(ip string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	e, ok := l.ips[ip]
	if !ok {
		if len(l.ips) >= limiterMaxKeep {
			l.pruneLocked(now)
		}
		e = &ipLimiter{limiter: rate.NewLimiter(l.r, l.b)}
		l.ips[ip] = e
	}
	e.lastSeen = now
	return e.limiter
}

func (l *ipRateLimiter) pruneLocked(now time.Time) {
	for ip, e := range l.ips {
		if now.Sub(e.lastSeen) > limiterIdle {
			delete(l.ips, ip)
		}
	}
}

// allow reports whether ip may make a request at the limiter's clock.
func (l *ipRateLimiter) allow(ip string) bool {
	return l.get(ip).AllowN(l.now(), 1)
}

func mutating(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	}
	return false
}

// rateLimitMiddleware applies the per-IP bucket to mutating requests.
func rateLimitMiddleware(l *ipRateLimiter, trustProxy bool, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !mutating(r.Method) {
				next.ServeHTTP(w, r)
				return
			}
			ip := httputil.ClientIP(r, trustProxy)
			if !l.allow(ip) {
				metrics.IncRateLimited()
				logger.Warn("rate limit exceeded", "remote_ip", ip, "path", r.URL.Path)
				retry := 1
				if l.r > 0 {
					retry = max(1, int(1/float64(l.r)))
				}
				w.Header().Set("Retry-After", strconv.Itoa(retry))
				writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
