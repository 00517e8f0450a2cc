// Package auth guards the constellation API with a static bearer token.
//
// Health checks, the TLE export and the scene streams are always public so
// renderers and propagators can consume them without credentials. With
// PublicReads set only requests that change the constellation need the
// token.
package auth

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strings"
)

// Config holds authentication configuration.
type Config struct {
	Enabled     bool
	Token       string
	PublicReads bool // GET and HEAD pass without a token
}

// Always-public exact paths: health checks, the Prometheus scrape and the TLE
// export consumed by external propagators.
var publicPaths = map[string]bool{
	"/healthz":                  true,
	"/readyz":                   true,
	"/metrics":                  true,
	"/api/v1/constellation/tle": true,
}

// Always-public path prefixes: the SSE and WebSocket scene streams.
var publicPrefixes = []string{
	"/api/v1/stream/",
	"/api/v1/ws/",
}

func (cfg Config) public(r *http.Request) bool {
	if !cfg.Enabled || publicPaths[r.URL.Path] {
		return true
	}
	for _, prefix := range publicPrefixes {
		if strings.HasPrefix(r.URL.Path, prefix) {
			return true
		}
	}
	return cfg.PublicReads && (r.Method == http.MethodGet || r.Method == http.MethodHead)
}

// bearerToken returns the credentials of an "Authorization: Bearer" header.
// The scheme is case-insensitive.
func bearerToken(r *http.Request) (string, bool) {
	scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// Middleware rejects non-public requests whose bearer token does not match
// cfg.Token with 401 and the API's error envelope.
func Middleware(cfg Config) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if cfg.public(r) {
				next.ServeHTTP(w, r)
				return
			}

			token, ok := bearerToken(r)
			if !ok || subtle.ConstantTimeCompare([]byte(token), []byte(cfg.Token)) != 1 {
				w.Header().Set("Content-Type", "application/json")
				w.Header().Set("WWW-Authenticate", `Bearer realm="constellation"`)
				w.WriteHeader(http.StatusUnauthorized)
				json.NewEncoder(w).Encode(map[string]any{"success": false, "error": "unauthorized"})
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
