// Package httputil holds request helpers shared by the API and the
// stream endpoints.
package httputil

import (
	"net"
	"net/http"
	"net/netip"
	"strings"
)

// ClientIP returns the address the per-client limiters key on.
//
// With trustProxy set, the leftmost X-Forwarded-For entry, then X-Real-IP,
// are used when they parse as an address. Otherwise, or when neither header
// holds one, the host part of RemoteAddr is used. IPv4-mapped IPv6
// addresses are unmapped so one client never gets two limiter buckets.
func ClientIP(r *http.Request, trustProxy bool) string {
	if trustProxy {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			first, _, _ := strings.Cut(xff, ",")
			if ip, ok := parseAddr(first); ok {
				return ip
			}
		}
		if ip, ok := parseAddr(r.Header.Get("X-Real-IP")); ok {
			return ip
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	if ip, ok := parseAddr(host); ok {
		return ip
	}
	return host
}

func parseAddr(s string) (string, bool) {
	s = strings.Trim(strings.TrimSpace(s), "[]")
	if s == "" {
		return "", false
	}
	addr, err := netip.ParseAddr(s)
	if err != nil {
		return "", false
	}
	return addr.Unmap().WithZone("").String(), true
}
