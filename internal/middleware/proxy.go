package middleware

import (
	"log/slog"
	"net"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

// TrustedProxies makes c.RealIP() honour X-Real-IP and X-Forwarded-For only
// when the direct peer is inside one of trustedCIDRs. Request logs and the
// rate limiter key on the result.
func TrustedProxies(e *echo.Echo, trustedCIDRs []string) {
	var trusted []*net.IPNet
	for _, cidr := range trustedCIDRs {
		_, network, err := net.ParseCIDR(cidr)
		if err != nil {
			slog.Warn("ignoring invalid trusted proxy CIDR", slog.String("cidr", cidr))
			continue
		}
		trusted = append(trusted, network)
	}
	e.IPExtractor = func(req *http.Request) string {
		return clientIP(req, trusted)
	}
}

func clientIP(req *http.Request, trusted []*net.IPNet) string {
	direct := req.RemoteAddr
	if host, _, err := net.SplitHostPort(req.RemoteAddr); err == nil {
		direct = host
	}
	if !ipInAny(direct, trusted) {
		return direct
	}
	if realIP := strings.TrimSpace(req.Header.Get("X-Real-IP")); realIP != "" {
		return realIP
	}
	if xff := req.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	return direct
}

func ipInAny(ipStr string, networks []*net.IPNet) bool {
	ip := net.ParseIP(ipStr)
	if ip == nil {
		return false
	}
	for _, n := range networks {
		if n.Contains(ip) {
			return true
		}
	}
	return false
}
