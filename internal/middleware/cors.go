package middleware

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

// CORSConfig holds configuration for the CORS middleware.
type CORSConfig struct {
	// AllowedOrigins may call the API cross-origin. "*" allows any origin.
	AllowedOrigins []string

	// AllowCredentials lets the browser send the drawer session cookie.
	AllowCredentials bool
}

var (
	corsMethods = strings.Join([]string{
		http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions,
	}, ", ")
	corsHeaders = strings.Join([]string{
		"Content-Type", "X-Requested-With", "X-CSRF-Token",
		"HX-Request", "HX-Current-URL", "HX-Target", "HX-Trigger",
	}, ", ")
	corsExposed = strings.Join([]string{"HX-Trigger", "Content-Disposition"}, ", ")
)

// CORS returns middleware that answers cross-origin requests from the
// campaign editor when it is served from another origin than Beacon.
func CORS(cfg CORSConfig) echo.MiddlewareFunc {
	allowAll := false
	originSet := make(map[string]bool, len(cfg.AllowedOrigins))
	for _, o := range cfg.AllowedOrigins {
		if o == "*" {
			allowAll = true
		}
		originSet[o] = true
	}
	if allowAll && cfg.AllowCredentials {
		slog.Warn("CORS_ORIGINS contains '*'; credentials will not be allowed cross-origin")
		cfg.AllowCredentials = false
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			origin := req.Header.Get("Origin")
			if origin == "" || !(allowAll || originSet[origin]) {
				return next(c)
			}

			h := c.Response().Header()
			h.Set("Access-Control-Allow-Origin", origin)
			h.Add("Vary", "Origin")
			if cfg.AllowCredentials {
				h.Set("Access-Control-Allow-Credentials", "true")
			}

			if req.Method == http.MethodOptions {
				h.Set("Access-Control-Allow-Methods", corsMethods)
				h.Set("Access-Control-Allow-Headers", corsHeaders)
				h.Set("Access-Control-Max-Age", "3600")
				return c.NoContent(http.StatusNoContent)
			}

			h.Set("Access-Control-Expose-Headers", corsExposed)
			return next(c)
		}
	}
}
