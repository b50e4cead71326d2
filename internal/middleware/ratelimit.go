package middleware

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"golang.org/x/time/rate"
)

// RateLimit returns middleware allowing maxRequests per client IP within
// each window, as a token bucket refilled at maxRequests/window with a burst
// of maxRequests. Form saves in the campaign editor call the record
// endpoints on every change, so the whole window's budget may be spent at
// once. maxRequests <= 0 disables limiting.
func RateLimit(maxRequests int, window time.Duration) echo.MiddlewareFunc {
	if maxRequests <= 0 || window <= 0 {
		return func(next echo.HandlerFunc) echo.HandlerFunc { return next }
	}

	store := echomw.NewRateLimiterMemoryStoreWithConfig(echomw.RateLimiterMemoryStoreConfig{
		Rate:      rate.Limit(float64(maxRequests) / window.Seconds()),
		Burst:     maxRequests,
		ExpiresIn: window,
	})

	return echomw.RateLimiterWithConfig(echomw.RateLimiterConfig{
		Store: store,
		IdentifierExtractor: func(c echo.Context) (string, error) {
			return c.RealIP(), nil
		},
		DenyHandler: func(c echo.Context, identifier string, err error) error {
			return echo.NewHTTPError(http.StatusTooManyRequests, "rate limit exceeded, try again later")
		},
	})
}
