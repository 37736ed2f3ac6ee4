package server

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"golang.org/x/time/rate"
)

const (
	// burstMultiplier lets a client briefly exceed its per-second rate.
	burstMultiplier = 2
	// rateLimitExpiry drops limiter state for clients idle this long.
	rateLimitExpiry = 3 * time.Minute
)

// RateLimit returns a per-client-IP rate limiting middleware.
// If requestsPerSecond is 0 or negative, rate limiting is disabled.
func RateLimit(requestsPerSecond int) echo.MiddlewareFunc {
	if requestsPerSecond <= 0 {
		return func(next echo.HandlerFunc) echo.HandlerFunc {
			return next
		}
	}

	return middleware.RateLimiterWithConfig(middleware.RateLimiterConfig{
		Skipper: middleware.DefaultSkipper,
		Store: middleware.NewRateLimiterMemoryStoreWithConfig(
			middleware.RateLimiterMemoryStoreConfig{
				Rate:      rate.Limit(requestsPerSecond),
				Burst:     requestsPerSecond * burstMultiplier,
				ExpiresIn: rateLimitExpiry,
			},
		),
		IdentifierExtractor: func(c echo.Context) (string, error) {
			return c.RealIP(), nil
		},
		ErrorHandler: func(c echo.Context, _ error) error {
			return writeError(c, http.StatusForbidden, "Unable to identify client")
		},
		DenyHandler: func(c echo.Context, _ string, _ error) error {
			return writeError(c, http.StatusTooManyRequests, "Too many requests")
		},
	})
}
