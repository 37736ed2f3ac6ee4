package server

import (
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"

	"github.com/gaborage/servertiming/config"
	"github.com/gaborage/servertiming/logger"
)

// SetupMiddlewares registers the HTTP middleware chain on e.
//
// ServerTiming sits outside recovery, body limit, timeout and rate limiting
// so the reported total covers them; request logging wraps it so action logs
// see the final status.
func SetupMiddlewares(e *echo.Echo, log logger.Logger, cfg *config.Config) {
	healthPath, readyPath := probePaths(cfg)
	isProbe := func(c echo.Context) bool {
		p := c.Request().URL.Path
		return p == healthPath || p == readyPath
	}

	// Request ID
	e.Use(middleware.RequestIDWithConfig(middleware.RequestIDConfig{
		Generator: uuid.NewString,
	}))

	// Request spans through the globally registered tracer provider
	e.Use(otelecho.Middleware(cfg.App.Name, otelecho.WithSkipper(isProbe)))

	// Action logs
	e.Use(Logger(log, LoggerConfig{
		HealthPath:           healthPath,
		ReadyPath:            readyPath,
		SlowRequestThreshold: DefaultSlowRequestThreshold,
	}))

	// Timing
	e.Use(ServerTimingWithConfig(cfg.Timing))

	// Recovery; the recovered error travels back up the chain like a handler error
	e.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{
		DisableErrorHandler: true,
		LogErrorFunc: func(c echo.Context, err error, stack []byte) error {
			log.Error().
				Err(err).
				Str("request_id", c.Response().Header().Get(echo.HeaderXRequestID)).
				Str("stack", string(stack)).
				Msg("Panic recovered")
			return err
		},
	}))

	// Body limit
	e.Use(middleware.BodyLimit(DefaultBodyLimit))

	// Deadline on the request context; handlers observe cancellation
	if cfg.Server.Timeout.Middleware > 0 {
		e.Use(middleware.ContextTimeoutWithConfig(middleware.ContextTimeoutConfig{
			Timeout: cfg.Server.Timeout.Middleware,
		}))
	}

	// Rate limit
	e.Use(RateLimit(cfg.App.Rate.Limit))
}
