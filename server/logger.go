package server

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/gaborage/servertiming/logger"
)

// LoggerConfig configures the request logging middleware.
type LoggerConfig struct {
	// HealthPath and ReadyPath are probe endpoints excluded from logging.
	HealthPath string
	ReadyPath  string

	// SlowRequestThreshold marks successful requests slower than this with
	// result_code="WARN". Zero or negative disables the check.
	SlowRequestThreshold time.Duration
}

const (
	levelError = "error"
	levelWarn  = "warn"
	levelInfo  = "info"

	resultError = "ERROR"
	resultWarn  = "WARN"
	resultInfo  = "INFO"
)

// Logger returns a middleware emitting one action log per request using
// OpenTelemetry HTTP semantic convention field names.
func Logger(log logger.Logger, cfg LoggerConfig) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			path := c.Path()
			if path == "" {
				path = c.Request().URL.Path
			}
			if path == cfg.HealthPath || path == cfg.ReadyPath {
				return next(c)
			}

			start := time.Now()
			err := next(c)
			latency := time.Since(start)

			status := responseStatus(c, err)
			level, result := determineSeverity(status, latency, cfg.SlowRequestThreshold)

			req := c.Request()
			event := createLogEvent(log.WithContext(req.Context()), level)
			if err != nil {
				event = event.Err(err)
			}
			event.
				Str("log.type", "action").
				Str("request_id", c.Response().Header().Get(echo.HeaderXRequestID)).
				Str("http.request.method", req.Method).
				Int("http.response.status_code", status).
				Int64("http.server.request.duration", latency.Nanoseconds()).
				Str("url.path", req.URL.Path).
				Str("http.route", c.Path()).
				Str("client.address", c.RealIP()).
				Str("user_agent.original", req.UserAgent()).
				Str("result_code", result).
				Msg(actionMessage(req.Method, req.URL.Path, latency, status))

			return err
		}
	}
}

// responseStatus returns the status the client will see. Errors are rendered
// by the error handler after the chain returns, so derive it from err.
func responseStatus(c echo.Context, err error) int {
	res := c.Response()
	if err == nil || res.Committed {
		return res.Status
	}
	var he *echo.HTTPError
	if errors.As(err, &he) {
		return he.Code
	}
	return http.StatusInternalServerError
}

func determineSeverity(status int, latency, threshold time.Duration) (level, result string) {
	switch {
	case status >= http.StatusInternalServerError:
		return levelError, resultError
	case status >= http.StatusBadRequest:
		return levelWarn, resultWarn
	case threshold > 0 && latency > threshold:
		// Level stays INFO; only result_code flags the slow request.
		return levelInfo, resultWarn
	default:
		return levelInfo, resultInfo
	}
}

func createLogEvent(log logger.Logger, level string) logger.LogEvent {
	switch level {
	case levelError:
		return log.Error()
	case levelWarn:
		return log.Warn()
	default:
		return log.Info()
	}
}

// actionMessage renders e.g. "GET /api/users completed in 123ms with status 200".
func actionMessage(method, path string, latency time.Duration, status int) string {
	return fmt.Sprintf("%s %s completed in %s with status %d", method, path, latency, status)
}
