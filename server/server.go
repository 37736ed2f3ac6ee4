// Package server runs the HTTP service on Echo and provides the Echo
// integration of the Server-Timing middleware.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/gaborage/servertiming/config"
	"github.com/gaborage/servertiming/logger"
)

const envAliasDev = "dev"

// Server represents an HTTP server instance with Echo framework.
type Server struct {
	echo       *echo.Echo
	cfg        *config.Config
	logger     logger.Logger
	basePath   string
	healthPath string
	readyPath  string
}

// New creates a server with the middleware chain and probe endpoints
// registered. Routes are added through Echo or Group.
func New(cfg *config.Config, log logger.Logger) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = func(err error, c echo.Context) {
		handleError(err, c, cfg, log)
	}

	SetupMiddlewares(e, log, cfg)

	healthPath, readyPath := probePaths(cfg)
	s := &Server{
		echo:       e,
		cfg:        cfg,
		logger:     log,
		basePath:   normalizeBasePath(cfg.Server.Path.Base),
		healthPath: healthPath,
		readyPath:  readyPath,
	}

	e.GET(healthPath, s.healthCheck)
	e.GET(readyPath, s.readyCheck)

	log.Debug().
		Str("base_path", s.basePath).
		Str("health_path", healthPath).
		Str("ready_path", readyPath).
		Bool("server_timing", cfg.Timing.Enabled).
		Msg("Server paths configured")

	return s
}

// Echo returns the underlying Echo instance.
func (s *Server) Echo() *echo.Echo {
	return s.echo
}

// Group returns a route group rooted at the configured base path.
func (s *Server) Group() *echo.Group {
	return s.echo.Group(s.basePath)
}

// ServeHTTP lets the server be driven directly, e.g. by httptest.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.echo.ServeHTTP(w, r)
}

// Start starts the HTTP server and blocks until it stops.
// http.ErrServerClosed is returned after a graceful Shutdown.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Server.Host, s.cfg.Server.Port)

	s.logger.Info().
		Str("service", s.cfg.App.Name).
		Str("version", s.cfg.App.Version).
		Str("env", s.cfg.App.Env).
		Str("address", addr).
		Msg("Starting server...")

	server := &http.Server{
		Addr:         addr,
		ReadTimeout:  s.cfg.Server.Timeout.Read,
		WriteTimeout: s.cfg.Server.Timeout.Write,
		IdleTimeout:  s.cfg.Server.Timeout.Idle,
	}

	return s.echo.StartServer(server)
}

// Shutdown gracefully shuts down the server, waiting for in-flight requests
// until ctx is done or the configured shutdown timeout elapses.
func (s *Server) Shutdown(ctx context.Context) error {
	timeout := s.cfg.Server.Timeout.Shutdown
	if timeout <= 0 {
		timeout = DefaultShutdownTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	s.logger.Info().Msg("Shutting down server...")
	return s.echo.Shutdown(ctx)
}

func (s *Server) healthCheck(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status": "ok",
	})
}

func (s *Server) readyCheck(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"status": "ready",
		"time":   time.Now().Unix(),
	})
}

// probePaths returns the health and readiness routes with the base path applied.
func probePaths(cfg *config.Config) (health, ready string) {
	base := normalizeBasePath(cfg.Server.Path.Base)
	return joinPath(base, normalizeRoutePath(cfg.Server.Path.Health, "/health")),
		joinPath(base, normalizeRoutePath(cfg.Server.Path.Ready, "/ready"))
}

// normalizeBasePath ensures the base path starts with "/" and has no
// trailing "/". Empty and "/" both mean no prefix.
func normalizeBasePath(basePath string) string {
	if basePath == "" || basePath == "/" {
		return ""
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	return strings.TrimRight(basePath, "/")
}

func normalizeRoutePath(route, defaultRoute string) string {
	if route == "" {
		route = defaultRoute
	}
	if !strings.HasPrefix(route, "/") {
		route = "/" + route
	}
	return route
}

func joinPath(base, route string) string {
	if base == "" {
		return route
	}
	if route == "/" {
		return base
	}
	return base + route
}

// errorBody is the JSON envelope for error responses.
type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Status    int    `json:"status"`
	RequestID string `json:"request_id,omitempty"`
	Details   string `json:"details,omitempty"`
}

func handleError(err error, c echo.Context, cfg *config.Config, log logger.Logger) {
	if c.Response().Committed {
		return
	}

	status := http.StatusInternalServerError
	msg := "Internal server error"
	var he *echo.HTTPError
	if errors.As(err, &he) {
		status = he.Code
		switch m := he.Message.(type) {
		case string:
			msg = m
		case error:
			msg = m.Error()
		}
	}

	if status >= http.StatusInternalServerError {
		log.Error().Err(err).Msg("Unhandled error")
		if !cfg.App.Debug {
			msg = "An error occurred while processing your request"
		}
	}

	body := errorBody{Error: errorDetail{
		Code:      statusToErrorCode(status),
		Message:   msg,
		Status:    status,
		RequestID: c.Response().Header().Get(echo.HeaderXRequestID),
	}}
	if isDevelopmentEnv(cfg.App.Env) {
		body.Error.Details = err.Error()
	}

	if c.Request().Method == http.MethodHead {
		_ = c.NoContent(status)
		return
	}
	_ = c.JSON(status, body)
}

// writeError renders the error envelope from inside a handler or middleware.
func writeError(c echo.Context, status int, msg string) error {
	return c.JSON(status, errorBody{Error: errorDetail{
		Code:      statusToErrorCode(status),
		Message:   msg,
		Status:    status,
		RequestID: c.Response().Header().Get(echo.HeaderXRequestID),
	}})
}

func isDevelopmentEnv(env string) bool {
	return env == config.EnvDevelopment || env == envAliasDev
}

func statusToErrorCode(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "BAD_REQUEST"
	case http.StatusUnauthorized:
		return "UNAUTHORIZED"
	case http.StatusForbidden:
		return "FORBIDDEN"
	case http.StatusNotFound:
		return "NOT_FOUND"
	case http.StatusMethodNotAllowed:
		return "METHOD_NOT_ALLOWED"
	case http.StatusRequestEntityTooLarge:
		return "PAYLOAD_TOO_LARGE"
	case http.StatusTooManyRequests:
		return "TOO_MANY_REQUESTS"
	case http.StatusServiceUnavailable:
		return "SERVICE_UNAVAILABLE"
	default:
		return "INTERNAL_ERROR"
	}
}
