// Command servertiming-demo serves two routes behind the Server-Timing
// middleware: "/" reports its latency, "/no-trace" is excluded by config.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"golang.org/x/sync/errgroup"

	"github.com/gaborage/servertiming/config"
	"github.com/gaborage/servertiming/logger"
	"github.com/gaborage/servertiming/observability"
	"github.com/gaborage/servertiming/server"
)

const handlerDelay = time.Millisecond

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "servertiming-demo: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log := logger.New(cfg.Log.Level, cfg.Log.Pretty)

	obs, err := newObservability(cfg)
	if err != nil {
		return err
	}

	srv := server.New(cfg, log)
	registerRoutes(srv.Group())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server stopped: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownErr := srv.Shutdown(context.Background())
		flushCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.Timeout.Shutdown)
		defer cancel()
		return errors.Join(shutdownErr, obs.Shutdown(flushCtx))
	})

	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("Server exited with error")
		return err
	}
	log.Info().Msg("Server stopped")
	return nil
}

func newObservability(cfg *config.Config) (observability.Provider, error) {
	var obsCfg observability.Config
	if err := cfg.Unmarshal("observability", &obsCfg); err != nil {
		return nil, fmt.Errorf("failed to read observability config: %w", err)
	}
	if obsCfg.Service.Name == "" {
		obsCfg.Service.Name = cfg.App.Name
	}
	if obsCfg.Service.Version == "" {
		obsCfg.Service.Version = cfg.App.Version
	}
	if obsCfg.Environment == "" {
		obsCfg.Environment = cfg.App.Env
	}
	return observability.NewProvider(&obsCfg)
}

func registerRoutes(g *echo.Group) {
	g.GET("/", func(c echo.Context) error {
		select {
		case <-time.After(handlerDelay):
		case <-c.Request().Context().Done():
			return c.Request().Context().Err()
		}
		return c.JSON(http.StatusOK, "Server Timing")
	})
	g.GET("/no-trace", func(c echo.Context) error {
		return c.JSON(http.StatusOK, "Server Timing")
	})
}
