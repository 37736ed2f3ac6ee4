package server

import (
	"context"
	"net/http"
	"slices"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/gaborage/servertiming/config"
	"github.com/gaborage/servertiming/internal/deferred"
	"github.com/gaborage/servertiming/timing"
)

var echoRequest = timing.ExtractorFunc[echo.Context](func(c echo.Context) *http.Request {
	return c.Request()
})

// ServerTiming returns a middleware that reports handler latency in the
// Server-Timing response header.
//
// The response is buffered while the rest of the chain runs so the header
// can be added once the handler has returned. Handlers that flush early
// (streaming, SSE) send their headers at the first flush and do not get the
// timing header. The same applies to bodies larger than
// deferred.DefaultMaxBuffer, such as file downloads, which are committed as
// soon as they outgrow the buffer. Errors returned by the chain are passed on untouched and
// never carry the header.
func ServerTiming(opts timing.Options) echo.MiddlewareFunc {
	mw := timing.New[echo.Context, *deferred.Writer](opts, echoRequest)

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		if !mw.Enabled() {
			return next
		}

		return func(c echo.Context) error {
			res := c.Response()
			original := res.Writer
			dw := deferred.NewWriter(original)
			res.Writer = dw
			defer func() {
				res.Writer = original
				_ = dw.Commit()
			}()

			var handlerErr error
			_, err := mw.Handle(c.Request().Context(), c, func() (*deferred.Writer, error) {
				handlerErr = next(c)
				return dw, handlerErr
			})

			if err != nil && handlerErr == nil && !dw.Committed() {
				// The allow predicate failed. Drop the buffered response so the
				// error handler can write its own.
				dw.Reset()
				res.Committed = false
				res.Status = http.StatusOK
				res.Size = 0
			}
			return err
		}
	}
}

// ServerTimingWithConfig builds the middleware from configuration.
func ServerTimingWithConfig(cfg config.TimingConfig) echo.MiddlewareFunc {
	return ServerTiming(TimingOptions(cfg))
}

// TimingOptions maps configuration onto middleware options. A disabled
// static allow wins over exclusions; exclusions turn the decision into a
// per-request path check.
func TimingOptions(cfg config.TimingConfig) timing.Options {
	opts := timing.DefaultOptions(false)
	opts.Enabled = cfg.Enabled
	opts.Trace = timing.Trace{
		Handle: cfg.Trace.Handle,
		Total:  cfg.Trace.Total,
	}

	switch {
	case !cfg.Allow:
		opts.Allow = timing.AllowStatic(false)
	case len(cfg.Exclude) > 0:
		opts.Allow = timing.AllowDynamic(excludePaths(cfg.Exclude))
	default:
		opts.Allow = timing.AllowStatic(true)
	}

	return opts
}

// excludePaths denies requests whose path ends with one of suffixes.
func excludePaths(suffixes []string) timing.Predicate {
	suffixes = slices.Clone(suffixes)

	return func(_ context.Context, ac timing.AllowContext) (bool, error) {
		if ac.Request == nil || ac.Request.URL == nil {
			return true, nil
		}
		path := ac.Request.URL.Path
		for _, suffix := range suffixes {
			if strings.HasSuffix(path, suffix) {
				return false, nil
			}
		}
		return true, nil
	}
}
