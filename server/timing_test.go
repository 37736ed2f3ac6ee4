package server

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/gaborage/servertiming/config"
	"github.com/gaborage/servertiming/internal/deferred"
	"github.com/gaborage/servertiming/timing"
)

var serverTimingGrammar = regexp.MustCompile(`^(handle;dur=\d+(\.\d+)?(,total;dur=\d+(\.\d+)?)?|total;dur=\d+(\.\d+)?)?$`)

func newTimedEcho(opts timing.Options) *echo.Echo {
	e := echo.New()
	e.Use(ServerTiming(opts))
	return e
}

func serve(e *echo.Echo, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, http.NoBody)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

// timingHeader reads the header from the response as sent, not from the
// recorder's live header map.
func timingHeader(rec *httptest.ResponseRecorder) (string, bool) {
	values, ok := rec.Result().Header[HeaderServerTiming]
	if !ok || len(values) == 0 {
		return "", false
	}
	return values[0], true
}

func segmentDurations(t *testing.T, header string) map[string]float64 {
	t.Helper()
	out := make(map[string]float64)
	for _, part := range strings.Split(header, ",") {
		name, dur, ok := strings.Cut(part, ";dur=")
		require.True(t, ok, "segment %q", part)
		v, err := strconv.ParseFloat(dur, 64)
		require.NoError(t, err)
		out[name] = v
	}
	return out
}

func TestServerTimingReportsBothSegments(t *testing.T) {
	e := newTimedEcho(timing.DefaultOptions(false))
	e.GET("/", func(c echo.Context) error {
		time.Sleep(time.Millisecond)
		return c.JSON(http.StatusOK, "Server Timing")
	})

	rec := serve(e, "/")

	assert.Equal(t, http.StatusOK, rec.Code)
	header, ok := timingHeader(rec)
	require.True(t, ok, "Server-Timing header should be present")
	assert.Contains(t, header, "handle;dur=")
	assert.Contains(t, header, "total;dur=")
	assert.Regexp(t, serverTimingGrammar, header)

	durations := segmentDurations(t, header)
	assert.GreaterOrEqual(t, durations["handle"], 1.0)
	assert.GreaterOrEqual(t, durations["total"], durations["handle"])
	assert.JSONEq(t, `"Server Timing"`, rec.Body.String())
}

func TestServerTimingSegmentOrder(t *testing.T) {
	e := newTimedEcho(timing.DefaultOptions(false))
	e.GET("/", func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})

	header, ok := timingHeader(serve(e, "/"))
	require.True(t, ok)

	parts := strings.Split(header, ",")
	require.Len(t, parts, 2)
	assert.True(t, strings.HasPrefix(parts[0], "handle;"))
	assert.True(t, strings.HasPrefix(parts[1], "total;"))
}

func TestServerTimingWithoutTotal(t *testing.T) {
	opts := timing.DefaultOptions(false)
	opts.Trace.Total = false
	e := newTimedEcho(opts)
	e.GET("/", func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})

	header, ok := timingHeader(serve(e, "/"))
	require.True(t, ok)

	parts := strings.Split(header, ",")
	require.Len(t, parts, 1)
	assert.Regexp(t, `^handle;dur=\d+(\.\d+)?$`, header)
}

func TestServerTimingWithoutAnySegment(t *testing.T) {
	opts := timing.DefaultOptions(false)
	opts.Trace = timing.Trace{}
	e := newTimedEcho(opts)
	e.GET("/", func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})

	rec := serve(e, "/")

	_, ok := timingHeader(rec)
	assert.False(t, ok)
	assert.Equal(t, "ok", rec.Body.String())
}

func TestServerTimingRespectsAllow(t *testing.T) {
	tests := []struct {
		name    string
		allow   timing.Allow
		path    string
		present bool
	}{
		{
			name: "predicate_excludes_no_trace",
			allow: timing.AllowDynamic(func(_ context.Context, ac timing.AllowContext) (bool, error) {
				return !strings.HasSuffix(ac.Request.URL.Path, "/no-trace"), nil
			}),
			path:    "/no-trace",
			present: false,
		},
		{
			name: "predicate_keeps_root",
			allow: timing.AllowDynamic(func(_ context.Context, ac timing.AllowContext) (bool, error) {
				return !strings.HasSuffix(ac.Request.URL.Path, "/no-trace"), nil
			}),
			path:    "/",
			present: true,
		},
		{name: "static_false", allow: timing.AllowStatic(false), path: "/", present: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := timing.DefaultOptions(false)
			opts.Allow = tt.allow
			e := newTimedEcho(opts)
			e.GET("/", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })
			e.GET("/no-trace", func(c echo.Context) error { return c.String(http.StatusOK, "hi") })

			rec := serve(e, tt.path)

			assert.Equal(t, http.StatusOK, rec.Code)
			_, ok := timingHeader(rec)
			assert.Equal(t, tt.present, ok)
		})
	}
}

func TestServerTimingDisabled(t *testing.T) {
	opts := timing.DefaultOptions(true)
	require.False(t, opts.Enabled)
	e := newTimedEcho(opts)
	e.GET("/", func(c echo.Context) error {
		c.Response().Header().Set("X-Handler", "yes")
		return c.String(http.StatusAccepted, "unchanged")
	})

	rec := serve(e, "/")

	_, ok := timingHeader(rec)
	assert.False(t, ok)
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, "unchanged", rec.Body.String())
	assert.Equal(t, "yes", rec.Header().Get("X-Handler"))
}

func TestServerTimingPreservesResponse(t *testing.T) {
	e := newTimedEcho(timing.DefaultOptions(false))
	e.POST("/items", func(c echo.Context) error {
		c.Response().Header().Set(echo.HeaderLocation, "/items/1")
		return c.JSON(http.StatusCreated, map[string]int{"id": 1})
	})

	req := httptest.NewRequest(http.MethodPost, "/items", http.NoBody)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	res := rec.Result()
	assert.Equal(t, http.StatusCreated, res.StatusCode)
	assert.Equal(t, "/items/1", res.Header.Get(echo.HeaderLocation))
	assert.NotEmpty(t, res.Header.Get(HeaderServerTiming))
	assert.JSONEq(t, `{"id":1}`, rec.Body.String())
}

func TestServerTimingHandlerError(t *testing.T) {
	e := newTimedEcho(timing.DefaultOptions(false))
	e.GET("/error", func(_ echo.Context) error {
		return echo.NewHTTPError(http.StatusBadRequest, "test error")
	})

	rec := serve(e, "/error")

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	_, ok := timingHeader(rec)
	assert.False(t, ok, "failed requests must not carry Server-Timing")
}

func TestServerTimingHandlerErrorAfterPartialWrite(t *testing.T) {
	e := newTimedEcho(timing.DefaultOptions(false))
	e.GET("/partial", func(c echo.Context) error {
		c.Response().WriteHeader(http.StatusOK)
		_, _ = c.Response().Write([]byte("partial"))
		return errors.New("write interrupted")
	})

	rec := serve(e, "/partial")

	assert.Equal(t, "partial", rec.Body.String())
	_, ok := timingHeader(rec)
	assert.False(t, ok)
}

func TestServerTimingPanicRecoveredInside(t *testing.T) {
	e := newTimedEcho(timing.DefaultOptions(false))
	e.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{DisableErrorHandler: true}))
	e.GET("/panic", func(_ echo.Context) error {
		panic("test panic")
	})

	var rec *httptest.ResponseRecorder
	require.NotPanics(t, func() { rec = serve(e, "/panic") })

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	_, ok := timingHeader(rec)
	assert.False(t, ok)
}

func TestServerTimingPanicPropagates(t *testing.T) {
	e := newTimedEcho(timing.DefaultOptions(false))
	var res *echo.Response
	e.GET("/panic", func(c echo.Context) error {
		res = c.Response()
		_, _ = c.Response().Write([]byte("before panic"))
		panic("unrecovered")
	})

	rec := httptest.NewRecorder()
	assert.Panics(t, func() {
		e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/panic", http.NoBody))
	})

	require.NotNil(t, res)
	assert.Same(t, rec, res.Writer, "original writer must be restored")
	assert.Equal(t, "before panic", rec.Body.String())
}

func TestServerTimingPredicateError(t *testing.T) {
	errLookup := errors.New("allow lookup failed")
	opts := timing.DefaultOptions(false)
	opts.Allow = timing.AllowDynamic(func(context.Context, timing.AllowContext) (bool, error) {
		return false, errLookup
	})

	var seen error
	e := newTimedEcho(opts)
	e.HTTPErrorHandler = func(err error, c echo.Context) {
		seen = err
		_ = c.String(http.StatusServiceUnavailable, "predicate failed")
	}
	e.GET("/", func(c echo.Context) error {
		return c.String(http.StatusOK, "handler body")
	})

	rec := serve(e, "/")

	assert.ErrorIs(t, seen, errLookup)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "predicate failed", rec.Body.String())
	_, ok := timingHeader(rec)
	assert.False(t, ok)
}

func TestServerTimingStreamingHandler(t *testing.T) {
	e := newTimedEcho(timing.DefaultOptions(false))
	e.GET("/stream", func(c echo.Context) error {
		c.Response().WriteHeader(http.StatusOK)
		_, _ = c.Response().Write([]byte("chunk-1;"))
		c.Response().Flush()
		_, _ = c.Response().Write([]byte("chunk-2"))
		return nil
	})

	rec := serve(e, "/stream")

	assert.True(t, rec.Flushed)
	assert.Equal(t, "chunk-1;chunk-2", rec.Body.String())
	_, ok := timingHeader(rec)
	assert.False(t, ok, "headers are sealed after the first flush")
}

func TestServerTimingLargeBody(t *testing.T) {
	payload := []byte(strings.Repeat("x", deferred.DefaultMaxBuffer+1))
	e := newTimedEcho(timing.DefaultOptions(false))
	e.GET("/download", func(c echo.Context) error {
		return c.Blob(http.StatusOK, echo.MIMEOctetStream, payload)
	})

	rec := serve(e, "/download")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, len(payload), rec.Body.Len())
	_, ok := timingHeader(rec)
	assert.False(t, ok, "bodies past the buffer limit are committed before the handler returns")
}

func TestServerTimingEmptyResponse(t *testing.T) {
	e := newTimedEcho(timing.DefaultOptions(false))
	e.DELETE("/items/1", func(c echo.Context) error {
		return c.NoContent(http.StatusNoContent)
	})

	req := httptest.NewRequest(http.MethodDelete, "/items/1", http.NoBody)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	_, ok := timingHeader(rec)
	assert.True(t, ok)
}

func TestServerTimingIncludesInnerMiddleware(t *testing.T) {
	e := newTimedEcho(timing.DefaultOptions(false))
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			time.Sleep(20 * time.Millisecond)
			return next(c)
		}
	})
	e.GET("/", func(c echo.Context) error {
		time.Sleep(20 * time.Millisecond)
		return c.String(http.StatusOK, "ok")
	})

	header, ok := timingHeader(serve(e, "/"))
	require.True(t, ok)

	durations := segmentDurations(t, header)
	assert.GreaterOrEqual(t, durations["total"], 40.0)
}

func TestServerTimingConcurrentRequests(t *testing.T) {
	e := newTimedEcho(timing.DefaultOptions(false))
	e.GET("/sleep", func(c echo.Context) error {
		ms, err := strconv.Atoi(c.QueryParam("ms"))
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "ms")
		}
		time.Sleep(time.Duration(ms) * time.Millisecond)
		return c.String(http.StatusOK, strconv.Itoa(ms))
	})

	delays := []int{5, 30, 10, 50, 20}
	headers := make([]string, len(delays))

	var g errgroup.Group
	for i, d := range delays {
		g.Go(func() error {
			rec := serve(e, "/sleep?ms="+strconv.Itoa(d))
			if rec.Code != http.StatusOK {
				return errors.New("unexpected status " + strconv.Itoa(rec.Code))
			}
			headers[i], _ = timingHeader(rec)
			return nil
		})
	}
	require.NoError(t, g.Wait())

	for i, d := range delays {
		durations := segmentDurations(t, headers[i])
		assert.GreaterOrEqual(t, durations["handle"], float64(d), "delay %dms", d)
		assert.GreaterOrEqual(t, durations["total"], durations["handle"])
	}
}

func TestTimingOptions(t *testing.T) {
	req := func(path string) timing.AllowContext {
		return timing.AllowContext{Request: httptest.NewRequest(http.MethodGet, path, http.NoBody)}
	}

	t.Run("defaults", func(t *testing.T) {
		opts := TimingOptions(config.TimingConfig{
			Enabled: true,
			Allow:   true,
			Trace:   config.TimingTraceConfig{Handle: true, Total: true},
		})

		assert.True(t, opts.Enabled)
		assert.Equal(t, timing.Trace{Handle: true, Total: true}, opts.Trace)
		assert.False(t, opts.Allow.IsDynamic())
		allowed, err := opts.Allow.Resolve(context.Background(), req("/"))
		require.NoError(t, err)
		assert.True(t, allowed)
	})

	t.Run("allow_false_wins_over_exclude", func(t *testing.T) {
		opts := TimingOptions(config.TimingConfig{Enabled: true, Allow: false, Exclude: []string{"/x"}})

		assert.False(t, opts.Allow.IsDynamic())
		allowed, err := opts.Allow.Resolve(context.Background(), req("/"))
		require.NoError(t, err)
		assert.False(t, allowed)
	})

	t.Run("exclude_suffixes", func(t *testing.T) {
		opts := TimingOptions(config.TimingConfig{Enabled: true, Allow: true, Exclude: []string{"/no-trace", "/metrics"}})
		require.True(t, opts.Allow.IsDynamic())

		for path, expected := range map[string]bool{
			"/":               true,
			"/no-trace":       false,
			"/api/v1/metrics": false,
			"/metrics/raw":    true,
		} {
			allowed, err := opts.Allow.Resolve(context.Background(), req(path))
			require.NoError(t, err)
			assert.Equal(t, expected, allowed, path)
		}

		allowed, err := opts.Allow.Resolve(context.Background(), timing.AllowContext{})
		require.NoError(t, err)
		assert.True(t, allowed, "missing request is allowed")
	})

	t.Run("disabled", func(t *testing.T) {
		opts := TimingOptions(config.TimingConfig{Enabled: false, Allow: true})
		assert.False(t, opts.Enabled)
	})
}

func TestServerTimingWithConfig(t *testing.T) {
	cfg, err := config.LoadFromMap(map[string]any{
		"timing.exclude":     []string{"/no-trace"},
		"timing.trace.total": false,
	})
	require.NoError(t, err)

	e := echo.New()
	e.Use(ServerTimingWithConfig(cfg.Timing))
	e.GET("/", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })
	e.GET("/no-trace", func(c echo.Context) error { return c.String(http.StatusOK, "hi") })

	header, ok := timingHeader(serve(e, "/"))
	require.True(t, ok)
	assert.Regexp(t, `^handle;dur=\d+(\.\d+)?$`, header)

	_, ok = timingHeader(serve(e, "/no-trace"))
	assert.False(t, ok)
}
