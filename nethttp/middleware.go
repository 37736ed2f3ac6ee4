// Package nethttp integrates the Server-Timing middleware with plain
// net/http handlers.
package nethttp

import (
	"net/http"

	"github.com/gaborage/servertiming/internal/deferred"
	"github.com/gaborage/servertiming/timing"
)

// ErrorHandler renders an error raised by the Allow predicate. The response
// may already be partially committed if the handler flushed.
type ErrorHandler func(w http.ResponseWriter, r *http.Request, err error)

// Option configures Middleware.
type Option func(*settings)

type settings struct {
	errorHandler ErrorHandler
}

// WithErrorHandler replaces the default predicate error handler, which
// answers 500 unless the response was already sent.
func WithErrorHandler(h ErrorHandler) Option {
	return func(s *settings) {
		if h != nil {
			s.errorHandler = h
		}
	}
}

// Middleware returns a net/http middleware that sets the Server-Timing
// header on responses of next.
//
// The response is buffered until next returns. Handlers that flush early
// send their headers at the first flush and are not labelled, as are bodies
// larger than deferred.DefaultMaxBuffer (1 MiB), which commit once they
// outgrow the buffer. Panics from
// next propagate after the buffered response has been sent.
func Middleware(opts timing.Options, options ...Option) func(http.Handler) http.Handler {
	s := settings{errorHandler: defaultErrorHandler}
	for _, opt := range options {
		opt(&s)
	}
	mw := timing.New[*http.Request, *deferred.Writer](opts, timing.RequestItself())

	return func(next http.Handler) http.Handler {
		if !mw.Enabled() {
			return next
		}

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			dw := deferred.NewWriter(w)
			defer func() { _ = dw.Commit() }()

			_, err := mw.Handle(r.Context(), r, func() (*deferred.Writer, error) {
				next.ServeHTTP(dw, r)
				return dw, nil
			})
			if err != nil {
				s.errorHandler(dw, r, err)
			}
		})
	}
}

func defaultErrorHandler(w http.ResponseWriter, _ *http.Request, _ error) {
	dw, ok := w.(*deferred.Writer)
	if !ok || dw.Committed() {
		return
	}
	dw.Reset()
	http.Error(dw, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
}
