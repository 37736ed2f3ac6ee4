package timing

import (
	"context"
	"net/http"
)

// HeaderSetter is implemented by responses that can still accept a header.
// An error means the headers are sealed.
type HeaderSetter interface {
	SetHeader(key, value string) error
}

// HeaderCarrier is implemented by responses exposing a mutable header map.
type HeaderCarrier interface {
	Header() http.Header
}

// Next runs the rest of the chain and produces its response.
type Next[R any] func() (R, error)

// Middleware times a continuation and labels the response it returns.
// C is the request context type, R the response type.
type Middleware[C, R any] struct {
	opts      Options
	extractor RequestExtractor[C]
	clock     Clock
}

// New builds a Middleware. A nil extractor leaves AllowContext.Request nil.
func New[C, R any](opts Options, extractor RequestExtractor[C]) *Middleware[C, R] {
	clock := opts.Clock
	if clock == nil {
		clock = SystemClock{}
	}
	return &Middleware[C, R]{
		opts:      opts,
		extractor: extractor,
		clock:     clock,
	}
}

// Enabled reports whether Handle instruments requests at all.
func (m *Middleware[C, R]) Enabled() bool {
	return m.opts.Enabled
}

// Handle invokes next exactly once and returns its response.
//
// When enabled, the time spent in next is rendered with FormatLabel and, if
// Allow permits it, set as the Server-Timing header on the same response
// value. Errors from next and from the Allow predicate are returned as they
// are; a failure to set the header is ignored. An empty label is never
// written.
func (m *Middleware[C, R]) Handle(ctx context.Context, c C, next Next[R]) (R, error) {
	if !m.opts.Enabled {
		return next()
	}

	start := m.clock.Now()
	sample := Sample{Start: start, BeforeHandle: start}

	resp, err := next()
	if err != nil {
		return resp, err
	}
	sample.End = m.clock.Now()

	label := FormatLabel(sample, m.opts.Trace)

	var req *http.Request
	if m.extractor != nil {
		req = m.extractor.ExtractRequest(c)
	}
	allowed, err := m.opts.Allow.Resolve(ctx, AllowContext{Request: req})
	if err != nil {
		return resp, err
	}

	if allowed && label != "" {
		setHeader(resp, label)
	}
	return resp, nil
}

// setHeader writes the label if resp offers a way to do so. Any failure,
// including a panic from a sealed or nil response, is discarded.
func setHeader(resp any, label string) {
	defer func() {
		_ = recover()
	}()

	switch r := resp.(type) {
	case HeaderSetter:
		_ = r.SetHeader(HeaderServerTiming, label)
	case HeaderCarrier:
		if h := r.Header(); h != nil {
			h.Set(HeaderServerTiming, label)
		}
	case *http.Response:
		if r != nil && r.Header != nil {
			r.Header.Set(HeaderServerTiming, label)
		}
	case http.Header:
		if r != nil {
			r.Set(HeaderServerTiming, label)
		}
	}
}
