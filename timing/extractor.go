package timing

import "net/http"

// RequestExtractor pulls the HTTP request out of a framework's request
// context. Each integration supplies its own so the middleware never has to
// inspect context shapes.
type RequestExtractor[C any] interface {
	ExtractRequest(c C) *http.Request
}

// ExtractorFunc adapts a function to RequestExtractor.
type ExtractorFunc[C any] func(c C) *http.Request

// ExtractRequest implements RequestExtractor.
func (f ExtractorFunc[C]) ExtractRequest(c C) *http.Request { return f(c) }

// RequestItself is the extractor for integrations whose context already is
// the *http.Request.
func RequestItself() RequestExtractor[*http.Request] {
	return ExtractorFunc[*http.Request](func(r *http.Request) *http.Request { return r })
}

type requestAccessor interface {
	Request() *http.Request
}

type reqAccessor interface {
	Req() *http.Request
}

// FallbackExtractor serves integrations that hand over an untyped context.
// It tries, in order: a Request() accessor (echo.Context and similar), a
// Req() accessor, and finally the value itself as a *http.Request. An
// accessor returning nil falls through to the next step.
type FallbackExtractor struct{}

// ExtractRequest implements RequestExtractor.
func (FallbackExtractor) ExtractRequest(c any) *http.Request {
	if a, ok := c.(requestAccessor); ok {
		if r := a.Request(); r != nil {
			return r
		}
	}
	if a, ok := c.(reqAccessor); ok {
		if r := a.Req(); r != nil {
			return r
		}
	}
	if r, ok := c.(*http.Request); ok {
		return r
	}
	return nil
}
