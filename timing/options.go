// Package timing measures how long a downstream handler takes and reports the
// result to clients in the Server-Timing response header.
//
// The package is framework-agnostic: a Middleware is parameterized by the
// request context type C handed to it by the integration layer and by the
// response type R produced by the continuation. Adapters for Echo and net/http
// live in the server and nethttp packages.
package timing

// HeaderServerTiming is the W3C Server Timing response header.
const HeaderServerTiming = "Server-Timing"

// Trace selects which segments appear in the timing label.
type Trace struct {
	// Handle includes the "handle;dur=" segment.
	Handle bool
	// Total includes the "total;dur=" segment.
	Total bool
}

// Options configures a Middleware. Options are treated as read-only once
// passed to New, so one value can back any number of concurrent requests.
type Options struct {
	// Enabled turns the middleware into a pass-through when false.
	Enabled bool
	// Allow decides per request whether the header is written.
	// The zero value always allows.
	Allow Allow
	// Trace selects the label segments.
	Trace Trace
	// Clock is the time source. Nil means SystemClock.
	Clock Clock
}

// DefaultOptions returns the options used when nothing is configured.
// The middleware is enabled unless the caller reports a production environment.
func DefaultOptions(production bool) Options {
	return Options{
		Enabled: !production,
		Allow:   AllowAlways(),
		Trace: Trace{
			Handle: true,
			Total:  true,
		},
		Clock: SystemClock{},
	}
}
