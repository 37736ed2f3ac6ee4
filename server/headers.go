package server

import "github.com/gaborage/servertiming/timing"

// HTTP Header Constants
//
// Headers already provided by Echo (echo.HeaderContentType,
// echo.HeaderXRequestID, etc.) should be used directly from the echo package.

const (
	// HeaderServerTiming carries the handle/total latency label.
	// Set by the ServerTiming middleware when permitted.
	HeaderServerTiming = timing.HeaderServerTiming
)
