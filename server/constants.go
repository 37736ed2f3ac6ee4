package server

import "time"

// HTTP Server Defaults

const (
	// DefaultShutdownTimeout bounds graceful shutdown when the configuration
	// leaves server.timeout.shutdown unset.
	DefaultShutdownTimeout = 30 * time.Second

	// DefaultSlowRequestThreshold marks requests as slow in action logs.
	DefaultSlowRequestThreshold = time.Second

	// DefaultBodyLimit caps request bodies.
	DefaultBodyLimit = "10M"
)
