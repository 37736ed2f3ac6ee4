package observability

import "errors"

// Configuration errors returned by Validate and NewProvider.
var (
	ErrNilConfig             = errors.New("observability: config is nil")
	ErrMissingServiceName    = errors.New("observability: service name is required when enabled")
	ErrInvalidSampleRate     = errors.New("observability: trace sample rate must be within [0, 1]")
	ErrInvalidProtocol       = errors.New("observability: trace protocol must be http or grpc")
	ErrInvalidEndpointFormat = errors.New("observability: endpoint must be a URL for http and host:port for grpc")
)
