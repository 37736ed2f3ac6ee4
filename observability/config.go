package observability

import (
	"maps"
	"strings"
	"time"
)

const (
	// EndpointStdout is a special endpoint value that outputs to stdout (for local development).
	EndpointStdout = "stdout"

	// ProtocolHTTP specifies OTLP over HTTP/protobuf.
	ProtocolHTTP = "http"

	// ProtocolGRPC specifies OTLP over gRPC.
	ProtocolGRPC = "grpc"

	// EnvironmentDevelopment is the default environment name for development mode.
	EnvironmentDevelopment = "development"

	defaultServiceVersion = "unknown"
	defaultSampleRate     = 1.0
	defaultBatchTimeout   = 5 * time.Second
	defaultExportTimeout  = 30 * time.Second
)

// Float64Ptr returns a pointer to the provided float64 value.
func Float64Ptr(v float64) *float64 {
	return &v
}

// Config defines the tracing configuration read from the "observability"
// section.
type Config struct {
	// Enabled controls whether spans are exported.
	// When false, NewProvider returns a no-op provider.
	Enabled bool `koanf:"enabled" mapstructure:"enabled"`

	// Service identifies the service in exported spans.
	// Name is required when Enabled is true.
	Service ServiceConfig `koanf:"service" mapstructure:"service"`

	// Environment is reported as deployment.environment.name.
	Environment string `koanf:"environment" mapstructure:"environment"`

	Trace TraceConfig `koanf:"trace" mapstructure:"trace"`
}

// ServiceConfig contains service identification metadata.
type ServiceConfig struct {
	Name    string `koanf:"name" mapstructure:"name"`
	Version string `koanf:"version" mapstructure:"version"`
}

// TraceConfig selects the span exporter and its batching.
type TraceConfig struct {
	// Endpoint is "stdout" or an OTLP collector address.
	// HTTP endpoints carry a scheme (http://host:4318); gRPC endpoints are host:port.
	Endpoint string `koanf:"endpoint" mapstructure:"endpoint"`

	// Protocol is "http" or "grpc". Ignored for stdout.
	Protocol string `koanf:"protocol" mapstructure:"protocol"`

	// Insecure disables TLS for OTLP export.
	Insecure bool `koanf:"insecure" mapstructure:"insecure"`

	// Headers are sent with every export request, e.g. API keys.
	Headers map[string]string `koanf:"headers" mapstructure:"headers"`

	Sample SampleConfig `koanf:"sample" mapstructure:"sample"`
	Batch  BatchConfig  `koanf:"batch" mapstructure:"batch"`
	Export ExportConfig `koanf:"export" mapstructure:"export"`
}

// SampleConfig holds the trace sampling ratio.
type SampleConfig struct {
	// Rate in [0.0, 1.0]; nil means 1.0.
	Rate *float64 `koanf:"rate" mapstructure:"rate"`
}

// BatchConfig holds the batch span processor timeout.
type BatchConfig struct {
	Timeout time.Duration `koanf:"timeout" mapstructure:"timeout"`
}

// ExportConfig holds the per-export timeout.
type ExportConfig struct {
	Timeout time.Duration `koanf:"timeout" mapstructure:"timeout"`
}

// ApplyDefaults sets default values for any config fields that are not specified.
func (c *Config) ApplyDefaults() {
	if c.Service.Version == "" {
		c.Service.Version = defaultServiceVersion
	}
	if c.Environment == "" {
		c.Environment = EnvironmentDevelopment
	}
	if c.Trace.Endpoint == "" {
		c.Trace.Endpoint = EndpointStdout
	}
	if c.Trace.Protocol == "" {
		c.Trace.Protocol = ProtocolHTTP
	}
	if c.Trace.Sample.Rate == nil {
		c.Trace.Sample.Rate = Float64Ptr(defaultSampleRate)
	}
	if c.Trace.Batch.Timeout <= 0 {
		c.Trace.Batch.Timeout = defaultBatchTimeout
	}
	if c.Trace.Export.Timeout <= 0 {
		c.Trace.Export.Timeout = defaultExportTimeout
	}
	c.Trace.Headers = cloneHeaderMap(c.Trace.Headers)
}

// Validate checks the configuration for common errors.
func (c *Config) Validate() error {
	if c == nil {
		return ErrNilConfig
	}
	if !c.Enabled {
		return nil
	}
	if c.Service.Name == "" {
		return ErrMissingServiceName
	}

	if rate := c.Trace.Sample.Rate; rate != nil && (*rate < 0.0 || *rate > 1.0) {
		return ErrInvalidSampleRate
	}

	if c.Trace.Endpoint == EndpointStdout || c.Trace.Endpoint == "" {
		return nil
	}

	protocol := c.Trace.Protocol
	if protocol == "" {
		protocol = ProtocolHTTP
	}
	switch protocol {
	case ProtocolHTTP, ProtocolGRPC:
		return validateEndpointFormat(c.Trace.Endpoint, protocol)
	default:
		return ErrInvalidProtocol
	}
}

// validateEndpointFormat checks that the endpoint format matches the protocol.
func validateEndpointFormat(endpoint, protocol string) error {
	hasScheme := strings.HasPrefix(endpoint, "http://") || strings.HasPrefix(endpoint, "https://")

	if protocol == ProtocolGRPC && hasScheme {
		return ErrInvalidEndpointFormat
	}
	if protocol == ProtocolHTTP && !hasScheme {
		return ErrInvalidEndpointFormat
	}
	return nil
}

func cloneHeaderMap(headers map[string]string) map[string]string {
	if headers == nil {
		return nil
	}
	clone := make(map[string]string, len(headers))
	maps.Copy(clone, headers)
	return clone
}
