package config

import (
	"time"

	"github.com/knadh/koanf/v2"
)

// Config represents the overall service configuration.
// The embedded koanf.Koanf instance allows flexible access to keys
// not modelled in the struct.
type Config struct {
	App    AppConfig    `koanf:"app" json:"app" yaml:"app" mapstructure:"app"`
	Server ServerConfig `koanf:"server" json:"server" yaml:"server" mapstructure:"server"`
	Log    LogConfig    `koanf:"log" json:"log" yaml:"log" mapstructure:"log"`
	Timing TimingConfig `koanf:"timing" json:"timing" yaml:"timing" mapstructure:"timing"`

	// k holds the underlying Koanf instance for flexible access to custom configurations
	k *koanf.Koanf `json:"-" yaml:"-" mapstructure:"-"`
}

// AppConfig holds general application settings.
type AppConfig struct {
	Name    string     `koanf:"name" json:"name" yaml:"name" mapstructure:"name" validate:"required"`
	Version string     `koanf:"version" json:"version" yaml:"version" mapstructure:"version" validate:"required"`
	Env     string     `koanf:"env" json:"env" yaml:"env" mapstructure:"env" validate:"oneof=development dev staging production"`
	Debug   bool       `koanf:"debug" json:"debug" yaml:"debug" mapstructure:"debug"`
	Rate    RateConfig `koanf:"rate" json:"rate" yaml:"rate" mapstructure:"rate"`
}

// RateConfig holds rate limiting settings.
type RateConfig struct {
	Limit int `koanf:"limit" json:"limit" yaml:"limit" mapstructure:"limit" validate:"gte=0"` // requests per second per client, 0 disables
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host    string        `koanf:"host" json:"host" yaml:"host" mapstructure:"host"`
	Port    int           `koanf:"port" json:"port" yaml:"port" mapstructure:"port" validate:"min=1,max=65535"`
	Timeout TimeoutConfig `koanf:"timeout" json:"timeout" yaml:"timeout" mapstructure:"timeout"`
	Path    PathConfig    `koanf:"path" json:"path" yaml:"path" mapstructure:"path"`
}

// TimeoutConfig holds various timeout durations for the server.
type TimeoutConfig struct {
	Read       time.Duration `koanf:"read" json:"read" yaml:"read" mapstructure:"read" validate:"gt=0"`
	Write      time.Duration `koanf:"write" json:"write" yaml:"write" mapstructure:"write" validate:"gt=0"`
	Idle       time.Duration `koanf:"idle" json:"idle" yaml:"idle" mapstructure:"idle"`
	Middleware time.Duration `koanf:"middleware" json:"middleware" yaml:"middleware" mapstructure:"middleware"`
	Shutdown   time.Duration `koanf:"shutdown" json:"shutdown" yaml:"shutdown" mapstructure:"shutdown"`
}

// PathConfig holds URL path settings for the server.
type PathConfig struct {
	Base   string `koanf:"base" json:"base" yaml:"base" mapstructure:"base"`
	Health string `koanf:"health" json:"health" yaml:"health" mapstructure:"health"`
	Ready  string `koanf:"ready" json:"ready" yaml:"ready" mapstructure:"ready"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `koanf:"level" json:"level" yaml:"level" mapstructure:"level" validate:"oneof=trace debug info warn error fatal panic disabled"`
	Pretty bool   `koanf:"pretty" json:"pretty" yaml:"pretty" mapstructure:"pretty"`
}

// TimingConfig holds Server-Timing middleware settings.
type TimingConfig struct {
	// Enabled turns the middleware on. When the key is absent it is derived
	// from app.env: enabled everywhere except production.
	Enabled bool `koanf:"enabled" json:"enabled" yaml:"enabled" mapstructure:"enabled"`

	// Allow is the static permission to write the header.
	Allow bool `koanf:"allow" json:"allow" yaml:"allow" mapstructure:"allow"`

	// Exclude lists request path suffixes that never receive the header.
	Exclude []string `koanf:"exclude" json:"exclude" yaml:"exclude" mapstructure:"exclude" validate:"dive,required,startswith=/"`

	Trace TimingTraceConfig `koanf:"trace" json:"trace" yaml:"trace" mapstructure:"trace"`
}

// TimingTraceConfig selects the reported segments.
type TimingTraceConfig struct {
	Handle bool `koanf:"handle" json:"handle" yaml:"handle" mapstructure:"handle"`
	Total  bool `koanf:"total" json:"total" yaml:"total" mapstructure:"total"`
}
