package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

const (
	defaultConfigFile = "config.yaml"

	keyAppEnv        = "app.env"
	keyTimingEnabled = "timing.enabled"
)

// Load loads configuration from multiple sources with priority:
// 1. Environment variables (highest priority)
// 2. config.<env>.yaml
// 3. config.yaml
// 4. Default values (lowest priority)
func Load() (*Config, error) {
	return LoadFrom(defaultConfigFile)
}

// LoadFrom behaves like Load but reads the given base YAML file instead of
// config.yaml. A missing file is not an error.
func LoadFrom(path string) (*Config, error) {
	k := koanf.New(".")

	if err := loadDefaults(k); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if err := loadOptionalFile(k, path); err != nil {
		return nil, err
	}

	if appEnv := k.String(keyAppEnv); appEnv != "" {
		if err := loadOptionalFile(k, envFileName(path, appEnv)); err != nil {
			return nil, err
		}
	}

	if err := k.Load(env.Provider(".", env.Opt{
		TransformFunc: func(key, value string) (string, any) {
			// Convert UPPER_CASE to lower.case for koanf
			return strings.ReplaceAll(strings.ToLower(key), "_", "."), value
		},
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	return build(k)
}

// LoadFromBytes loads defaults overlaid with a YAML document.
// Environment variables are not consulted.
func LoadFromBytes(doc []byte) (*Config, error) {
	k := koanf.New(".")
	if err := loadDefaults(k); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}
	if err := k.Load(rawbytes.Provider(doc), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("failed to parse yaml: %w", err)
	}
	return build(k)
}

// LoadFromMap loads defaults overlaid with flat dotted keys.
// Environment variables are not consulted.
func LoadFromMap(values map[string]any) (*Config, error) {
	k := koanf.New(".")
	if err := loadDefaults(k); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}
	if err := k.Load(confmap.Provider(values, "."), nil); err != nil {
		return nil, fmt.Errorf("failed to load values: %w", err)
	}
	return build(k)
}

func build(k *koanf.Koanf) (*Config, error) {
	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// The timing middleware defaults to off in production only.
	if !k.Exists(keyTimingEnabled) {
		cfg.Timing.Enabled = !IsProduction(cfg.App.Env)
	}

	cfg.k = k

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

func loadOptionalFile(k *koanf.Koanf, path string) error {
	if _, err := os.Stat(path); err != nil {
		return nil
	}
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

// envFileName maps config.yaml + staging to config.staging.yaml.
func envFileName(path, appEnv string) string {
	base, ext, found := strings.Cut(path, ".yaml")
	if !found || ext != "" {
		return path + "." + appEnv
	}
	return base + "." + appEnv + ".yaml"
}

func loadDefaults(k *koanf.Koanf) error {
	defaults := map[string]any{
		"app.name":       "servertiming",
		"app.version":    "v1.0.0",
		"app.env":        EnvDevelopment,
		"app.debug":      false,
		"app.rate.limit": 100,

		"server.host":               "0.0.0.0",
		"server.port":               8080,
		"server.timeout.read":       "15s",
		"server.timeout.write":      "30s",
		"server.timeout.idle":       "60s",
		"server.timeout.middleware": "5s",
		"server.timeout.shutdown":   "10s",
		"server.path.base":          "",
		"server.path.health":        "/health",
		"server.path.ready":         "/ready",

		"log.level":  "info",
		"log.pretty": false,

		// timing.enabled is intentionally absent, see build.
		"timing.allow":        true,
		"timing.exclude":      []string{},
		"timing.trace.handle": true,
		"timing.trace.total":  true,

		"observability.enabled":           false,
		"observability.trace.endpoint":    "stdout",
		"observability.trace.protocol":    "http",
		"observability.trace.sample.rate": 1.0,
	}

	return k.Load(confmap.Provider(defaults, "."), nil)
}
