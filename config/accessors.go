package config

import "errors"

var errNotLoaded = errors.New("config: not loaded")

// Exists reports whether key is present in the loaded configuration.
func (c *Config) Exists(key string) bool {
	return c != nil && c.k != nil && c.k.Exists(key)
}

// Unmarshal unmarshals a configuration section into the provided struct.
// Sections not modelled in Config, such as observability, are read this way.
func (c *Config) Unmarshal(key string, out any) error {
	if c == nil || c.k == nil {
		return errNotLoaded
	}
	return c.k.Unmarshal(key, out)
}
