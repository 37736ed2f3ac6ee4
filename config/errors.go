package config

import (
	"fmt"
	"strings"
)

const (
	categoryMissing = "missing"
	categoryInvalid = "invalid"
)

// ConfigError describes one rejected configuration key and how to fix it.
//
//nolint:revive // exported as config.ConfigError on purpose
type ConfigError struct {
	Category string // "missing" or "invalid"
	Field    string // dotted key, e.g. "timing.exclude"
	Message  string
	Action   string
}

// Error renders "config_<category>: <field> <message> <action>", skipping
// empty parts.
func (e *ConfigError) Error() string {
	var b strings.Builder
	for _, part := range []string{"config_" + e.Category + ":", e.Field, e.Message, e.Action} {
		if part == "" || part == "config_:" {
			continue
		}
		if b.Len() > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(part)
	}
	return b.String()
}

// NewMissingFieldError reports a required key that resolved to nothing.
func NewMissingFieldError(field, envVar, yamlPath string) *ConfigError {
	return &ConfigError{
		Category: categoryMissing,
		Field:    field,
		Message:  "required",
		Action:   fmt.Sprintf("set %s env var or add %s to config.yaml", envVar, yamlPath),
	}
}

// NewInvalidFieldError reports a key whose value failed validation. With
// validOptions the action lists the accepted values.
func NewInvalidFieldError(field, message string, validOptions []string) *ConfigError {
	err := &ConfigError{Category: categoryInvalid, Field: field, Message: message}
	if len(validOptions) > 0 {
		err.Action = "must be one of: " + strings.Join(validOptions, ", ")
	}
	return err
}
