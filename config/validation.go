package config

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

// Environment constants
const (
	EnvDevelopment = "development"
	EnvStaging     = "staging"
	EnvProduction  = "production"
)

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

func structValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		validate.RegisterTagNameFunc(func(f reflect.StructField) string {
			name, _, _ := strings.Cut(f.Tag.Get("koanf"), ",")
			if name == "-" {
				return ""
			}
			return name
		})
	})
	return validate
}

// IsProduction reports whether env names the production environment.
func IsProduction(env string) bool {
	return env == EnvProduction
}

// Validate checks cfg against its struct tags. The first problem is returned
// as a *ConfigError.
func Validate(cfg *Config) error {
	if err := structValidator().Struct(cfg); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
			return fieldError(fieldErrs[0])
		}
		return err
	}

	return nil
}

// fieldError converts a validator failure into a ConfigError keyed by the
// dotted koanf path, e.g. "Config.server.port" becomes "server.port".
func fieldError(fe validator.FieldError) *ConfigError {
	_, path, _ := strings.Cut(fe.Namespace(), ".")

	switch fe.Tag() {
	case "required":
		envVar := strings.ToUpper(strings.ReplaceAll(path, ".", "_"))
		return NewMissingFieldError(path, envVar, path)
	case "oneof":
		return NewInvalidFieldError(path, fmt.Sprintf("invalid value %v", fe.Value()), strings.Fields(fe.Param()))
	default:
		msg := fmt.Sprintf("failed %q check", fe.Tag())
		if fe.Param() != "" {
			msg = fmt.Sprintf("failed %q check (%s)", fe.Tag(), fe.Param())
		}
		return NewInvalidFieldError(path, msg, nil)
	}
}
