package config

import (
	"errors"
	"fmt"
)

// ConfigurationError reports an invalid configuration value.
type ConfigurationError struct {
	Field  string
	Value  any
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("invalid configuration %s=%v: %s", e.Field, e.Value, e.Reason)
}

// NewConfigurationError creates a new ConfigurationError
func NewConfigurationError(field string, value any, reason string) *ConfigurationError {
	return &ConfigurationError{Field: field, Value: value, Reason: reason}
}

// IsConfigurationError checks if the error is, or wraps, a ConfigurationError
func IsConfigurationError(err error) bool {
	var configErr *ConfigurationError
	return errors.As(err, &configErr)
}
