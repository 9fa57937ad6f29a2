package config

import (
	"fmt"
	"strings"
)

// Problem is one invalid or missing setting.
type Problem struct {
	// Field is the environment variable, or the field path for values with
	// no variable.
	Field  string
	Reason string
}

func (p Problem) String() string {
	return p.Field + ": " + p.Reason
}

// ConfigurationError reports every problem found while validating a
// configuration. It is returned when the chain is built, never at the first
// invocation.
type ConfigurationError struct {
	Problems []Problem
}

// NewConfigurationError returns a ConfigurationError with a single problem.
func NewConfigurationError(field, reason string) *ConfigurationError {
	return &ConfigurationError{Problems: []Problem{{Field: field, Reason: reason}}}
}

func (e *ConfigurationError) Error() string {
	parts := make([]string, 0, len(e.Problems))
	for _, p := range e.Problems {
		parts = append(parts, p.String())
	}
	return fmt.Sprintf("configuration errors: %s", strings.Join(parts, "; "))
}

// Has reports whether field has a problem.
func (e *ConfigurationError) Has(field string) bool {
	for _, p := range e.Problems {
		if p.Field == field {
			return true
		}
	}
	return false
}
