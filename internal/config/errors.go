package config

import (
	"errors"
	"fmt"
	"strings"
)

// Error types reported in ConfigurationError.ErrorType.
const (
	ErrorTypeIO         = "io"
	ErrorTypeParse      = "parse"
	ErrorTypeValidation = "validation"
)

// ConfigurationError represents a structured error that occurs during configuration loading
type ConfigurationError struct {
	FilePath  string `json:"filePath"`
	ErrorType string `json:"errorType"`
	Message   string `json:"message"`

	// Problems is set for validation errors.
	Problems ValidationErrors `json:"problems,omitempty"`
}

// Error implements the error interface
func (ce *ConfigurationError) Error() string {
	source := ce.FilePath
	if source == "" {
		source = "defaults"
	}
	return fmt.Sprintf("[%s] %s: %s", ce.ErrorType, source, ce.Message)
}

// DetailedError returns a multi-line message listing every validation problem.
func (ce *ConfigurationError) DetailedError() string {
	if len(ce.Problems) == 0 {
		return ce.Error()
	}
	source := ce.FilePath
	if source == "" {
		source = "defaults"
	}
	parts := []string{fmt.Sprintf("Configuration in %s has %d problems:", source, len(ce.Problems))}
	for _, p := range ce.Problems {
		parts = append(parts, "  - "+p.Error())
	}
	return strings.Join(parts, "\n")
}

// IsValidationError reports whether err is a configuration validation failure.
func IsValidationError(err error) bool {
	var ce *ConfigurationError
	return errors.As(err, &ce) && ce.ErrorType == ErrorTypeValidation
}
