package config

import (
	"fmt"
	"strings"

	"nanoclaw/internal/router"
	"nanoclaw/internal/slice/builtin"
)

// ValidationError represents a validation error with context
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

// Error implements the error interface
func (ve ValidationError) Error() string {
	if ve.Field == "" {
		return ve.Message
	}
	return fmt.Sprintf("field '%s': %s", ve.Field, ve.Message)
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface for multiple validation errors
func (ve ValidationErrors) Error() string {
	if len(ve) == 0 {
		return "no validation errors"
	}
	if len(ve) == 1 {
		return ve[0].Error()
	}

	var messages []string
	for _, err := range ve {
		messages = append(messages, err.Error())
	}
	return fmt.Sprintf("validation failed: %s", strings.Join(messages, "; "))
}

// HasErrors returns true if there are any validation errors
func (ve ValidationErrors) HasErrors() bool {
	return len(ve) > 0
}

// Add adds a new validation error
func (ve *ValidationErrors) Add(field, message string, value ...interface{}) {
	var val interface{}
	if len(value) > 0 {
		val = value[0]
	}
	*ve = append(*ve, ValidationError{
		Field:   field,
		Value:   val,
		Message: message,
	})
}

func oneOf(value string, allowed ...string) bool {
	for _, a := range allowed {
		if value == a {
			return true
		}
	}
	return false
}

// Validate checks the whole configuration and returns every problem found.
func (c Config) Validate() ValidationErrors {
	var errs ValidationErrors

	if !oneOf(strings.ToLower(c.Logging.Level), "debug", "info", "warn", "warning", "error") {
		errs.Add("logging.level", "must be one of: debug, info, warn, error", c.Logging.Level)
	}
	if !oneOf(c.Logging.Format, "text", "json") {
		errs.Add("logging.format", "must be one of: text, json", c.Logging.Format)
	}

	if c.Orchestrator.DefaultTimeout <= 0 {
		errs.Add("orchestrator.defaultTimeout", "must be positive", c.Orchestrator.DefaultTimeout)
	}
	if c.Orchestrator.HookTimeout <= 0 {
		errs.Add("orchestrator.hookTimeout", "must be positive", c.Orchestrator.HookTimeout)
	}
	if _, err := c.RouteTable(); err != nil {
		errs.Add("orchestrator.routes", err.Error())
	}

	if c.Allocator.MemoryMB < 0 || c.Allocator.CPUPercent < 0 || c.Allocator.ThroughputPerMinute < 0 {
		errs.Add("allocator", "totals must not be negative")
	}
	if c.Allocator.NearCapacityRatio < 0 || c.Allocator.NearCapacityRatio > 1 {
		errs.Add("allocator.nearCapacityRatio", "must be between 0 and 1", c.Allocator.NearCapacityRatio)
	}

	seen := make(map[string]bool)
	for i, comp := range c.Components {
		field := fmt.Sprintf("components[%d]", i)
		if strings.TrimSpace(comp.ID) == "" {
			errs.Add(field+".id", "is required")
		} else if seen[comp.ID] {
			errs.Add(field+".id", "is a duplicate", comp.ID)
		}
		seen[comp.ID] = true

		if !oneOf(comp.Kind, builtin.Kinds()...) {
			errs.Add(field+".kind", fmt.Sprintf("must be one of: %s", strings.Join(builtin.Kinds(), ", ")), comp.Kind)
		}
		if err := comp.Quota.Validate(); err != nil {
			errs.Add(field+".quota", err.Error())
		}
	}

	if c.Metrics.Enabled {
		if c.Metrics.Listen == "" {
			errs.Add("metrics.listen", "is required when metrics are enabled")
		}
		if !strings.HasPrefix(c.Metrics.Path, "/") {
			errs.Add("metrics.path", "must start with /", c.Metrics.Path)
		}
	}

	return errs
}

// RouteTable builds the route table described by the orchestrator section.
// With no routes configured the built-in route set is used.
func (c Config) RouteTable() (*router.RouteTable, error) {
	routes := c.Orchestrator.Routes
	if len(routes) == 0 {
		routes = router.DefaultRoutes()
	}
	return router.NewRouteTable(c.Orchestrator.DefaultComponent, routes)
}
