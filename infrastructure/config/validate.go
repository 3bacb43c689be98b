package config

import (
	"errors"
	"fmt"
	"net/url"
	"time"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Validator is implemented by config sections that can validate themselves.
type Validator interface {
	Validate() error
}

// ValidateAll runs every validator and joins the failures.
func ValidateAll(validators ...Validator) error {
	var errs []error
	for _, v := range validators {
		if err := v.Validate(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// ValidateRequired checks that a string field is not empty.
func ValidateRequired(field, value string) error {
	if value == "" {
		return &ValidationError{Field: field, Message: "is required"}
	}
	return nil
}

// ValidatePort checks if a port number is valid.
func ValidatePort(field string, port int) error {
	if port < 1 || port > 65535 {
		return &ValidationError{Field: field, Message: "must be between 1 and 65535"}
	}
	return nil
}

// ValidateURL checks that value is an absolute URL with one of the given schemes.
// An empty value is accepted; combine with ValidateRequired when mandatory.
func ValidateURL(field, value string, schemes ...string) error {
	if value == "" {
		return nil
	}
	u, err := url.Parse(value)
	if err != nil || u.Host == "" {
		return &ValidationError{Field: field, Message: "must be an absolute URL"}
	}
	for _, s := range schemes {
		if u.Scheme == s {
			return nil
		}
	}
	return &ValidationError{Field: field, Message: fmt.Sprintf("scheme must be one of %v", schemes)}
}

// ValidateDurationRange checks min <= d <= max.
func ValidateDurationRange(field string, d, minimum, maximum time.Duration) error {
	if d < minimum || d > maximum {
		return &ValidationError{Field: field, Message: fmt.Sprintf("must be between %s and %s", minimum, maximum)}
	}
	return nil
}

// ValidatePositive checks n > 0.
func ValidatePositive(field string, n int) error {
	if n <= 0 {
		return &ValidationError{Field: field, Message: "must be positive"}
	}
	return nil
}

// ValidateLogLevel checks if a log level is valid.
func ValidateLogLevel(level string) error {
	switch level {
	case "debug", "info", "warn", "warning", "error", "fatal":
		return nil
	default:
		return &ValidationError{Field: "logging.level", Message: "must be one of: debug, info, warn, error, fatal"}
	}
}
