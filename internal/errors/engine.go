package errors

import (
	"errors"
	"fmt"
)

// The engine distinguishes four failure families. Per-row rejections
// and chronology ambiguities are never fatal to a batch; configuration
// and query errors abort the call that raised them.

// ConfigurationError reports a missing aggregation rule, source or
// precondition when a series is requested.
type ConfigurationError struct {
	Msg string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error: %s", e.Msg)
}

// NewConfigurationError creates a ConfigurationError with a formatted message
func NewConfigurationError(format string, args ...any) *ConfigurationError {
	return &ConfigurationError{Msg: fmt.Sprintf(format, args...)}
}

// IsConfigurationError reports whether err is a ConfigurationError
func IsConfigurationError(err error) bool {
	var ce *ConfigurationError
	return errors.As(err, &ce)
}

// QueryError reports a lookup against a metric or timestamp that the
// series does not contain. It is a caller error, surfaced immediately
// with no partial result.
type QueryError struct {
	Msg string
}

func (e *QueryError) Error() string {
	return fmt.Sprintf("query error: %s", e.Msg)
}

// NewQueryError creates a QueryError with a formatted message
func NewQueryError(format string, args ...any) *QueryError {
	return &QueryError{Msg: fmt.Sprintf(format, args...)}
}

// IsQueryError reports whether err is a QueryError
func IsQueryError(err error) bool {
	var qe *QueryError
	return errors.As(err, &qe)
}

// RecordRejection explains why a single input row was excluded from a
// batch. Rejections are collected and logged, never raised.
type RecordRejection struct {
	Row    int
	Field  string
	Reason string
}

func (e RecordRejection) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("row %d: field %q: %s", e.Row, e.Field, e.Reason)
	}
	return fmt.Sprintf("row %d: %s", e.Row, e.Reason)
}
