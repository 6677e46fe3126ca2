package config

import (
	"fmt"

	cberrors "github.com/ripeart/CountryBlock/errors"
)

// ConfigurationError reports a missing or invalid setting. It is always
// raised before any network activity.
type ConfigurationError struct {
	// Field is the dotted configuration path, e.g. "store.s3.bucket".
	Field string
	Err   error
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("invalid configuration: %s: %v", e.Field, e.Err)
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// ErrorCode implements errors.Coder.
func (e *ConfigurationError) ErrorCode() cberrors.ErrorCode { return cberrors.CodeInvalidConfig }

func invalidf(field, format string, args ...any) *ConfigurationError {
	return &ConfigurationError{Field: field, Err: fmt.Errorf(format, args...)}
}
