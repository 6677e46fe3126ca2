package errors

import (
	"errors"
	"fmt"
	"maps"
)

// Coder is implemented by errors that carry an ErrorCode.
type Coder interface {
	ErrorCode() ErrorCode
}

// PlatformError is an error with a stable code, a human message, optional
// key/value context and an optional cause.
type PlatformError struct {
	Code    ErrorCode
	Message string
	Context map[string]any
	Cause   error
}

// Error implements the error interface.
func (e *PlatformError) Error() string {
	if e.Cause == nil {
		return fmt.Sprintf("[%s] %s", e.Code, e.Message)
	}
	return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
}

// Unwrap returns the cause.
func (e *PlatformError) Unwrap() error {
	return e.Cause
}

// ErrorCode implements Coder.
func (e *PlatformError) ErrorCode() ErrorCode {
	return e.Code
}

// New creates a PlatformError without a cause.
func New(code ErrorCode, message string) *PlatformError {
	return &PlatformError{Code: code, Message: message}
}

// Newf creates a PlatformError with a formatted message.
func Newf(code ErrorCode, format string, args ...any) *PlatformError {
	return &PlatformError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a code and message to err. It returns nil when err is nil.
func Wrap(err error, code ErrorCode, message string) error {
	if err == nil {
		return nil
	}
	return &PlatformError{Code: code, Message: message, Cause: err}
}

// WrapWithContext is Wrap with additional key/value context for diagnostics.
func WrapWithContext(err error, code ErrorCode, message string, ctx map[string]any) error {
	if err == nil {
		return nil
	}
	return &PlatformError{Code: code, Message: message, Context: maps.Clone(ctx), Cause: err}
}

// CodeOf returns the first code found in err's chain, or CodeUnknown.
// A nil error has no code and yields the empty string.
func CodeOf(err error) ErrorCode {
	if err == nil {
		return ""
	}
	var c Coder
	if errors.As(err, &c) {
		return c.ErrorCode()
	}
	return CodeUnknown
}

// ContextOf merges the context maps of every PlatformError in err's chain.
// Outer errors win on key collisions.
func ContextOf(err error) map[string]any {
	out := map[string]any{}
	for err != nil {
		if pe, ok := err.(*PlatformError); ok {
			for k, v := range pe.Context {
				if _, seen := out[k]; !seen {
					out[k] = v
				}
			}
		}
		err = errors.Unwrap(err)
	}
	return out
}

// IsRetryable reports whether err carries a retryable code.
func IsRetryable(err error) bool {
	return CodeOf(err).Retryable()
}

// Is, As and Unwrap re-export the standard library helpers so callers that
// import this package under the name errors keep access to them.
var (
	Is     = errors.Is
	As     = errors.As
	Unwrap = errors.Unwrap
	Join   = errors.Join
)
