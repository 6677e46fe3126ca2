package secrets

import (
	"errors"
	"fmt"

	cberrors "github.com/ripeart/CountryBlock/errors"
)

var (
	// ErrSecretNotFound indicates the provider has no such secret or version.
	ErrSecretNotFound = errors.New("secret not found")

	// ErrProviderError indicates a failure inside the provider.
	ErrProviderError = errors.New("provider error")

	// ErrInvalidRef indicates a malformed SecretRef, e.g. an empty path.
	ErrInvalidRef = errors.New("invalid secret reference")

	// ErrAccessDenied indicates the provider refused access.
	ErrAccessDenied = errors.New("access denied")

	// ErrProviderNotFound indicates no provider is registered under a name.
	ErrProviderNotFound = errors.New("provider not registered")
)

// ProviderError wraps a provider failure with the provider name and the
// reference that was being resolved.
type ProviderError struct {
	Provider string
	Ref      SecretRef
	Err      error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider %q error for secret %q: %v", e.Provider, e.Ref.Path, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// ErrorCode implements errors.Coder. A missing secret is a configuration
// problem from the caller's point of view.
func (e *ProviderError) ErrorCode() cberrors.ErrorCode {
	switch {
	case errors.Is(e.Err, ErrSecretNotFound), errors.Is(e.Err, ErrInvalidRef):
		return cberrors.CodeInvalidConfig
	case errors.Is(e.Err, ErrAccessDenied):
		return cberrors.CodeForbidden
	default:
		return cberrors.CodeUnavailable
	}
}

// NewProviderError returns a ProviderError.
func NewProviderError(provider string, ref SecretRef, err error) *ProviderError {
	return &ProviderError{
		Provider: provider,
		Ref:      ref,
		Err:      err,
	}
}

// IsProviderError reports whether err contains a ProviderError.
func IsProviderError(err error) bool {
	var pe *ProviderError
	return errors.As(err, &pe)
}

// WrapProviderError wraps err in a ProviderError prefixed with msg. A nil err
// stays nil.
func WrapProviderError(provider string, ref SecretRef, err error, msg string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", msg, NewProviderError(provider, ref, err))
}
