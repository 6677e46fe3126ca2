package cidr

import (
	"errors"
	"fmt"

	cberrors "github.com/ripeart/CountryBlock/errors"
)

var (
	// ErrInvalidRange is matched by every *InvalidRangeError.
	ErrInvalidRange = errors.New("invalid CIDR range")

	// ErrFragmentTooWide is returned by Split when one fragment alone exceeds
	// the chunk width.
	ErrFragmentTooWide = errors.New("fragment exceeds chunk width")

	// ErrEmptyFragment is returned by Split for an empty fragment, which would
	// produce a dangling alternation.
	ErrEmptyFragment = errors.New("empty fragment")
)

// InvalidRangeError reports one malformed CIDR entry. Line is 1-based and
// zero when the input did not come from a list.
type InvalidRangeError struct {
	Line   int
	Input  string
	Reason string
}

func invalid(input, reason string) *InvalidRangeError {
	return &InvalidRangeError{Input: input, Reason: reason}
}

func (e *InvalidRangeError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("line %d: invalid CIDR %q: %s", e.Line, e.Input, e.Reason)
	}
	return fmt.Sprintf("invalid CIDR %q: %s", e.Input, e.Reason)
}

func (e *InvalidRangeError) Unwrap() error {
	return ErrInvalidRange
}

// ErrorCode implements errors.Coder.
func (e *InvalidRangeError) ErrorCode() cberrors.ErrorCode {
	return cberrors.CodeInvalidRange
}
