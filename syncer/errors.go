package syncer

import (
	"errors"
	"fmt"

	cberrors "github.com/ripeart/CountryBlock/errors"
	"github.com/ripeart/CountryBlock/store"
)

// ConflictError reports that the path changed between the engine's read and
// its write. The store content was left untouched.
type ConflictError struct {
	Path     string
	Revision string
	Err      error
}

func (e *ConflictError) Error() string {
	if e.Revision == "" {
		return fmt.Sprintf("conflict creating %s: %v", e.Path, e.Err)
	}
	return fmt.Sprintf("conflict updating %s: revision %s is stale: %v", e.Path, e.Revision, e.Err)
}

func (e *ConflictError) Unwrap() error { return e.Err }

// ErrorCode implements errors.Coder.
func (e *ConflictError) ErrorCode() cberrors.ErrorCode { return cberrors.CodeConflict }

// StoreAccessError reports a failed store operation other than a conflict.
type StoreAccessError struct {
	Op   string
	Path string
	Err  error
}

func (e *StoreAccessError) Error() string {
	return fmt.Sprintf("store %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *StoreAccessError) Unwrap() error { return e.Err }

// ErrorCode implements errors.Coder.
func (e *StoreAccessError) ErrorCode() cberrors.ErrorCode {
	if errors.Is(e.Err, store.ErrAccessDenied) {
		return cberrors.CodeUnauthorized
	}
	return cberrors.CodeStoreAccess
}
