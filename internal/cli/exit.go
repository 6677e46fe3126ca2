package cli

import (
	"errors"
	"fmt"

	"github.com/ripeart/CountryBlock/pipeline"
)

// Exit statuses.
const (
	ExitOK             = pipeline.ExitOK
	ExitAborted        = pipeline.ExitAborted
	ExitArtifactFailed = pipeline.ExitArtifactFailed
)

// ExitError carries the process exit status of a failed command.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("exit status %d", e.Code)
	}
	return e.Err.Error()
}

func (e *ExitError) Unwrap() error { return e.Err }

// ExitCode returns the status for err: 0 for nil, the carried code for an
// *ExitError and ExitAborted otherwise.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	var ee *ExitError
	if errors.As(err, &ee) {
		return ee.Code
	}
	return ExitAborted
}
