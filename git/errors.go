package git

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/transport"
)

// Sentinel errors returned by Repo operations. Check them with errors.Is.
var (
	// ErrAlreadyUpToDate is returned by Fetch and Push when nothing changed.
	ErrAlreadyUpToDate = errors.New("already up to date")

	// ErrAuthRequired is returned when the remote demands credentials that
	// were not provided.
	ErrAuthRequired = errors.New("authentication required")

	// ErrAuthFailed is returned when the remote rejected the credentials.
	ErrAuthFailed = errors.New("authentication failed")

	// ErrBranchMissing is returned when the remote has no such branch.
	ErrBranchMissing = errors.New("branch does not exist")

	// ErrNotFastForward is returned by Push when the remote branch moved
	// since the last fetch.
	ErrNotFastForward = errors.New("not a fast-forward")

	// ErrInvalidRef is returned for malformed options, paths or revisions.
	ErrInvalidRef = errors.New("invalid reference")

	// ErrResolveFailed is returned when a revision does not resolve to a
	// commit.
	ErrResolveFailed = errors.New("cannot resolve revision")

	// ErrEmptyCommit is returned by Commit when nothing is staged.
	ErrEmptyCommit = errors.New("nothing to commit")

	// ErrFileNotFound is returned by ReadFile when the path is absent in
	// the revision.
	ErrFileNotFound = errors.New("file not found")
)

// WrapError wraps err with msg, keeping it matchable with errors.Is.
func WrapError(err error, msg string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", msg, err)
}

// WrapErrorf is WrapError with a format string.
func WrapErrorf(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}

// mapTransportError translates go-git network errors to the sentinels above.
func mapTransportError(err error, msg string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, git.NoErrAlreadyUpToDate):
		return ErrAlreadyUpToDate
	case errors.Is(err, transport.ErrAuthenticationRequired):
		return fmt.Errorf("%s: %w: %w", msg, ErrAuthRequired, err)
	case errors.Is(err, transport.ErrAuthorizationFailed):
		return fmt.Errorf("%s: %w: %w", msg, ErrAuthFailed, err)
	case errors.Is(err, transport.ErrRepositoryNotFound), errors.Is(err, git.ErrRemoteNotFound):
		return fmt.Errorf("%s: %w: %w", msg, ErrResolveFailed, err)
	case errors.Is(err, transport.ErrEmptyRemoteRepository),
		errors.Is(err, plumbing.ErrReferenceNotFound),
		strings.Contains(err.Error(), "couldn't find remote ref"):
		return fmt.Errorf("%s: %w: %w", msg, ErrBranchMissing, err)
	case errors.Is(err, git.ErrNonFastForwardUpdate),
		errors.Is(err, git.ErrForceNeeded),
		strings.Contains(err.Error(), "non-fast-forward"):
		return fmt.Errorf("%s: %w: %w", msg, ErrNotFastForward, err)
	default:
		return WrapError(err, msg)
	}
}
