package git

import (
	"errors"
	"testing"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/transport"
	"github.com/stretchr/testify/assert"
)

func TestMapTransportError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"up to date", git.NoErrAlreadyUpToDate, ErrAlreadyUpToDate},
		{"auth required", transport.ErrAuthenticationRequired, ErrAuthRequired},
		{"auth failed", transport.ErrAuthorizationFailed, ErrAuthFailed},
		{"repo missing", transport.ErrRepositoryNotFound, ErrResolveFailed},
		{"empty remote", transport.ErrEmptyRemoteRepository, ErrBranchMissing},
		{"ref missing", errors.New(`couldn't find remote ref "refs/heads/x"`), ErrBranchMissing},
		{"non fast forward", git.ErrNonFastForwardUpdate, ErrNotFastForward},
		{"rejected by server", errors.New("refs/heads/main: non-fast-forward update"), ErrNotFastForward},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := mapTransportError(tt.err, "op")
			assert.ErrorIs(t, got, tt.want)
		})
	}

	assert.NoError(t, mapTransportError(nil, "op"))

	other := errors.New("boom")
	assert.ErrorIs(t, mapTransportError(other, "op"), other)
}

func TestWrapError(t *testing.T) {
	assert.NoError(t, WrapError(nil, "x"))
	assert.NoError(t, WrapErrorf(nil, "x %d", 1))

	err := WrapErrorf(ErrInvalidRef, "path %q", "a")
	assert.ErrorIs(t, err, ErrInvalidRef)
	assert.Equal(t, `path "a": invalid reference`, err.Error())
}
