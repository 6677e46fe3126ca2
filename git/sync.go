package git

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
)

// RemoteBranchRef returns the remote-tracking reference of branch, e.g.
// "refs/remotes/origin/main".
func RemoteBranchRef(remote, branch string) string {
	if remote == "" {
		remote = DefaultRemoteName
	}
	return plumbing.NewRemoteReferenceName(remote, branch).String()
}

// EnsureRemote configures remote to point at url. An existing remote of
// that name is left untouched.
func (r *Repo) EnsureRemote(remote, url string) error {
	if remote == "" {
		remote = DefaultRemoteName
	}
	if url == "" {
		return WrapError(ErrInvalidRef, "remote URL cannot be empty")
	}
	_, err := r.repo.CreateRemote(&config.RemoteConfig{Name: remote, URLs: []string{url}})
	if err != nil && !errors.Is(err, git.ErrRemoteExists) {
		return WrapErrorf(err, "failed to configure remote %q", remote)
	}
	return nil
}

// Fetch updates the remote-tracking reference of branch, forcing it to the
// remote state. An empty branch fetches the remote's configured refspecs.
// Returns ErrAlreadyUpToDate if nothing changed.
func (r *Repo) Fetch(ctx context.Context, remote, branch string) error {
	if remote == "" {
		remote = DefaultRemoteName
	}

	fetchOpts := &git.FetchOptions{
		RemoteName: remote,
		Depth:      r.options.ShallowDepth,
		Force:      true,
	}
	if branch != "" {
		fetchOpts.RefSpecs = []config.RefSpec{
			config.RefSpec(fmt.Sprintf("+%s:%s", plumbing.NewBranchReferenceName(branch), RemoteBranchRef(remote, branch))),
		}
	}

	method, err := r.auth(remote)
	if err != nil {
		return err
	}
	fetchOpts.Auth = method

	return mapTransportError(r.repo.FetchContext(ctx, fetchOpts), "failed to fetch from remote")
}

// Push pushes the local branch to the same branch on the remote without
// force. Returns ErrNotFastForward when the remote moved since the last
// fetch and ErrAlreadyUpToDate when there was nothing to push.
func (r *Repo) Push(ctx context.Context, remote, branch string) error {
	if remote == "" {
		remote = DefaultRemoteName
	}
	if branch == "" {
		return WrapError(ErrInvalidRef, "branch is required")
	}

	ref := plumbing.NewBranchReferenceName(branch)
	pushOpts := &git.PushOptions{
		RemoteName: remote,
		RefSpecs:   []config.RefSpec{config.RefSpec(fmt.Sprintf("%s:%s", ref, ref))},
	}

	method, err := r.auth(remote)
	if err != nil {
		return err
	}
	pushOpts.Auth = method

	return mapTransportError(r.repo.PushContext(ctx, pushOpts), "failed to push to remote")
}

// ResetHard moves the current branch to rev and makes the index and the
// worktree match it. Untracked files are removed as well.
func (r *Repo) ResetHard(ctx context.Context, rev string) error {
	if r.worktree == nil {
		return WrapError(ErrInvalidRef, "cannot reset a bare repository")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	hash, err := r.resolve(rev)
	if err != nil {
		return err
	}
	if err := r.bornBranch(hash); err != nil {
		return err
	}
	if err := r.worktree.Reset(&git.ResetOptions{Commit: hash, Mode: git.HardReset}); err != nil {
		return WrapErrorf(err, "failed to reset to %s", rev)
	}
	if err := r.worktree.Clean(&git.CleanOptions{Dir: true}); err != nil {
		return WrapError(err, "failed to clean worktree")
	}
	return nil
}

// bornBranch points an unborn current branch at hash. go-git refuses to
// reset a branch that has no reference yet.
func (r *Repo) bornBranch(hash plumbing.Hash) error {
	head, err := r.repo.Storer.Reference(plumbing.HEAD)
	if err != nil {
		return WrapError(ErrResolveFailed, "failed to read HEAD")
	}
	if head.Type() != plumbing.SymbolicReference {
		return nil
	}
	_, err = r.repo.Storer.Reference(head.Target())
	switch {
	case errors.Is(err, plumbing.ErrReferenceNotFound):
		return r.repo.Storer.SetReference(plumbing.NewHashReference(head.Target(), hash))
	case err != nil:
		return WrapErrorf(err, "failed to read %s", head.Target())
	}
	return nil
}

func (r *Repo) resolve(rev string) (plumbing.Hash, error) {
	hash, err := r.repo.ResolveRevision(plumbing.Revision(rev))
	if err != nil {
		return plumbing.ZeroHash, WrapErrorf(ErrResolveFailed, "revision %q", rev)
	}
	return *hash, nil
}
