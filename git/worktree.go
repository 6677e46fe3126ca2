package git

import (
	"context"
	"errors"
	"io"
	"path"
	"strings"

	"github.com/go-git/go-billy/v5/util"
	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
)

// cleanRepoPath normalizes p to a slash-separated path relative to the
// worktree root.
func cleanRepoPath(p string) (string, error) {
	c := strings.TrimPrefix(path.Clean("/"+p), "/")
	if c == "" || c == ".git" || strings.HasPrefix(c, ".git/") {
		return "", WrapErrorf(ErrInvalidRef, "invalid path %q", p)
	}
	return c, nil
}

// WriteFile writes data to p in the worktree, creating parent directories.
func (r *Repo) WriteFile(ctx context.Context, p string, data []byte) error {
	if r.worktree == nil {
		return WrapError(ErrInvalidRef, "cannot write files in bare repository")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	p, err := cleanRepoPath(p)
	if err != nil {
		return err
	}
	if dir := path.Dir(p); dir != "." {
		if err := r.workFS.MkdirAll(dir, 0o755); err != nil {
			return WrapErrorf(err, "failed to create %q", dir)
		}
	}
	if err := util.WriteFile(r.workFS, p, data, 0o644); err != nil {
		return WrapErrorf(err, "failed to write %q", p)
	}
	return nil
}

// Add stages files in the worktree. Glob patterns are expanded; paths
// that match nothing are skipped.
func (r *Repo) Add(ctx context.Context, paths ...string) error {
	if r.worktree == nil {
		return WrapError(ErrInvalidRef, "cannot add files in bare repository")
	}

	var toAdd []string
	for _, p := range paths {
		if err := ctx.Err(); err != nil {
			return err
		}
		if p == "" {
			continue
		}
		if strings.ContainsAny(p, "*?[") {
			matches, err := util.Glob(r.workFS, p)
			if err != nil {
				return WrapErrorf(err, "invalid glob pattern %q", p)
			}
			toAdd = append(toAdd, matches...)
			continue
		}
		if _, err := r.workFS.Stat(p); err != nil {
			continue
		}
		toAdd = append(toAdd, p)
	}

	for _, p := range toAdd {
		if _, err := r.worktree.Add(p); err != nil {
			return WrapErrorf(err, "failed to add %q", p)
		}
	}
	return nil
}

// Commit records the staged changes and returns the commit hash. Returns
// ErrEmptyCommit when nothing is staged unless opts.AllowEmpty is set.
func (r *Repo) Commit(ctx context.Context, msg string, who Signature, opts CommitOpts) (string, error) {
	if r.worktree == nil {
		return "", WrapError(ErrInvalidRef, "cannot commit in bare repository")
	}
	if msg == "" {
		return "", WrapError(ErrInvalidRef, "commit message cannot be empty")
	}
	if who.Name == "" || who.Email == "" {
		return "", WrapError(ErrInvalidRef, "committer name and email are required")
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	status, err := r.worktree.Status()
	if err != nil {
		return "", WrapError(err, "failed to get worktree status")
	}
	staged := 0
	for _, st := range status {
		if st.Staging != git.Untracked && st.Staging != git.Unmodified {
			staged++
		}
	}
	if staged == 0 && !opts.AllowEmpty {
		return "", WrapError(ErrEmptyCommit, "no changes staged for commit")
	}

	sig := &object.Signature{Name: who.Name, Email: who.Email, When: who.When}
	hash, err := r.worktree.Commit(msg, &git.CommitOptions{
		Author:            sig,
		Committer:         sig,
		AllowEmptyCommits: opts.AllowEmpty,
	})
	if err != nil {
		if errors.Is(err, git.ErrEmptyCommit) {
			return "", ErrEmptyCommit
		}
		return "", WrapError(err, "failed to create commit")
	}
	return hash.String(), nil
}

// ReadFile returns the content of p at rev together with its blob hash.
// Returns ErrFileNotFound when p does not exist at rev.
func (r *Repo) ReadFile(ctx context.Context, rev, p string) ([]byte, string, error) {
	if err := ctx.Err(); err != nil {
		return nil, "", err
	}
	p, err := cleanRepoPath(p)
	if err != nil {
		return nil, "", err
	}
	commit, err := r.commitAt(rev)
	if err != nil {
		return nil, "", err
	}

	file, err := commit.File(p)
	if errors.Is(err, object.ErrFileNotFound) {
		return nil, "", WrapErrorf(ErrFileNotFound, "%s at %s", p, rev)
	}
	if err != nil {
		return nil, "", WrapErrorf(err, "failed to look up %q", p)
	}

	rd, err := file.Reader()
	if err != nil {
		return nil, "", WrapErrorf(err, "failed to open %q", p)
	}
	defer rd.Close()

	data, err := io.ReadAll(rd)
	if err != nil {
		return nil, "", WrapErrorf(err, "failed to read %q", p)
	}
	return data, file.Hash.String(), nil
}

// DirExists reports whether dir is a directory in the tree of rev.
func (r *Repo) DirExists(ctx context.Context, rev, dir string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	dir, err := cleanRepoPath(dir)
	if err != nil {
		return false, err
	}
	commit, err := r.commitAt(rev)
	if err != nil {
		return false, err
	}
	tree, err := commit.Tree()
	if err != nil {
		return false, WrapError(err, "failed to read tree")
	}

	_, err = tree.Tree(dir)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, object.ErrDirectoryNotFound):
		return false, nil
	default:
		return false, WrapErrorf(err, "failed to look up %q", dir)
	}
}

// BlobHash returns the revision token git would assign to content.
func BlobHash(content []byte) string {
	return plumbing.ComputeHash(plumbing.BlobObject, content).String()
}

func (r *Repo) commitAt(rev string) (*object.Commit, error) {
	hash, err := r.resolve(rev)
	if err != nil {
		return nil, err
	}
	commit, err := r.repo.CommitObject(hash)
	if err != nil {
		return nil, WrapErrorf(ErrResolveFailed, "revision %q is not a commit", rev)
	}
	return commit, nil
}
