// Package git is a small facade over go-git for the single-branch
// read-modify-push cycle the git store performs. Repositories live on an
// fs.Filesystem, so the same code runs on disk and in memory.
package git

import (
	"context"
	"errors"
	"fmt"
	"time"

	gobilly "github.com/go-git/go-billy/v5"
	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/transport"
	"github.com/go-git/go-git/v5/storage"
	"github.com/go-git/go-git/v5/storage/filesystem"

	"github.com/ripeart/CountryBlock/fs"
	"github.com/ripeart/CountryBlock/git/internal/fsbridge"
)

const (
	// DefaultStorerCacheSize is the default size for the LRU object cache.
	DefaultStorerCacheSize = fsbridge.DefaultCacheSize

	// DefaultWorkdir is the default worktree directory name.
	DefaultWorkdir = "."

	// DefaultRemoteName is the remote every operation talks to unless told
	// otherwise.
	DefaultRemoteName = "origin"

	// DefaultBranch is the branch Init points HEAD at.
	DefaultBranch = "main"
)

// Options configures repository creation.
type Options struct {
	// FS is the required filesystem holding all repository state. It must
	// come from the fs/billy package.
	FS fs.Filesystem

	// Workdir is the worktree root within FS. Defaults to ".".
	Workdir string

	// Bare creates or opens a repository without a worktree.
	Bare bool

	// Branch is the branch Init points HEAD at and the branch Clone checks
	// out. Clone fetches only this branch when it is set.
	Branch string

	// StorerCacheSize sets the LRU object cache entries.
	StorerCacheSize int

	// Auth resolves credentials per remote URL. Nil means anonymous.
	Auth AuthProvider

	// ShallowDepth limits clone history when > 0.
	ShallowDepth int
}

// Validate checks that the Options are usable.
func (o *Options) Validate() error {
	if o.FS == nil {
		return WrapError(ErrInvalidRef, "FS is required")
	}
	if o.StorerCacheSize < 0 {
		return WrapError(ErrInvalidRef, "StorerCacheSize cannot be negative")
	}
	if o.ShallowDepth < 0 {
		return WrapError(ErrInvalidRef, "ShallowDepth cannot be negative")
	}
	return nil
}

func (o *Options) applyDefaults() {
	if o.Workdir == "" {
		o.Workdir = DefaultWorkdir
	}
	if o.StorerCacheSize == 0 {
		o.StorerCacheSize = DefaultStorerCacheSize
	}
}

// AuthProvider resolves authentication methods for git operations.
type AuthProvider interface {
	// Method returns the auth method for remoteURL, or nil for anonymous
	// access.
	Method(remoteURL string) (transport.AuthMethod, error)
}

// Signature identifies the author and committer of a commit.
type Signature struct {
	Name  string
	Email string
	When  time.Time
}

// CommitOpts configures commit creation.
type CommitOpts struct {
	// AllowEmpty allows a commit with nothing staged.
	AllowEmpty bool
}

// Repo wraps a go-git repository and its worktree.
//
// A Repo is not safe for concurrent use; callers serialize access.
type Repo struct {
	repo     *git.Repository
	worktree *git.Worktree
	workFS   gobilly.Filesystem
	options  Options
}

// layout resolves the object storage and worktree filesystems for opts.
func layout(opts *Options) (*filesystem.Storage, gobilly.Filesystem, error) {
	billyFS, err := fsbridge.ToBillyFilesystem(opts.FS)
	if err != nil {
		return nil, nil, fmt.Errorf("filesystem conversion failed: %w", err)
	}

	scopedFS, err := billyFS.Chroot(opts.Workdir)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to chroot to workdir %q: %w", opts.Workdir, err)
	}

	if opts.Bare {
		return fsbridge.NewStorage(scopedFS, opts.StorerCacheSize), nil, nil
	}

	dotGitFS, err := scopedFS.Chroot(".git")
	if err != nil {
		return nil, nil, fmt.Errorf("failed to access .git directory: %w", err)
	}
	return fsbridge.NewStorage(dotGitFS, opts.StorerCacheSize), scopedFS, nil
}

func newRepo(repo *git.Repository, workFS gobilly.Filesystem, opts *Options) (*Repo, error) {
	r := &Repo{repo: repo, workFS: workFS, options: *opts}
	if !opts.Bare {
		wt, err := repo.Worktree()
		if err != nil {
			return nil, WrapError(err, "failed to get worktree")
		}
		r.worktree = wt
	}
	return r, nil
}

// Init creates a new repository with HEAD pointing at opts.Branch.
func Init(ctx context.Context, opts *Options) (*Repo, error) {
	if err := opts.Validate(); err != nil {
		return nil, WrapError(err, "invalid options")
	}
	opts.applyDefaults()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	st, workFS, err := layout(opts)
	if err != nil {
		return nil, err
	}

	repo, err := git.Init(st, workFS)
	if err != nil {
		return nil, WrapError(err, "failed to initialize repository")
	}

	branch := opts.Branch
	if branch == "" {
		branch = DefaultBranch
	}
	head := plumbing.NewSymbolicReference(plumbing.HEAD, plumbing.NewBranchReferenceName(branch))
	if err := st.SetReference(head); err != nil {
		return nil, WrapError(err, "failed to set HEAD")
	}

	return newRepo(repo, workFS, opts)
}

// Open opens an existing repository.
func Open(ctx context.Context, opts *Options) (*Repo, error) {
	if err := opts.Validate(); err != nil {
		return nil, WrapError(err, "invalid options")
	}
	opts.applyDefaults()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	st, workFS, err := layout(opts)
	if err != nil {
		return nil, err
	}

	repo, err := git.Open(st, workFS)
	if err != nil {
		return nil, WrapError(err, "failed to open repository")
	}
	return newRepo(repo, workFS, opts)
}

// OpenOrInit opens the repository on opts.FS, or initializes one when the
// filesystem holds none.
func OpenOrInit(ctx context.Context, opts *Options) (*Repo, error) {
	r, err := Open(ctx, opts)
	if errors.Is(err, git.ErrRepositoryNotExists) {
		return Init(ctx, opts)
	}
	return r, err
}

// Clone clones remoteURL. A missing opts.Branch on the remote yields
// ErrBranchMissing; rejected credentials yield ErrAuthRequired or
// ErrAuthFailed.
func Clone(ctx context.Context, remoteURL string, opts *Options) (*Repo, error) {
	if remoteURL == "" {
		return nil, WrapError(ErrInvalidRef, "remote URL cannot be empty")
	}
	if err := opts.Validate(); err != nil {
		return nil, WrapError(err, "invalid options")
	}
	opts.applyDefaults()

	st, workFS, err := layout(opts)
	if err != nil {
		return nil, err
	}

	cloneOpts := &git.CloneOptions{
		URL:          remoteURL,
		Depth:        opts.ShallowDepth,
		SingleBranch: opts.Branch != "" || opts.ShallowDepth > 0,
	}
	if opts.Branch != "" {
		cloneOpts.ReferenceName = plumbing.NewBranchReferenceName(opts.Branch)
	}
	if opts.Auth != nil {
		method, authErr := opts.Auth.Method(remoteURL)
		if authErr != nil {
			return nil, fmt.Errorf("failed to get authentication method: %w: %w", ErrAuthRequired, authErr)
		}
		cloneOpts.Auth = method
	}

	repo, err := git.CloneContext(ctx, st, workFS, cloneOpts)
	if err != nil {
		return nil, mapTransportError(err, "failed to clone repository")
	}
	return newRepo(repo, workFS, opts)
}

// Storer exposes the object and reference storage, for serving the
// repository to other clients.
//
//nolint:ireturn // storage.Storer is the go-git contract
func (r *Repo) Storer() storage.Storer {
	return r.repo.Storer
}

// Head returns the commit hash HEAD points at.
func (r *Repo) Head(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	ref, err := r.repo.Head()
	if err != nil {
		return "", WrapError(ErrResolveFailed, "failed to resolve HEAD")
	}
	return ref.Hash().String(), nil
}

// auth returns the auth method for the named remote, or nil.
//
//nolint:ireturn // go-git consumes transport.AuthMethod
func (r *Repo) auth(remote string) (transport.AuthMethod, error) {
	if r.options.Auth == nil {
		return nil, nil
	}
	rem, err := r.repo.Remote(remote)
	if err != nil {
		return nil, mapTransportError(err, "failed to get remote configuration")
	}
	urls := rem.Config().URLs
	if len(urls) == 0 {
		return nil, WrapErrorf(ErrInvalidRef, "remote %q has no URL", remote)
	}
	method, err := r.options.Auth.Method(urls[0])
	if err != nil {
		return nil, fmt.Errorf("failed to get authentication method: %w: %w", ErrAuthRequired, err)
	}
	return method, nil
}
