// Package gitstore implements store.Store on a remote git repository.
//
// Every operation first fetches the branch and hard-resets a private clone
// to it, so reads always reflect the remote. Revisions are blob hashes.
// Writes commit a single file and push without force; a rejected push means
// another actor moved the branch and is reported as store.ErrConflict.
//
// A remote without the branch, including a freshly created empty
// repository, reads as empty. The first Create pushes the branch.
package gitstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/ripeart/CountryBlock/fs"
	billyfs "github.com/ripeart/CountryBlock/fs/billy"
	"github.com/ripeart/CountryBlock/git"
	"github.com/ripeart/CountryBlock/store"
)

// Default commit identity.
const (
	DefaultAuthorName  = "CountryBlock"
	DefaultAuthorEmail = "countryblock@users.noreply.github.com"
)

// Config configures a Store.
type Config struct {
	// URL is the remote repository. Required.
	URL string

	// Branch is the only branch this Store serves. Required.
	Branch string

	// Remote names the remote in the local clone. Defaults to "origin".
	Remote string

	// AuthorName and AuthorEmail sign the commits.
	AuthorName  string
	AuthorEmail string

	// Auth resolves credentials for URL. Nil means anonymous.
	Auth git.AuthProvider

	// FS holds the local clone. Defaults to an in-memory filesystem.
	FS fs.Filesystem

	// Depth limits clone history when > 0.
	Depth int

	Logger *slog.Logger
	Now    func() time.Time
}

// Store is a store.Store backed by a git remote. It is safe for concurrent
// use; operations are serialized.
type Store struct {
	mu   sync.Mutex
	cfg  Config
	repo *git.Repo

	// unborn is set while the remote has no commits on the branch.
	unborn bool
}

// New validates cfg and returns a Store. The remote is contacted lazily by
// the first operation.
func New(cfg Config) (*Store, error) {
	if cfg.URL == "" {
		return nil, errors.New("gitstore: URL is required")
	}
	if cfg.Branch == "" {
		return nil, errors.New("gitstore: branch is required")
	}
	if cfg.Remote == "" {
		cfg.Remote = git.DefaultRemoteName
	}
	if cfg.AuthorName == "" {
		cfg.AuthorName = DefaultAuthorName
	}
	if cfg.AuthorEmail == "" {
		cfg.AuthorEmail = DefaultAuthorEmail
	}
	if cfg.FS == nil {
		cfg.FS = billyfs.NewInMemoryFS()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Store{cfg: cfg}, nil
}

// Get implements store.Store.
func (s *Store) Get(ctx context.Context, path, branch string) (*store.Object, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.refresh(ctx, branch); err != nil {
		return nil, err
	}
	if s.unborn {
		return nil, fmt.Errorf("%s on %s: %w", path, s.cfg.Branch, store.ErrNotFound)
	}
	data, rev, err := s.repo.ReadFile(ctx, s.tip(), path)
	if errors.Is(err, git.ErrFileNotFound) {
		return nil, fmt.Errorf("%s on %s: %w", path, s.cfg.Branch, store.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &store.Object{Path: path, Content: data, Revision: rev}, nil
}

// Create implements store.Store.
func (s *Store) Create(ctx context.Context, path string, content []byte, message, branch string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.refresh(ctx, branch); err != nil {
		return "", err
	}
	if s.unborn {
		return s.commit(ctx, path, content, message)
	}
	_, _, err := s.repo.ReadFile(ctx, s.tip(), path)
	switch {
	case err == nil:
		return "", fmt.Errorf("%s already exists on %s: %w", path, s.cfg.Branch, store.ErrConflict)
	case !errors.Is(err, git.ErrFileNotFound):
		return "", err
	}
	return s.commit(ctx, path, content, message)
}

// Update implements store.Store.
func (s *Store) Update(ctx context.Context, path string, content []byte, message, revision, branch string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.refresh(ctx, branch); err != nil {
		return "", err
	}
	if s.unborn {
		return "", fmt.Errorf("%s on %s: branch has no commits: %w", path, s.cfg.Branch, store.ErrConflict)
	}
	_, current, err := s.repo.ReadFile(ctx, s.tip(), path)
	switch {
	case errors.Is(err, git.ErrFileNotFound):
		return "", fmt.Errorf("%s was deleted on %s: %w", path, s.cfg.Branch, store.ErrConflict)
	case err != nil:
		return "", err
	case current != revision:
		return "", fmt.Errorf("%s on %s is at %s, not %s: %w", path, s.cfg.Branch, current, revision, store.ErrConflict)
	}
	return s.commit(ctx, path, content, message)
}

// DirExists implements store.DirProber.
func (s *Store) DirExists(ctx context.Context, dir, branch string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.refresh(ctx, branch); err != nil {
		return false, err
	}
	if s.unborn {
		return false, nil
	}
	return s.repo.DirExists(ctx, s.tip(), dir)
}

// NativeDirectories implements store.DirectoryNative. Git tracks files
// only, so empty directories need marker files.
func (s *Store) NativeDirectories() bool { return false }

func (s *Store) tip() string {
	return git.RemoteBranchRef(s.cfg.Remote, s.cfg.Branch)
}

// refresh brings the local clone to the remote tip, discarding anything
// left over from a failed write. A missing remote branch leaves the Store
// unborn rather than failing.
func (s *Store) refresh(ctx context.Context, branch string) error {
	if branch != "" && branch != s.cfg.Branch {
		return fmt.Errorf("gitstore: serving branch %q, asked for %q", s.cfg.Branch, branch)
	}

	if s.repo == nil {
		s.cfg.Logger.Debug("opening repository", slog.String("url", s.cfg.URL), slog.String("branch", s.cfg.Branch))
		repo, err := git.OpenOrInit(ctx, &git.Options{
			FS:           s.cfg.FS,
			Branch:       s.cfg.Branch,
			Auth:         s.cfg.Auth,
			ShallowDepth: s.cfg.Depth,
		})
		if err != nil {
			return err
		}
		if err := repo.EnsureRemote(s.cfg.Remote, s.cfg.URL); err != nil {
			return err
		}
		s.repo = repo
	}

	err := s.repo.Fetch(ctx, s.cfg.Remote, s.cfg.Branch)
	switch {
	case errors.Is(err, git.ErrBranchMissing):
		if !s.unborn {
			s.cfg.Logger.Info("remote branch does not exist yet",
				slog.String("url", s.cfg.URL),
				slog.String("branch", s.cfg.Branch))
		}
		s.unborn = true
		return nil
	case err != nil && !errors.Is(err, git.ErrAlreadyUpToDate):
		return mapError(err)
	}
	s.unborn = false
	return s.repo.ResetHard(ctx, s.tip())
}

// commit writes path, commits it and pushes. It returns the blob hash of
// content as the new revision.
func (s *Store) commit(ctx context.Context, path string, content []byte, message string) (string, error) {
	if err := s.repo.WriteFile(ctx, path, content); err != nil {
		return "", err
	}
	if err := s.repo.Add(ctx, path); err != nil {
		return "", err
	}

	who := git.Signature{Name: s.cfg.AuthorName, Email: s.cfg.AuthorEmail, When: s.cfg.Now()}
	hash, err := s.repo.Commit(ctx, message, who, git.CommitOpts{})
	switch {
	case errors.Is(err, git.ErrEmptyCommit):
		return git.BlobHash(content), nil
	case err != nil:
		return "", err
	}

	if err := s.repo.Push(ctx, s.cfg.Remote, s.cfg.Branch); err != nil && !errors.Is(err, git.ErrAlreadyUpToDate) {
		return "", mapError(err)
	}
	s.cfg.Logger.Debug("pushed commit",
		slog.String("path", path),
		slog.String("commit", hash),
		slog.String("branch", s.cfg.Branch))
	return git.BlobHash(content), nil
}

func mapError(err error) error {
	switch {
	case errors.Is(err, git.ErrNotFastForward):
		return fmt.Errorf("%w: %w", store.ErrConflict, err)
	case errors.Is(err, git.ErrAuthRequired), errors.Is(err, git.ErrAuthFailed):
		return fmt.Errorf("%w: %w", store.ErrAccessDenied, err)
	default:
		return err
	}
}
