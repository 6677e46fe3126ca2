// Package fsstore implements store.Store on a local directory, for dry runs
// against a working copy and for publishing to a mounted share.
//
// Revisions are the hex SHA-256 of the content. Branches map to nothing;
// every branch sees the same files. Writes go through a temporary file and a
// rename, so readers never observe a partial artifact.
package fsstore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	iofs "io/fs"
	"path"
	"strings"
	"sync"

	"github.com/ripeart/CountryBlock/fs"
	"github.com/ripeart/CountryBlock/store"
)

const tmpSuffix = ".countryblock-tmp"

// Store is a store.Store on an fs.Filesystem. Revision checks are only
// atomic within one process.
type Store struct {
	mu sync.Mutex
	fs fs.Filesystem
}

// New returns a Store writing into fsys.
func New(fsys fs.Filesystem) *Store {
	return &Store{fs: fsys}
}

// NativeDirectories implements store.DirectoryNative.
func (s *Store) NativeDirectories() bool { return true }

// Revision returns the revision token of content.
func Revision(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}

// Get implements store.Store.
func (s *Store) Get(ctx context.Context, p, _ string) (*store.Object, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := s.read(p)
	if err != nil {
		return nil, err
	}
	return &store.Object{Path: p, Content: data, Revision: Revision(data)}, nil
}

// Create implements store.Store.
func (s *Store) Create(ctx context.Context, p string, content []byte, _, _ string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	clean, err := cleanPath(p)
	if err != nil {
		return "", err
	}
	exists, err := s.fs.Exists(clean)
	if err != nil {
		return "", err
	}
	if exists {
		return "", fmt.Errorf("%s already exists: %w", p, store.ErrConflict)
	}
	return s.write(clean, content)
}

// Update implements store.Store.
func (s *Store) Update(ctx context.Context, p string, content []byte, _, revision, _ string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	current, err := s.read(p)
	switch {
	case errors.Is(err, store.ErrNotFound):
		return "", fmt.Errorf("%s was removed: %w", p, store.ErrConflict)
	case err != nil:
		return "", err
	}
	if Revision(current) != revision {
		return "", fmt.Errorf("%s changed since revision %s: %w", p, revision, store.ErrConflict)
	}

	clean, _ := cleanPath(p)
	return s.write(clean, content)
}

func (s *Store) read(p string) ([]byte, error) {
	clean, err := cleanPath(p)
	if err != nil {
		return nil, err
	}
	data, err := s.fs.ReadFile(clean)
	if errors.Is(err, iofs.ErrNotExist) {
		return nil, fmt.Errorf("%s: %w", p, store.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return data, nil
}

func (s *Store) write(clean string, content []byte) (string, error) {
	if dir := path.Dir(clean); dir != "." {
		if err := s.fs.MkdirAll(dir, 0o755); err != nil {
			return "", err
		}
	}
	tmp := clean + tmpSuffix
	if err := s.fs.WriteFile(tmp, content, 0o644); err != nil {
		return "", err
	}
	if err := s.fs.Rename(tmp, clean); err != nil {
		_ = s.fs.Remove(tmp)
		return "", err
	}
	return Revision(content), nil
}

func cleanPath(p string) (string, error) {
	c := strings.TrimPrefix(path.Clean("/"+p), "/")
	if c == "" {
		return "", fmt.Errorf("fsstore: invalid path %q", p)
	}
	return c, nil
}
