// Package store defines the remote, version-controlled file store the sync
// engine writes artifacts into. Adapters live in the sub-packages.
package store

import (
	"context"
	"errors"
)

var (
	// ErrNotFound is returned by Get when nothing exists at the path.
	ErrNotFound = errors.New("store: not found")

	// ErrConflict is returned by Create when the path already exists and by
	// Update when the revision is stale.
	ErrConflict = errors.New("store: revision conflict")

	// ErrAccessDenied marks authentication and authorization failures.
	ErrAccessDenied = errors.New("store: access denied")
)

// Object is the observed state of one path.
type Object struct {
	Path     string
	Content  []byte
	Revision string
}

// Store is the remote store contract. Revisions are opaque tokens; Update
// must reject a revision that no longer identifies the current content.
type Store interface {
	Get(ctx context.Context, path, branch string) (*Object, error)
	Create(ctx context.Context, path string, content []byte, message, branch string) (string, error)
	Update(ctx context.Context, path string, content []byte, message, revision, branch string) (string, error)
}

// DirectoryNative is implemented by stores that create intermediate
// directories implicitly. The engine skips marker files for them.
type DirectoryNative interface {
	NativeDirectories() bool
}

// DirProber is implemented by stores that can tell whether a directory
// exists without a marker file.
type DirProber interface {
	DirExists(ctx context.Context, dir, branch string) (bool, error)
}

// HasNativeDirectories reports whether s creates directories implicitly.
func HasNativeDirectories(s Store) bool {
	dn, ok := s.(DirectoryNative)
	return ok && dn.NativeDirectories()
}
