// Package fs defines the filesystem abstraction shared by the local store,
// the git working tree and the CLI. The billy sub-package provides the
// in-memory and OS-backed implementations.
package fs

import "os"

// Filesystem is the subset of file operations the stores need. Errors for
// missing paths must satisfy errors.Is(err, fs.ErrNotExist).
type Filesystem interface {
	Exists(path string) (bool, error)
	MkdirAll(path string, perm os.FileMode) error
	ReadDir(dirname string) ([]os.FileInfo, error)
	ReadFile(path string) ([]byte, error)
	Remove(name string) error
	Rename(oldpath, newpath string) error
	Stat(name string) (os.FileInfo, error)
	WriteFile(filename string, data []byte, perm os.FileMode) error
}
