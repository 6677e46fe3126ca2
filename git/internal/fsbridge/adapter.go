// Package fsbridge adapts fs.Filesystem to the go-billy filesystems and
// storers go-git works on.
package fsbridge

import (
	"fmt"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-git/v5/plumbing/cache"
	"github.com/go-git/go-git/v5/storage/filesystem"

	"github.com/ripeart/CountryBlock/fs"
	fsb "github.com/ripeart/CountryBlock/fs/billy"
)

// DefaultCacheSize is the object cache size, in objects, used when none is
// configured.
const DefaultCacheSize = 1000

// ToBillyFilesystem unwraps an fs/billy filesystem. Other implementations
// are rejected because go-git needs the billy API.
//
//nolint:ireturn // go-git consumes billy.Filesystem
func ToBillyFilesystem(fsys fs.Filesystem) (billy.Filesystem, error) {
	b, ok := fsys.(*fsb.FS)
	if !ok {
		return nil, fmt.Errorf("filesystem must be a billy.FS from fs/billy package, got %T", fsys)
	}
	return b.Raw(), nil
}

// NewStorage returns a git object storage on dotGit with an LRU object
// cache.
func NewStorage(dotGit billy.Filesystem, cacheSize int) *filesystem.Storage {
	if cacheSize <= 0 {
		cacheSize = DefaultCacheSize
	}
	return filesystem.NewStorage(dotGit, cache.NewObjectLRU(cache.FileSize(cacheSize)))
}
