package fsbridge

import (
	"os"
	"testing"

	"github.com/go-git/go-billy/v5/memfs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ripeart/CountryBlock/fs"
	"github.com/ripeart/CountryBlock/fs/billy"
)

func TestToBillyFilesystem(t *testing.T) {
	t.Run("billy.FS unwraps", func(t *testing.T) {
		mem := memfs.New()
		got, err := ToBillyFilesystem(billy.NewFS(mem))
		require.NoError(t, err)
		assert.Equal(t, mem, got)
	})

	t.Run("other implementations are rejected", func(t *testing.T) {
		var other fs.Filesystem = otherFS{}
		got, err := ToBillyFilesystem(other)
		assert.Nil(t, got)
		assert.ErrorContains(t, err, "filesystem must be a billy.FS")
	})
}

func TestNewStorage(t *testing.T) {
	for _, size := range []int{-1, 0, 50} {
		s := NewStorage(memfs.New(), size)
		assert.NotNil(t, s, "cache size %d", size)
	}
}

type otherFS struct{}

func (otherFS) Exists(string) (bool, error)                  { return false, nil }
func (otherFS) MkdirAll(string, os.FileMode) error           { return nil }
func (otherFS) ReadDir(string) ([]os.FileInfo, error)        { return nil, nil }
func (otherFS) ReadFile(string) ([]byte, error)              { return nil, nil }
func (otherFS) Remove(string) error                          { return nil }
func (otherFS) Rename(string, string) error                  { return nil }
func (otherFS) Stat(string) (os.FileInfo, error)             { return nil, nil }
func (otherFS) WriteFile(string, []byte, os.FileMode) error  { return nil }
