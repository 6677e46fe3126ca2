// Package memstore is an in-memory store.Store. It counts every call and can
// inject failures or concurrent writes, which makes it the reference fake for
// sync engine tests.
package memstore

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"slices"
	"strconv"
	"sync"

	"github.com/ripeart/CountryBlock/store"
)

// Operation names used for counting and error injection.
const (
	OpGet    = "get"
	OpCreate = "create"
	OpUpdate = "update"
)

type entry struct {
	content  []byte
	revision string
}

// Calls counts the operations a Store has served.
type Calls struct {
	Gets    int
	Creates int
	Updates int
}

// Mutations returns the number of mutating calls.
func (c Calls) Mutations() int {
	return c.Creates + c.Updates
}

// Store keeps files per branch in memory. It is safe for concurrent use.
type Store struct {
	mu       sync.Mutex
	branches map[string]map[string]entry
	next     int
	calls    Calls
	failures map[string]error
	native   bool

	beforeUpdate func(path string)
}

// Option configures a Store.
type Option func(*Store)

// WithNativeDirectories makes the store report native directories, so the
// engine skips marker files.
func WithNativeDirectories() Option {
	return func(s *Store) { s.native = true }
}

// WithBeforeUpdate registers a hook run at the start of every Update,
// before the revision check. Tests use it to simulate another actor
// writing between the engine's read and its write.
func WithBeforeUpdate(fn func(path string)) Option {
	return func(s *Store) { s.beforeUpdate = fn }
}

// New returns an empty store.
func New(opts ...Option) *Store {
	s := &Store{
		branches: map[string]map[string]entry{},
		failures: map[string]error{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NativeDirectories implements store.DirectoryNative.
func (s *Store) NativeDirectories() bool {
	return s.native
}

// Fail makes every subsequent op on p return err.
func (s *Store) Fail(op, p string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[op+" "+p] = err
}

// Put writes content directly, bypassing revision checks and counters, as
// an external actor would.
func (s *Store) Put(branch, p string, content []byte) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.write(branch, p, content)
}

// Content returns the content at p and whether it exists.
func (s *Store) Content(branch, p string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.branches[branch][clean(p)]
	return bytes.Clone(e.content), ok
}

// Paths lists the stored paths of a branch in sorted order.
func (s *Store) Paths(branch string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for p := range s.branches[branch] {
		out = append(out, p)
	}
	slices.Sort(out)
	return out
}

// Calls returns the operation counters.
func (s *Store) Calls() Calls {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// ResetCalls zeroes the operation counters.
func (s *Store) ResetCalls() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = Calls{}
}

// Get implements store.Store.
func (s *Store) Get(ctx context.Context, p, branch string) (*store.Object, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls.Gets++

	if err := s.failures[OpGet+" "+p]; err != nil {
		return nil, err
	}
	e, ok := s.branches[branch][clean(p)]
	if !ok {
		return nil, fmt.Errorf("%s on %s: %w", p, branch, store.ErrNotFound)
	}
	return &store.Object{Path: p, Content: bytes.Clone(e.content), Revision: e.revision}, nil
}

// Create implements store.Store.
func (s *Store) Create(ctx context.Context, p string, content []byte, message, branch string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls.Creates++

	if err := s.failures[OpCreate+" "+p]; err != nil {
		return "", err
	}
	if _, ok := s.branches[branch][clean(p)]; ok {
		return "", fmt.Errorf("%s already exists on %s: %w", p, branch, store.ErrConflict)
	}
	return s.write(branch, p, content), nil
}

// Update implements store.Store.
func (s *Store) Update(ctx context.Context, p string, content []byte, message, revision, branch string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if s.beforeUpdate != nil {
		s.beforeUpdate(p)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls.Updates++

	if err := s.failures[OpUpdate+" "+p]; err != nil {
		return "", err
	}
	e, ok := s.branches[branch][clean(p)]
	if !ok || e.revision != revision {
		return "", fmt.Errorf("%s on %s changed since revision %s: %w", p, branch, revision, store.ErrConflict)
	}
	return s.write(branch, p, content), nil
}

func (s *Store) write(branch, p string, content []byte) string {
	files, ok := s.branches[branch]
	if !ok {
		files = map[string]entry{}
		s.branches[branch] = files
	}
	s.next++
	rev := strconv.Itoa(s.next)
	files[clean(p)] = entry{content: bytes.Clone(content), revision: rev}
	return rev
}

func clean(p string) string {
	return path.Clean("/" + p)[1:]
}
