// Package syncer makes the content of a path in a remote store equal to a
// desired artifact, issuing no mutation when it already is.
//
// Each Sync starts with a blind read; no state is kept between calls. An
// update always carries the revision that was read, so a concurrent write by
// another actor surfaces as a *ConflictError instead of being overwritten.
// Nothing is retried.
package syncer

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"path"
	"strings"
	"time"

	"github.com/ripeart/CountryBlock/artifact"
	cberrors "github.com/ripeart/CountryBlock/errors"
	"github.com/ripeart/CountryBlock/store"
)

const (
	// DefaultMarkerName is the placeholder file that materializes a directory
	// in stores without native directories.
	DefaultMarkerName = ".gitkeep"

	// DefaultMarkerMessage is the change description of marker files.
	DefaultMarkerMessage = "Create missing directory"
)

// Outcome is the terminal state of one Sync.
type Outcome int

const (
	// Created means the artifact was absent and has been written.
	Created Outcome = iota + 1
	// Skipped means the stored content already matched.
	Skipped
	// Updated means differing stored content was replaced.
	Updated
	// Failed means the artifact was not synced; Result.Err says why.
	Failed
)

func (o Outcome) String() string {
	switch o {
	case Created:
		return "created"
	case Skipped:
		return "skipped"
	case Updated:
		return "updated"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// Result describes what Sync did for one artifact.
type Result struct {
	Kind     artifact.Kind
	Path     string
	Outcome  Outcome
	Revision string
	// Markers lists the marker files created, or that would be created in a
	// dry run.
	Markers  []string
	DryRun   bool
	Duration time.Duration
	Err      error
}

// Changed reports whether the store content was (or, in a dry run, would be)
// modified.
func (r Result) Changed() bool {
	return r.Outcome == Created || r.Outcome == Updated
}

// Engine synchronizes artifacts into one store branch.
type Engine struct {
	store         store.Store
	branch        string
	logger        *slog.Logger
	markerName    string
	markerMessage string
	dryRun        bool
	now           func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithBranch selects the store branch. Stores without branches ignore it.
func WithBranch(branch string) Option {
	return func(e *Engine) { e.branch = branch }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithMarkerName overrides DefaultMarkerName.
func WithMarkerName(name string) Option {
	return func(e *Engine) { e.markerName = name }
}

// WithMarkerMessage overrides DefaultMarkerMessage.
func WithMarkerMessage(msg string) Option {
	return func(e *Engine) { e.markerMessage = msg }
}

// WithDryRun makes Sync read and compare but never mutate. The result
// carries the outcome a real run would have produced.
func WithDryRun(dryRun bool) Option {
	return func(e *Engine) { e.dryRun = dryRun }
}

// WithClock replaces time.Now for duration measurement.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// New returns an Engine writing into s.
func New(s store.Store, opts ...Option) *Engine {
	e := &Engine{
		store:         s,
		logger:        slog.New(slog.NewTextHandler(io.Discard, nil)),
		markerName:    DefaultMarkerName,
		markerMessage: DefaultMarkerMessage,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Sync makes the store content at a.Path equal a.Content.
func (e *Engine) Sync(ctx context.Context, a artifact.Artifact) Result {
	start := e.now()
	res := e.sync(ctx, a)
	res.Kind = a.Kind
	res.Path = a.Path
	res.DryRun = e.dryRun
	res.Duration = e.now().Sub(start)

	attrs := []any{
		slog.String("artifact", string(a.Kind)),
		slog.String("path", a.Path),
		slog.String("outcome", res.Outcome.String()),
		slog.Bool("dry_run", e.dryRun),
	}
	if res.Err != nil {
		e.logger.Error("artifact sync failed", append(attrs,
			slog.String("code", cberrors.CodeOf(res.Err).String()),
			slog.Any("error", res.Err))...)
	} else {
		e.logger.Info("artifact synced", append(attrs, slog.String("revision", res.Revision))...)
	}
	return res
}

func (e *Engine) sync(ctx context.Context, a artifact.Artifact) Result {
	p, err := cleanPath(a.Path)
	if err != nil {
		return Result{Outcome: Failed, Err: err}
	}

	obj, err := e.store.Get(ctx, p, e.branch)
	switch {
	case errors.Is(err, store.ErrNotFound):
		return e.create(ctx, p, a)
	case err != nil:
		return Result{Outcome: Failed, Err: &StoreAccessError{Op: "get", Path: p, Err: err}}
	}

	if bytes.Equal(obj.Content, a.Content) {
		return Result{Outcome: Skipped, Revision: obj.Revision}
	}
	if e.dryRun {
		return Result{Outcome: Updated, Revision: obj.Revision}
	}

	rev, err := e.store.Update(ctx, p, a.Content, a.Message, obj.Revision, e.branch)
	switch {
	case errors.Is(err, store.ErrConflict):
		return Result{Outcome: Failed, Err: &ConflictError{Path: p, Revision: obj.Revision, Err: err}}
	case err != nil:
		return Result{Outcome: Failed, Err: &StoreAccessError{Op: "update", Path: p, Err: err}}
	}
	return Result{Outcome: Updated, Revision: rev}
}

func (e *Engine) create(ctx context.Context, p string, a artifact.Artifact) Result {
	markers, err := e.ensureDirs(ctx, p)
	if err != nil {
		return Result{Outcome: Failed, Markers: markers, Err: err}
	}
	if e.dryRun {
		return Result{Outcome: Created, Markers: markers}
	}

	rev, err := e.store.Create(ctx, p, a.Content, a.Message, e.branch)
	switch {
	case errors.Is(err, store.ErrConflict):
		return Result{Outcome: Failed, Markers: markers, Err: &ConflictError{Path: p, Err: err}}
	case err != nil:
		return Result{Outcome: Failed, Markers: markers, Err: &StoreAccessError{Op: "create", Path: p, Err: err}}
	}
	return Result{Outcome: Created, Revision: rev, Markers: markers}
}

// ensureDirs makes every parent directory of p exist, outermost first, and
// returns the marker files it created.
func (e *Engine) ensureDirs(ctx context.Context, p string) ([]string, error) {
	if store.HasNativeDirectories(e.store) {
		return nil, nil
	}

	var created []string
	for _, dir := range parentDirs(p) {
		exists, err := e.dirExists(ctx, dir)
		if err != nil {
			return created, err
		}
		if exists {
			continue
		}

		marker := path.Join(dir, e.markerName)
		if e.dryRun {
			created = append(created, marker)
			continue
		}
		_, err = e.store.Create(ctx, marker, []byte{}, e.markerMessage, e.branch)
		switch {
		case errors.Is(err, store.ErrConflict):
			// Created concurrently; the directory exists either way.
			continue
		case err != nil:
			return created, &StoreAccessError{Op: "create", Path: marker, Err: err}
		}
		e.logger.Debug("created directory marker", slog.String("path", marker))
		created = append(created, marker)
	}
	return created, nil
}

func (e *Engine) dirExists(ctx context.Context, dir string) (bool, error) {
	if prober, ok := e.store.(store.DirProber); ok {
		exists, err := prober.DirExists(ctx, dir, e.branch)
		if err != nil {
			return false, &StoreAccessError{Op: "stat", Path: dir, Err: err}
		}
		return exists, nil
	}

	marker := path.Join(dir, e.markerName)
	_, err := e.store.Get(ctx, marker, e.branch)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, store.ErrNotFound):
		return false, nil
	default:
		return false, &StoreAccessError{Op: "get", Path: marker, Err: err}
	}
}

// parentDirs returns the directory prefixes of p, outermost first:
// "a/b/c.txt" yields ["a", "a/b"].
func parentDirs(p string) []string {
	segs := strings.Split(p, "/")
	dirs := make([]string, 0, len(segs)-1)
	for i := 1; i < len(segs); i++ {
		dirs = append(dirs, strings.Join(segs[:i], "/"))
	}
	return dirs
}

func cleanPath(p string) (string, error) {
	c := strings.TrimPrefix(path.Clean("/"+strings.TrimSpace(p)), "/")
	if c == "" || strings.TrimSpace(p) == "" {
		return "", cberrors.Newf(cberrors.CodeInvalidInput, "artifact path %q is empty", p)
	}
	return c, nil
}
