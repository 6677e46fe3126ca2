// Package pipeline runs one CountryBlock batch: download the CIDR list,
// build the regex and host artifacts, and synchronize each into the store.
//
// A missing list, a list with no valid range or a failed download aborts the
// run before the store is touched. Past that point every artifact stands
// alone: a failure to build or sync one is recorded in the Report and the
// other still proceeds.
package pipeline

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ripeart/CountryBlock/artifact"
	"github.com/ripeart/CountryBlock/cidr"
	cberrors "github.com/ripeart/CountryBlock/errors"
	"github.com/ripeart/CountryBlock/executor"
	"github.com/ripeart/CountryBlock/metrics"
	"github.com/ripeart/CountryBlock/syncer"
)

// ErrNoRanges aborts a run whose list holds no valid range.
var ErrNoRanges = errors.New("no valid CIDR ranges in list")

// Fetcher downloads the list.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// Syncer writes one artifact into the store.
type Syncer interface {
	Sync(ctx context.Context, a artifact.Artifact) syncer.Result
}

// Notifier mails the run report.
type Notifier interface {
	Send(ctx context.Context, suffix, body string) error
}

// Hook runs after a sync that changed the store.
type Hook interface {
	Run(ctx context.Context, changed []string) (*executor.Result, error)
}

// ArtifactSpec enables and places one artifact. Limit is the regex chunk
// width or the host cap, depending on the kind.
type ArtifactSpec struct {
	Enabled bool
	Path    string
	Limit   uint64
}

// Options configures a run.
type Options struct {
	SourceURL string
	Message   string
	Regex     ArtifactSpec
	Hosts     ArtifactSpec

	// SyncTimeout bounds the sync phase. Zero leaves it to the caller's
	// context.
	SyncTimeout time.Duration

	// DryRun suppresses the notification and the hook. The Syncer is
	// expected to be built in dry-run mode too.
	DryRun bool

	// NotifyOnlyOnChange mails only when an artifact changed or failed.
	NotifyOnlyOnChange bool
}

// Runner executes runs.
type Runner struct {
	fetcher  Fetcher
	engine   Syncer
	opts     Options
	metrics  *metrics.Metrics
	notifier Notifier
	hook     Hook
	logger   *slog.Logger
	now      func() time.Time
}

// Option configures a Runner.
type Option func(*Runner)

// WithMetrics records the run in m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Runner) { r.metrics = m }
}

// WithNotifier mails the report after each run.
func WithNotifier(n Notifier) Option {
	return func(r *Runner) { r.notifier = n }
}

// WithHook runs h after a run that changed the store.
func WithHook(h Hook) Option {
	return func(r *Runner) { r.hook = h }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Runner) { r.logger = l }
}

// WithClock sets the time source.
func WithClock(now func() time.Time) Option {
	return func(r *Runner) { r.now = now }
}

// New returns a Runner.
func New(f Fetcher, e Syncer, opts Options, ropts ...Option) *Runner {
	r := &Runner{
		fetcher: f,
		engine:  e,
		opts:    opts,
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
		now:     time.Now,
	}
	for _, opt := range ropts {
		opt(r)
	}
	return r
}

// Run executes one batch. The returned error is non-nil only when the run
// aborted before any store mutation; per-artifact failures are in the
// Report.
func (r *Runner) Run(ctx context.Context) (*Report, error) {
	rep := &Report{Source: r.opts.SourceURL, StartedAt: r.now(), DryRun: r.opts.DryRun}

	blocks, err := r.load(ctx, rep)
	if err != nil {
		rep.FinishedAt = r.now()
		r.finish(rep, false)
		return rep, err
	}

	artifacts, failed := r.build(blocks)
	rep.Results = append(rep.Results, failed...)
	rep.Results = append(rep.Results, r.sync(ctx, artifacts)...)
	rep.FinishedAt = r.now()

	if r.metrics != nil {
		for _, res := range rep.Results {
			r.metrics.ObserveSync(res)
		}
	}

	if !rep.DryRun {
		if changed := rep.ChangedPaths(); len(changed) > 0 && r.hook != nil {
			if _, err := r.hook.Run(ctx, changed); err != nil {
				rep.HookErr = err
			}
		}
		r.notify(ctx, rep)
	}

	r.finish(rep, !rep.Failed())
	return rep, nil
}

// load fetches and parses the list.
func (r *Runner) load(ctx context.Context, rep *Report) ([]cidr.Block, error) {
	start := r.now()
	body, err := r.fetcher.Fetch(ctx, r.opts.SourceURL)
	if r.metrics != nil {
		r.metrics.ObserveFetch(r.now().Sub(start), err)
	}
	if err != nil {
		r.logger.Error("fetching CIDR list failed", slog.String("url", r.opts.SourceURL), slog.Any("error", err))
		return nil, err
	}

	blocks, skipped, err := cidr.ParseList(bytes.NewReader(body))
	if err != nil {
		return nil, cberrors.WrapWithContext(err, cberrors.CodeInvalidInput, "parsing CIDR list",
			map[string]any{"url": r.opts.SourceURL})
	}
	for _, s := range skipped {
		r.logger.Warn("skipping invalid range",
			slog.Int("line", s.Line),
			slog.String("input", s.Input),
			slog.String("reason", s.Reason))
	}
	rep.Valid, rep.Invalid = len(blocks), len(skipped)
	if r.metrics != nil {
		r.metrics.ObserveParse(rep.Valid, rep.Invalid)
	}
	r.logger.Info("parsed CIDR list", slog.Int("valid", rep.Valid), slog.Int("invalid", rep.Invalid))

	if len(blocks) == 0 {
		return nil, cberrors.WrapWithContext(ErrNoRanges, cberrors.CodeInvalidInput, "refusing to sync",
			map[string]any{"url": r.opts.SourceURL, "invalid": len(skipped)})
	}
	return blocks, nil
}

// build serializes the enabled artifacts. An artifact that cannot be built
// becomes a Failed result.
func (r *Runner) build(blocks []cidr.Block) ([]artifact.Artifact, []syncer.Result) {
	var (
		out    []artifact.Artifact
		failed []syncer.Result
	)
	add := func(kind artifact.Kind, spec ArtifactSpec, content []byte, err error) {
		if err != nil {
			r.logger.Error("building artifact failed", slog.String("artifact", string(kind)), slog.Any("error", err))
			failed = append(failed, syncer.Result{Kind: kind, Path: spec.Path, Outcome: syncer.Failed, DryRun: r.opts.DryRun, Err: err})
			return
		}
		if r.metrics != nil {
			r.metrics.ObserveArtifact(string(kind), len(content))
		}
		out = append(out, artifact.Artifact{Kind: kind, Path: spec.Path, Content: content, Message: r.opts.Message})
	}

	if s := r.opts.Regex; s.Enabled {
		width := int(s.Limit)
		if width == 0 {
			width = cidr.DefaultMaxWidth
		}
		content, err := artifact.BuildRegex(blocks, width)
		add(artifact.KindRegex, s, content, err)
	}
	if s := r.opts.Hosts; s.Enabled {
		content, err := artifact.BuildHosts(blocks, s.Limit)
		add(artifact.KindHosts, s, content, err)
	}
	return out, failed
}

// sync writes the artifacts in parallel. Results keep artifact order.
func (r *Runner) sync(ctx context.Context, artifacts []artifact.Artifact) []syncer.Result {
	if r.opts.SyncTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.opts.SyncTimeout)
		defer cancel()
	}

	results := make([]syncer.Result, len(artifacts))
	var g errgroup.Group
	for i, a := range artifacts {
		g.Go(func() error {
			results[i] = r.engine.Sync(ctx, a)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func (r *Runner) notify(ctx context.Context, rep *Report) {
	if r.notifier == nil {
		return
	}
	if r.opts.NotifyOnlyOnChange && len(rep.ChangedPaths()) == 0 && !rep.Failed() {
		return
	}
	if err := r.notifier.Send(ctx, rep.Status(), rep.String()); err != nil {
		rep.NotifyErr = err
		r.logger.Warn("sending report failed", slog.Any("error", err))
	}
}

func (r *Runner) finish(rep *Report, success bool) {
	if r.metrics != nil {
		r.metrics.MarkRun(rep.FinishedAt, success)
	}
}
