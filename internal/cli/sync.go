package cli

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/ripeart/CountryBlock/config"
	cberrors "github.com/ripeart/CountryBlock/errors"
	"github.com/ripeart/CountryBlock/metrics"
	"github.com/ripeart/CountryBlock/pipeline"
	"github.com/ripeart/CountryBlock/syncer"
)

// SyncOptions holds the sync flags. Set flags override the configuration.
type SyncOptions struct {
	DryRun      bool
	MetricsFile string
	SourceURL   string
	Branch      string
}

// NewSyncCommand creates the sync subcommand.
func NewSyncCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SyncOptions{}

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Download the CIDR list and synchronize both artifacts",
		Long: `Download the CIDR list, build the regex and host artifacts and write each
into the configured store when its content changed.

Exit status is 0 when every artifact succeeded, 1 when the run aborted
before touching the store (configuration, credentials, download, empty
list) and 2 when at least one artifact failed.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSync(cmd, rootOpts, opts)
		},
	}

	cmd.Flags().BoolVar(&opts.DryRun, "dry-run", false, "compare against the store without writing")
	cmd.Flags().StringVar(&opts.MetricsFile, "metrics-file", "", "write Prometheus metrics to this textfile")
	cmd.Flags().StringVar(&opts.SourceURL, "source-url", "", "override the CIDR list URL")
	cmd.Flags().StringVar(&opts.Branch, "branch", "", "override the store branch")

	return cmd
}

func (o *SyncOptions) apply(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("dry-run") {
		cfg.Sync.DryRun = o.DryRun
	}
	if o.MetricsFile != "" {
		cfg.Metrics.File = o.MetricsFile
	}
	if o.SourceURL != "" {
		cfg.Source.URL = o.SourceURL
	}
	if o.Branch != "" {
		cfg.Store.Branch = o.Branch
	}
}

func runSync(cmd *cobra.Command, rootOpts *RootOptions, opts *SyncOptions) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	cfg, err := loadConfig(ctx, rootOpts)
	if err != nil {
		return &ExitError{Code: ExitAborted, Err: err}
	}
	opts.apply(cmd, cfg)
	if err := cfg.Validate(); err != nil {
		return &ExitError{Code: ExitAborted, Err: err}
	}

	logger, err := newLogger(cmd, rootOpts, cfg.Log)
	if err != nil {
		return &ExitError{Code: ExitAborted, Err: err}
	}

	m := metrics.New()
	rep, err := execute(ctx, cfg, m, logger)
	if cfg.Metrics.File != "" {
		if werr := m.WriteToTextfile(cfg.Metrics.File); werr != nil {
			logger.Warn("writing metrics failed", slog.Any("error", werr))
		}
	}
	if err != nil {
		logger.Error("run aborted",
			slog.String("code", string(cberrors.CodeOf(err))),
			slog.Any("error", err))
		return &ExitError{Code: ExitAborted, Err: err}
	}

	fmt.Fprintln(cmd.OutOrStdout(), rep.String())
	if code := rep.ExitCode(); code != ExitOK {
		return &ExitError{Code: code, Err: fmt.Errorf("%d artifact(s) failed", countFailed(rep))}
	}
	return nil
}

// execute wires the configured components and runs one batch.
func execute(ctx context.Context, cfg *config.Config, m *metrics.Metrics, logger *slog.Logger) (*pipeline.Report, error) {
	sm, err := newSecrets(ctx, cfg, logger)
	if err != nil {
		m.MarkRun(time.Now(), false)
		return nil, err
	}
	defer func() {
		if err := sm.Close(); err != nil {
			logger.Debug("closing secrets providers", slog.Any("error", err))
		}
	}()

	token, err := resolveToken(ctx, cfg, sm)
	if err != nil {
		m.MarkRun(time.Now(), false)
		return nil, err
	}
	st, err := newStore(ctx, cfg, sm, token, logger)
	if err != nil {
		m.MarkRun(time.Now(), false)
		return nil, err
	}
	notifier, err := newNotifier(ctx, cfg.Notify, sm, logger)
	if err != nil {
		m.MarkRun(time.Now(), false)
		return nil, err
	}

	engine := syncer.New(st,
		syncer.WithBranch(cfg.Store.Branch),
		syncer.WithLogger(logger),
		syncer.WithMarkerName(cfg.Sync.MarkerName),
		syncer.WithMarkerMessage(cfg.Sync.MarkerMessage),
		syncer.WithDryRun(cfg.Sync.DryRun),
	)

	ropts := []pipeline.Option{pipeline.WithLogger(logger), pipeline.WithMetrics(m)}
	if notifier != nil {
		ropts = append(ropts, pipeline.WithNotifier(notifier))
	}
	if hook := newHook(cfg.Hook, logger); hook != nil {
		ropts = append(ropts, pipeline.WithHook(hook))
	}

	runner := pipeline.New(newFetcher(cfg.Source, logger), engine, pipelineOptions(cfg), ropts...)
	return runner.Run(ctx)
}

func pipelineOptions(cfg *config.Config) pipeline.Options {
	a := cfg.Artifacts
	return pipeline.Options{
		SourceURL: cfg.Source.URL,
		Message:   a.Message,
		Regex: pipeline.ArtifactSpec{
			Enabled: a.Regex.Enabled,
			Path:    a.Regex.Path,
			Limit:   uint64(a.Regex.MaxWidth),
		},
		Hosts: pipeline.ArtifactSpec{
			Enabled: a.Hosts.Enabled,
			Path:    a.Hosts.Path,
			Limit:   a.Hosts.MaxHosts,
		},
		SyncTimeout:        cfg.Sync.TimeoutDuration(),
		DryRun:             cfg.Sync.DryRun,
		NotifyOnlyOnChange: cfg.Notify.OnlyOnChange,
	}
}

func countFailed(rep *pipeline.Report) int {
	n := 0
	for _, res := range rep.Results {
		if res.Outcome == syncer.Failed {
			n++
		}
	}
	return n
}
