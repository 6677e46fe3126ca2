// Package cli implements the countryblock command tree.
package cli

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/ripeart/CountryBlock/config"
	"github.com/ripeart/CountryBlock/fs/billy"
	"github.com/ripeart/CountryBlock/logging"
)

// RootOptions holds the persistent flags.
type RootOptions struct {
	ConfigPath string
	EnvFiles   []string
	LogLevel   string
	LogFormat  string
}

// NewRootCommand creates the root command.
func NewRootCommand(version string) *cobra.Command {
	if version == "" {
		version = "dev"
	}
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "countryblock",
		Short: "Publish country IP block lists to a version-controlled store",
		Long: `countryblock downloads the aggregated CIDR list of a country, expands it
into a width-split regex list and a host list, and synchronizes both files
into a git repository, an S3 bucket or a local directory. A file is only
written when its content changed.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := config.LoadEnv(opts.EnvFiles...); err != nil {
				return &ExitError{Code: ExitAborted, Err: err}
			}
			return nil
		},
	}

	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", "", "CUE configuration file (defaults apply when empty)")
	cmd.PersistentFlags().StringSliceVar(&opts.EnvFiles, "env-file", nil, "env files to load before resolving credentials (default .env if present)")
	cmd.PersistentFlags().StringVar(&opts.LogLevel, "log-level", "", "log level (debug|info|warn|error), overrides the configuration")
	cmd.PersistentFlags().StringVar(&opts.LogFormat, "log-format", "", "log format (text|json), overrides the configuration")

	cmd.AddCommand(NewSyncCommand(opts))
	cmd.AddCommand(NewExpandCommand(opts))
	cmd.AddCommand(NewVersionCommand(version))

	return cmd
}

// loadConfig reads the configuration named by --config.
func loadConfig(ctx context.Context, opts *RootOptions) (*config.Config, error) {
	if opts.ConfigPath == "" {
		return config.Default(), nil
	}
	fsys, name, err := localFile(opts.ConfigPath)
	if err != nil {
		return nil, err
	}
	return config.Load(ctx, fsys, name)
}

// localFile returns a filesystem rooted at the directory of path and the
// name of path within it.
func localFile(path string) (*billy.FS, string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, "", fmt.Errorf("resolving %s: %w", path, err)
	}
	return billy.NewOSFS(filepath.Dir(abs)), filepath.Base(abs), nil
}

// newLogger builds the logger from the configuration and flag overrides.
func newLogger(cmd *cobra.Command, opts *RootOptions, cfg config.Log) (*slog.Logger, error) {
	level, format := cfg.Level, cfg.Format
	if opts.LogLevel != "" {
		level = opts.LogLevel
	}
	if opts.LogFormat != "" {
		format = opts.LogFormat
	}
	return logging.New(cmd.ErrOrStderr(), level, format)
}
