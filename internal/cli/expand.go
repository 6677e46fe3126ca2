package cli

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ripeart/CountryBlock/artifact"
	"github.com/ripeart/CountryBlock/cidr"
	"github.com/ripeart/CountryBlock/config"
	"github.com/ripeart/CountryBlock/pipeline"
)

// ExpandOptions holds the expand flags.
type ExpandOptions struct {
	File     string
	Format   string
	Width    int
	MaxHosts uint64
}

// NewExpandCommand creates the expand subcommand.
func NewExpandCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ExpandOptions{}

	cmd := &cobra.Command{
		Use:   "expand [CIDR...]",
		Short: "Print the regex or host form of CIDR ranges",
		Long: `Expand CIDR ranges given as arguments, or read one per line from --file
("-" for stdin), and print the regex artifact or the host artifact. Nothing
is downloaded and no store is touched. Malformed entries are reported on
stderr and skipped.`,
		Example: `  countryblock expand 10.0.0.0/30 10.0.1.0/31
  countryblock expand --format hosts --file ng-aggregated.zone`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExpand(cmd, rootOpts, opts, args)
		},
	}

	cmd.Flags().StringVarP(&opts.File, "file", "f", "", `read ranges from a file ("-" for stdin)`)
	cmd.Flags().StringVar(&opts.Format, "format", string(artifact.KindRegex), "output form (regex|hosts)")
	cmd.Flags().IntVar(&opts.Width, "width", cidr.DefaultMaxWidth, "maximum regex line width")
	cmd.Flags().Uint64Var(&opts.MaxHosts, "max-hosts", 0, "refuse to print more hosts than this (0 is unbounded)")

	return cmd
}

func runExpand(cmd *cobra.Command, rootOpts *RootOptions, opts *ExpandOptions, args []string) error {
	logger, err := newLogger(cmd, rootOpts, config.Log{Level: "info", Format: "text"})
	if err != nil {
		return &ExitError{Code: ExitAborted, Err: err}
	}

	kind := artifact.Kind(opts.Format)
	if kind != artifact.KindRegex && kind != artifact.KindHosts {
		return &ExitError{Code: ExitAborted, Err: fmt.Errorf("invalid format %q: must be regex or hosts", opts.Format)}
	}

	blocks, err := readBlocks(cmd, opts.File, args, logger)
	if err != nil {
		return &ExitError{Code: ExitAborted, Err: err}
	}

	out := bufio.NewWriter(cmd.OutOrStdout())
	if kind == artifact.KindHosts {
		err = artifact.WriteHosts(out, blocks, opts.MaxHosts)
	} else {
		var content []byte
		content, err = artifact.BuildRegex(blocks, opts.Width)
		if err == nil {
			_, err = out.Write(content)
		}
	}
	if err != nil {
		return &ExitError{Code: ExitArtifactFailed, Err: err}
	}
	if err := out.WriteByte('\n'); err != nil {
		return err
	}
	return out.Flush()
}

func readBlocks(cmd *cobra.Command, file string, args []string, logger *slog.Logger) ([]cidr.Block, error) {
	var r io.Reader
	switch {
	case file != "" && len(args) > 0:
		return nil, errors.New("give ranges as arguments or with --file, not both")
	case file == "-":
		r = cmd.InOrStdin()
	case file != "":
		fsys, name, err := localFile(file)
		if err != nil {
			return nil, err
		}
		data, err := fsys.ReadFile(name)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", file, err)
		}
		r = bytes.NewReader(data)
	case len(args) > 0:
		r = strings.NewReader(strings.Join(args, "\n"))
	default:
		return nil, errors.New("no ranges given")
	}

	blocks, skipped, err := cidr.ParseList(r)
	if err != nil {
		return nil, err
	}
	for _, s := range skipped {
		logger.Warn("skipping invalid range",
			slog.Int("line", s.Line),
			slog.String("input", s.Input),
			slog.String("reason", s.Reason))
	}
	if len(blocks) == 0 {
		return nil, pipeline.ErrNoRanges
	}
	return blocks, nil
}
