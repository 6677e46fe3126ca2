package pipeline

import (
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	cberrors "github.com/ripeart/CountryBlock/errors"
	"github.com/ripeart/CountryBlock/syncer"
)

// Exit codes of a run.
const (
	ExitOK             = 0
	ExitAborted        = 1
	ExitArtifactFailed = 2
)

// Report is the per-artifact account of one run.
type Report struct {
	Source     string
	StartedAt  time.Time
	FinishedAt time.Time
	DryRun     bool

	Valid   int
	Invalid int

	Results []syncer.Result

	// HookErr and NotifyErr are recorded but do not fail the run.
	HookErr   error
	NotifyErr error
}

// Failed reports whether any artifact failed.
func (r *Report) Failed() bool {
	for _, res := range r.Results {
		if res.Outcome == syncer.Failed {
			return true
		}
	}
	return false
}

// ChangedPaths lists the paths that were created or updated.
func (r *Report) ChangedPaths() []string {
	var out []string
	for _, res := range r.Results {
		if res.Changed() {
			out = append(out, res.Path)
		}
	}
	return out
}

// ExitCode maps the report to a process exit status.
func (r *Report) ExitCode() int {
	if r.Failed() {
		return ExitArtifactFailed
	}
	return ExitOK
}

// Status is a one-word summary: failed, updated or unchanged.
func (r *Report) Status() string {
	switch {
	case r.Failed():
		return "failed"
	case len(r.ChangedPaths()) > 0:
		return "updated"
	default:
		return "unchanged"
	}
}

// Duration is the wall time of the run.
func (r *Report) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// String renders the plain-text report mailed to operators.
func (r *Report) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "CountryBlock run at %s (%s)\n", r.StartedAt.UTC().Format(time.RFC3339), r.Duration().Round(time.Millisecond))
	if r.DryRun {
		b.WriteString("dry run: no changes were written\n")
	}
	fmt.Fprintf(&b, "source: %s\n", r.Source)
	fmt.Fprintf(&b, "ranges: %d valid, %d skipped\n\n", r.Valid, r.Invalid)

	tw := tabwriter.NewWriter(&b, 0, 4, 2, ' ', 0)
	for _, res := range r.Results {
		detail := res.Revision
		if res.Err != nil {
			detail = fmt.Sprintf("%s: %v", cberrors.CodeOf(res.Err), res.Err)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", res.Kind, res.Path, res.Outcome, detail)
	}
	_ = tw.Flush()

	if r.HookErr != nil {
		fmt.Fprintf(&b, "\npost-sync hook failed: %v\n", r.HookErr)
	}
	return strings.TrimRight(b.String(), "\n")
}
