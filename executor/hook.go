package executor

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"time"
)

// ChangedEnvVar carries the changed artifact paths, comma separated.
const ChangedEnvVar = "COUNTRYBLOCK_CHANGED"

// Hook is a command run after a sync changed at least one artifact. The
// changed paths are written to its stdin, one per line, and exported in
// ChangedEnvVar.
type Hook struct {
	exec    Executor
	name    string
	dir     string
	timeout time.Duration
	logger  *slog.Logger
}

// HookOption configures a Hook.
type HookOption func(*Hook)

// WithHookDir sets the working directory of the command.
func WithHookDir(dir string) HookOption {
	return func(h *Hook) { h.dir = dir }
}

// WithHookTimeout bounds one run. Zero means no bound beyond the caller's
// context.
func WithHookTimeout(d time.Duration) HookOption {
	return func(h *Hook) { h.timeout = d }
}

// WithHookLogger sets the logger.
func WithHookLogger(l *slog.Logger) HookOption {
	return func(h *Hook) { h.logger = l }
}

// WithHookExecutor replaces the command executor, mainly for tests.
func WithHookExecutor(e Executor) HookOption {
	return func(h *Hook) { h.exec = e }
}

// NewHook returns a Hook running command with args.
func NewHook(command string, args []string, opts ...HookOption) *Hook {
	ce := New(command, args...)
	h := &Hook{
		exec:   ce,
		name:   ce.String(),
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Run executes the hook for the changed paths. A non-zero exit is returned
// as an *ExecError along with the captured output.
func (h *Hook) Run(ctx context.Context, changed []string) (*Result, error) {
	if h.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.timeout)
		defer cancel()
	}

	opts := []Option{
		WithCapture(true, true, false),
		WithEnvVar(ChangedEnvVar, strings.Join(changed, ",")),
	}
	if h.dir != "" {
		opts = append(opts, WithWorkingDir(h.dir))
	}

	input := ""
	if len(changed) > 0 {
		input = strings.Join(changed, "\n") + "\n"
	}

	h.logger.Info("running post-sync hook", slog.String("command", h.name), slog.Int("changed", len(changed)))
	res, err := h.exec.ExecuteWithInput(ctx, input, opts...)
	if err != nil {
		attrs := []any{slog.String("command", h.name), slog.Any("error", err)}
		if res != nil {
			attrs = append(attrs, slog.Int("exit_code", res.ExitCode))
		}
		h.logger.Warn("post-sync hook failed", attrs...)
		return res, err
	}
	h.logger.Debug("post-sync hook finished",
		slog.String("command", h.name),
		slog.Duration("elapsed", res.Duration))
	return res, nil
}
