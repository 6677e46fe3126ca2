// Package executor runs external commands with output capture, retries,
// extra environment and context cancellation. CountryBlock uses it for the
// post-sync hook, e.g. reloading a firewall set after the block list changed.
package executor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"time"

	cberrors "github.com/ripeart/CountryBlock/errors"
)

// Result holds the output of one command execution.
type Result struct {
	Stdout   string
	Stderr   string
	Combined string
	ExitCode int
	Duration time.Duration
	Err      error
}

// Executor runs a prepared command.
type Executor interface {
	Execute(ctx context.Context, opts ...Option) (*Result, error)
	ExecuteWithInput(ctx context.Context, input string, opts ...Option) (*Result, error)
}

// ExecError reports a failed command. ExitCode is -1 when the process never
// started or was killed.
type ExecError struct {
	Program  string
	ExitCode int
	Stderr   string
	Err      error
}

func (e *ExecError) Error() string {
	msg := fmt.Sprintf("command %s failed (exit %d): %v", e.Program, e.ExitCode, e.Err)
	if s := strings.TrimSpace(e.Stderr); s != "" {
		msg += ": " + firstLine(s)
	}
	return msg
}

func (e *ExecError) Unwrap() error { return e.Err }

// ErrorCode implements errors.Coder.
func (e *ExecError) ErrorCode() cberrors.ErrorCode {
	if errors.Is(e.Err, context.DeadlineExceeded) {
		return cberrors.CodeTimeout
	}
	return cberrors.CodeExecutionFailed
}

// CommandExecutor runs one program with fixed arguments.
type CommandExecutor struct {
	program string
	args    []string
	options *Options
}

// Options configures execution.
type Options struct {
	CaptureStdout   bool
	CaptureStderr   bool
	CaptureCombined bool

	MaxRetries int
	RetryDelay time.Duration
	// RetryOn decides whether a failed attempt is retried; nil retries all.
	RetryOn func(error) bool

	WorkingDir string

	// Env is appended to the current environment.
	Env map[string]string

	StdoutWriter io.Writer
	StderrWriter io.Writer
}

// Option modifies Options.
type Option func(*Options)

// DefaultOptions captures stdout and stderr and never retries.
func DefaultOptions() *Options {
	return &Options{
		CaptureStdout: true,
		CaptureStderr: true,
		RetryDelay:    time.Second,
		Env:           make(map[string]string),
	}
}

// New returns a CommandExecutor for program and args.
func New(program string, args ...string) *CommandExecutor {
	return &CommandExecutor{
		program: program,
		args:    args,
		options: DefaultOptions(),
	}
}

// String returns the command line for logs.
func (c *CommandExecutor) String() string {
	return strings.TrimSpace(c.program + " " + strings.Join(c.args, " "))
}

// Execute implements Executor.
func (c *CommandExecutor) Execute(ctx context.Context, opts ...Option) (*Result, error) {
	return c.ExecuteWithInput(ctx, "", opts...)
}

// ExecuteWithInput implements Executor. input is fed to stdin.
func (c *CommandExecutor) ExecuteWithInput(ctx context.Context, input string, opts ...Option) (*Result, error) {
	options := c.mergeOptions(opts...)

	maxAttempts := options.MaxRetries + 1
	var lastResult *Result
	var lastErr error

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		result, err := c.executeOnce(ctx, input, options)
		lastResult, lastErr = result, err

		if err == nil || attempt == maxAttempts {
			return result, err
		}
		if options.RetryOn != nil && !options.RetryOn(err) {
			return result, err
		}

		select {
		case <-ctx.Done():
			return result, fmt.Errorf("context cancelled during retry: %w", ctx.Err())
		case <-time.After(options.RetryDelay):
		}
	}

	return lastResult, lastErr
}

func (c *CommandExecutor) setupCommand(cmd *exec.Cmd, input string, options *Options) {
	if options.WorkingDir != "" {
		cmd.Dir = options.WorkingDir
	}

	if len(options.Env) > 0 {
		cmd.Env = os.Environ()
		for k, v := range options.Env {
			cmd.Env = append(cmd.Env, fmt.Sprintf("%s=%s", k, v))
		}
	}

	if input != "" {
		cmd.Stdin = strings.NewReader(input)
	}
}

func (c *CommandExecutor) setupOutputCapture(cmd *exec.Cmd, options *Options) (*bytes.Buffer, *bytes.Buffer, *bytes.Buffer) {
	var stdoutBuf, stderrBuf, combinedBuf bytes.Buffer

	stdoutWriters := []io.Writer{}
	stderrWriters := []io.Writer{}
	switch {
	case options.CaptureCombined:
		stdoutWriters = append(stdoutWriters, &combinedBuf)
		stderrWriters = append(stderrWriters, &combinedBuf)
	default:
		if options.CaptureStdout {
			stdoutWriters = append(stdoutWriters, &stdoutBuf)
		}
		if options.CaptureStderr {
			stderrWriters = append(stderrWriters, &stderrBuf)
		}
	}
	if options.StdoutWriter != nil {
		stdoutWriters = append(stdoutWriters, options.StdoutWriter)
	}
	if options.StderrWriter != nil {
		stderrWriters = append(stderrWriters, options.StderrWriter)
	}

	if len(stdoutWriters) > 0 {
		cmd.Stdout = io.MultiWriter(stdoutWriters...)
	}
	if len(stderrWriters) > 0 {
		cmd.Stderr = io.MultiWriter(stderrWriters...)
	}
	return &stdoutBuf, &stderrBuf, &combinedBuf
}

func (c *CommandExecutor) executeOnce(ctx context.Context, input string, options *Options) (*Result, error) {
	cmd := exec.CommandContext(ctx, c.program, c.args...)
	c.setupCommand(cmd, input, options)
	stdoutBuf, stderrBuf, combinedBuf := c.setupOutputCapture(cmd, options)

	start := time.Now()
	err := cmd.Run()

	result := &Result{
		Stdout:   stdoutBuf.String(),
		Stderr:   stderrBuf.String(),
		Combined: combinedBuf.String(),
		Duration: time.Since(start),
	}

	var exitErr *exec.ExitError
	switch {
	case err == nil:
		return result, nil
	case errors.As(err, &exitErr):
		result.ExitCode = exitErr.ExitCode()
	default:
		result.ExitCode = -1
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		err = fmt.Errorf("%w: %w", ctxErr, err)
	}

	result.Err = &ExecError{Program: c.program, ExitCode: result.ExitCode, Stderr: result.Stderr, Err: err}
	return result, result.Err
}

func (c *CommandExecutor) mergeOptions(opts ...Option) *Options {
	merged := *c.options
	merged.Env = make(map[string]string, len(c.options.Env))
	for k, v := range c.options.Env {
		merged.Env[k] = v
	}
	for _, opt := range opts {
		opt(&merged)
	}
	return &merged
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

// WithCapture configures output capture.
func WithCapture(stdout, stderr, combined bool) Option {
	return func(o *Options) {
		o.CaptureStdout = stdout
		o.CaptureStderr = stderr
		o.CaptureCombined = combined
	}
}

// WithRetry configures retry behavior.
func WithRetry(maxRetries int, delay time.Duration) Option {
	return func(o *Options) {
		o.MaxRetries = maxRetries
		o.RetryDelay = delay
	}
}

// WithRetryCondition sets a custom retry condition.
func WithRetryCondition(fn func(error) bool) Option {
	return func(o *Options) {
		o.RetryOn = fn
	}
}

// WithWorkingDir sets the working directory.
func WithWorkingDir(dir string) Option {
	return func(o *Options) {
		o.WorkingDir = dir
	}
}

// WithEnv adds environment variables.
func WithEnv(env map[string]string) Option {
	return func(o *Options) {
		for k, v := range env {
			o.Env[k] = v
		}
	}
}

// WithEnvVar adds a single environment variable.
func WithEnvVar(key, value string) Option {
	return func(o *Options) {
		o.Env[key] = value
	}
}

// WithStdoutWriter tees stdout to w.
func WithStdoutWriter(w io.Writer) Option {
	return func(o *Options) {
		o.StdoutWriter = w
	}
}

// WithStderrWriter tees stderr to w.
func WithStderrWriter(w io.Writer) Option {
	return func(o *Options) {
		o.StderrWriter = w
	}
}
