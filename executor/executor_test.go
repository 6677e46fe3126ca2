package executor

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cberrors "github.com/ripeart/CountryBlock/errors"
)

func TestCommandExecutorExecute(t *testing.T) {
	tests := []struct {
		name     string
		program  string
		args     []string
		input    string
		opts     []Option
		stdout   string
		exitCode int
		wantErr  bool
	}{
		{
			name:    "echo",
			program: "echo",
			args:    []string{"41.58.0.1"},
			stdout:  "41.58.0.1\n",
		},
		{
			name:    "stdin",
			program: "cat",
			input:   "41.58.0.1\n41.58.0.2\n",
			stdout:  "41.58.0.1\n41.58.0.2\n",
		},
		{
			name:    "env",
			program: "sh",
			args:    []string{"-c", "printf %s \"$SET_NAME\""},
			opts:    []Option{WithEnvVar("SET_NAME", "ng-block")},
			stdout:  "ng-block",
		},
		{
			name:    "working dir",
			program: "pwd",
			opts:    []Option{WithWorkingDir("/")},
			stdout:  "/\n",
		},
		{
			name:     "non-zero exit",
			program:  "sh",
			args:     []string{"-c", "echo nope >&2; exit 3"},
			exitCode: 3,
			wantErr:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := New(tt.program, tt.args...).ExecuteWithInput(context.Background(), tt.input, tt.opts...)
			require.NotNil(t, res)
			assert.Equal(t, tt.exitCode, res.ExitCode)
			if tt.wantErr {
				var ee *ExecError
				require.ErrorAs(t, err, &ee)
				assert.Equal(t, tt.exitCode, ee.ExitCode)
				assert.Equal(t, cberrors.CodeExecutionFailed, cberrors.CodeOf(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.stdout, res.Stdout)
		})
	}
}

func TestCommandExecutorMissingProgram(t *testing.T) {
	res, err := New("countryblock-no-such-binary").Execute(context.Background())
	require.Error(t, err)
	assert.Equal(t, -1, res.ExitCode)
}

func TestCommandExecutorCombinedAndWriters(t *testing.T) {
	var out, errOut bytes.Buffer
	res, err := New("sh", "-c", "echo a; echo b >&2").Execute(context.Background(),
		WithCapture(false, false, true),
		WithStdoutWriter(&out),
		WithStderrWriter(&errOut),
	)
	require.NoError(t, err)
	assert.Contains(t, res.Combined, "a\n")
	assert.Contains(t, res.Combined, "b\n")
	assert.Empty(t, res.Stdout)
	assert.Equal(t, "a\n", out.String())
	assert.Equal(t, "b\n", errOut.String())
}

func TestCommandExecutorRetry(t *testing.T) {
	dir := t.TempDir()
	// Fails until the counter file holds two lines.
	script := `echo x >> count; [ "$(wc -l < count)" -ge 2 ]`

	res, err := New("sh", "-c", script).Execute(context.Background(),
		WithWorkingDir(dir),
		WithRetry(3, time.Millisecond),
	)
	require.NoError(t, err)
	assert.Equal(t, 0, res.ExitCode)
}

func TestCommandExecutorRetryCondition(t *testing.T) {
	calls := 0
	_, err := New("false").Execute(context.Background(),
		WithRetry(5, time.Millisecond),
		WithRetryCondition(func(error) bool {
			calls++
			return false
		}),
	)
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestCommandExecutorTimeout(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := New("sleep", "5").Execute(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, cberrors.CodeTimeout, cberrors.CodeOf(err))
}

func TestOptionsDoNotLeakBetweenCalls(t *testing.T) {
	e := New("sh", "-c", "printf %s \"$ONLY_ONCE\"")

	res, err := e.Execute(context.Background(), WithEnvVar("ONLY_ONCE", "set"))
	require.NoError(t, err)
	assert.Equal(t, "set", res.Stdout)

	res, err = e.Execute(context.Background())
	require.NoError(t, err)
	assert.Empty(t, res.Stdout)
}

func TestExecErrorMessage(t *testing.T) {
	err := &ExecError{Program: "nft", ExitCode: 1, Stderr: "Error: No such file\nmore", Err: errors.New("exit status 1")}
	assert.Equal(t, "command nft failed (exit 1): exit status 1: Error: No such file", err.Error())
	assert.True(t, strings.HasPrefix(err.Error(), "command nft"))
}
