package cli

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cberrors "github.com/ripeart/CountryBlock/errors"
)

// listServer serves body as the CIDR list and counts requests.
func listServer(t *testing.T, status int, body string) (*httptest.Server, *int) {
	t.Helper()
	hits := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits++
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv, &hits
}

// writeConfig writes a CUE configuration syncing into a local directory.
func writeConfig(t *testing.T, sourceURL, extra string) (cfgPath, root string) {
	t.Helper()
	dir := t.TempDir()
	root = filepath.Join(dir, "out")
	cfg := fmt.Sprintf(`source: url: %q
store: {
	kind: "fs"
	fs: root: %q
}
%s
`, sourceURL, root, extra)
	cfgPath = filepath.Join(dir, "countryblock.cue")
	require.NoError(t, os.WriteFile(cfgPath, []byte(cfg), 0o600))
	return cfgPath, root
}

func TestSyncIntoDirectory(t *testing.T) {
	srv, _ := listServer(t, http.StatusOK, "10.0.0.0/30\n10.0.1.0/31\n")
	cfgPath, root := writeConfig(t, srv.URL, "")
	metricsFile := filepath.Join(t.TempDir(), "countryblock.prom")

	out, _, err := runCLI(t, "--config", cfgPath, "sync", "--metrics-file", metricsFile)
	require.NoError(t, err)
	assert.Contains(t, out, "ranges: 2 valid, 0 skipped")
	assert.Contains(t, out, "created")

	hosts, err := os.ReadFile(filepath.Join(root, "ip_blocks", "ng_aggregated.zone"))
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.1\n10.0.0.2\n10.0.1.0\n10.0.1.1", string(hosts))

	regex, err := os.ReadFile(filepath.Join(root, "ip_blocks", "ng_aggregated.regex"))
	require.NoError(t, err)
	assert.Equal(t, `\b10\.0\.0\.[0-3]\b|\b10\.0\.1\.[0-1]\b`, string(regex))

	prom, err := os.ReadFile(metricsFile)
	require.NoError(t, err)
	assert.Contains(t, string(prom), "countryblock_sync_outcomes_total")

	// A second run changes nothing.
	out, _, err = runCLI(t, "--config", cfgPath, "sync")
	require.NoError(t, err)
	assert.Contains(t, out, "skipped")
	assert.NotContains(t, out, "created")
}

func TestSyncDryRun(t *testing.T) {
	srv, _ := listServer(t, http.StatusOK, "10.0.0.0/30\n")
	cfgPath, root := writeConfig(t, srv.URL, "")

	out, _, err := runCLI(t, "--config", cfgPath, "sync", "--dry-run")
	require.NoError(t, err)
	assert.Contains(t, out, "dry run")

	_, err = os.Stat(filepath.Join(root, "ip_blocks"))
	assert.True(t, os.IsNotExist(err))
}

func TestSyncAbortsOnFetchFailure(t *testing.T) {
	srv, _ := listServer(t, http.StatusNotFound, "")
	cfgPath, root := writeConfig(t, srv.URL, "")

	_, stderr, err := runCLI(t, "--config", cfgPath, "sync")
	require.Error(t, err)
	assert.Equal(t, ExitAborted, ExitCode(err))
	assert.Equal(t, cberrors.CodeFetchFailed, cberrors.CodeOf(err))
	assert.Contains(t, stderr, "run aborted")

	_, statErr := os.Stat(root)
	assert.True(t, os.IsNotExist(statErr))
}

func TestSyncArtifactFailureExitCode(t *testing.T) {
	srv, _ := listServer(t, http.StatusOK, "41.58.0.0/16\n")
	cfgPath, root := writeConfig(t, srv.URL, "artifacts: hosts: maxHosts: 10")

	out, _, err := runCLI(t, "--config", cfgPath, "sync")
	require.Error(t, err)
	assert.Equal(t, ExitArtifactFailed, ExitCode(err))
	assert.Contains(t, out, "failed")

	_, statErr := os.Stat(filepath.Join(root, "ip_blocks", "ng_aggregated.regex"))
	assert.NoError(t, statErr, "the regex artifact is still written")
}

func TestSyncMissingTokenFailsBeforeNetwork(t *testing.T) {
	t.Setenv("GITHUB_TOKEN", "")
	srv, hits := listServer(t, http.StatusOK, "10.0.0.0/30\n")

	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "countryblock.cue")
	require.NoError(t, os.WriteFile(cfgPath, []byte(fmt.Sprintf("source: url: %q\n", srv.URL)), 0o600))

	_, _, err := runCLI(t, "--config", cfgPath, "sync")
	require.Error(t, err)
	assert.Equal(t, ExitAborted, ExitCode(err))
	assert.Equal(t, cberrors.CodeInvalidConfig, cberrors.CodeOf(err))
	assert.ErrorContains(t, err, "credentials.token")
	assert.Zero(t, *hits)
}

func TestSyncInvalidConfig(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "countryblock.cue")
	require.NoError(t, os.WriteFile(cfgPath, []byte(`store: kind: "ftp"`), 0o600))

	_, _, err := runCLI(t, "--config", cfgPath, "sync")
	require.Error(t, err)
	assert.Equal(t, ExitAborted, ExitCode(err))
	assert.Equal(t, cberrors.CodeSchemaFailed, cberrors.CodeOf(err))
}

func TestSyncRunsHook(t *testing.T) {
	srv, _ := listServer(t, http.StatusOK, "10.0.0.0/31\n")
	marker := filepath.Join(t.TempDir(), "changed.txt")
	hook := fmt.Sprintf(`hook: {
	command: "sh"
	args: ["-c", "cat > %s"]
}`, marker)
	cfgPath, _ := writeConfig(t, srv.URL, hook)

	_, _, err := runCLI(t, "--config", cfgPath, "sync")
	require.NoError(t, err)

	got, err := os.ReadFile(marker)
	require.NoError(t, err)
	assert.Equal(t, "ip_blocks/ng_aggregated.regex\nip_blocks/ng_aggregated.zone\n", string(got))
}
