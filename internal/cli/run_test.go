package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lucasnoah/hookforge/internal/checks"
	"github.com/lucasnoah/hookforge/internal/workflow"
)

// writeProject creates a project dir with a hookforge.yaml and returns the
// config path. hooks is the YAML body of the hooks list.
func writeProject(t *testing.T, hooks, extra string) string {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	dir := t.TempDir()
	cfg := fmt.Sprintf(`project:
  name: demo
hooks:
%s
tests:
  command: "true"
  parser: generic
history:
  dsn: %q
logging:
  level: error
%s`, hooks, filepath.Join(dir, "history.db"), extra)
	path := filepath.Join(dir, "hookforge.yaml")
	require.NoError(t, os.WriteFile(path, []byte(cfg), 0o644))
	return path
}

const passingHooks = `  - name: fmt
    tier: fast
    command: "true"
  - name: types
    tier: comprehensive
    command: "true"`

func TestRunFlagsOptions(t *testing.T) {
	tests := []struct {
		name    string
		flags   runFlags
		wantErr string
	}{
		{"fast and comp", runFlags{fast: true, comp: true}, "mutually exclusive"},
		{"bad publish", runFlags{publish: "huge"}, "--publish"},
		{"bad bump", runFlags{bump: "x"}, "--bump"},
		{"keep without backup", runFlags{keepBackups: true}, "--keep-backups"},
		{"valid", runFlags{test: true, aiAgent: true, bump: "minor", backup: true, exclude: []string{"*.md"}}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts, err := tt.flags.options()
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.True(t, opts.Test)
			assert.Equal(t, "minor", opts.BumpLevel())
			assert.Equal(t, []string{"*.md"}, opts.Cleanup.Exclude)
		})
	}
}

func TestRun_StandardSuccess(t *testing.T) {
	path := writeProject(t, passingHooks, "")
	metricsFile := filepath.Join(t.TempDir(), "hookforge.prom")

	out, err := executeCommand("run", "--config", path, "--metrics-file", metricsFile)
	require.NoError(t, err, out)
	assert.Contains(t, out, "SUCCESS")
	assert.FileExists(t, filepath.Join(filepath.Dir(path), checks.ManifestPath))

	prom, err := os.ReadFile(metricsFile)
	require.NoError(t, err)
	assert.Contains(t, string(prom), `hookforge_workflow_runs_total{outcome="success"} 1`)

	hist, err := executeCommand("history", "--config", path)
	require.NoError(t, err)
	assert.Contains(t, hist, "demo")
	assert.Contains(t, hist, "success")
}

func TestRun_ResultFile(t *testing.T) {
	path := writeProject(t, passingHooks, "")
	resultFile := filepath.Join(t.TempDir(), "out", "result.json")

	out, err := executeCommand("run", "--config", path, "--no-history", "--result-file", resultFile)
	require.NoError(t, err, out)

	data, err := os.ReadFile(resultFile)
	require.NoError(t, err)
	var res workflow.Result
	require.NoError(t, json.Unmarshal(data, &res))
	assert.Equal(t, workflow.OutcomeSuccess, res.Outcome)
}

func TestRun_FailureExitsNonZero(t *testing.T) {
	hooks := `  - name: ruff
    tier: fast
    command: "echo 'E501 line too long' && false"`
	path := writeProject(t, hooks, "")

	out, err := executeCommand("run", "--config", path, "--fast")
	require.Error(t, err)
	assert.ErrorIs(t, err, errRunFailed)
	assert.Contains(t, out, "FAILED")
}

func TestRun_AutofixVerified(t *testing.T) {
	hooks := `  - name: fmt
    tier: fast
    command: "true"
  - name: pyright
    tier: comprehensive
    command: "test -f fixed.marker"`
	fixer := `fixer:
  command: "cat >/dev/null; touch fixed.marker; echo '{\"success\":true,\"fixes_applied\":[\"resolved pyright complaint\"]}'"
`
	path := writeProject(t, hooks, fixer)

	out, err := executeCommand("run", "--config", path, "--test", "--ai-agent", "--json", "--no-history")
	require.NoError(t, err, out)

	var res workflow.Result
	start := strings.Index(out, "{\n")
	require.GreaterOrEqual(t, start, 0, out)
	require.NoError(t, json.Unmarshal([]byte(out[start:]), &res))
	assert.Equal(t, workflow.OutcomeSuccess, res.Outcome)
	assert.Equal(t, 1, res.Rounds)
	require.NotNil(t, res.Verification)
	assert.True(t, res.Verification.Plan.Comprehensive)
	assert.False(t, res.Verification.Plan.Tests)
	assert.NotEmpty(t, res.Issues)
	assert.FileExists(t, filepath.Join(filepath.Dir(path), "fixed.marker"))
}

func TestRun_InvalidConfig(t *testing.T) {
	hooks := `  - name: fmt
    tier: slow
    command: "true"`
	path := writeProject(t, hooks, "")

	_, err := executeCommand("run", "--config", path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid config")

	out, err := executeCommand("config", "validate", "--config", path)
	require.Error(t, err)
	assert.Contains(t, out, "hooks[0].tier")
}

func TestConfigShow(t *testing.T) {
	path := writeProject(t, passingHooks, "")
	out, err := executeCommand("config", "show", "--config", path)
	require.NoError(t, err)
	assert.Contains(t, out, "fix_rounds: 1")
	assert.Contains(t, out, "name: demo")
}

func TestHistoryShowAndStats(t *testing.T) {
	path := writeProject(t, passingHooks, "")
	_, err := executeCommand("run", "--config", path)
	require.NoError(t, err)

	out, err := executeCommand("history", "--config", path, "--format", "json")
	require.NoError(t, err)
	var runs []struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &runs))
	require.Len(t, runs, 1)

	out, err = executeCommand("history", "show", runs[0].ID, "--config", path)
	require.NoError(t, err)
	assert.Contains(t, out, "Configuration")

	out, err = executeCommand("history", "stats", "--config", path)
	require.NoError(t, err)
	assert.Contains(t, out, "1 run(s)")
	assert.Contains(t, out, "hooks")

	_, err = executeCommand("history", "show", "missing", "--config", path)
	assert.Error(t, err)
}
