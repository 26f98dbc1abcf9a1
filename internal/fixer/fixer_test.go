package fixer

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lucasnoah/hookforge/internal/issues"
)

type mockInput struct {
	stdout   string
	stderr   string
	exitCode int
	err      error

	command string
	stdin   []byte
}

func (m *mockInput) Run(ctx context.Context, dir, command string) (string, string, int, error) {
	return m.RunWithInput(ctx, dir, command, nil)
}

func (m *mockInput) RunWithInput(ctx context.Context, dir, command string, stdin []byte) (string, string, int, error) {
	m.command = command
	m.stdin = stdin
	return m.stdout, m.stderr, m.exitCode, m.err
}

var sample = []issues.Issue{{ID: "test_failure_0", Type: issues.TypeTestFailure, Severity: issues.SeverityHigh, Stage: "tests", Message: "test_x assert error"}}

func TestHandleIssues(t *testing.T) {
	m := &mockInput{stdout: "working...\n{\"not\": \"it\"\n" +
		`{"success": true, "fixes_applied": ["fixed test_x"], "remaining_issues": [], "confidence": 0.9}` + "\n"}
	f := New(Config{Command: "agent --json"}, "demo", t.TempDir(), m, nil)

	res, err := f.HandleIssues(context.Background(), sample)
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, []string{"fixed test_x"}, res.FixesApplied)
	assert.InDelta(t, 0.9, res.Confidence, 1e-9)
	assert.Equal(t, "agent --json", m.command)

	var req Request
	require.NoError(t, json.Unmarshal(m.stdin, &req))
	assert.Equal(t, "demo", req.Project)
	assert.Len(t, req.Issues, 1)
	assert.True(t, strings.Contains(req.Prompt, "test_x assert error"))
}

func TestHandleIssues_NonZeroExitOverridesSuccess(t *testing.T) {
	m := &mockInput{stdout: `{"success": true, "fixes_applied": ["x"]}`, exitCode: 2}
	res, err := New(Config{Command: "agent"}, "demo", t.TempDir(), m, nil).HandleIssues(context.Background(), sample)
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, []string{"x"}, res.FixesApplied)
}

func TestHandleIssues_Errors(t *testing.T) {
	ctx := context.Background()

	_, err := New(Config{}, "demo", t.TempDir(), &mockInput{}, nil).HandleIssues(ctx, sample)
	assert.Error(t, err)

	_, err = New(Config{Command: "agent"}, "demo", t.TempDir(), &mockInput{err: errors.New("exec failed")}, nil).HandleIssues(ctx, sample)
	assert.ErrorContains(t, err, "exec failed")

	_, err = New(Config{Command: "agent"}, "demo", t.TempDir(), &mockInput{stdout: "no json", exitCode: 1, stderr: "crash"}, nil).HandleIssues(ctx, sample)
	assert.ErrorContains(t, err, "crash")

	_, err = New(Config{Command: "agent"}, "demo", t.TempDir(), &mockInput{stdout: "done"}, nil).HandleIssues(ctx, sample)
	assert.ErrorContains(t, err, "no result JSON")
}
