package checks

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

// mockCmd records calls and returns configured results in order.
type mockCmd struct {
	calls   []mockCall
	results []mockResult
	callIdx int
}

type mockCall struct {
	Dir     string
	Command string
}

type mockResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
	Err      error
}

func (m *mockCmd) Run(ctx context.Context, dir string, command string) (string, string, int, error) {
	m.calls = append(m.calls, mockCall{Dir: dir, Command: command})
	if m.callIdx >= len(m.results) {
		return "", "", 0, nil
	}
	r := m.results[m.callIdx]
	m.callIdx++
	return r.Stdout, r.Stderr, r.ExitCode, r.Err
}

// byCommand returns results keyed by command and is safe for concurrent use.
type byCommand struct {
	mu      sync.Mutex
	results map[string]mockResult
	calls   []string
}

func (b *byCommand) Run(ctx context.Context, dir string, command string) (string, string, int, error) {
	b.mu.Lock()
	b.calls = append(b.calls, command)
	r := b.results[command]
	b.mu.Unlock()
	return r.Stdout, r.Stderr, r.ExitCode, r.Err
}

func TestRunner_Run_HappyPath(t *testing.T) {
	mock := &mockCmd{results: []mockResult{{Stdout: "all good", ExitCode: 0}}}
	runner := NewRunner(mock)

	result, err := runner.Run(context.Background(), "/tmp/test", CheckConfig{
		Name:    "lint",
		Command: "ruff check .",
		Parser:  "generic",
		Timeout: 30 * time.Second,
	})

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Passed {
		t.Errorf("expected passed=true, got false")
	}
	if result.CheckName != "lint" {
		t.Errorf("expected check_name=lint, got %q", result.CheckName)
	}
	if len(mock.calls) != 1 {
		t.Fatalf("expected 1 call, got %d", len(mock.calls))
	}
	if mock.calls[0].Dir != "/tmp/test" {
		t.Errorf("expected dir=/tmp/test, got %q", mock.calls[0].Dir)
	}
}

func TestRunner_Run_FailedCheck(t *testing.T) {
	mock := &mockCmd{results: []mockResult{{Stdout: "errors found", ExitCode: 1}}}
	runner := NewRunner(mock)

	result, err := runner.Run(context.Background(), "/tmp", CheckConfig{Name: "lint", Command: "lint", Parser: "generic"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Passed {
		t.Error("expected passed=false")
	}
	if result.ExitCode != 1 {
		t.Errorf("expected exit_code=1, got %d", result.ExitCode)
	}
	if len(result.Failures) != 1 || result.Failures[0] != "errors found" {
		t.Errorf("unexpected failures: %v", result.Failures)
	}
}

func TestRunner_Run_AutoFix(t *testing.T) {
	mock := &mockCmd{
		results: []mockResult{
			{Stdout: "bad formatting", ExitCode: 1},
			{ExitCode: 1}, // fix command
			{Stdout: "ok", ExitCode: 0},
		},
	}
	runner := NewRunner(mock)

	result, err := runner.Run(context.Background(), "/tmp", CheckConfig{
		Name:       "format",
		Command:    "ruff format --check .",
		Parser:     "generic",
		AutoFix:    true,
		FixCommand: "ruff format .",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Passed || !result.AutoFixed {
		t.Errorf("expected passed and auto_fixed, got %+v", result)
	}
	if len(mock.calls) != 3 {
		t.Fatalf("expected 3 calls, got %d", len(mock.calls))
	}
	if mock.calls[1].Command != "ruff format ." {
		t.Errorf("expected fix command second, got %q", mock.calls[1].Command)
	}
}

func TestRunner_Run_NoAutoFixWithoutFixCommand(t *testing.T) {
	mock := &mockCmd{results: []mockResult{{ExitCode: 1}}}
	runner := NewRunner(mock)

	result, err := runner.Run(context.Background(), "/tmp", CheckConfig{Name: "x", Command: "x", AutoFix: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.AutoFixed {
		t.Error("expected no auto-fix attempt")
	}
	if len(mock.calls) != 1 {
		t.Errorf("expected 1 call, got %d", len(mock.calls))
	}
}

func TestRunner_Run_ExecError(t *testing.T) {
	mock := &mockCmd{results: []mockResult{{Err: errors.New("boom"), ExitCode: -1}}}
	runner := NewRunner(mock)

	_, err := runner.Run(context.Background(), "/tmp", CheckConfig{Name: "x", Command: "x"})
	if err == nil {
		t.Fatal("expected error")
	}
}

// slowCmd blocks until its context is done.
type slowCmd struct{}

func (slowCmd) Run(ctx context.Context, dir string, command string) (string, string, int, error) {
	<-ctx.Done()
	return "", "", -1, ctx.Err()
}

func TestRunner_Run_Timeout(t *testing.T) {
	runner := NewRunner(slowCmd{})

	result, err := runner.Run(context.Background(), "/tmp", CheckConfig{Name: "slow", Command: "sleep", Timeout: 10 * time.Millisecond})
	if err != nil {
		t.Fatalf("timeout should be a failed result, got error %v", err)
	}
	if result.Passed {
		t.Error("expected passed=false")
	}
	if len(result.Failures) != 1 {
		t.Errorf("expected a timeout failure, got %v", result.Failures)
	}
}

func TestRunner_Run_ParentCancelled(t *testing.T) {
	runner := NewRunner(slowCmd{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := runner.Run(ctx, "/tmp", CheckConfig{Name: "slow", Command: "sleep", Timeout: time.Minute})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestRunner_Run_UnknownParserFallsBack(t *testing.T) {
	mock := &mockCmd{results: []mockResult{{ExitCode: 0}}}
	runner := NewRunner(mock)

	result, err := runner.Run(context.Background(), "/tmp", CheckConfig{Name: "x", Command: "x", Parser: "nope"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Summary != "passed (exit code 0)" {
		t.Errorf("expected generic summary, got %q", result.Summary)
	}
}

func TestExecRunner(t *testing.T) {
	e := &ExecRunner{}
	ctx := context.Background()

	stdout, _, code, err := e.Run(ctx, t.TempDir(), "echo hi")
	if err != nil || code != 0 || stdout != "hi\n" {
		t.Fatalf("echo: stdout=%q code=%d err=%v", stdout, code, err)
	}

	_, _, code, err = e.Run(ctx, t.TempDir(), "exit 3")
	if err != nil || code != 3 {
		t.Fatalf("exit 3: code=%d err=%v", code, err)
	}

	stdout, _, _, err = e.RunWithInput(ctx, t.TempDir(), "cat", []byte("piped"))
	if err != nil || stdout != "piped" {
		t.Fatalf("cat: stdout=%q err=%v", stdout, err)
	}
}
