// Package checks runs hook and test commands and normalizes their output.
package checks

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// DefaultTimeout applies to checks that do not configure their own.
const DefaultTimeout = 2 * time.Minute

// Result holds the structured output of a check run.
type Result struct {
	CheckName  string   `json:"check_name"`
	Passed     bool     `json:"passed"`
	AutoFixed  bool     `json:"auto_fixed"`
	ExitCode   int      `json:"exit_code"`
	DurationMs int      `json:"duration_ms"`
	Summary    string   `json:"summary"`
	Findings   string   `json:"findings"`
	Failures   []string `json:"failures,omitempty"`
	Stdout     string   `json:"stdout,omitempty"`
	Stderr     string   `json:"stderr,omitempty"`
}

// CheckConfig holds what the runner needs to execute one check.
type CheckConfig struct {
	Name       string        `yaml:"name"`
	Command    string        `yaml:"command"`
	Parser     string        `yaml:"parser,omitempty"`
	Timeout    time.Duration `yaml:"timeout,omitempty"`
	AutoFix    bool          `yaml:"auto_fix,omitempty"`
	FixCommand string        `yaml:"fix_command,omitempty"`
}

// CommandRunner abstracts command execution for testability.
type CommandRunner interface {
	Run(ctx context.Context, dir string, command string) (stdout string, stderr string, exitCode int, err error)
}

// InputRunner is a CommandRunner that can also feed stdin.
type InputRunner interface {
	CommandRunner
	RunWithInput(ctx context.Context, dir string, command string, stdin []byte) (stdout string, stderr string, exitCode int, err error)
}

// ExecRunner implements InputRunner by shelling out through sh -c.
type ExecRunner struct{}

func (e *ExecRunner) Run(ctx context.Context, dir string, command string) (string, string, int, error) {
	return e.RunWithInput(ctx, dir, command, nil)
}

func (e *ExecRunner) RunWithInput(ctx context.Context, dir string, command string, stdin []byte) (string, string, int, error) {
	cmd := exec.CommandContext(ctx, "sh", "-c", command)
	cmd.Dir = dir
	if stdin != nil {
		cmd.Stdin = bytes.NewReader(stdin)
	}

	var stdoutBuf, stderrBuf strings.Builder
	cmd.Stdout = &stdoutBuf
	cmd.Stderr = &stderrBuf

	err := cmd.Run()
	exitCode := 0
	if err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) || ctx.Err() != nil {
			return stdoutBuf.String(), stderrBuf.String(), -1, fmt.Errorf("exec: %w", err)
		}
		exitCode = exitErr.ExitCode()
	}
	return stdoutBuf.String(), stderrBuf.String(), exitCode, nil
}

// Runner executes checks and parses their output.
type Runner struct {
	cmd     CommandRunner
	parsers map[string]Parser
}

// NewRunner creates a Runner with the built-in parsers registered.
func NewRunner(cmd CommandRunner) *Runner {
	r := &Runner{
		cmd:     cmd,
		parsers: make(map[string]Parser),
	}
	r.parsers["ruff"] = &RuffParser{}
	r.parsers["pyright"] = &PyrightParser{}
	r.parsers["bandit"] = &BanditParser{}
	r.parsers["pytest"] = &PytestParser{}
	r.parsers["generic"] = &GenericParser{}
	return r
}

// ParserNames lists the parser names NewRunner registers.
func ParserNames() []string {
	return []string{"ruff", "pyright", "bandit", "pytest", "generic"}
}

// Run executes a single check in dir. A failed check with auto-fix enabled
// runs its fix command and is re-checked once.
func (r *Runner) Run(ctx context.Context, dir string, cfg CheckConfig) (*Result, error) {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	result, err := r.runOnce(ctx, dir, cfg, timeout)
	if err != nil {
		return nil, err
	}

	if !result.Passed && cfg.AutoFix && cfg.FixCommand != "" {
		fixCtx, cancel := context.WithTimeout(ctx, timeout)
		// Fix commands often exit non-zero even when they changed something.
		_, _, _, _ = r.cmd.Run(fixCtx, dir, cfg.FixCommand)
		cancel()

		recheck, err := r.runOnce(ctx, dir, cfg, timeout)
		if err != nil {
			return nil, fmt.Errorf("re-run after fix: %w", err)
		}
		recheck.AutoFixed = true
		return recheck, nil
	}

	return result, nil
}

func (r *Runner) runOnce(ctx context.Context, dir string, cfg CheckConfig, timeout time.Duration) (*Result, error) {
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	stdout, stderr, exitCode, err := r.cmd.Run(runCtx, dir, cfg.Command)
	durationMs := int(time.Since(start).Milliseconds())

	if err != nil {
		if ctx.Err() == nil && errors.Is(runCtx.Err(), context.DeadlineExceeded) {
			return &Result{
				CheckName:  cfg.Name,
				Passed:     false,
				ExitCode:   -1,
				DurationMs: durationMs,
				Summary:    fmt.Sprintf("timeout after %s", timeout),
				Failures:   []string{fmt.Sprintf("%s timed out after %s", cfg.Name, timeout)},
				Stdout:     stdout,
				Stderr:     stderr,
			}, nil
		}
		return nil, fmt.Errorf("run check %q: %w", cfg.Name, err)
	}

	parser, ok := r.parsers[cfg.Parser]
	if !ok {
		parser = r.parsers["generic"]
	}

	parsed := parser.Parse(stdout, stderr, exitCode)
	findingsJSON, _ := json.Marshal(parsed.Findings)

	return &Result{
		CheckName:  cfg.Name,
		Passed:     exitCode == 0 && parsed.Passed,
		ExitCode:   exitCode,
		DurationMs: durationMs,
		Summary:    parsed.Summary,
		Findings:   string(findingsJSON),
		Failures:   parsed.Failures,
		Stdout:     stdout,
		Stderr:     stderr,
	}, nil
}
