// Package fixer hands collected issues to an external agent command and
// reads back what it changed.
package fixer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/lucasnoah/hookforge/internal/checks"
	"github.com/lucasnoah/hookforge/internal/issues"
	"github.com/lucasnoah/hookforge/internal/prompt"
)

// DefaultTimeout bounds one fixer invocation.
const DefaultTimeout = 20 * time.Minute

// Config configures the agent command.
type Config struct {
	Command  string        `yaml:"command"`
	Timeout  time.Duration `yaml:"timeout"`
	Template string        `yaml:"template"`
}

// Request is written to the agent's stdin as JSON.
type Request struct {
	Project string         `json:"project"`
	Root    string         `json:"root"`
	Prompt  string         `json:"prompt"`
	Issues  []issues.Issue `json:"issues"`
}

// CommandFixer runs the configured agent command once per batch of issues.
type CommandFixer struct {
	cfg     Config
	project string
	root    string
	runner  checks.InputRunner
	logger  *zap.Logger
}

// New creates a CommandFixer for the project at root.
func New(cfg Config, project, root string, runner checks.InputRunner, logger *zap.Logger) *CommandFixer {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Template == "" {
		cfg.Template = prompt.FixTemplate
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CommandFixer{cfg: cfg, project: project, root: root, runner: runner, logger: logger}
}

// HandleIssues renders the fix prompt, runs the agent and decodes the
// FixResult it prints as the last JSON line of its output.
func (f *CommandFixer) HandleIssues(ctx context.Context, found []issues.Issue) (issues.FixResult, error) {
	if f.cfg.Command == "" {
		return issues.FixResult{}, errors.New("fixer command not configured")
	}

	tmpl, err := prompt.Load(f.root, f.cfg.Template)
	if err != nil {
		return issues.FixResult{}, fmt.Errorf("load fix template: %w", err)
	}
	rendered, err := prompt.Render(tmpl, prompt.FixVars(f.project, f.root, found))
	if err != nil {
		return issues.FixResult{}, fmt.Errorf("render fix prompt: %w", err)
	}
	payload, err := json.Marshal(Request{Project: f.project, Root: f.root, Prompt: rendered, Issues: found})
	if err != nil {
		return issues.FixResult{}, fmt.Errorf("marshal request: %w", err)
	}

	runCtx, cancel := context.WithTimeout(ctx, f.cfg.Timeout)
	defer cancel()

	start := time.Now()
	f.logger.Info("running fixer", zap.String("command", f.cfg.Command), zap.Int("issues", len(found)))
	stdout, stderr, exitCode, err := f.runner.RunWithInput(runCtx, f.root, f.cfg.Command, payload)
	if err != nil {
		return issues.FixResult{}, fmt.Errorf("run fixer: %w", err)
	}
	f.logger.Info("fixer finished", zap.Int("exit_code", exitCode), zap.Duration("duration", time.Since(start)))

	result, err := ParseResult(stdout)
	if err != nil {
		if exitCode != 0 {
			return issues.FixResult{}, fmt.Errorf("fixer exited %d: %s", exitCode, tail(stderr, 500))
		}
		return issues.FixResult{}, err
	}
	if exitCode != 0 {
		result.Success = false
	}
	return result, nil
}

// ParseResult finds the last line of out that decodes as a FixResult object.
func ParseResult(out string) (issues.FixResult, error) {
	lines := strings.Split(out, "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		line := strings.TrimSpace(lines[i])
		if !strings.HasPrefix(line, "{") {
			continue
		}
		var r issues.FixResult
		if err := json.Unmarshal([]byte(line), &r); err == nil {
			return r, nil
		}
	}
	return issues.FixResult{}, errors.New("fixer printed no result JSON")
}

func tail(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) > n {
		return s[len(s)-n:]
	}
	return s
}
