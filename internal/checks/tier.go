package checks

import (
	"context"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
)

// HookConfig is one configured hook.
type HookConfig struct {
	Name       string        `yaml:"name"`
	Tier       string        `yaml:"tier"`
	Command    string        `yaml:"command"`
	Parser     string        `yaml:"parser"`
	Timeout    time.Duration `yaml:"timeout"`
	AutoFix    bool          `yaml:"auto_fix,omitempty"`
	FixCommand string        `yaml:"fix_command,omitempty"`
}

func (h HookConfig) check() CheckConfig {
	return CheckConfig{
		Name:       h.Name,
		Command:    h.Command,
		Parser:     h.Parser,
		Timeout:    h.Timeout,
		AutoFix:    h.AutoFix,
		FixCommand: h.FixCommand,
	}
}

// Tier names.
const (
	TierFast          = "fast"
	TierComprehensive = "comprehensive"
)

// HookResult is the outcome of a single hook within a tier run.
type HookResult struct {
	Hook      string `json:"hook"`
	Passed    bool   `json:"passed"`
	AutoFixed bool   `json:"auto_fixed,omitempty"`
	Runs      int    `json:"runs"`
	Summary   string `json:"summary,omitempty"`
}

// TierResult is the structured output of a full tier run.
type TierResult struct {
	Tier    string       `json:"tier"`
	Passed  bool         `json:"passed"`
	Hooks   []HookResult `json:"hooks"`
	Results []*Result    `json:"-"`
}

// FailureMessage lists the failed hooks as "name: summary; ...". Hook names
// come first so downstream classification can recognize the tool.
func (t *TierResult) FailureMessage() string {
	var parts []string
	for _, h := range t.Hooks {
		if !h.Passed {
			parts = append(parts, fmt.Sprintf("%s: %s", h.Hook, h.Summary))
		}
	}
	return strings.Join(parts, "; ")
}

// Summary returns a one-line pass count for the tier.
func (t *TierResult) Summary() string {
	passed := 0
	for _, h := range t.Hooks {
		if h.Passed {
			passed++
		}
	}
	return fmt.Sprintf("%d/%d %s hooks passed", passed, len(t.Hooks), t.Tier)
}

// RunTier executes every hook of a tier, at most concurrency at a time.
// All hooks run even when some fail; results keep the order of hooks.
func (r *Runner) RunTier(ctx context.Context, dir string, tier string, hooks []HookConfig, concurrency int) (*TierResult, error) {
	results := make([]*Result, len(hooks))

	g, gctx := errgroup.WithContext(ctx)
	if concurrency > 0 {
		g.SetLimit(concurrency)
	}
	for i, h := range hooks {
		g.Go(func() error {
			res, err := r.Run(gctx, dir, h.check())
			if err != nil {
				return fmt.Errorf("hook %q: %w", h.Name, err)
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	tr := &TierResult{Tier: tier, Passed: true, Results: results}
	for _, res := range results {
		runs := 1
		if res.AutoFixed {
			runs = 2
		}
		tr.Hooks = append(tr.Hooks, HookResult{
			Hook:      res.CheckName,
			Passed:    res.Passed,
			AutoFixed: res.AutoFixed,
			Runs:      runs,
			Summary:   res.Summary,
		})
		if !res.Passed {
			tr.Passed = false
		}
	}
	return tr, nil
}
