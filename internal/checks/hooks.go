package checks

import (
	"context"

	"github.com/lucasnoah/hookforge/internal/pipeline"
)

// HookRunner runs the configured hooks of a project, tier by tier.
type HookRunner struct {
	runner      *Runner
	dir         string
	hooks       []HookConfig
	concurrency int
}

// NewHookRunner creates a HookRunner for the hooks rooted at dir.
func NewHookRunner(runner *Runner, dir string, hooks []HookConfig, concurrency int) *HookRunner {
	return &HookRunner{runner: runner, dir: dir, hooks: hooks, concurrency: concurrency}
}

// Hooks returns the hooks of the given tier in configured order.
func (h *HookRunner) Hooks(tier string) []HookConfig {
	var out []HookConfig
	for _, hk := range h.hooks {
		if hk.Tier == tier {
			out = append(out, hk)
		}
	}
	return out
}

// RunFast runs the fast tier.
func (h *HookRunner) RunFast(ctx context.Context, _ pipeline.Options) (*TierResult, error) {
	return h.runner.RunTier(ctx, h.dir, TierFast, h.Hooks(TierFast), h.concurrency)
}

// RunComprehensive runs the comprehensive tier.
func (h *HookRunner) RunComprehensive(ctx context.Context, _ pipeline.Options) (*TierResult, error) {
	return h.runner.RunTier(ctx, h.dir, TierComprehensive, h.Hooks(TierComprehensive), h.concurrency)
}

// RunStandard runs the fast tier, then the comprehensive tier if the fast tier
// passed. The returned result merges both tiers.
func (h *HookRunner) RunStandard(ctx context.Context, opts pipeline.Options) (*TierResult, error) {
	fast, err := h.RunFast(ctx, opts)
	if err != nil {
		return nil, err
	}
	if !fast.Passed {
		return fast, nil
	}
	comp, err := h.RunComprehensive(ctx, opts)
	if err != nil {
		return nil, err
	}
	return &TierResult{
		Tier:    "standard",
		Passed:  comp.Passed,
		Hooks:   append(fast.Hooks, comp.Hooks...),
		Results: append(fast.Results, comp.Results...),
	}, nil
}
