package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/lucasnoah/hookforge/internal/issues"
	"github.com/lucasnoah/hookforge/internal/pipeline"
	"github.com/lucasnoah/hookforge/internal/progress"
)

// Plan names the phases an applied fix implicates.
type Plan struct {
	Tests         bool `json:"tests"`
	Comprehensive bool `json:"comprehensive"`
}

// PlanVerification decides which phases to re-run for the given fix
// descriptions. A description mentioning "test" implicates the test suite. One
// mentioning "complexity", "type" or "hook", or not mentioning tests at all,
// implicates the comprehensive hooks.
func PlanVerification(fixes []string) Plan {
	var plan Plan
	for _, f := range fixes {
		f = strings.ToLower(f)
		mentionsTest := strings.Contains(f, "test")
		if mentionsTest {
			plan.Tests = true
		}
		if !mentionsTest ||
			strings.Contains(f, "hook") ||
			strings.Contains(f, "complexity") ||
			strings.Contains(f, "type") {
			plan.Comprehensive = true
		}
	}
	return plan
}

// Verification records the re-runs that followed a fix.
type Verification struct {
	Skipped             bool `json:"skipped"`
	Plan                Plan `json:"plan"`
	TestsPassed         bool `json:"tests_passed,omitempty"`
	ComprehensivePassed bool `json:"comprehensive_passed,omitempty"`
	Passed              bool `json:"passed"`
}

var errNoFixer = errors.New("no fixer configured")

// autofix runs the collect, fix and verify cycle for at most fixRounds rounds.
func (p *Pipeline) autofix(ctx context.Context, opts pipeline.Options, res *Result, testsPassed, compPassed bool) Outcome {
	p.sink.UpdateStageStatus(StageAutofix, progress.StatusRunning)
	outcome := p.autofixRounds(ctx, opts, res, !testsPassed)
	if outcome == OutcomeSuccess {
		p.sink.UpdateStageStatus(StageAutofix, progress.StatusCompleted)
	} else {
		p.sink.UpdateStageStatus(StageAutofix, progress.StatusFailed)
	}
	return outcome
}

func (p *Pipeline) autofixRounds(ctx context.Context, opts pipeline.Options, res *Result, testsFailed bool) Outcome {
	var remaining []issues.Issue
	for round := 1; round <= p.fixRounds; round++ {
		res.Rounds = round
		found := p.collect(testsFailed)
		if round > 1 && len(found) == 0 {
			found = remaining
		}
		if len(found) == 0 {
			if round == 1 {
				p.logger.Info("no issues to fix")
				return OutcomeSuccess
			}
			return p.failed(ctx, res, "fixer reported failure with no remaining issues")
		}

		res.Issues = found
		for _, is := range found {
			p.sink.AddIssue(is)
			p.metrics.ObserveIssue(string(is.Type))
		}
		p.logger.Info("invoking fixer", zap.Int("round", round), zap.Int("issues", len(found)))

		fix := p.handle(ctx, found)
		res.Fix = &fix
		if ctx.Err() != nil {
			return OutcomeCancelled
		}

		v := p.verify(ctx, opts, fix)
		res.Verification = &v
		if ctx.Err() != nil {
			return OutcomeCancelled
		}
		p.logger.Info("fix verified",
			zap.Int("round", round),
			zap.Bool("fix_success", fix.Success),
			zap.Bool("verification", v.Passed),
			zap.Strings("fixes_applied", fix.FixesApplied),
		)
		if fix.Success && v.Passed {
			return OutcomeSuccess
		}

		remaining = fix.RemainingIssues
		if v.Plan.Tests {
			testsFailed = !v.TestsPassed
		}
	}
	reason := "fix not verified"
	if res.Fix != nil && !res.Fix.Success {
		reason = "fixer reported failure"
	}
	return p.failed(ctx, res, fmt.Sprintf("%s after %d rounds", reason, p.fixRounds))
}

// handle calls the fixer. A fixer error counts as an unsuccessful fix.
func (p *Pipeline) handle(ctx context.Context, found []issues.Issue) issues.FixResult {
	if p.fixer == nil {
		p.logger.Warn("fixer failed", zap.Error(errNoFixer))
		return issues.FixResult{RemainingIssues: found}
	}
	fix, err := p.fixer.HandleIssues(ctx, found)
	if err != nil {
		p.logger.Warn("fixer failed", zap.Error(err))
		return issues.FixResult{RemainingIssues: found}
	}
	return fix
}

// verify re-runs the phases implicated by fix. With nothing applied there is
// nothing to verify.
func (p *Pipeline) verify(ctx context.Context, opts pipeline.Options, fix issues.FixResult) Verification {
	if len(fix.FixesApplied) == 0 {
		return Verification{Skipped: true, Passed: true}
	}

	v := Verification{Plan: PlanVerification(fix.FixesApplied), Passed: true}
	p.sink.UpdateStageStatus(StageVerification, progress.StatusRunning)
	if v.Plan.Tests {
		v.TestsPassed = p.stage(StageTests, func() bool { return p.phases.RunTestingPhase(ctx, opts) })
		v.Passed = v.Passed && v.TestsPassed
	}
	if v.Plan.Comprehensive && ctx.Err() == nil {
		v.ComprehensivePassed = p.stage(StageComprehensive, func() bool { return p.phases.RunComprehensiveHooksOnly(ctx, opts) })
		v.Passed = v.Passed && v.ComprehensivePassed
	}
	if v.Passed {
		p.sink.UpdateStageStatus(StageVerification, progress.StatusCompleted)
	} else {
		p.sink.UpdateStageStatus(StageVerification, progress.StatusFailed)
	}
	return v
}
