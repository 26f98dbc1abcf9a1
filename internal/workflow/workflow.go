// Package workflow sequences the phases of a quality run and drives the
// autofix-verification cycle.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/lucasnoah/hookforge/internal/issues"
	"github.com/lucasnoah/hookforge/internal/metrics"
	"github.com/lucasnoah/hookforge/internal/phase"
	"github.com/lucasnoah/hookforge/internal/pipeline"
	"github.com/lucasnoah/hookforge/internal/progress"
	"github.com/lucasnoah/hookforge/internal/session"
)

// TaskWorkflow is the top-level task covering the whole run.
const TaskWorkflow = "workflow"

// Stage names reported to the progress sink.
const (
	StageConfiguration = "configuration"
	StageCleaning      = "cleaning"
	StageFast          = "fast"
	StageComprehensive = "comprehensive"
	StageHooks         = "hooks"
	StageTests         = "tests"
	StageAutofix       = "autofix"
	StageVerification  = "verification"
	StagePublishing    = "publishing"
	StageCommit        = "commit"
)

// Outcome is the tagged result of a run.
type Outcome string

const (
	OutcomeSuccess   Outcome = "success"
	OutcomeFailed    Outcome = "failed"
	OutcomeCancelled Outcome = "cancelled"
)

// Phases is the phase runner the pipeline drives.
type Phases interface {
	RunConfigurationPhase(ctx context.Context, opts pipeline.Options) bool
	RunCleaningPhase(ctx context.Context, opts pipeline.Options) bool
	RunFastHooksOnly(ctx context.Context, opts pipeline.Options) bool
	RunComprehensiveHooksOnly(ctx context.Context, opts pipeline.Options) bool
	RunHooksPhase(ctx context.Context, opts pipeline.Options) bool
	RunTestingPhase(ctx context.Context, opts pipeline.Options) bool
	RunPublishingPhase(ctx context.Context, opts pipeline.Options) bool
	RunCommitPhase(ctx context.Context, opts pipeline.Options) bool
	TestFailures() []string
}

// Fixer attempts to resolve a batch of issues.
type Fixer interface {
	HandleIssues(ctx context.Context, found []issues.Issue) (issues.FixResult, error)
}

// Result is everything a run produced.
type Result struct {
	Outcome      Outcome           `json:"outcome"`
	SessionID    string            `json:"session_id"`
	Issues       []issues.Issue    `json:"issues,omitempty"`
	Fix          *issues.FixResult `json:"fix,omitempty"`
	Verification *Verification     `json:"verification,omitempty"`
	Rounds       int               `json:"rounds"`
	Err          error             `json:"-"`
	Summary      session.Summary   `json:"summary"`
}

// Success reports whether the run succeeded.
func (r Result) Success() bool {
	return r.Outcome == OutcomeSuccess
}

// Pipeline is the workflow orchestrator. Phases run strictly one after another.
type Pipeline struct {
	phases    Phases
	fixer     Fixer
	tracker   *session.Tracker
	collector *issues.Collector
	sink      progress.Sink
	logger    *zap.Logger
	metrics   *metrics.Metrics
	fixRounds int
	now       func() time.Time
}

// New creates a Pipeline. fixer may be nil when the autofix cycle is never
// enabled; a nil fixer fails any cycle that has issues to fix.
func New(phases Phases, fixer Fixer, tracker *session.Tracker, logger *zap.Logger) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{
		phases:    phases,
		fixer:     fixer,
		tracker:   tracker,
		collector: issues.NewCollector(),
		sink:      progress.Nop{},
		logger:    logger,
		fixRounds: 1,
		now:       time.Now,
	}
}

// SetSink sets the progress sink.
func (p *Pipeline) SetSink(s progress.Sink) {
	if s == nil {
		s = progress.Nop{}
	}
	p.sink = s
}

// SetMetrics enables run metrics.
func (p *Pipeline) SetMetrics(m *metrics.Metrics) {
	p.metrics = m
}

// SetFixRounds bounds the autofix-verification cycle. Values below one are
// treated as one.
func (p *Pipeline) SetFixRounds(n int) {
	if n < 1 {
		n = 1
	}
	p.fixRounds = n
}

// RunCompleteWorkflow runs the workflow and reports overall success.
func (p *Pipeline) RunCompleteWorkflow(ctx context.Context, opts pipeline.Options) bool {
	return p.Run(ctx, opts).Success()
}

// Run executes the workflow. It never panics; the session is finalized and
// cleanup callbacks run exactly once whatever the outcome.
func (p *Pipeline) Run(ctx context.Context, opts pipeline.Options) (res Result) {
	start := p.now()
	res.SessionID = p.tracker.ID()
	p.tracker.TrackTask(TaskWorkflow, "Complete workflow")
	p.logger.Info("workflow started", zap.String("session", res.SessionID), zap.Any("options", opts))

	defer func() {
		if rec := recover(); rec != nil {
			res.Outcome = OutcomeFailed
			res.Err = fmt.Errorf("panic: %v", rec)
			p.logger.Error("workflow failed", zap.Error(res.Err), zap.Stack("stack"))
		}
		p.finish(start, &res)
	}()

	res.Outcome = p.execute(ctx, opts, &res)
	if res.Outcome == OutcomeCancelled && res.Err == nil {
		res.Err = ctx.Err()
	}
	return res
}

func (p *Pipeline) finish(start time.Time, res *Result) {
	switch res.Outcome {
	case OutcomeSuccess:
		p.tracker.CompleteTask(TaskWorkflow, "workflow succeeded")
	case OutcomeCancelled:
		p.tracker.FailTask(TaskWorkflow, "interrupted")
		p.logger.Warn("workflow interrupted", zap.Error(res.Err))
	default:
		msg := "workflow failed"
		if res.Err != nil {
			msg = res.Err.Error()
		}
		p.tracker.FailTask(TaskWorkflow, msg)
	}
	if aborted := p.tracker.AbortRunning("interrupted"); len(aborted) > 0 {
		p.logger.Warn("aborted unfinished tasks", zap.Strings("tasks", aborted))
	}

	p.tracker.FinalizeSession(start, res.Outcome == OutcomeSuccess)
	p.tracker.CleanupResources()
	res.Summary, _ = p.tracker.Summary()

	p.metrics.ObserveRun(string(res.Outcome))
	p.logger.Info("workflow finished",
		zap.String("outcome", string(res.Outcome)),
		zap.Duration("duration", p.now().Sub(start)),
		zap.Int("issues", len(res.Issues)),
	)
}

// execute is the phase state machine.
func (p *Pipeline) execute(ctx context.Context, opts pipeline.Options, res *Result) Outcome {
	if !p.stage(StageConfiguration, func() bool { return p.phases.RunConfigurationPhase(ctx, opts) }) {
		return p.failed(ctx, res, "configuration phase failed")
	}
	if !p.stage(StageCleaning, func() bool { return p.phases.RunCleaningPhase(ctx, opts) }) {
		return p.failed(ctx, res, "cleaning phase failed")
	}
	if ctx.Err() != nil {
		return OutcomeCancelled
	}

	var outcome Outcome
	switch {
	case opts.Fast:
		outcome = p.single(ctx, res, StageFast, func() bool { return p.phases.RunFastHooksOnly(ctx, opts) })
	case opts.Comp:
		outcome = p.single(ctx, res, StageComprehensive, func() bool { return p.phases.RunComprehensiveHooksOnly(ctx, opts) })
	case opts.Test:
		outcome = p.testWorkflow(ctx, opts, res)
	default:
		outcome = p.single(ctx, res, StageHooks, func() bool { return p.phases.RunHooksPhase(ctx, opts) })
	}
	if outcome != OutcomeSuccess {
		return outcome
	}

	if !p.stage(StagePublishing, func() bool { return p.phases.RunPublishingPhase(ctx, opts) }) {
		return p.failed(ctx, res, "publishing phase failed")
	}
	if !p.stage(StageCommit, func() bool { return p.phases.RunCommitPhase(ctx, opts) }) {
		return p.failed(ctx, res, "commit phase failed")
	}
	return OutcomeSuccess
}

// testWorkflow gates on fast hooks, then runs both tests and comprehensive
// hooks before deciding whether to fix.
func (p *Pipeline) testWorkflow(ctx context.Context, opts pipeline.Options, res *Result) Outcome {
	if !p.stage(StageFast, func() bool { return p.phases.RunFastHooksOnly(ctx, opts) }) {
		return p.failed(ctx, res, "fast hooks failed")
	}

	testsPassed := p.stage(StageTests, func() bool { return p.phases.RunTestingPhase(ctx, opts) })
	if ctx.Err() != nil {
		return OutcomeCancelled
	}
	compPassed := p.stage(StageComprehensive, func() bool { return p.phases.RunComprehensiveHooksOnly(ctx, opts) })
	if ctx.Err() != nil {
		return OutcomeCancelled
	}

	if testsPassed && compPassed {
		return OutcomeSuccess
	}
	if !opts.AIAgent {
		return p.failed(ctx, res, failedPhases(testsPassed, compPassed))
	}
	return p.autofix(ctx, opts, res, testsPassed, compPassed)
}

func failedPhases(testsPassed, compPassed bool) string {
	switch {
	case !testsPassed && !compPassed:
		return "tests and comprehensive hooks failed"
	case !testsPassed:
		return "tests failed"
	default:
		return "comprehensive hooks failed"
	}
}

// single runs one quality phase as the whole dispatch.
func (p *Pipeline) single(ctx context.Context, res *Result, stage string, fn func() bool) Outcome {
	if !p.stage(stage, fn) {
		return p.failed(ctx, res, stage+" failed")
	}
	return OutcomeSuccess
}

// stage wraps a phase call with progress updates.
func (p *Pipeline) stage(name string, fn func() bool) bool {
	p.sink.UpdateStageStatus(name, progress.StatusRunning)
	ok := fn()
	if ok {
		p.sink.UpdateStageStatus(name, progress.StatusCompleted)
	} else {
		p.sink.UpdateStageStatus(name, progress.StatusFailed)
	}
	return ok
}

// failed records why the run failed, or reports cancellation if the context
// ended while the failing phase ran.
func (p *Pipeline) failed(ctx context.Context, res *Result, reason string) Outcome {
	if ctx.Err() != nil {
		return OutcomeCancelled
	}
	if res.Err == nil {
		res.Err = errors.New(reason)
	}
	return OutcomeFailed
}

// collect builds the issue list from the latest test failures and every
// failed hook task on the tracker.
func (p *Pipeline) collect(testsFailed bool) []issues.Issue {
	var testFailures []string
	if testsFailed {
		testFailures = p.phases.TestFailures()
	}

	var hookFailures []issues.HookFailure
	for _, h := range []struct {
		id   string
		tier issues.Tier
	}{
		{phase.TaskFastHooks, issues.TierFast},
		{phase.TaskCompHooks, issues.TierComprehensive},
	} {
		task, ok := p.tracker.Task(h.id)
		if !ok || task.Status != session.StatusFailed {
			continue
		}
		hookFailures = append(hookFailures, issues.HookFailure{TaskID: h.id, Tier: h.tier, Message: task.ErrorMessage})
	}

	found := p.collector.Collect(testFailures, hookFailures)
	for _, is := range found {
		p.logger.Debug("issue collected",
			zap.String("id", is.ID),
			zap.String("type", string(is.Type)),
			zap.String("severity", string(is.Severity)),
		)
	}
	return found
}
