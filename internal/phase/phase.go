// Package phase runs the individual workflow phases against injected
// adapters and records each one on the session tracker.
package phase

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/lucasnoah/hookforge/internal/checks"
	"github.com/lucasnoah/hookforge/internal/cleaner"
	"github.com/lucasnoah/hookforge/internal/metrics"
	"github.com/lucasnoah/hookforge/internal/pipeline"
	"github.com/lucasnoah/hookforge/internal/session"
)

// Task IDs recorded on the tracker, one per phase.
const (
	TaskConfiguration = "configuration"
	TaskCleaning      = "cleaning"
	TaskFastHooks     = "fast_hooks"
	TaskCompHooks     = "comprehensive_hooks"
	TaskHooks         = "hooks"
	TaskTesting       = "testing"
	TaskPublishing    = "publishing"
	TaskCommit        = "commit"
)

// Configurer prepares tool configuration for a run.
type Configurer interface {
	Configure(ctx context.Context, opts pipeline.Options) (string, error)
}

// Cleaner cleans individual project files.
type Cleaner interface {
	ListFiles(ctx context.Context) ([]string, error)
	ShouldProcessFile(path string) bool
	CleanFile(path string) (cleaner.Result, error)
}

// HookRunner runs hook tiers.
type HookRunner interface {
	RunFast(ctx context.Context, opts pipeline.Options) (*checks.TierResult, error)
	RunComprehensive(ctx context.Context, opts pipeline.Options) (*checks.TierResult, error)
	RunStandard(ctx context.Context, opts pipeline.Options) (*checks.TierResult, error)
}

// TestRunner runs the test suite.
type TestRunner interface {
	Run(ctx context.Context, opts pipeline.Options) (bool, error)
	TestFailures() []string
}

// Publisher bumps the package version and publishes it.
type Publisher interface {
	Bump(ctx context.Context, level string) (string, error)
	Publish(ctx context.Context) error
}

// Committer records changes in version control.
type Committer interface {
	Commit(ctx context.Context, message string) (string, error)
	CreatePR(ctx context.Context, title, body string) (string, error)
}

// Deps are the adapters phases delegate to. Any of them may be nil; a phase
// whose adapter is missing fails when it has work to do.
type Deps struct {
	Config    Configurer
	Cleaner   Cleaner
	Hooks     HookRunner
	Tests     TestRunner
	Publisher Publisher
	Git       Committer
}

// Runner executes phases. Every phase returns a plain bool; adapter errors
// and panics are recorded on the tracker and never escape.
type Runner struct {
	deps    Deps
	tracker *session.Tracker
	logger  *zap.Logger
	metrics *metrics.Metrics
}

// NewRunner creates a phase Runner.
func NewRunner(deps Deps, tracker *session.Tracker, logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{deps: deps, tracker: tracker, logger: logger}
}

// SetMetrics enables phase metrics.
func (r *Runner) SetMetrics(m *metrics.Metrics) {
	r.metrics = m
}

var errNoAdapter = errors.New("no adapter configured")

// run tracks one phase around fn. fn returns task details on success.
func (r *Runner) run(ctx context.Context, id, name string, fn func(ctx context.Context) (string, error)) (passed bool) {
	r.tracker.TrackTask(id, name)
	start := time.Now()
	r.logger.Info("phase started", zap.String("phase", id))

	defer func() {
		if rec := recover(); rec != nil {
			msg := fmt.Sprintf("panic: %v", rec)
			r.tracker.FailTask(id, msg)
			r.logger.Error("phase panicked", zap.String("phase", id), zap.String("error", msg), zap.Stack("stack"))
			passed = false
		}
		d := time.Since(start)
		r.metrics.ObservePhase(id, d, passed)
		r.logger.Info("phase finished", zap.String("phase", id), zap.Duration("duration", d), zap.Bool("passed", passed))
	}()

	details, err := fn(ctx)
	if err != nil {
		r.tracker.FailTask(id, err.Error())
		r.logger.Warn("phase failed", zap.String("phase", id), zap.Error(err))
		return false
	}
	r.tracker.CompleteTask(id, details)
	return true
}

// RunConfigurationPhase prepares tool configuration. Failure is fatal to the run.
func (r *Runner) RunConfigurationPhase(ctx context.Context, opts pipeline.Options) bool {
	return r.run(ctx, TaskConfiguration, "Configuration", func(ctx context.Context) (string, error) {
		if r.deps.Config == nil {
			return "no configuration step", nil
		}
		path, err := r.deps.Config.Configure(ctx, opts)
		if err != nil {
			return "", fmt.Errorf("configure: %w", err)
		}
		return "wrote " + path, nil
	})
}

// RunCleaningPhase cleans every eligible file when opts.Clean is set.
// Backups, when kept, are removed at the end of the run unless the policy
// asks to keep them.
func (r *Runner) RunCleaningPhase(ctx context.Context, opts pipeline.Options) bool {
	return r.run(ctx, TaskCleaning, "Code cleaning", func(ctx context.Context) (string, error) {
		if !opts.Clean {
			return "skipped", nil
		}
		if r.deps.Cleaner == nil {
			return "", fmt.Errorf("cleaning: %w", errNoAdapter)
		}
		files, err := r.deps.Cleaner.ListFiles(ctx)
		if err != nil {
			return "", fmt.Errorf("list files: %w", err)
		}

		var changed, failed, removed int
		var backups []string
		defer func() {
			if len(backups) > 0 && !opts.Cleanup.KeepBackups {
				r.tracker.RegisterCleanup(removeFiles(backups))
			}
		}()
		for _, path := range files {
			if err := ctx.Err(); err != nil {
				return "", err
			}
			if !r.deps.Cleaner.ShouldProcessFile(path) {
				continue
			}
			res, err := r.deps.Cleaner.CleanFile(path)
			if err != nil {
				return "", fmt.Errorf("clean %s: %w", path, err)
			}
			if res.Backup != "" {
				backups = append(backups, res.Backup)
			}
			if !res.Success {
				failed++
				r.logger.Warn("clean file failed", zap.String("path", path), zap.String("error", res.Error))
				continue
			}
			if res.Changed {
				changed++
			}
			removed += res.LinesRemoved
		}
		if failed > 0 {
			return "", fmt.Errorf("%d files failed to clean", failed)
		}
		return fmt.Sprintf("%d files changed, %d lines removed", changed, removed), nil
	})
}

func removeFiles(paths []string) session.CleanupFunc {
	return func() error {
		var errs []error
		for _, p := range paths {
			if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
				errs = append(errs, err)
			}
		}
		return errors.Join(errs...)
	}
}

// RunFastHooksOnly runs the fast hook tier.
func (r *Runner) RunFastHooksOnly(ctx context.Context, opts pipeline.Options) bool {
	return r.runTier(ctx, opts, TaskFastHooks, "Fast hooks", func(h HookRunner) (*checks.TierResult, error) {
		return h.RunFast(ctx, opts)
	})
}

// RunComprehensiveHooksOnly runs the comprehensive hook tier.
func (r *Runner) RunComprehensiveHooksOnly(ctx context.Context, opts pipeline.Options) bool {
	return r.runTier(ctx, opts, TaskCompHooks, "Comprehensive hooks", func(h HookRunner) (*checks.TierResult, error) {
		return h.RunComprehensive(ctx, opts)
	})
}

// RunHooksPhase runs the standard fast-then-comprehensive sequence.
func (r *Runner) RunHooksPhase(ctx context.Context, opts pipeline.Options) bool {
	return r.runTier(ctx, opts, TaskHooks, "Hooks", func(h HookRunner) (*checks.TierResult, error) {
		return h.RunStandard(ctx, opts)
	})
}

func (r *Runner) runTier(ctx context.Context, opts pipeline.Options, id, name string, fn func(HookRunner) (*checks.TierResult, error)) bool {
	return r.run(ctx, id, name, func(ctx context.Context) (string, error) {
		if opts.SkipHooks {
			return "skipped", nil
		}
		if r.deps.Hooks == nil {
			return "", fmt.Errorf("hooks: %w", errNoAdapter)
		}
		tr, err := fn(r.deps.Hooks)
		if err != nil {
			return "", err
		}
		if !tr.Passed {
			return "", errors.New(tr.FailureMessage())
		}
		return tr.Summary(), nil
	})
}

// RunTestingPhase runs the test suite. Failure detail is available from
// TestFailures afterwards.
func (r *Runner) RunTestingPhase(ctx context.Context, opts pipeline.Options) bool {
	return r.run(ctx, TaskTesting, "Tests", func(ctx context.Context) (string, error) {
		if r.deps.Tests == nil {
			return "", fmt.Errorf("tests: %w", errNoAdapter)
		}
		passed, err := r.deps.Tests.Run(ctx, opts)
		if err != nil {
			return "", fmt.Errorf("run tests: %w", err)
		}
		if !passed {
			return "", fmt.Errorf("tests failed: %d failures", len(r.deps.Tests.TestFailures()))
		}
		return "tests passed", nil
	})
}

// TestFailures returns the failures of the most recent test run.
func (r *Runner) TestFailures() []string {
	if r.deps.Tests == nil {
		return nil
	}
	return r.deps.Tests.TestFailures()
}

// RunPublishingPhase bumps the version and publishes when asked to.
func (r *Runner) RunPublishingPhase(ctx context.Context, opts pipeline.Options) bool {
	return r.run(ctx, TaskPublishing, "Publishing", func(ctx context.Context) (string, error) {
		level := opts.BumpLevel()
		if level == "" {
			return "skipped", nil
		}
		if r.deps.Publisher == nil {
			return "", fmt.Errorf("publishing: %w", errNoAdapter)
		}
		version, err := r.deps.Publisher.Bump(ctx, level)
		if err != nil {
			return "", fmt.Errorf("bump %s: %w", level, err)
		}
		if opts.Publish == "" {
			return "bumped to " + version, nil
		}
		if err := r.deps.Publisher.Publish(ctx); err != nil {
			return "", fmt.Errorf("publish %s: %w", version, err)
		}
		return "published " + version, nil
	})
}

// RunCommitPhase commits the working tree and optionally opens a pull request.
func (r *Runner) RunCommitPhase(ctx context.Context, opts pipeline.Options) bool {
	return r.run(ctx, TaskCommit, "Commit", func(ctx context.Context) (string, error) {
		if !opts.WantsCommit() {
			return "skipped", nil
		}
		if r.deps.Git == nil {
			return "", fmt.Errorf("commit: %w", errNoAdapter)
		}
		msg := opts.Message()
		hash, err := r.deps.Git.Commit(ctx, msg)
		if err != nil {
			return "", fmt.Errorf("commit: %w", err)
		}
		details := "nothing to commit"
		if hash != "" {
			details = "committed " + shortHash(hash)
		}
		if !opts.CreatePR {
			return details, nil
		}
		url, err := r.deps.Git.CreatePR(ctx, msg, "Automated quality fixes.")
		if err != nil {
			return "", fmt.Errorf("create pr: %w", err)
		}
		return details + ", opened " + url, nil
	})
}

func shortHash(h string) string {
	if len(h) > 8 {
		return h[:8]
	}
	return h
}
