package cli

import (
	"context"
	"errors"
	"fmt"
	"io"

	"go.uber.org/zap"

	"github.com/lucasnoah/hookforge/internal/checks"
	"github.com/lucasnoah/hookforge/internal/cleaner"
	"github.com/lucasnoah/hookforge/internal/config"
	"github.com/lucasnoah/hookforge/internal/fixer"
	"github.com/lucasnoah/hookforge/internal/git"
	"github.com/lucasnoah/hookforge/internal/history"
	"github.com/lucasnoah/hookforge/internal/logging"
	"github.com/lucasnoah/hookforge/internal/metrics"
	"github.com/lucasnoah/hookforge/internal/phase"
	"github.com/lucasnoah/hookforge/internal/pipeline"
	"github.com/lucasnoah/hookforge/internal/progress"
	"github.com/lucasnoah/hookforge/internal/publish"
	"github.com/lucasnoah/hookforge/internal/session"
	"github.com/lucasnoah/hookforge/internal/workflow"
)

// app is one fully wired workflow run.
type app struct {
	cfg      *config.Config
	logger   *zap.Logger
	tracker  *session.Tracker
	metrics  *metrics.Metrics
	pipeline *workflow.Pipeline
	events   *progress.EventLog
}

// newApp wires the adapters for a single run. Each run gets its own tracker.
func newApp(ctx context.Context, cfg *config.Config, opts pipeline.Options, out io.Writer, eventsPath string) (*app, error) {
	logger, err := logging.New(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		return nil, err
	}

	root := cfg.Project.Root
	exec := &checks.ExecRunner{}
	runner := checks.NewRunner(exec)

	deps := phase.Deps{
		Config:    checks.NewManifestWriter(root, cfg.Project.Name, cfg.Hooks, cfg.Tests),
		Cleaner:   cleaner.New(root, cfg.Cleaning, opts.Cleanup),
		Hooks:     checks.NewHookRunner(runner, root, cfg.Hooks, cfg.Workflow.HookConcurrency),
		Publisher: publish.New(root, cfg.Project.PackageFile, cfg.Project.PublishCommand, exec, logger),
	}
	if cfg.Tests.Command != "" {
		deps.Tests = checks.NewTestRunner(runner, root, cfg.Tests)
	}

	var prs git.PullRequester
	if opts.CreatePR {
		gh, err := git.NewGitHub(ctx, git.Token(cfg.Git), "")
		if err != nil {
			return nil, fmt.Errorf("create-pr: %w", err)
		}
		prs = gh
	}
	deps.Git = git.New(root, cfg.Git, &git.ExecGit{}, prs, logger)

	a := &app{
		cfg:     cfg,
		logger:  logger,
		tracker: session.NewTracker(logger),
		metrics: metrics.New(),
	}

	phases := phase.NewRunner(deps, a.tracker, logger)
	phases.SetMetrics(a.metrics)

	fx := fixer.New(cfg.Fixer, cfg.Project.Name, root, exec, logger)
	a.pipeline = workflow.New(phases, fx, a.tracker, logger)
	a.pipeline.SetFixRounds(cfg.Workflow.FixRounds)
	a.pipeline.SetMetrics(a.metrics)

	sinks := progress.Multi{progress.NewLineWriter(out)}
	if eventsPath != "" {
		a.events, err = progress.OpenEventLog(eventsPath, a.tracker.ID())
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, a.events)
	}
	a.pipeline.SetSink(sinks)
	return a, nil
}

// run executes the workflow and persists what it produced. Persistence
// failures are logged; they never change the run outcome.
func (a *app) run(ctx context.Context, opts pipeline.Options, flags *runFlags) workflow.Result {
	res := a.pipeline.Run(ctx, opts)

	if !flags.noHistory && !a.cfg.History.Disabled {
		if err := a.record(ctx, opts, res); err != nil {
			a.logger.Warn("record history failed", zap.Error(err))
		}
	}
	if flags.metricsFile != "" {
		if err := a.metrics.WriteTextfile(flags.metricsFile); err != nil {
			a.logger.Warn("write metrics failed", zap.String("path", flags.metricsFile), zap.Error(err))
		}
	}
	if flags.resultFile != "" {
		if err := pipeline.WriteJSON(flags.resultFile, res); err != nil {
			a.logger.Warn("write result failed", zap.String("path", flags.resultFile), zap.Error(err))
		}
	}
	return res
}

func (a *app) record(ctx context.Context, opts pipeline.Options, res workflow.Result) error {
	// The run context may already be cancelled; history still gets the run.
	ctx = context.WithoutCancel(ctx)
	db, err := history.Open(ctx, a.cfg.History.DSN)
	if err != nil {
		return err
	}
	defer db.Close()
	if err := db.Migrate(ctx); err != nil {
		return err
	}
	return db.RecordRun(ctx, historyRun(a.cfg.Project.Name, opts, res))
}

func historyRun(project string, opts pipeline.Options, res workflow.Result) history.Run {
	run := history.Run{
		ID:        res.SessionID,
		Project:   project,
		StartedAt: res.Summary.StartTime,
		EndedAt:   res.Summary.EndTime,
		Outcome:   string(res.Outcome),
		Rounds:    res.Rounds,
		Options:   opts,
		Tasks:     res.Summary.Tasks,
		Issues:    res.Issues,
	}
	if res.Err != nil {
		run.Error = res.Err.Error()
	}
	return run
}

func (a *app) close() {
	if a.events != nil {
		a.events.Close()
	}
	_ = a.logger.Sync()
}

// errRunFailed is returned for a failed or interrupted workflow so the
// process exits non-zero.
var errRunFailed = errors.New("workflow did not succeed")

func resultError(res workflow.Result) error {
	if res.Success() {
		return nil
	}
	if res.Err != nil {
		return fmt.Errorf("%w (%s): %v", errRunFailed, res.Outcome, res.Err)
	}
	return fmt.Errorf("%w (%s)", errRunFailed, res.Outcome)
}
