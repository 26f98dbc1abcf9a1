package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/lucasnoah/hookforge/internal/config"
	"github.com/lucasnoah/hookforge/internal/pipeline"
	"github.com/lucasnoah/hookforge/internal/publish"
)

// runFlags holds the flags shared by run and watch.
type runFlags struct {
	test, aiAgent, fast, comp, skipHooks, clean bool
	publish, bump                               string
	commit, createPR                            bool
	message                                     string
	backup, keepBackups                         bool
	exclude                                     []string
	fixRounds                                   int

	metricsFile, events, resultFile string
	noHistory, jsonOut              bool
}

func addRunFlags(cmd *cobra.Command, f *runFlags) {
	fl := cmd.Flags()
	fl.BoolVar(&f.test, "test", false, "run the test workflow (hooks then tests)")
	fl.BoolVar(&f.aiAgent, "ai-agent", false, "hand failures to the fixer agent and verify its fix")
	fl.BoolVar(&f.fast, "fast", false, "run only the fast hook tier")
	fl.BoolVar(&f.comp, "comp", false, "run only the comprehensive hook tier")
	fl.BoolVar(&f.skipHooks, "skip-hooks", false, "record every hook phase as skipped")
	fl.BoolVar(&f.clean, "clean", false, "normalize whitespace in project files first")
	fl.StringVar(&f.publish, "publish", "", "bump at level (patch, minor, major) and publish")
	fl.StringVar(&f.bump, "bump", "", "bump the version at level without publishing")
	fl.BoolVar(&f.commit, "commit", false, "commit all changes after a successful run")
	fl.BoolVar(&f.createPR, "create-pr", false, "commit, push and open a pull request")
	fl.StringVarP(&f.message, "message", "m", "", "commit message")
	fl.BoolVar(&f.backup, "backup", false, "keep a .bak copy of every cleaned file during the run")
	fl.BoolVar(&f.keepBackups, "keep-backups", false, "leave .bak copies after the run")
	fl.StringSliceVar(&f.exclude, "exclude", nil, "glob of files the cleaning phase skips (repeatable)")
	fl.IntVar(&f.fixRounds, "fix-rounds", 0, "override workflow.fix_rounds")
	fl.StringVar(&f.metricsFile, "metrics-file", "", "write Prometheus metrics to this file after the run")
	fl.StringVar(&f.events, "events", "", "append JSONL progress events to this file")
	fl.BoolVar(&f.noHistory, "no-history", false, "do not record the run in history")
	fl.BoolVar(&f.jsonOut, "json", false, "print the run result as JSON")
	fl.StringVar(&f.resultFile, "result-file", "", "write the run result as JSON to this file")
}

// options converts flags to run options.
func (f *runFlags) options() (pipeline.Options, error) {
	if f.fast && f.comp {
		return pipeline.Options{}, errors.New("--fast and --comp are mutually exclusive")
	}
	for _, lv := range []struct{ flag, level string }{{"--publish", f.publish}, {"--bump", f.bump}} {
		if lv.level != "" && !publish.ValidLevel(lv.level) {
			return pipeline.Options{}, fmt.Errorf("%s: invalid level %q (want patch, minor or major)", lv.flag, lv.level)
		}
	}
	if f.keepBackups && !f.backup {
		return pipeline.Options{}, errors.New("--keep-backups requires --backup")
	}
	return pipeline.Options{
		Test:          f.test,
		AIAgent:       f.aiAgent,
		Fast:          f.fast,
		Comp:          f.comp,
		SkipHooks:     f.skipHooks,
		Clean:         f.clean,
		Publish:       f.publish,
		Bump:          f.bump,
		Commit:        f.commit,
		CreatePR:      f.createPR,
		CommitMessage: f.message,
		Cleanup: pipeline.CleanupPolicy{
			Backup:      f.backup,
			KeepBackups: f.keepBackups,
			Exclude:     f.exclude,
		},
	}, nil
}

var runOpts runFlags

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the quality workflow once",
	Long: `Run the quality workflow once.

Without flags the standard workflow runs: configuration, fast hooks, then
comprehensive hooks. --fast or --comp restrict it to one tier; --test runs
hooks and tests. --ai-agent sends collected issues to the fixer and re-runs
the affected phases to verify the fix. Exit code is 1 unless the run succeeds.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		opts, err := runOpts.options()
		if err != nil {
			return err
		}
		cfg, err := loadValidConfig()
		if err != nil {
			return err
		}
		if runOpts.fixRounds > 0 {
			cfg.Workflow.FixRounds = runOpts.fixRounds
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		return runOnce(ctx, cmd, opts, &runOpts, cfg)
	},
}

func runOnce(ctx context.Context, cmd *cobra.Command, opts pipeline.Options, flags *runFlags, cfg *config.Config) error {
	out := cmd.OutOrStdout()
	a, err := newApp(ctx, cfg, opts, out, flags.events)
	if err != nil {
		return err
	}
	defer a.close()

	res := a.run(ctx, opts, flags)
	if flags.jsonOut {
		if err := writeJSON(out, res); err != nil {
			return fmt.Errorf("encode result: %w", err)
		}
	} else {
		renderResult(out, res)
	}
	return resultError(res)
}

func init() {
	addRunFlags(runCmd, &runOpts)
}
