package cli

import (
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"path/filepath"
	"slices"
	"strings"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/lucasnoah/hookforge/internal/config"
)

var (
	watchOpts     runFlags
	watchDebounce time.Duration
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Re-run the workflow whenever project files change",
	Long: `Run the workflow once, then again after every burst of file changes
under the project root. Changes made while a run is in progress (hook
auto-fixes, the fixer agent) do not trigger another run.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		opts, err := watchOpts.options()
		if err != nil {
			return err
		}
		cfg, err := loadValidConfig()
		if err != nil {
			return err
		}
		if watchOpts.fixRounds > 0 {
			cfg.Workflow.FixRounds = watchOpts.fixRounds
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		watcher, err := fsnotify.NewWatcher()
		if err != nil {
			return fmt.Errorf("create fsnotify watcher: %w", err)
		}
		defer watcher.Close()

		if err := watchTree(watcher, cfg); err != nil {
			return err
		}

		run := func() {
			if err := runOnce(ctx, cmd, opts, &watchOpts, cfg); err != nil && ctx.Err() == nil {
				fmt.Fprintln(cmd.ErrOrStderr(), err)
			}
			drain(watcher)
		}
		run()
		fmt.Fprintf(cmd.OutOrStdout(), "watching %s (ctrl-c to stop)\n", cfg.Project.Root)

		timer := time.NewTimer(watchDebounce)
		timer.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case ev, ok := <-watcher.Events:
				if !ok {
					return nil
				}
				if !relevant(ev, cfg) {
					continue
				}
				if ev.Has(fsnotify.Create) {
					if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
						_ = watcher.Add(ev.Name)
					}
				}
				timer.Reset(watchDebounce)
			case err, ok := <-watcher.Errors:
				if !ok {
					return nil
				}
				fmt.Fprintf(cmd.ErrOrStderr(), "watch error: %v\n", err)
			case <-timer.C:
				run()
			}
		}
	},
}

// watchTree adds every directory under the project root that cleaning would
// not skip.
func watchTree(w *fsnotify.Watcher, cfg *config.Config) error {
	return filepath.WalkDir(cfg.Project.Root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != cfg.Project.Root && slices.Contains(cfg.Cleaning.ExcludeDirs, d.Name()) {
			return filepath.SkipDir
		}
		if err := w.Add(path); err != nil {
			return fmt.Errorf("watch %s: %w", path, err)
		}
		return nil
	})
}

// relevant filters out events the workflow itself produces.
func relevant(ev fsnotify.Event, cfg *config.Config) bool {
	if ev.Has(fsnotify.Chmod) && !ev.Has(fsnotify.Write) {
		return false
	}
	if strings.HasSuffix(ev.Name, ".bak") || strings.HasSuffix(ev.Name, "~") {
		return false
	}
	rel, err := filepath.Rel(cfg.Project.Root, ev.Name)
	if err != nil {
		return false
	}
	for _, part := range strings.Split(filepath.ToSlash(rel), "/") {
		if slices.Contains(cfg.Cleaning.ExcludeDirs, part) {
			return false
		}
	}
	return true
}

// drain discards events queued while a run was in progress.
func drain(w *fsnotify.Watcher) {
	for {
		select {
		case <-w.Events:
		default:
			return
		}
	}
}

func init() {
	addRunFlags(watchCmd, &watchOpts)
	watchCmd.Flags().DurationVar(&watchDebounce, "debounce", 500*time.Millisecond, "quiet period before a re-run")
}
