package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/lucasnoah/hookforge/internal/analytics"
	"github.com/lucasnoah/hookforge/internal/config"
	"github.com/lucasnoah/hookforge/internal/history"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recorded workflow runs",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openHistory(cmd.Context())
		if err != nil {
			return err
		}
		defer db.Close()

		limit, _ := cmd.Flags().GetInt("limit")
		runs, err := db.RecentRuns(cmd.Context(), limit)
		if err != nil {
			return err
		}
		if format, _ := cmd.Flags().GetString("format"); format == "json" {
			return writeJSON(cmd.OutOrStdout(), runs)
		}
		renderRuns(cmd.OutOrStdout(), runs)
		return nil
	},
}

var historyShowCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "Show one run with its tasks and issues",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openHistory(cmd.Context())
		if err != nil {
			return err
		}
		defer db.Close()

		run, err := db.GetRun(cmd.Context(), args[0])
		if err != nil {
			return fmt.Errorf("run %s: %w", args[0], err)
		}
		if format, _ := cmd.Flags().GetString("format"); format == "json" {
			return writeJSON(cmd.OutOrStdout(), run)
		}
		renderRun(cmd.OutOrStdout(), run)
		return nil
	},
}

// stats is the payload of `history stats --format json`.
type stats struct {
	Durations  []analytics.PhaseDuration    `json:"phase_durations"`
	Failures   []analytics.PhaseFailureRate `json:"phase_failure_rates"`
	Issues     []analytics.IssueCount       `json:"issue_types"`
	FixRounds  []analytics.FixRoundDist     `json:"fix_rounds"`
	Throughput []analytics.Throughput       `json:"throughput"`
}

var historyStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Phase durations, failure rates and issue types across recent runs",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openHistory(cmd.Context())
		if err != nil {
			return err
		}
		defer db.Close()

		limit, _ := cmd.Flags().GetInt("limit")
		runs, err := db.RunsWithTasks(cmd.Context(), limit)
		if err != nil {
			return err
		}
		if since, _ := cmd.Flags().GetDuration("since"); since > 0 {
			runs = analytics.Since(runs, time.Now().Add(-since))
		}

		s := stats{
			Durations:  analytics.PhaseDurations(runs),
			Failures:   analytics.PhaseFailureRates(runs),
			Issues:     analytics.IssueTypes(runs),
			FixRounds:  analytics.FixRounds(runs),
			Throughput: analytics.DailyThroughput(runs),
		}
		if format, _ := cmd.Flags().GetString("format"); format == "json" {
			return writeJSON(cmd.OutOrStdout(), s)
		}
		renderStats(cmd.OutOrStdout(), len(runs), s)
		return nil
	},
}

var historyPruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete runs older than a duration",
	RunE: func(cmd *cobra.Command, args []string) error {
		olderThan, _ := cmd.Flags().GetDuration("older-than")
		if olderThan <= 0 {
			return fmt.Errorf("--older-than must be positive")
		}
		db, err := openHistory(cmd.Context())
		if err != nil {
			return err
		}
		defer db.Close()

		n, err := db.Prune(cmd.Context(), time.Now().Add(-olderThan))
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Pruned %d run(s).\n", n)
		return nil
	},
}

// openHistory opens the configured history store. Without a config file the
// default sqlite path is used.
func openHistory(ctx context.Context) (*history.DB, error) {
	dsn := history.DefaultPath()
	if cfg, err := loadConfig(); err == nil {
		dsn = cfg.History.DSN
	} else if configFile != "" {
		return nil, err
	} else if v := os.Getenv(config.EnvPrefix + "HISTORY_DSN"); v != "" {
		dsn = v
	}
	db, err := history.Open(ctx, dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

func renderStats(w io.Writer, n int, s stats) {
	fmt.Fprintln(w, titleStyle.Render(fmt.Sprintf("%d run(s)", n)))

	fmt.Fprintf(w, "\n%-22s %6s %8s %8s %8s\n", "PHASE", "COUNT", "AVG(s)", "P50(s)", "P95(s)")
	for _, d := range s.Durations {
		fmt.Fprintf(w, "%-22s %6d %8.1f %8.1f %8.1f\n", d.Phase, d.Count, d.Avg, d.P50, d.P95)
	}

	fmt.Fprintf(w, "\n%-22s %6s %6s %8s\n", "PHASE", "TOTAL", "FAILED", "FAIL%")
	for _, f := range s.Failures {
		fmt.Fprintf(w, "%-22s %6d %6d %7.1f%%\n", f.Phase, f.Total, f.Failed, f.FailRate)
	}

	if len(s.Issues) > 0 {
		fmt.Fprintf(w, "\n%-16s %6s %7s\n", "ISSUE TYPE", "COUNT", "PCT")
		for _, is := range s.Issues {
			fmt.Fprintf(w, "%-16s %6d %6.1f%%\n", is.Type, is.Count, is.Pct)
		}
	}
	if len(s.FixRounds) > 0 {
		fmt.Fprintf(w, "\n%-7s %6s %8s %7s\n", "ROUNDS", "RUNS", "SUCCESS", "PCT")
		for _, fr := range s.FixRounds {
			fmt.Fprintf(w, "%-7d %6d %8d %6.1f%%\n", fr.Rounds, fr.Count, fr.Success, fr.Pct)
		}
	}
}

func writeJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(w, string(data))
	return nil
}

func init() {
	historyCmd.PersistentFlags().String("format", "text", "Output format: text or json")
	historyCmd.Flags().Int("limit", 20, "number of runs to list")
	historyStatsCmd.Flags().Int("limit", 200, "number of recent runs to analyze")
	historyStatsCmd.Flags().Duration("since", 0, "only runs started within this duration (e.g. 168h)")
	historyPruneCmd.Flags().Duration("older-than", 0, "delete runs started before now minus this duration")

	historyCmd.AddCommand(historyShowCmd)
	historyCmd.AddCommand(historyStatsCmd)
	historyCmd.AddCommand(historyPruneCmd)
}
