package cli

import (
	"github.com/spf13/cobra"
)

var version = "dev"

func SetVersion(v string) {
	version = v
}

var (
	configFile string
	logLevel   string
	logFormat  string
)

var rootCmd = &cobra.Command{
	Use:   "hookforge",
	Short: "hookforge runs quality workflows with agent autofix",
	Long: `hookforge runs a project's quality workflow: configuration, cleaning,
fast and comprehensive hooks, tests, then publishing and commit.

With --ai-agent, failures are collected as issues and handed to a fixer agent;
the affected phases are re-run to verify the fix before the run succeeds.

Run history is stored in ~/.hookforge/ (SQLite by default, Postgres via history.dsn).`,
	SilenceUsage: true,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "path to hookforge.yaml (default: search ./hookforge.yaml, ~/.hookforge/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override logging.level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "override logging.format (json, console)")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(configCmd)
}
