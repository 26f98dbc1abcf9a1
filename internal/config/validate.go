package config

import (
	"fmt"
	"strings"

	"github.com/lucasnoah/hookforge/internal/checks"
)

// ValidationError represents a single validation issue with a config.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

var validLevels = map[string]bool{"debug": true, "info": true, "warn": true, "error": true}

// Validate checks a Config for structural and semantic errors.
// It returns every problem found (empty if valid).
func Validate(cfg *Config) []ValidationError {
	var errs []ValidationError
	add := func(field, format string, args ...any) {
		errs = append(errs, ValidationError{Field: field, Message: fmt.Sprintf(format, args...)})
	}

	if cfg.Project.Name == "" {
		add("project.name", "is required")
	}

	parsers := make(map[string]bool)
	for _, p := range checks.ParserNames() {
		parsers[p] = true
	}

	names := make(map[string]bool)
	for i, h := range cfg.Hooks {
		prefix := fmt.Sprintf("hooks[%d]", i)
		if h.Name == "" {
			add(prefix+".name", "is required")
		} else if names[h.Name] {
			add(prefix+".name", "duplicate hook name %q", h.Name)
		}
		names[h.Name] = true

		if strings.TrimSpace(h.Command) == "" {
			add(prefix+".command", "is required")
		}
		if h.Tier != checks.TierFast && h.Tier != checks.TierComprehensive {
			add(prefix+".tier", "must be %q or %q, got %q", checks.TierFast, checks.TierComprehensive, h.Tier)
		}
		if h.Parser != "" && !parsers[h.Parser] {
			add(prefix+".parser", "unrecognized parser %q", h.Parser)
		}
		if h.AutoFix && h.FixCommand == "" {
			add(prefix+".fix_command", "is required when auto_fix is set")
		}
	}

	if cfg.Tests.Parser != "" && !parsers[cfg.Tests.Parser] {
		add("tests.parser", "unrecognized parser %q", cfg.Tests.Parser)
	}

	for i, ext := range cfg.Cleaning.Include {
		if !strings.HasPrefix(ext, ".") {
			add(fmt.Sprintf("cleaning.include[%d]", i), "extension %q must start with a dot", ext)
		}
	}

	if cfg.Fixer.Timeout < 0 {
		add("fixer.timeout", "must not be negative")
	}

	if dsn := cfg.History.DSN; strings.Contains(dsn, "://") &&
		!strings.HasPrefix(dsn, "sqlite://") && !strings.HasPrefix(dsn, "postgres://") && !strings.HasPrefix(dsn, "postgresql://") {
		add("history.dsn", "unsupported scheme in %q", dsn)
	}

	if cfg.Workflow.FixRounds < 1 {
		add("workflow.fix_rounds", "must be at least 1")
	}
	if cfg.Workflow.HookConcurrency < 1 {
		add("workflow.hook_concurrency", "must be at least 1")
	}

	if !validLevels[cfg.Logging.Level] {
		add("logging.level", "unrecognized level %q", cfg.Logging.Level)
	}
	if cfg.Logging.Format != "json" && cfg.Logging.Format != "console" {
		add("logging.format", "must be \"json\" or \"console\", got %q", cfg.Logging.Format)
	}

	return errs
}
