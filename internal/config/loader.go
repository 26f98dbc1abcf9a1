package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"

	"github.com/lucasnoah/hookforge/internal/checks"
	"github.com/lucasnoah/hookforge/internal/cleaner"
	"github.com/lucasnoah/hookforge/internal/history"
)

// EnvPrefix prefixes environment overrides: HOOKFORGE_FIXER_COMMAND sets fixer.command.
const EnvPrefix = "HOOKFORGE_"

// DefaultFile is the project config file name.
const DefaultFile = "hookforge.yaml"

const (
	defaultHookTimeout     = 5 * time.Minute
	defaultTestTimeout     = 15 * time.Minute
	defaultHookConcurrency = 4
)

// Load reads a config file, overlays HOOKFORGE_* environment variables and
// applies defaults. It does not validate.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if !filepath.IsAbs(cfg.Project.Root) {
		cfg.Project.Root = filepath.Join(filepath.Dir(path), cfg.Project.Root)
	}
	if abs, err := filepath.Abs(cfg.Project.Root); err == nil {
		cfg.Project.Root = abs
	}
	if cfg.Project.Name == "" {
		cfg.Project.Name = filepath.Base(cfg.Project.Root)
	}
	return cfg, nil
}

// Parse builds a config from YAML bytes plus the environment overlay.
func Parse(data []byte) (*Config, error) {
	k := koanf.New(".")
	if err := k.Load(rawbytes.Provider(data), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("parsing config YAML: %w", err)
	}
	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("loading environment: %w", err)
	}

	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "yaml"}); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	applyDefaults(&cfg)
	return &cfg, nil
}

// envKey maps HOOKFORGE_WORKFLOW_FIX_ROUNDS to workflow.fix_rounds. Only the
// first underscore separates section from field.
func envKey(s string) string {
	lower := strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	section, field, ok := strings.Cut(lower, "_")
	if !ok {
		return lower
	}
	return section + "." + field
}

// Find returns the first config file in the search path: ./hookforge.yaml
// then ~/.hookforge/config.yaml.
func Find() (string, error) {
	candidates := []string{DefaultFile}
	if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(home, ".hookforge", "config.yaml"))
	}
	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}
	return "", fmt.Errorf("no hookforge config found (searched: %v)", candidates)
}

// LoadDefault loads the first config in the search path.
func LoadDefault() (*Config, error) {
	path, err := Find()
	if err != nil {
		return nil, err
	}
	return Load(path)
}

func applyDefaults(cfg *Config) {
	if cfg.Project.Root == "" {
		cfg.Project.Root = "."
	}
	if cfg.Project.PackageFile == "" {
		cfg.Project.PackageFile = "pyproject.toml"
	}

	for i := range cfg.Hooks {
		h := &cfg.Hooks[i]
		if h.Parser == "" {
			h.Parser = "generic"
		}
		if h.Timeout <= 0 {
			h.Timeout = defaultHookTimeout
		}
	}

	if cfg.Tests.Command != "" {
		if cfg.Tests.Name == "" {
			cfg.Tests.Name = "tests"
		}
		if cfg.Tests.Parser == "" {
			cfg.Tests.Parser = "pytest"
		}
		if cfg.Tests.Timeout <= 0 {
			cfg.Tests.Timeout = defaultTestTimeout
		}
	}

	def := cleaner.DefaultConfig()
	if len(cfg.Cleaning.Include) == 0 {
		cfg.Cleaning.Include = def.Include
	}
	if len(cfg.Cleaning.ExcludeDirs) == 0 {
		cfg.Cleaning.ExcludeDirs = def.ExcludeDirs
	}

	if cfg.History.DSN == "" {
		cfg.History.DSN = history.DefaultPath()
	}
	if cfg.Git.Remote == "" {
		cfg.Git.Remote = "origin"
	}
	if cfg.Git.BaseBranch == "" {
		cfg.Git.BaseBranch = "main"
	}

	if cfg.Workflow.FixRounds == 0 {
		cfg.Workflow.FixRounds = 1
	}
	if cfg.Workflow.HookConcurrency == 0 {
		cfg.Workflow.HookConcurrency = defaultHookConcurrency
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "console"
	}
}

// HooksByTier groups hooks by tier in config order.
func (c *Config) HooksByTier() map[string][]checks.HookConfig {
	out := make(map[string][]checks.HookConfig)
	for _, h := range c.Hooks {
		out[h.Tier] = append(out[h.Tier], h)
	}
	return out
}
