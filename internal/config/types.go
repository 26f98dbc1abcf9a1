package config

import (
	"github.com/lucasnoah/hookforge/internal/checks"
	"github.com/lucasnoah/hookforge/internal/cleaner"
	"github.com/lucasnoah/hookforge/internal/fixer"
	"github.com/lucasnoah/hookforge/internal/git"
)

// Config is the top-level structure parsed from hookforge.yaml.
type Config struct {
	Project  Project             `yaml:"project"`
	Hooks    []checks.HookConfig `yaml:"hooks"`
	Tests    checks.CheckConfig  `yaml:"tests"`
	Cleaning cleaner.Config      `yaml:"cleaning"`
	Fixer    fixer.Config        `yaml:"fixer"`
	History  History             `yaml:"history"`
	Git      git.Config          `yaml:"git"`
	Workflow Workflow            `yaml:"workflow"`
	Logging  Logging             `yaml:"logging"`
}

// Project identifies the package being checked.
type Project struct {
	Name           string `yaml:"name"`
	Root           string `yaml:"root"`
	PackageFile    string `yaml:"package_file"`
	PublishCommand string `yaml:"publish_command"`
}

// History selects the run history store.
type History struct {
	DSN      string `yaml:"dsn"`
	Disabled bool   `yaml:"disabled"`
}

// Workflow tunes the pipeline.
type Workflow struct {
	FixRounds       int `yaml:"fix_rounds"`
	HookConcurrency int `yaml:"hook_concurrency"`
}

// Logging configures the zap logger.
type Logging struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}
