// Package publish bumps the package version in pyproject.toml and runs the
// project's publish command.
package publish

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/Masterminds/semver/v3"
	"go.uber.org/zap"

	"github.com/lucasnoah/hookforge/internal/checks"
	"github.com/lucasnoah/hookforge/internal/pipeline"
)

// Semver bump levels.
const (
	LevelPatch = "patch"
	LevelMinor = "minor"
	LevelMajor = "major"
)

// ValidLevel reports whether level names a bump level.
func ValidLevel(level string) bool {
	switch level {
	case LevelPatch, LevelMinor, LevelMajor:
		return true
	}
	return false
}

// Publisher edits the package file and runs the publish command.
type Publisher struct {
	root        string
	packageFile string
	command     string
	runner      checks.CommandRunner
	logger      *zap.Logger
}

// New creates a Publisher. packageFile is relative to root.
func New(root, packageFile, command string, runner checks.CommandRunner, logger *zap.Logger) *Publisher {
	if packageFile == "" {
		packageFile = "pyproject.toml"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Publisher{root: root, packageFile: packageFile, command: command, runner: runner, logger: logger}
}

type pyproject struct {
	Project struct {
		Version string `toml:"version"`
	} `toml:"project"`
	Tool struct {
		Poetry struct {
			Version string `toml:"version"`
		} `toml:"poetry"`
	} `toml:"tool"`
}

func (p *Publisher) path() string {
	return filepath.Join(p.root, p.packageFile)
}

// Version returns the current version and the table it lives in.
func (p *Publisher) Version() (string, string, error) {
	var doc pyproject
	if _, err := toml.DecodeFile(p.path(), &doc); err != nil {
		return "", "", fmt.Errorf("read %s: %w", p.packageFile, err)
	}
	if doc.Project.Version != "" {
		return doc.Project.Version, "project", nil
	}
	if doc.Tool.Poetry.Version != "" {
		return doc.Tool.Poetry.Version, "tool.poetry", nil
	}
	return "", "", fmt.Errorf("%s has no version", p.packageFile)
}

// Next returns current bumped by level.
func Next(current, level string) (string, error) {
	v, err := semver.NewVersion(current)
	if err != nil {
		return "", fmt.Errorf("parse version %q: %w", current, err)
	}
	var next semver.Version
	switch level {
	case LevelPatch:
		next = v.IncPatch()
	case LevelMinor:
		next = v.IncMinor()
	case LevelMajor:
		next = v.IncMajor()
	default:
		return "", fmt.Errorf("unknown bump level %q", level)
	}
	return next.String(), nil
}

var versionLineRe = regexp.MustCompile(`^(\s*version\s*=\s*)["']([^"']*)["'](.*)$`)

// Bump rewrites the version in the package file and returns the new version.
// Only the version line of the owning table changes; comments and layout are kept.
func (p *Publisher) Bump(_ context.Context, level string) (string, error) {
	current, table, err := p.Version()
	if err != nil {
		return "", err
	}
	next, err := Next(current, level)
	if err != nil {
		return "", err
	}

	info, err := os.Stat(p.path())
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(p.path())
	if err != nil {
		return "", err
	}
	updated, ok := replaceVersion(string(data), table, next)
	if !ok {
		return "", fmt.Errorf("version line not found in [%s]", table)
	}
	if err := pipeline.WriteAtomic(p.path(), []byte(updated), info.Mode().Perm()); err != nil {
		return "", fmt.Errorf("write %s: %w", p.packageFile, err)
	}
	p.logger.Info("version bumped", zap.String("from", current), zap.String("to", next), zap.String("level", level))
	return next, nil
}

func replaceVersion(doc, table, version string) (string, bool) {
	lines := strings.Split(doc, "\n")
	section := ""
	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "[") && strings.HasSuffix(trimmed, "]") {
			section = strings.Trim(trimmed, "[] ")
			continue
		}
		if section != table {
			continue
		}
		if m := versionLineRe.FindStringSubmatch(line); m != nil {
			lines[i] = fmt.Sprintf(`%s"%s"%s`, m[1], version, m[3])
			return strings.Join(lines, "\n"), true
		}
	}
	return doc, false
}

// Publish runs the configured publish command in the project root.
func (p *Publisher) Publish(ctx context.Context) error {
	if p.command == "" {
		return errors.New("no publish command configured")
	}
	_, stderr, code, err := p.runner.Run(ctx, p.root, p.command)
	if err != nil {
		return fmt.Errorf("run publish command: %w", err)
	}
	if code != 0 {
		return fmt.Errorf("publish command exited %d: %s", code, strings.TrimSpace(lastLines(stderr, 5)))
	}
	p.logger.Info("package published", zap.String("command", p.command))
	return nil
}

func lastLines(s string, n int) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, "\n")
}
