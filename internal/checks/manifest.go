package checks

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/lucasnoah/hookforge/internal/pipeline"
)

// ManifestPath is where the resolved hook manifest is written, relative to the project root.
const ManifestPath = ".hookforge/hooks.yaml"

// Manifest is the resolved hook set written by the configuration phase.
type Manifest struct {
	Project string                  `yaml:"project"`
	Tiers   map[string][]HookConfig `yaml:"tiers"`
	Tests   CheckConfig             `yaml:"tests"`
}

// ManifestWriter prepares tool configuration for a run.
type ManifestWriter struct {
	root    string
	project string
	hooks   []HookConfig
	tests   CheckConfig
}

// NewManifestWriter creates a ManifestWriter for the project at root.
func NewManifestWriter(root, project string, hooks []HookConfig, tests CheckConfig) *ManifestWriter {
	return &ManifestWriter{root: root, project: project, hooks: hooks, tests: tests}
}

// Configure validates the hook set and writes the manifest. It returns the
// manifest path.
func (m *ManifestWriter) Configure(_ context.Context, opts pipeline.Options) (string, error) {
	manifest := Manifest{Project: m.project, Tiers: make(map[string][]HookConfig), Tests: m.tests}
	for _, h := range m.hooks {
		if h.Command == "" {
			return "", fmt.Errorf("hook %q has no command", h.Name)
		}
		if h.Tier != TierFast && h.Tier != TierComprehensive {
			return "", fmt.Errorf("hook %q has unknown tier %q", h.Name, h.Tier)
		}
		manifest.Tiers[h.Tier] = append(manifest.Tiers[h.Tier], h)
	}
	if opts.Test && m.tests.Command == "" {
		return "", fmt.Errorf("tests requested but no test command configured")
	}

	path := filepath.Join(m.root, ManifestPath)
	if err := pipeline.WriteYAML(path, manifest); err != nil {
		return "", fmt.Errorf("write manifest: %w", err)
	}
	return path, nil
}
