package checks

import (
	"context"

	"github.com/lucasnoah/hookforge/internal/pipeline"
)

// TestRunner runs the project's test command and keeps the failures of the
// last run.
type TestRunner struct {
	runner   *Runner
	dir      string
	cfg      CheckConfig
	failures []string
}

// NewTestRunner creates a TestRunner for the test command cfg rooted at dir.
func NewTestRunner(runner *Runner, dir string, cfg CheckConfig) *TestRunner {
	if cfg.Name == "" {
		cfg.Name = "tests"
	}
	return &TestRunner{runner: runner, dir: dir, cfg: cfg}
}

// Run executes the test command. Failure detail is available from TestFailures.
func (t *TestRunner) Run(ctx context.Context, _ pipeline.Options) (bool, error) {
	t.failures = nil
	res, err := t.runner.Run(ctx, t.dir, t.cfg)
	if err != nil {
		return false, err
	}
	if !res.Passed {
		t.failures = res.Failures
		if len(t.failures) == 0 {
			t.failures = []string{res.Summary}
		}
	}
	return res.Passed, nil
}

// TestFailures returns the failure descriptions of the most recent run.
func (t *TestRunner) TestFailures() []string {
	return append([]string(nil), t.failures...)
}
