// Package metrics provides Prometheus collectors for workflow runs.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "hookforge"

// Metrics holds the collectors for one process. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	registry *prometheus.Registry

	// PhaseDuration tracks how long each phase takes.
	// Labels: phase
	PhaseDuration *prometheus.HistogramVec

	// PhaseTotal counts phase executions.
	// Labels: phase, result (passed, failed)
	PhaseTotal *prometheus.CounterVec

	// WorkflowRuns counts completed workflow runs.
	// Labels: outcome (success, failed, cancelled)
	WorkflowRuns *prometheus.CounterVec

	// IssuesCollected counts issues handed to the fixer.
	// Labels: type
	IssuesCollected *prometheus.CounterVec
}

// New registers the collectors on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	return &Metrics{
		registry: reg,
		PhaseDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "phase_duration_seconds",
				Help:      "Duration of workflow phases in seconds",
				Buckets:   []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300, 600},
			},
			[]string{"phase"},
		),
		PhaseTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "phase_total",
				Help:      "Total number of phase executions by result",
			},
			[]string{"phase", "result"},
		),
		WorkflowRuns: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "workflow_runs_total",
				Help:      "Total number of workflow runs by outcome",
			},
			[]string{"outcome"},
		),
		IssuesCollected: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "issues_collected_total",
				Help:      "Total number of issues collected for the fixer by type",
			},
			[]string{"type"},
		),
	}
}

// Registry returns the registry the collectors live on.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// ObservePhase records one phase execution.
func (m *Metrics) ObservePhase(phase string, d time.Duration, passed bool) {
	if m == nil {
		return
	}
	m.PhaseDuration.WithLabelValues(phase).Observe(d.Seconds())
	m.PhaseTotal.WithLabelValues(phase, result(passed)).Inc()
}

// ObserveRun records the outcome of one workflow run.
func (m *Metrics) ObserveRun(outcome string) {
	if m == nil {
		return
	}
	m.WorkflowRuns.WithLabelValues(outcome).Inc()
}

// ObserveIssue records one issue collected for fixing.
func (m *Metrics) ObserveIssue(issueType string) {
	if m == nil {
		return
	}
	m.IssuesCollected.WithLabelValues(issueType).Inc()
}

// WriteTextfile writes the registry in the text exposition format, for the
// node exporter textfile collector.
func (m *Metrics) WriteTextfile(path string) error {
	if m == nil {
		return nil
	}
	return prometheus.WriteToTextfile(path, m.registry)
}

func result(passed bool) string {
	if passed {
		return "passed"
	}
	return "failed"
}
