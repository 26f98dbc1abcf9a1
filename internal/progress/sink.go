// Package progress carries coarse stage updates from the workflow to
// whoever is watching a run.
package progress

import (
	"fmt"
	"io"
	"sync"

	"github.com/lucasnoah/hookforge/internal/issues"
)

// Stage statuses.
const (
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// Sink receives stage updates and collected issues. Implementations must
// tolerate duplicate and out-of-order updates.
type Sink interface {
	UpdateStageStatus(stage, status string)
	AddIssue(issue issues.Issue)
}

// Nop discards everything.
type Nop struct{}

func (Nop) UpdateStageStatus(string, string) {}
func (Nop) AddIssue(issues.Issue)            {}

// Recorder keeps the latest status per stage and every distinct issue.
type Recorder struct {
	mu     sync.Mutex
	stages map[string]string
	order  []string
	issues []issues.Issue
	seen   map[string]bool
}

// NewRecorder creates an empty Recorder.
func NewRecorder() *Recorder {
	return &Recorder{stages: make(map[string]string), seen: make(map[string]bool)}
}

func (r *Recorder) UpdateStageStatus(stage, status string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.stages[stage]; !ok {
		r.order = append(r.order, stage)
	}
	r.stages[stage] = status
}

func (r *Recorder) AddIssue(issue issues.Issue) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if issue.ID != "" && r.seen[issue.ID] {
		return
	}
	r.seen[issue.ID] = true
	r.issues = append(r.issues, issue)
}

// Status returns the last status reported for stage.
func (r *Recorder) Status(stage string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.stages[stage]
	return s, ok
}

// Stages returns stage names in the order they were first reported.
func (r *Recorder) Stages() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.order...)
}

// Issues returns the recorded issues.
func (r *Recorder) Issues() []issues.Issue {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]issues.Issue(nil), r.issues...)
}

// LineWriter prints one progress line per update.
type LineWriter struct {
	mu sync.Mutex
	w  io.Writer
}

// NewLineWriter creates a LineWriter writing to w.
func NewLineWriter(w io.Writer) *LineWriter {
	return &LineWriter{w: w}
}

func (l *LineWriter) UpdateStageStatus(stage, status string) {
	l.logf("%s: %s", stage, status)
}

func (l *LineWriter) AddIssue(issue issues.Issue) {
	l.logf("issue %s [%s/%s] %s", issue.ID, issue.Type, issue.Severity, firstLine(issue.Message))
}

func (l *LineWriter) logf(format string, args ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprintf(l.w, "  → "+format+"\n", args...)
}

func firstLine(s string) string {
	for i, c := range s {
		if c == '\n' {
			return s[:i] + " …"
		}
	}
	return s
}

// Multi fans updates out to several sinks.
type Multi []Sink

func (m Multi) UpdateStageStatus(stage, status string) {
	for _, s := range m {
		s.UpdateStageStatus(stage, status)
	}
}

func (m Multi) AddIssue(issue issues.Issue) {
	for _, s := range m {
		s.AddIssue(issue)
	}
}
