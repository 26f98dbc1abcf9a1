package cli

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/lucasnoah/hookforge/internal/history"
	"github.com/lucasnoah/hookforge/internal/session"
	"github.com/lucasnoah/hookforge/internal/workflow"
)

var (
	clrGreen  = lipgloss.AdaptiveColor{Light: "#43BF6D", Dark: "#73F59F"}
	clrYellow = lipgloss.AdaptiveColor{Light: "#B45309", Dark: "#F59E0B"}
	clrRed    = lipgloss.AdaptiveColor{Light: "#B91C1C", Dark: "#F87171"}
	clrDim    = lipgloss.AdaptiveColor{Light: "#999999", Dark: "#555555"}
	clrTitle  = lipgloss.AdaptiveColor{Light: "#0F766E", Dark: "#2DD4BF"}
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(clrTitle)
	okStyle    = lipgloss.NewStyle().Foreground(clrGreen)
	warnStyle  = lipgloss.NewStyle().Foreground(clrYellow)
	failStyle  = lipgloss.NewStyle().Foreground(clrRed)
	dimStyle   = lipgloss.NewStyle().Foreground(clrDim)
)

func outcomeStyle(outcome string) lipgloss.Style {
	switch outcome {
	case string(workflow.OutcomeSuccess):
		return okStyle
	case string(workflow.OutcomeCancelled), string(session.StatusRunning), string(session.StatusPending):
		return warnStyle
	default:
		return failStyle
	}
}

func statusGlyph(s session.Status) string {
	switch s {
	case session.StatusSuccess:
		return okStyle.Render("✓")
	case session.StatusFailed:
		return failStyle.Render("✗")
	default:
		return warnStyle.Render("…")
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// renderResult prints the end-of-run summary.
func renderResult(w io.Writer, res workflow.Result) {
	fmt.Fprintln(w)
	fmt.Fprintln(w, titleStyle.Render("hookforge run "+shortID(res.SessionID)))
	for _, t := range res.Summary.Tasks {
		if t.ID == workflow.TaskWorkflow {
			continue
		}
		line := fmt.Sprintf("  %s %-22s %8s", statusGlyph(t.Status), t.Name, t.Duration().Round(time.Millisecond))
		switch {
		case t.ErrorMessage != "":
			line += "  " + failStyle.Render(truncate(t.ErrorMessage, 80))
		case t.Details != "":
			line += "  " + dimStyle.Render(truncate(t.Details, 80))
		}
		fmt.Fprintln(w, line)
	}

	if len(res.Issues) > 0 {
		fmt.Fprintf(w, "\n  %d issue(s) collected", len(res.Issues))
		if res.Rounds > 0 {
			fmt.Fprintf(w, ", %d fix round(s)", res.Rounds)
		}
		fmt.Fprintln(w)
	}
	if v := res.Verification; v != nil && !v.Skipped {
		verdict := failStyle.Render("not verified")
		if v.Passed {
			verdict = okStyle.Render("verified")
		}
		fmt.Fprintf(w, "  fix %s\n", verdict)
	}

	d := res.Summary.EndTime.Sub(res.Summary.StartTime).Round(time.Millisecond)
	outcome := string(res.Outcome)
	fmt.Fprintf(w, "\n  %s in %s\n", outcomeStyle(outcome).Render(strings.ToUpper(outcome)), d)
	if res.Err != nil && !res.Success() {
		fmt.Fprintf(w, "  %s\n", dimStyle.Render(res.Err.Error()))
	}
}

// renderRuns prints a table of recorded runs.
func renderRuns(w io.Writer, runs []history.Run) {
	if len(runs) == 0 {
		fmt.Fprintln(w, "No runs recorded.")
		return
	}
	fmt.Fprintf(w, "%-10s %-20s %-16s %-10s %-7s %s\n", "RUN", "STARTED", "PROJECT", "OUTCOME", "ROUNDS", "DURATION")
	fmt.Fprintf(w, "%-10s %-20s %-16s %-10s %-7s %s\n",
		strings.Repeat("-", 10),
		strings.Repeat("-", 20),
		strings.Repeat("-", 16),
		strings.Repeat("-", 10),
		strings.Repeat("-", 7),
		strings.Repeat("-", 8))
	for _, r := range runs {
		outcome := outcomeStyle(r.Outcome).Render(fmt.Sprintf("%-10s", r.Outcome))
		fmt.Fprintf(w, "%-10s %-20s %-16s %s %-7d %s\n",
			shortID(r.ID),
			r.StartedAt.Local().Format("2006-01-02 15:04:05"),
			truncate(r.Project, 16),
			outcome,
			r.Rounds,
			r.Duration().Round(time.Millisecond))
	}
}

// renderRun prints one run with its tasks and issues.
func renderRun(w io.Writer, r *history.Run) {
	fmt.Fprintln(w, titleStyle.Render("run "+r.ID))
	fmt.Fprintf(w, "  project  %s\n", r.Project)
	fmt.Fprintf(w, "  started  %s\n", r.StartedAt.Local().Format(time.RFC3339))
	fmt.Fprintf(w, "  outcome  %s (%s)\n", outcomeStyle(r.Outcome).Render(r.Outcome), r.Duration().Round(time.Millisecond))
	if r.Error != "" {
		fmt.Fprintf(w, "  error    %s\n", r.Error)
	}
	fmt.Fprintln(w, "\n  tasks:")
	for _, t := range r.Tasks {
		msg := t.Details
		if t.ErrorMessage != "" {
			msg = t.ErrorMessage
		}
		fmt.Fprintf(w, "    %s %-22s %s\n", statusGlyph(t.Status), t.Name, truncate(msg, 80))
	}
	if len(r.Issues) > 0 {
		fmt.Fprintln(w, "\n  issues:")
		for _, is := range r.Issues {
			fmt.Fprintf(w, "    [%s/%s] %s: %s\n", is.Type, is.Severity, is.ID, truncate(firstLine(is.Message), 80))
		}
	}
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

func truncate(s string, n int) string {
	s = firstLine(s)
	if len(s) > n {
		return s[:n-3] + "..."
	}
	return s
}
