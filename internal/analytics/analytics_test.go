package analytics

import (
	"testing"
	"time"

	"github.com/lucasnoah/hookforge/internal/history"
	"github.com/lucasnoah/hookforge/internal/issues"
	"github.com/lucasnoah/hookforge/internal/session"
)

var base = time.Date(2026, 6, 1, 10, 0, 0, 0, time.UTC)

func task(id string, status session.Status, start, secs int) session.TaskStatus {
	s := base.Add(time.Duration(start) * time.Second)
	return session.TaskStatus{ID: id, Name: id, Status: status, StartTime: s, EndTime: s.Add(time.Duration(secs) * time.Second)}
}

func sampleRuns() []history.Run {
	return []history.Run{
		{
			ID: "r1", StartedAt: base, Outcome: "success",
			Tasks: []session.TaskStatus{
				task("workflow", session.StatusSuccess, 0, 100),
				task("fast_hooks", session.StatusSuccess, 0, 10),
				task("testing", session.StatusSuccess, 10, 30),
			},
		},
		{
			ID: "r2", StartedAt: base.Add(time.Hour), Outcome: "failed", Rounds: 2,
			Tasks: []session.TaskStatus{
				task("fast_hooks", session.StatusSuccess, 0, 20),
				task("testing", session.StatusFailed, 20, 60),
			},
			Issues: []issues.Issue{
				{ID: "test_failure_0", Type: issues.TypeTestFailure},
				{ID: "test_failure_1", Type: issues.TypeTestFailure},
				{ID: "fast_hooks_formatting", Type: issues.TypeFormatting},
			},
		},
		{
			ID: "r3", StartedAt: base.Add(26 * time.Hour), Outcome: "success", Rounds: 1,
			Tasks: []session.TaskStatus{
				task("fast_hooks", session.StatusFailed, 0, 30),
				{ID: "testing", Status: session.StatusRunning, StartTime: base},
			},
			Issues: []issues.Issue{{ID: "x", Type: issues.TypeFormatting}},
		},
		{ID: "r4", StartedAt: base.Add(27 * time.Hour), Outcome: "cancelled"},
	}
}

// --- PhaseDurations ---

func TestPhaseDurations(t *testing.T) {
	got := PhaseDurations(sampleRuns())
	if len(got) != 2 {
		t.Fatalf("expected 2 phases, got %d: %+v", len(got), got)
	}
	fast := got[0]
	if fast.Phase != "fast_hooks" || fast.Count != 3 {
		t.Fatalf("unexpected fast_hooks entry: %+v", fast)
	}
	if fast.Avg != 20 || fast.P50 != 20 || fast.P95 != 29 {
		t.Errorf("fast_hooks stats = %+v, want avg 20 p50 20 p95 29", fast)
	}
	tst := got[1]
	if tst.Phase != "testing" || tst.Count != 2 {
		t.Errorf("running task should be excluded: %+v", tst)
	}
	if tst.Avg != 45 {
		t.Errorf("testing avg = %v, want 45", tst.Avg)
	}
}

func TestPhaseDurations_Empty(t *testing.T) {
	if got := PhaseDurations(nil); len(got) != 0 {
		t.Errorf("expected no durations, got %+v", got)
	}
}

// --- PhaseFailureRates ---

func TestPhaseFailureRates(t *testing.T) {
	got := PhaseFailureRates(sampleRuns())
	if len(got) != 2 {
		t.Fatalf("expected 2 phases, got %+v", got)
	}
	// testing: 1 of 2 finished failed; fast_hooks: 1 of 3.
	if got[0].Phase != "testing" || got[0].Total != 2 || got[0].Failed != 1 || got[0].FailRate != 50 {
		t.Errorf("first = %+v", got[0])
	}
	if got[1].Phase != "fast_hooks" || got[1].FailRate != 33.3 {
		t.Errorf("second = %+v", got[1])
	}
}

// --- IssueTypes ---

func TestIssueTypes(t *testing.T) {
	got := IssueTypes(sampleRuns())
	if len(got) != 2 {
		t.Fatalf("expected 2 types, got %+v", got)
	}
	if got[0].Count != 2 || got[1].Count != 2 {
		t.Fatalf("counts = %+v", got)
	}
	if got[0].Type != string(issues.TypeFormatting) {
		t.Errorf("ties should sort by type name, got %s first", got[0].Type)
	}
	if got[0].Pct != 50 {
		t.Errorf("pct = %v, want 50", got[0].Pct)
	}
}

// --- FixRounds ---

func TestFixRounds(t *testing.T) {
	got := FixRounds(sampleRuns())
	if len(got) != 2 {
		t.Fatalf("expected 2 buckets, got %+v", got)
	}
	if got[0].Rounds != 1 || got[0].Success != 1 || got[0].Pct != 50 {
		t.Errorf("round 1 = %+v", got[0])
	}
	if got[1].Rounds != 2 || got[1].Success != 0 {
		t.Errorf("round 2 = %+v", got[1])
	}
}

// --- DailyThroughput ---

func TestDailyThroughput(t *testing.T) {
	got := DailyThroughput(sampleRuns())
	if len(got) != 2 {
		t.Fatalf("expected 2 days, got %+v", got)
	}
	if got[0].Date != "2026-06-01" || got[0].Success != 1 || got[0].Failed != 1 {
		t.Errorf("day 1 = %+v", got[0])
	}
	if got[1].Date != "2026-06-02" || got[1].Success != 1 || got[1].Cancelled != 1 {
		t.Errorf("day 2 = %+v", got[1])
	}
}

func TestSince(t *testing.T) {
	runs := sampleRuns()
	if got := Since(runs, time.Time{}); len(got) != len(runs) {
		t.Errorf("zero cutoff should keep all runs")
	}
	if got := Since(runs, base.Add(time.Hour)); len(got) != 3 {
		t.Errorf("expected 3 runs since r2, got %d", len(got))
	}
}

func TestPercentile(t *testing.T) {
	tests := []struct {
		values []float64
		p      int
		want   float64
	}{
		{nil, 50, 0},
		{[]float64{5}, 95, 5},
		{[]float64{1, 2, 3, 4}, 50, 2.5},
		{[]float64{10, 20, 30}, 100, 30},
	}
	for _, tt := range tests {
		if got := percentile(tt.values, tt.p); got != tt.want {
			t.Errorf("percentile(%v, %d) = %v, want %v", tt.values, tt.p, got, tt.want)
		}
	}
}
