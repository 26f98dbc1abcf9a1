package analytics

import (
	"math"
	"sort"
	"time"

	"github.com/lucasnoah/hookforge/internal/history"
	"github.com/lucasnoah/hookforge/internal/session"
)

// workflowTask is the umbrella task every run records; it is not a phase.
const workflowTask = "workflow"

// PhaseDuration holds duration stats for a phase, in seconds.
type PhaseDuration struct {
	Phase string  `json:"phase"`
	Count int     `json:"count"`
	Avg   float64 `json:"avg_seconds"`
	P50   float64 `json:"p50_seconds"`
	P95   float64 `json:"p95_seconds"`
}

// PhaseDurations returns average and percentile durations per phase.
// Tasks without an end time are ignored.
func PhaseDurations(runs []history.Run) []PhaseDuration {
	byPhase := make(map[string][]float64)
	for _, r := range runs {
		for _, t := range r.Tasks {
			if t.ID == workflowTask || t.EndTime.IsZero() || t.StartTime.IsZero() {
				continue
			}
			d := t.EndTime.Sub(t.StartTime).Seconds()
			if d < 0 {
				continue
			}
			byPhase[t.ID] = append(byPhase[t.ID], d)
		}
	}

	result := make([]PhaseDuration, 0, len(byPhase))
	for phase, ds := range byPhase {
		sort.Float64s(ds)
		result = append(result, PhaseDuration{
			Phase: phase,
			Count: len(ds),
			Avg:   avg(ds),
			P50:   percentile(ds, 50),
			P95:   percentile(ds, 95),
		})
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Phase < result[j].Phase })
	return result
}

// PhaseFailureRate holds pass/fail counts for a phase.
type PhaseFailureRate struct {
	Phase    string  `json:"phase"`
	Total    int     `json:"total"`
	Failed   int     `json:"failed"`
	FailRate float64 `json:"fail_rate"`
}

// PhaseFailureRates counts finished tasks per phase, highest failure rate first.
func PhaseFailureRates(runs []history.Run) []PhaseFailureRate {
	rates := make(map[string]*PhaseFailureRate)
	for _, r := range runs {
		for _, t := range r.Tasks {
			if t.ID == workflowTask || !t.Status.Terminal() {
				continue
			}
			fr, ok := rates[t.ID]
			if !ok {
				fr = &PhaseFailureRate{Phase: t.ID}
				rates[t.ID] = fr
			}
			fr.Total++
			if t.Status == session.StatusFailed {
				fr.Failed++
			}
		}
	}

	result := make([]PhaseFailureRate, 0, len(rates))
	for _, fr := range rates {
		fr.FailRate = pct(fr.Failed, fr.Total)
		result = append(result, *fr)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].FailRate != result[j].FailRate {
			return result[i].FailRate > result[j].FailRate
		}
		return result[i].Phase < result[j].Phase
	})
	return result
}

// IssueCount is how often an issue type was collected.
type IssueCount struct {
	Type  string  `json:"type"`
	Count int     `json:"count"`
	Pct   float64 `json:"pct"`
}

// IssueTypes counts collected issues by type, most frequent first.
func IssueTypes(runs []history.Run) []IssueCount {
	counts := make(map[string]int)
	total := 0
	for _, r := range runs {
		for _, is := range r.Issues {
			counts[string(is.Type)]++
			total++
		}
	}
	result := make([]IssueCount, 0, len(counts))
	for typ, n := range counts {
		result = append(result, IssueCount{Type: typ, Count: n, Pct: pct(n, total)})
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Count != result[j].Count {
			return result[i].Count > result[j].Count
		}
		return result[i].Type < result[j].Type
	})
	return result
}

// FixRoundDist is the distribution of autofix rounds across runs that used the fixer.
type FixRoundDist struct {
	Rounds  int     `json:"rounds"`
	Count   int     `json:"count"`
	Success int     `json:"success"`
	Pct     float64 `json:"pct"`
}

// FixRounds groups runs with at least one fix round by round count.
func FixRounds(runs []history.Run) []FixRoundDist {
	dist := make(map[int]*FixRoundDist)
	total := 0
	for _, r := range runs {
		if r.Rounds == 0 {
			continue
		}
		d, ok := dist[r.Rounds]
		if !ok {
			d = &FixRoundDist{Rounds: r.Rounds}
			dist[r.Rounds] = d
		}
		d.Count++
		if r.Outcome == "success" {
			d.Success++
		}
		total++
	}
	result := make([]FixRoundDist, 0, len(dist))
	for _, d := range dist {
		d.Pct = pct(d.Count, total)
		result = append(result, *d)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Rounds < result[j].Rounds })
	return result
}

// Throughput holds run counts for one day.
type Throughput struct {
	Date      string `json:"date"`
	Success   int    `json:"success"`
	Failed    int    `json:"failed"`
	Cancelled int    `json:"cancelled"`
}

// DailyThroughput buckets runs by UTC start date, oldest first.
func DailyThroughput(runs []history.Run) []Throughput {
	days := make(map[string]*Throughput)
	for _, r := range runs {
		day := r.StartedAt.UTC().Format(time.DateOnly)
		t, ok := days[day]
		if !ok {
			t = &Throughput{Date: day}
			days[day] = t
		}
		switch r.Outcome {
		case "success":
			t.Success++
		case "cancelled":
			t.Cancelled++
		default:
			t.Failed++
		}
	}
	result := make([]Throughput, 0, len(days))
	for _, t := range days {
		result = append(result, *t)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Date < result[j].Date })
	return result
}

// Since returns the runs that started at or after cutoff. A zero cutoff keeps all.
func Since(runs []history.Run, cutoff time.Time) []history.Run {
	if cutoff.IsZero() {
		return runs
	}
	var out []history.Run
	for _, r := range runs {
		if !r.StartedAt.Before(cutoff) {
			out = append(out, r)
		}
	}
	return out
}

func avg(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return math.Round(sum/float64(len(values))*10) / 10
}

func percentile(sorted []float64, p int) float64 {
	if len(sorted) == 0 {
		return 0
	}
	rank := float64(p) / 100.0 * float64(len(sorted)-1)
	lower := int(math.Floor(rank))
	upper := int(math.Ceil(rank))
	if lower == upper || upper >= len(sorted) {
		return math.Round(sorted[lower]*10) / 10
	}
	weight := rank - float64(lower)
	return math.Round((sorted[lower]*(1-weight)+sorted[upper]*weight)*10) / 10
}

func pct(n, total int) float64 {
	if total == 0 {
		return 0
	}
	return math.Round(float64(n)/float64(total)*1000) / 10
}
