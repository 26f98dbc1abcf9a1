package workflow

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lucasnoah/hookforge/internal/issues"
	"github.com/lucasnoah/hookforge/internal/logging"
	"github.com/lucasnoah/hookforge/internal/metrics"
	"github.com/lucasnoah/hookforge/internal/phase"
	"github.com/lucasnoah/hookforge/internal/pipeline"
	"github.com/lucasnoah/hookforge/internal/progress"
	"github.com/lucasnoah/hookforge/internal/session"
)

// fakePhases records every call and tracks tasks the way the real runner does.
type fakePhases struct {
	tracker *session.Tracker
	calls   []string

	// results holds the outcome for each task ID; a slice is consumed one
	// value per call and the last value repeats.
	results  map[string][]bool
	messages map[string]string
	failures []string

	panicOn string
	onCall  func(id string)
}

func newFakePhases(tr *session.Tracker) *fakePhases {
	return &fakePhases{tracker: tr, results: map[string][]bool{}, messages: map[string]string{}}
}

func (f *fakePhases) set(id string, outcomes ...bool) *fakePhases {
	f.results[id] = outcomes
	return f
}

func (f *fakePhases) run(id string) bool {
	f.calls = append(f.calls, id)
	f.tracker.TrackTask(id, id)
	if f.onCall != nil {
		f.onCall(id)
	}
	if f.panicOn == id {
		panic("boom in " + id)
	}
	ok := true
	if rs := f.results[id]; len(rs) > 0 {
		ok = rs[0]
		if len(rs) > 1 {
			f.results[id] = rs[1:]
		}
	}
	if ok {
		f.tracker.CompleteTask(id, "")
	} else {
		f.tracker.FailTask(id, f.messages[id])
	}
	return ok
}

func (f *fakePhases) count(id string) int {
	n := 0
	for _, c := range f.calls {
		if c == id {
			n++
		}
	}
	return n
}

func (f *fakePhases) RunConfigurationPhase(context.Context, pipeline.Options) bool {
	return f.run(phase.TaskConfiguration)
}
func (f *fakePhases) RunCleaningPhase(context.Context, pipeline.Options) bool {
	return f.run(phase.TaskCleaning)
}
func (f *fakePhases) RunFastHooksOnly(context.Context, pipeline.Options) bool {
	return f.run(phase.TaskFastHooks)
}
func (f *fakePhases) RunComprehensiveHooksOnly(context.Context, pipeline.Options) bool {
	return f.run(phase.TaskCompHooks)
}
func (f *fakePhases) RunHooksPhase(context.Context, pipeline.Options) bool {
	return f.run(phase.TaskHooks)
}
func (f *fakePhases) RunTestingPhase(context.Context, pipeline.Options) bool {
	return f.run(phase.TaskTesting)
}
func (f *fakePhases) RunPublishingPhase(context.Context, pipeline.Options) bool {
	return f.run(phase.TaskPublishing)
}
func (f *fakePhases) RunCommitPhase(context.Context, pipeline.Options) bool {
	return f.run(phase.TaskCommit)
}
func (f *fakePhases) TestFailures() []string { return f.failures }

type fakeFixer struct {
	calls   [][]issues.Issue
	results []issues.FixResult
	err     error
}

func (f *fakeFixer) HandleIssues(ctx context.Context, found []issues.Issue) (issues.FixResult, error) {
	f.calls = append(f.calls, found)
	if f.err != nil {
		return issues.FixResult{}, f.err
	}
	r := f.results[0]
	if len(f.results) > 1 {
		f.results = f.results[1:]
	}
	return r, nil
}

type harness struct {
	tracker  *session.Tracker
	phases   *fakePhases
	fixer    *fakeFixer
	pipeline *Pipeline
	recorder *progress.Recorder
	cleanups int
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	tr := session.NewTracker(nil)
	h := &harness{tracker: tr, phases: newFakePhases(tr), fixer: &fakeFixer{}, recorder: progress.NewRecorder()}
	tr.RegisterCleanup(func() error { h.cleanups++; return nil })
	h.pipeline = New(h.phases, h.fixer, tr, nil)
	h.pipeline.SetSink(h.recorder)
	return h
}

func (h *harness) workflowTask(t *testing.T) session.TaskStatus {
	t.Helper()
	task, ok := h.tracker.Task(TaskWorkflow)
	require.True(t, ok)
	return task
}

func TestRun_QualityDispatch(t *testing.T) {
	tests := []struct {
		name string
		opts pipeline.Options
		want string
	}{
		{"fast wins over everything", pipeline.Options{Fast: true, Comp: true, Test: true}, phase.TaskFastHooks},
		{"comp wins over test", pipeline.Options{Comp: true, Test: true}, phase.TaskCompHooks},
		{"standard hooks by default", pipeline.Options{}, phase.TaskHooks},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			assert.True(t, h.pipeline.RunCompleteWorkflow(context.Background(), tt.opts))
			assert.Equal(t, []string{
				phase.TaskConfiguration, phase.TaskCleaning, tt.want, phase.TaskPublishing, phase.TaskCommit,
			}, h.phases.calls)
		})
	}
}

func TestRun_FatalPhases(t *testing.T) {
	for _, id := range []string{phase.TaskConfiguration, phase.TaskCleaning} {
		t.Run(id, func(t *testing.T) {
			h := newHarness(t)
			h.phases.set(id, false)

			res := h.pipeline.Run(context.Background(), pipeline.Options{Test: true})
			assert.Equal(t, OutcomeFailed, res.Outcome)
			assert.Equal(t, id, h.phases.calls[len(h.phases.calls)-1])
			assert.Zero(t, h.phases.count(phase.TaskFastHooks))
			assert.Equal(t, session.StatusFailed, h.workflowTask(t).Status)
		})
	}
}

func TestRun_FastHookGate(t *testing.T) {
	for _, ai := range []bool{false, true} {
		h := newHarness(t)
		h.phases.set(phase.TaskFastHooks, false)

		ok := h.pipeline.RunCompleteWorkflow(context.Background(), pipeline.Options{Test: true, AIAgent: ai})
		assert.False(t, ok)
		assert.Zero(t, h.phases.count(phase.TaskTesting))
		assert.Zero(t, h.phases.count(phase.TaskCompHooks))
		assert.Empty(t, h.fixer.calls)
	}
}

func TestRun_BothSoftPhasesRun(t *testing.T) {
	h := newHarness(t)
	h.phases.set(phase.TaskTesting, false)

	res := h.pipeline.Run(context.Background(), pipeline.Options{Test: true})
	assert.Equal(t, OutcomeFailed, res.Outcome)
	assert.Equal(t, 1, h.phases.count(phase.TaskCompHooks))
	assert.Equal(t, "tests failed", res.Err.Error())
	assert.Empty(t, h.fixer.calls)
	assert.Zero(t, h.phases.count(phase.TaskPublishing))
}

func TestRun_NoFixerWhenEverythingPasses(t *testing.T) {
	h := newHarness(t)

	res := h.pipeline.Run(context.Background(), pipeline.Options{Test: true, AIAgent: true})
	assert.Equal(t, OutcomeSuccess, res.Outcome)
	assert.Empty(t, h.fixer.calls)
	assert.Equal(t, session.StatusSuccess, h.workflowTask(t).Status)
}

func TestRun_AutofixScenario(t *testing.T) {
	for _, rerun := range []bool{true, false} {
		h := newHarness(t)
		h.phases.set(phase.TaskTesting, false, rerun)
		h.phases.failures = []string{"test_x assert error"}
		h.fixer.results = []issues.FixResult{{Success: true, FixesApplied: []string{"fixed test_x"}}}

		res := h.pipeline.Run(context.Background(), pipeline.Options{Test: true, AIAgent: true})

		require.Len(t, h.fixer.calls, 1)
		require.Len(t, h.fixer.calls[0], 1)
		assert.Equal(t, issues.TypeTestFailure, h.fixer.calls[0][0].Type)
		assert.Equal(t, "test_x assert error", h.fixer.calls[0][0].Message)

		assert.Equal(t, 2, h.phases.count(phase.TaskTesting), "testing re-run")
		assert.Equal(t, 1, h.phases.count(phase.TaskCompHooks), "comprehensive not re-run")
		assert.Equal(t, rerun, res.Success())
		require.NotNil(t, res.Verification)
		assert.Equal(t, Plan{Tests: true}, res.Verification.Plan)
	}
}

func TestRun_FixerSuccessAloneIsNotEnough(t *testing.T) {
	h := newHarness(t)
	h.phases.set(phase.TaskCompHooks, false)
	h.phases.messages[phase.TaskCompHooks] = "pyright: 3 errors, 0 warnings in 2 files"
	h.fixer.results = []issues.FixResult{{Success: true, FixesApplied: []string{"fixed type annotations"}}}

	res := h.pipeline.Run(context.Background(), pipeline.Options{Test: true, AIAgent: true})
	assert.Equal(t, OutcomeFailed, res.Outcome)
	assert.Equal(t, 2, h.phases.count(phase.TaskCompHooks))
	assert.Equal(t, 1, h.phases.count(phase.TaskTesting))

	require.Len(t, h.fixer.calls, 1)
	assert.Equal(t, issues.TypeTypeError, h.fixer.calls[0][0].Type)
	assert.Equal(t, issues.SeverityHigh, h.fixer.calls[0][0].Severity)
}

func TestRun_NoFixesAppliedSkipsVerification(t *testing.T) {
	for _, success := range []bool{true, false} {
		h := newHarness(t)
		h.phases.set(phase.TaskTesting, false)
		h.phases.failures = []string{"boom"}
		h.fixer.results = []issues.FixResult{{Success: success}}

		res := h.pipeline.Run(context.Background(), pipeline.Options{Test: true, AIAgent: true})
		require.NotNil(t, res.Verification)
		assert.True(t, res.Verification.Skipped)
		assert.True(t, res.Verification.Passed)
		assert.Equal(t, 1, h.phases.count(phase.TaskTesting))
		assert.Equal(t, success, res.Success())
	}
}

func TestRun_EmptyIssueListIsSuccess(t *testing.T) {
	h := newHarness(t)
	h.phases.set(phase.TaskTesting, false)
	h.phases.failures = []string{"  "}

	res := h.pipeline.Run(context.Background(), pipeline.Options{Test: true, AIAgent: true})
	assert.Equal(t, OutcomeSuccess, res.Outcome)
	assert.Empty(t, h.fixer.calls)
}

func TestRun_FixerErrorFailsCleanly(t *testing.T) {
	h := newHarness(t)
	h.phases.set(phase.TaskTesting, false)
	h.phases.failures = []string{"boom"}
	h.fixer.err = errors.New("agent crashed")

	res := h.pipeline.Run(context.Background(), pipeline.Options{Test: true, AIAgent: true})
	assert.Equal(t, OutcomeFailed, res.Outcome)
	assert.Equal(t, 1, h.cleanups)
}

func TestRun_MultipleFixRounds(t *testing.T) {
	h := newHarness(t)
	h.pipeline.SetFixRounds(3)
	h.phases.set(phase.TaskTesting, false, false, true)
	h.phases.failures = []string{"test_a failed"}
	h.fixer.results = []issues.FixResult{
		{Success: true, FixesApplied: []string{"patched test_a"}},
		{Success: true, FixesApplied: []string{"patched test_a again"}},
	}

	res := h.pipeline.Run(context.Background(), pipeline.Options{Test: true, AIAgent: true})
	assert.Equal(t, OutcomeSuccess, res.Outcome)
	assert.Equal(t, 2, res.Rounds)
	assert.Len(t, h.fixer.calls, 2)
	assert.Equal(t, 3, h.phases.count(phase.TaskTesting))
}

func TestRun_FixRoundsBounded(t *testing.T) {
	h := newHarness(t)
	h.pipeline.SetFixRounds(2)
	h.phases.set(phase.TaskTesting, false)
	h.phases.failures = []string{"test_a failed"}
	h.fixer.results = []issues.FixResult{{Success: true, FixesApplied: []string{"patched test_a"}}}

	res := h.pipeline.Run(context.Background(), pipeline.Options{Test: true, AIAgent: true})
	assert.Equal(t, OutcomeFailed, res.Outcome)
	assert.Len(t, h.fixer.calls, 2)
	assert.Equal(t, 2, res.Rounds)
}

func TestRun_PanicIsContained(t *testing.T) {
	for _, id := range []string{phase.TaskCleaning, phase.TaskTesting, phase.TaskCompHooks} {
		t.Run(id, func(t *testing.T) {
			h := newHarness(t)
			h.phases.panicOn = id

			var res Result
			assert.NotPanics(t, func() {
				res = h.pipeline.Run(context.Background(), pipeline.Options{Test: true, AIAgent: true})
			})
			assert.Equal(t, OutcomeFailed, res.Outcome)
			assert.Equal(t, 1, h.cleanups)
			task := h.workflowTask(t)
			assert.Equal(t, session.StatusFailed, task.Status)
			assert.Contains(t, task.ErrorMessage, "boom in "+id)

			for _, task := range h.tracker.Tasks() {
				assert.True(t, task.Status.Terminal(), "task %s left %s", task.ID, task.Status)
			}
		})
	}
}

func TestRun_Cancelled(t *testing.T) {
	h := newHarness(t)
	ctx, cancel := context.WithCancel(context.Background())
	h.phases.onCall = func(id string) {
		if id == phase.TaskTesting {
			cancel()
		}
	}

	res := h.pipeline.Run(ctx, pipeline.Options{Test: true, AIAgent: true})
	assert.Equal(t, OutcomeCancelled, res.Outcome)
	assert.ErrorIs(t, res.Err, context.Canceled)
	assert.Zero(t, h.phases.count(phase.TaskCompHooks))
	assert.Equal(t, 1, h.cleanups)

	task := h.workflowTask(t)
	assert.Equal(t, session.StatusFailed, task.Status)
	assert.Equal(t, "interrupted", task.ErrorMessage)
}

func TestRun_PostQualityFailure(t *testing.T) {
	h := newHarness(t)
	h.phases.set(phase.TaskPublishing, false)

	res := h.pipeline.Run(context.Background(), pipeline.Options{Publish: "patch", Commit: true})
	assert.Equal(t, OutcomeFailed, res.Outcome)
	assert.Zero(t, h.phases.count(phase.TaskCommit))
}

func TestRun_ProgressAndSummary(t *testing.T) {
	h := newHarness(t)
	h.phases.set(phase.TaskCompHooks, false)
	h.phases.messages[phase.TaskCompHooks] = "bandit: 1 high, 0 medium, 0 low"
	h.fixer.results = []issues.FixResult{{Success: true, FixesApplied: []string{"removed shell=True hook finding"}}}
	h.phases.results[phase.TaskCompHooks] = []bool{false, true}

	res := h.pipeline.Run(context.Background(), pipeline.Options{Test: true, AIAgent: true})
	assert.Equal(t, OutcomeSuccess, res.Outcome)

	status, _ := h.recorder.Status(StageFast)
	assert.Equal(t, progress.StatusCompleted, status)
	status, _ = h.recorder.Status(StageAutofix)
	assert.Equal(t, progress.StatusCompleted, status)
	status, _ = h.recorder.Status(StageVerification)
	assert.Equal(t, progress.StatusCompleted, status)
	require.Len(t, h.recorder.Issues(), 1)
	assert.Equal(t, issues.TypeSecurity, h.recorder.Issues()[0].Type)

	assert.True(t, res.Summary.Success)
	assert.Equal(t, h.tracker.ID(), res.SessionID)
}

func TestRun_LogsAndMetrics(t *testing.T) {
	logger, logs := logging.NewObserved()
	tr := session.NewTracker(nil)
	phases := newFakePhases(tr)
	m := metrics.New()

	p := New(phases, nil, tr, logger)
	p.SetMetrics(m)
	p.Run(context.Background(), pipeline.Options{})

	assert.Equal(t, 1, logs.FilterMessage("workflow started").Len())
	finished := logs.FilterMessage("workflow finished").All()
	require.Len(t, finished, 1)
	assert.Equal(t, "success", finished[0].ContextMap()["outcome"])
}

func TestPlanVerification(t *testing.T) {
	tests := []struct {
		fixes []string
		want  Plan
	}{
		{[]string{"fixed test_x"}, Plan{Tests: true}},
		{[]string{"reformatted imports"}, Plan{Comprehensive: true}},
		{[]string{"fixed failing hook"}, Plan{Comprehensive: true}},
		{[]string{"added type hints to test helpers"}, Plan{Tests: true, Comprehensive: true}},
		{[]string{"reduced complexity in test_utils"}, Plan{Tests: true, Comprehensive: true}},
		{[]string{"fixed test_a", "silenced bandit"}, Plan{Tests: true, Comprehensive: true}},
		{nil, Plan{}},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, PlanVerification(tt.fixes), "%v", tt.fixes)
	}
}
