// Package session tracks per-task status and cleanup obligations for one
// workflow run.
package session

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Status is the lifecycle state of a tracked task.
type Status string

const (
	StatusPending Status = "pending"
	StatusRunning Status = "running"
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
)

// Terminal reports whether s is success or failed.
func (s Status) Terminal() bool {
	return s == StatusSuccess || s == StatusFailed
}

// TaskStatus is the recorded state of one named task.
type TaskStatus struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Status       Status    `json:"status"`
	StartTime    time.Time `json:"start_time"`
	EndTime      time.Time `json:"end_time,omitempty"`
	Details      string    `json:"details,omitempty"`
	ErrorMessage string    `json:"error_message,omitempty"`
}

// Duration returns the elapsed time of a finished task, or zero.
func (t TaskStatus) Duration() time.Duration {
	if t.EndTime.IsZero() {
		return 0
	}
	return t.EndTime.Sub(t.StartTime)
}

// CleanupFunc releases a resource acquired during the run.
type CleanupFunc func() error

// Summary is the finalized outcome of a session.
type Summary struct {
	ID        string       `json:"id"`
	StartTime time.Time    `json:"start_time"`
	EndTime   time.Time    `json:"end_time"`
	Success   bool         `json:"success"`
	Tasks     []TaskStatus `json:"tasks"`
}

// Tracker owns the task map for one run. Phases run strictly sequentially, so
// a Tracker is not safe for concurrent use.
type Tracker struct {
	id       string
	tasks    map[string]*TaskStatus
	order    []string
	cleanups []CleanupFunc
	observer func(TaskStatus)
	logger   *zap.Logger
	now      func() time.Time

	startTime time.Time
	endTime   time.Time
	success   bool
	finalized bool
}

// NewTracker creates a Tracker with a fresh session ID.
func NewTracker(logger *zap.Logger) *Tracker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Tracker{
		id:     uuid.NewString(),
		tasks:  make(map[string]*TaskStatus),
		logger: logger,
		now:    time.Now,
	}
}

// ID returns the session ID.
func (t *Tracker) ID() string {
	return t.id
}

// SetObserver registers fn to receive a copy of every task transition.
func (t *Tracker) SetObserver(fn func(TaskStatus)) {
	t.observer = fn
}

// SetClock overrides the time source (for testing).
func (t *Tracker) SetClock(now func() time.Time) {
	t.now = now
}

// TrackTask records a task as pending and immediately moves it to running.
// Tracking an ID again restarts that same entry; entries are never removed.
func (t *Tracker) TrackTask(id, name string) {
	task, ok := t.tasks[id]
	if !ok {
		task = &TaskStatus{ID: id}
		t.tasks[id] = task
		t.order = append(t.order, id)
	}
	*task = TaskStatus{ID: id, Name: name, Status: StatusPending, StartTime: t.now()}
	t.notify(task)

	task.Status = StatusRunning
	t.notify(task)
	t.logger.Debug("task started", zap.String("task", id))
}

// CompleteTask marks a running task successful.
func (t *Tracker) CompleteTask(id, details string) {
	task := t.finish(id, StatusSuccess)
	if task == nil {
		return
	}
	task.Details = details
	t.notify(task)
}

// FailTask marks a running task failed with errMsg.
func (t *Tracker) FailTask(id, errMsg string) {
	task := t.finish(id, StatusFailed)
	if task == nil {
		return
	}
	task.ErrorMessage = errMsg
	t.notify(task)
}

func (t *Tracker) finish(id string, status Status) *TaskStatus {
	task, ok := t.tasks[id]
	if !ok {
		t.logger.Warn("finish of untracked task", zap.String("task", id), zap.String("status", string(status)))
		return nil
	}
	if task.Status.Terminal() {
		t.logger.Warn("task already finished", zap.String("task", id), zap.String("status", string(task.Status)))
		return nil
	}
	task.Status = status
	task.EndTime = t.now()
	return task
}

// AbortRunning fails every task that is still pending or running. It returns
// the IDs it touched.
func (t *Tracker) AbortRunning(reason string) []string {
	var aborted []string
	for _, id := range t.order {
		if !t.tasks[id].Status.Terminal() {
			t.FailTask(id, reason)
			aborted = append(aborted, id)
		}
	}
	return aborted
}

// Task returns a copy of the task with the given ID.
func (t *Tracker) Task(id string) (TaskStatus, bool) {
	task, ok := t.tasks[id]
	if !ok {
		return TaskStatus{}, false
	}
	return *task, true
}

// Tasks returns copies of all tasks in the order they were first tracked.
func (t *Tracker) Tasks() []TaskStatus {
	out := make([]TaskStatus, 0, len(t.order))
	for _, id := range t.order {
		out = append(out, *t.tasks[id])
	}
	return out
}

// RegisterCleanup queues fn to run at the end of the workflow.
func (t *Tracker) RegisterCleanup(fn CleanupFunc) {
	t.cleanups = append(t.cleanups, fn)
}

// CleanupResources runs every queued callback once, in registration order.
// A failing or panicking callback is logged and does not stop the others.
func (t *Tracker) CleanupResources() {
	pending := t.cleanups
	t.cleanups = nil
	for i, fn := range pending {
		if err := runCleanup(fn); err != nil {
			t.logger.Warn("cleanup failed", zap.Int("index", i), zap.Error(err))
		}
	}
}

func runCleanup(fn CleanupFunc) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("cleanup panicked: %v", r)
		}
	}()
	return fn()
}

// FinalizeSession stamps the overall outcome of the session.
func (t *Tracker) FinalizeSession(start time.Time, success bool) {
	t.startTime = start
	t.endTime = t.now()
	t.success = success
	t.finalized = true
	t.logger.Info("session finalized",
		zap.String("session", t.id),
		zap.Bool("success", success),
		zap.Duration("duration", t.endTime.Sub(start)),
	)
}

// Summary returns the session outcome. Finalized is false until FinalizeSession runs.
func (t *Tracker) Summary() (s Summary, finalized bool) {
	return Summary{
		ID:        t.id,
		StartTime: t.startTime,
		EndTime:   t.endTime,
		Success:   t.success,
		Tasks:     t.Tasks(),
	}, t.finalized
}

func (t *Tracker) notify(task *TaskStatus) {
	if t.observer != nil {
		t.observer(*task)
	}
}
