package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lucasnoah/hookforge/internal/issues"
	"github.com/lucasnoah/hookforge/internal/pipeline"
	"github.com/lucasnoah/hookforge/internal/session"
)

// ErrNotFound is returned when a run does not exist.
var ErrNotFound = errors.New("run not found")

// Run is one recorded workflow run.
type Run struct {
	ID        string               `json:"id"`
	Project   string               `json:"project"`
	StartedAt time.Time            `json:"started_at"`
	EndedAt   time.Time            `json:"ended_at"`
	Outcome   string               `json:"outcome"`
	Rounds    int                  `json:"rounds"`
	Error     string               `json:"error,omitempty"`
	Options   pipeline.Options     `json:"options"`
	Tasks     []session.TaskStatus `json:"tasks,omitempty"`
	Issues    []issues.Issue       `json:"issues,omitempty"`
}

// Duration returns how long the run took.
func (r Run) Duration() time.Duration {
	return r.EndedAt.Sub(r.StartedAt)
}

// RecordRun stores a run with its tasks and issues in one transaction.
func (d *DB) RecordRun(ctx context.Context, run Run) error {
	opts, err := json.Marshal(run.Options)
	if err != nil {
		return fmt.Errorf("marshal options: %w", err)
	}

	tx, err := d.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, d.rebind(
		`INSERT INTO runs (id, project, started_at, ended_at, outcome, rounds, error, options) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`),
		run.ID, run.Project, formatTime(run.StartedAt), formatTime(run.EndedAt), run.Outcome, run.Rounds, run.Error, string(opts),
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}

	for i, t := range run.Tasks {
		_, err := tx.ExecContext(ctx, d.rebind(
			`INSERT INTO run_tasks (run_id, seq, task_id, name, status, started_at, ended_at, details, error_message) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`),
			run.ID, i, t.ID, t.Name, string(t.Status), formatTime(t.StartTime), formatTime(t.EndTime), t.Details, t.ErrorMessage,
		)
		if err != nil {
			return fmt.Errorf("insert task %s: %w", t.ID, err)
		}
	}
	for i, is := range run.Issues {
		_, err := tx.ExecContext(ctx, d.rebind(
			`INSERT INTO run_issues (run_id, seq, issue_id, type, severity, stage, message) VALUES (?, ?, ?, ?, ?, ?, ?)`),
			run.ID, i, is.ID, string(is.Type), string(is.Severity), is.Stage, is.Message,
		)
		if err != nil {
			return fmt.Errorf("insert issue %s: %w", is.ID, err)
		}
	}
	return tx.Commit()
}

// RecentRuns returns the latest runs, newest first, without tasks or issues.
func (d *DB) RecentRuns(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := d.conn.QueryContext(ctx, d.rebind(
		`SELECT id, project, started_at, ended_at, outcome, rounds, error, options FROM runs ORDER BY started_at DESC LIMIT ?`), limit)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// GetRun returns one run with its tasks and issues.
func (d *DB) GetRun(ctx context.Context, id string) (*Run, error) {
	row := d.conn.QueryRowContext(ctx, d.rebind(
		`SELECT id, project, started_at, ended_at, outcome, rounds, error, options FROM runs WHERE id = ?`), id)
	r, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if r.Tasks, err = d.runTasks(ctx, id); err != nil {
		return nil, err
	}
	if r.Issues, err = d.runIssues(ctx, id); err != nil {
		return nil, err
	}
	return &r, nil
}

// RunsWithTasks returns the latest runs with their tasks and issues loaded.
func (d *DB) RunsWithTasks(ctx context.Context, limit int) ([]Run, error) {
	runs, err := d.RecentRuns(ctx, limit)
	if err != nil {
		return nil, err
	}
	for i := range runs {
		if runs[i].Tasks, err = d.runTasks(ctx, runs[i].ID); err != nil {
			return nil, err
		}
		if runs[i].Issues, err = d.runIssues(ctx, runs[i].ID); err != nil {
			return nil, err
		}
	}
	return runs, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(s scanner) (Run, error) {
	var r Run
	var started, ended, errMsg, opts sql.NullString
	if err := s.Scan(&r.ID, &r.Project, &started, &ended, &r.Outcome, &r.Rounds, &errMsg, &opts); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return r, err
		}
		return r, fmt.Errorf("scan run: %w", err)
	}
	r.StartedAt = parseTime(started)
	r.EndedAt = parseTime(ended)
	r.Error = errMsg.String
	if opts.Valid && opts.String != "" {
		if err := json.Unmarshal([]byte(opts.String), &r.Options); err != nil {
			return r, fmt.Errorf("parse options of run %s: %w", r.ID, err)
		}
	}
	return r, nil
}

func (d *DB) runTasks(ctx context.Context, id string) ([]session.TaskStatus, error) {
	rows, err := d.conn.QueryContext(ctx, d.rebind(
		`SELECT task_id, name, status, started_at, ended_at, details, error_message FROM run_tasks WHERE run_id = ? ORDER BY seq`), id)
	if err != nil {
		return nil, fmt.Errorf("query tasks: %w", err)
	}
	defer rows.Close()

	var tasks []session.TaskStatus
	for rows.Next() {
		var t session.TaskStatus
		var status string
		var started, ended, details, errMsg sql.NullString
		if err := rows.Scan(&t.ID, &t.Name, &status, &started, &ended, &details, &errMsg); err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		t.Status = session.Status(status)
		t.StartTime = parseTime(started)
		t.EndTime = parseTime(ended)
		t.Details = details.String
		t.ErrorMessage = errMsg.String
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

func (d *DB) runIssues(ctx context.Context, id string) ([]issues.Issue, error) {
	rows, err := d.conn.QueryContext(ctx, d.rebind(
		`SELECT issue_id, type, severity, stage, message FROM run_issues WHERE run_id = ? ORDER BY seq`), id)
	if err != nil {
		return nil, fmt.Errorf("query issues: %w", err)
	}
	defer rows.Close()

	var out []issues.Issue
	for rows.Next() {
		var is issues.Issue
		var typ, sev string
		var stage, msg sql.NullString
		if err := rows.Scan(&is.ID, &typ, &sev, &stage, &msg); err != nil {
			return nil, fmt.Errorf("scan issue: %w", err)
		}
		is.Type = issues.IssueType(typ)
		is.Severity = issues.Severity(sev)
		is.Stage = stage.String
		is.Message = msg.String
		out = append(out, is)
	}
	return out, rows.Err()
}

// Prune deletes runs that started before cutoff and returns how many went.
func (d *DB) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	tx, err := d.conn.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	sub := `SELECT id FROM runs WHERE started_at < ?`
	c := formatTime(cutoff)
	if _, err := tx.ExecContext(ctx, d.rebind(`DELETE FROM run_tasks WHERE run_id IN (`+sub+`)`), c); err != nil {
		return 0, fmt.Errorf("prune tasks: %w", err)
	}
	if _, err := tx.ExecContext(ctx, d.rebind(`DELETE FROM run_issues WHERE run_id IN (`+sub+`)`), c); err != nil {
		return 0, fmt.Errorf("prune issues: %w", err)
	}
	res, err := tx.ExecContext(ctx, d.rebind(`DELETE FROM runs WHERE started_at < ?`), c)
	if err != nil {
		return 0, fmt.Errorf("prune runs: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, tx.Commit()
}
