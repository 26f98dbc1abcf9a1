package history

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lucasnoah/hookforge/internal/issues"
	"github.com/lucasnoah/hookforge/internal/pipeline"
	"github.com/lucasnoah/hookforge/internal/session"
)

func testDB(t *testing.T) *DB {
	t.Helper()
	d, err := Open(context.Background(), filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	require.NoError(t, d.Migrate(context.Background()))
	t.Cleanup(func() { d.Close() })
	return d
}

func sampleRun(id string, started time.Time) Run {
	return Run{
		ID:        id,
		Project:   "demo",
		StartedAt: started,
		EndedAt:   started.Add(90 * time.Second),
		Outcome:   "failed",
		Rounds:    1,
		Error:     "fix not verified after 1 rounds",
		Options:   pipeline.Options{Test: true, AIAgent: true},
		Tasks: []session.TaskStatus{
			{ID: "workflow", Name: "Complete workflow", Status: session.StatusFailed, StartTime: started, EndTime: started.Add(90 * time.Second), ErrorMessage: "fix not verified"},
			{ID: "testing", Name: "Tests", Status: session.StatusFailed, StartTime: started, EndTime: started.Add(30 * time.Second)},
		},
		Issues: []issues.Issue{
			{ID: "test_failure_0", Type: issues.TypeTestFailure, Severity: issues.SeverityHigh, Stage: "tests", Message: "test_x assert error"},
		},
	}
}

func TestMigrate_Idempotent(t *testing.T) {
	d := testDB(t)
	require.NoError(t, d.Migrate(context.Background()))
	assert.Equal(t, DialectSQLite, d.Dialect())
}

func TestRecordAndGetRun(t *testing.T) {
	d := testDB(t)
	ctx := context.Background()
	started := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	require.NoError(t, d.RecordRun(ctx, sampleRun("run-1", started)))

	got, err := d.GetRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, "failed", got.Outcome)
	assert.True(t, got.StartedAt.Equal(started))
	assert.Equal(t, 90*time.Second, got.Duration())
	assert.True(t, got.Options.AIAgent)
	require.Len(t, got.Tasks, 2)
	assert.Equal(t, "workflow", got.Tasks[0].ID)
	assert.Equal(t, session.StatusFailed, got.Tasks[1].Status)
	require.Len(t, got.Issues, 1)
	assert.Equal(t, issues.TypeTestFailure, got.Issues[0].Type)

	_, err = d.GetRun(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRecentRuns_NewestFirst(t *testing.T) {
	d := testDB(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	for i, id := range []string{"a", "b", "c"} {
		require.NoError(t, d.RecordRun(ctx, sampleRun(id, base.Add(time.Duration(i)*time.Hour))))
	}

	runs, err := d.RecentRuns(ctx, 2)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "c", runs[0].ID)
	assert.Equal(t, "b", runs[1].ID)
	assert.Empty(t, runs[0].Tasks)

	full, err := d.RunsWithTasks(ctx, 1)
	require.NoError(t, err)
	require.Len(t, full, 1)
	assert.Len(t, full[0].Tasks, 2)
}

func TestRecordRun_DuplicateIDFails(t *testing.T) {
	d := testDB(t)
	ctx := context.Background()
	run := sampleRun("dup", time.Now())
	require.NoError(t, d.RecordRun(ctx, run))
	assert.Error(t, d.RecordRun(ctx, run))
}

func TestPrune(t *testing.T) {
	d := testDB(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, d.RecordRun(ctx, sampleRun("old", base)))
	require.NoError(t, d.RecordRun(ctx, sampleRun("new", base.Add(48*time.Hour))))

	n, err := d.Prune(ctx, base.Add(24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	runs, err := d.RecentRuns(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "new", runs[0].ID)
}

func TestOpen_DSNs(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "x.db")
	d, err := Open(ctx, "sqlite://"+path)
	require.NoError(t, err)
	require.NoError(t, d.Close())

	_, err = Open(ctx, "mysql://localhost/db")
	assert.Error(t, err)
}

func TestRebind(t *testing.T) {
	d := &DB{dialect: DialectPostgres}
	assert.Equal(t, "SELECT * FROM runs WHERE id = $1 AND outcome = $2", d.rebind("SELECT * FROM runs WHERE id = ? AND outcome = ?"))
	d.dialect = DialectSQLite
	assert.Equal(t, "x = ?", d.rebind("x = ?"))
}

func TestPostgres(t *testing.T) {
	dsn := os.Getenv("HOOKFORGE_TEST_PG_DSN")
	if dsn == "" {
		t.Skip("HOOKFORGE_TEST_PG_DSN not set")
	}
	ctx := context.Background()
	d, err := Open(ctx, dsn)
	require.NoError(t, err)
	defer d.Close()
	require.NoError(t, d.Migrate(ctx))

	id := "pg-" + time.Now().Format("20060102150405.000000000")
	require.NoError(t, d.RecordRun(ctx, sampleRun(id, time.Now())))
	got, err := d.GetRun(ctx, id)
	require.NoError(t, err)
	assert.Len(t, got.Tasks, 2)
}
