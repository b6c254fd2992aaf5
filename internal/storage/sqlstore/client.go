// internal/storage/sqlstore/client.go
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"taskmill/internal/config"
	"taskmill/internal/models"
	"taskmill/internal/storage"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS task_group_runs (
	id          TEXT PRIMARY KEY,
	group_name  TEXT NOT NULL,
	status      TEXT NOT NULL,
	message     TEXT NOT NULL DEFAULT '',
	stack_trace TEXT,
	start_time  TEXT NOT NULL,
	end_time    TEXT,
	created_at  TEXT NOT NULL,
	updated_at  TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_group_runs_name_status ON task_group_runs (group_name, status);
CREATE INDEX IF NOT EXISTS idx_group_runs_created ON task_group_runs (created_at);

CREATE TABLE IF NOT EXISTS task_runs (
	id           TEXT PRIMARY KEY,
	group_run_id TEXT NOT NULL,
	task_name    TEXT NOT NULL,
	file_path    TEXT NOT NULL,
	params       TEXT NOT NULL DEFAULT '{}',
	status       TEXT NOT NULL,
	message      TEXT NOT NULL DEFAULT '',
	summary      TEXT,
	percentage   REAL,
	start_time   TEXT,
	end_time     TEXT,
	created_at   TEXT NOT NULL,
	updated_at   TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_task_runs_name_status ON task_runs (task_name, status);
CREATE INDEX IF NOT EXISTS idx_task_runs_group_run ON task_runs (group_run_id);
CREATE INDEX IF NOT EXISTS idx_task_runs_created ON task_runs (created_at);
`

// Client is a Store backed by database/sql. SQLite (local file, the default)
// and PostgreSQL are supported; all timestamps are stored as RFC 3339 text so
// range comparisons stay lexicographic on both drivers.
type Client struct {
	db       *sql.DB
	postgres bool
}

// NewClient opens the configured database, applies pragmas for the SQLite
// case and bootstraps the schema.
func NewClient(cfg config.DatabaseConfig) (*Client, error) {
	driver := strings.TrimSpace(cfg.Driver)
	if driver == "" {
		driver = config.DefaultDatabaseDriver
	}

	var (
		db  *sql.DB
		err error
	)
	c := &Client{}
	switch driver {
	case "sqlite":
		if cfg.DSN != ":memory:" {
			if dir := filepath.Dir(cfg.DSN); dir != "." && dir != "" {
				if err := os.MkdirAll(dir, 0o755); err != nil {
					return nil, fmt.Errorf("failed to create database directory: %w", err)
				}
			}
		}
		db, err = sql.Open("sqlite", cfg.DSN)
		if err != nil {
			return nil, fmt.Errorf("failed to open sqlite database: %w", err)
		}
		// SQLite prefers a single writer.
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
		_, _ = db.Exec("PRAGMA journal_mode = WAL")
		_, _ = db.Exec("PRAGMA synchronous = NORMAL")
		_, _ = db.Exec("PRAGMA busy_timeout = 5000")
	case "postgres":
		db, err = sql.Open("postgres", cfg.DSN)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to postgres: %w", err)
		}
		c.postgres = true
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}

	if err = db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	c.db = db
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to bootstrap schema: %w", err)
	}
	return c, nil
}

func (c *Client) Close() error {
	return c.db.Close()
}

// rebind converts ? placeholders to the $N form lib/pq expects.
func (c *Client) rebind(query string) string {
	if !c.postgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			fmt.Fprintf(&b, "$%d", n)
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (c *Client) exec(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	return c.db.ExecContext(ctx, c.rebind(query), args...)
}

func (c *Client) query(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error) {
	return c.db.QueryContext(ctx, c.rebind(query), args...)
}

func (c *Client) queryRow(ctx context.Context, query string, args ...interface{}) *sql.Row {
	return c.db.QueryRowContext(ctx, c.rebind(query), args...)
}

// Group run operations

func (c *Client) InsertTaskGroupRun(ctx context.Context, run *models.TaskGroupRun) error {
	_, err := c.exec(ctx, `
		INSERT INTO task_group_runs
		(id, group_name, status, message, stack_trace, start_time, end_time, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID,
		run.GroupName,
		string(run.Status),
		run.Message,
		nullString(run.StackTrace),
		fmtTime(run.StartTime),
		fmtTimePtr(run.EndTime),
		fmtTime(run.CreatedAt),
		fmtTime(run.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to insert group run: %w", err)
	}
	return nil
}

func (c *Client) UpdateTaskGroupRun(ctx context.Context, id string, upd storage.GroupRunUpdate) error {
	set := []string{"updated_at = ?"}
	args := []interface{}{fmtTime(time.Now().UTC())}
	if upd.Status != nil {
		set = append(set, "status = ?")
		args = append(args, string(*upd.Status))
	}
	if upd.Message != nil {
		set = append(set, "message = ?")
		args = append(args, *upd.Message)
	}
	if upd.StackTrace != nil {
		set = append(set, "stack_trace = ?")
		args = append(args, *upd.StackTrace)
	}
	if upd.EndTime != nil {
		set = append(set, "end_time = ?")
		args = append(args, fmtTime(*upd.EndTime))
	}
	args = append(args, id)

	result, err := c.exec(ctx,
		"UPDATE task_group_runs SET "+strings.Join(set, ", ")+" WHERE id = ?",
		args...,
	)
	if err != nil {
		return fmt.Errorf("failed to update group run: %w", err)
	}
	return checkAffected(result)
}

func (c *Client) GetTaskGroupRun(ctx context.Context, id string) (*models.TaskGroupRun, error) {
	row := c.queryRow(ctx, `
		SELECT id, group_name, status, message, stack_trace, start_time, end_time, created_at, updated_at
		FROM task_group_runs
		WHERE id = ?`, id)
	return scanGroupRun(row)
}

func (c *Client) IsGroupRunning(ctx context.Context, groupName string) (bool, error) {
	var count int
	err := c.queryRow(ctx, `
		SELECT COUNT(1) FROM task_group_runs
		WHERE group_name = ? AND status = ?`,
		groupName, string(models.GroupStatusInProgress),
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check running group: %w", err)
	}
	return count > 0, nil
}

func (c *Client) GetRunningGroups(ctx context.Context) ([]models.TaskGroupRun, error) {
	rows, err := c.query(ctx, `
		SELECT id, group_name, status, message, stack_trace, start_time, end_time, created_at, updated_at
		FROM task_group_runs
		WHERE status = ?
		ORDER BY start_time`,
		string(models.GroupStatusInProgress),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query running groups: %w", err)
	}
	defer rows.Close()

	var runs []models.TaskGroupRun
	for rows.Next() {
		run, err := scanGroupRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}
	return runs, rows.Err()
}

// Task run operations

func (c *Client) InsertTaskRun(ctx context.Context, run *models.TaskRun) error {
	_, err := c.exec(ctx, `
		INSERT INTO task_runs
		(id, group_run_id, task_name, file_path, params, status, message, summary, percentage,
		 start_time, end_time, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID,
		run.GroupRunID,
		run.TaskName,
		run.FilePath,
		run.Params,
		string(run.Status),
		run.Message,
		nullString(run.Summary),
		run.Percentage,
		fmtTimePtr(run.StartTime),
		fmtTimePtr(run.EndTime),
		fmtTime(run.CreatedAt),
		fmtTime(run.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to insert task run: %w", err)
	}
	return nil
}

func (c *Client) UpdateTaskRun(ctx context.Context, id string, upd storage.TaskRunUpdate) error {
	set := []string{"updated_at = ?"}
	args := []interface{}{fmtTime(time.Now().UTC())}
	if upd.Status != nil {
		set = append(set, "status = ?")
		args = append(args, string(*upd.Status))
	}
	if upd.Message != nil {
		set = append(set, "message = ?")
		args = append(args, *upd.Message)
	}
	if upd.Summary != nil {
		set = append(set, "summary = ?")
		args = append(args, *upd.Summary)
	}
	if upd.Percentage != nil {
		set = append(set, "percentage = ?")
		args = append(args, *upd.Percentage)
	}
	if upd.StartTime != nil {
		set = append(set, "start_time = ?")
		args = append(args, fmtTime(*upd.StartTime))
	}
	if upd.EndTime != nil {
		set = append(set, "end_time = ?")
		args = append(args, fmtTime(*upd.EndTime))
	}
	args = append(args, id)

	result, err := c.exec(ctx,
		"UPDATE task_runs SET "+strings.Join(set, ", ")+" WHERE id = ?",
		args...,
	)
	if err != nil {
		return fmt.Errorf("failed to update task run: %w", err)
	}
	return checkAffected(result)
}

func (c *Client) GetTaskRun(ctx context.Context, id string) (*models.TaskRun, error) {
	row := c.queryRow(ctx, taskRunSelect+` WHERE id = ?`, id)
	return scanTaskRun(row)
}

func (c *Client) IsTaskRunning(ctx context.Context, taskName string) (bool, error) {
	var count int
	err := c.queryRow(ctx, `
		SELECT COUNT(1) FROM task_runs
		WHERE task_name = ? AND status = ?`,
		taskName, string(models.TaskStatusInProgress),
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check running task: %w", err)
	}
	return count > 0, nil
}

func (c *Client) GetLastCompletedRun(ctx context.Context, taskName string) (*models.TaskRun, error) {
	row := c.queryRow(ctx, taskRunSelect+`
		WHERE task_name = ? AND status = ?
		ORDER BY start_time DESC
		LIMIT 1`,
		taskName, string(models.TaskStatusCompleted),
	)
	return scanTaskRun(row)
}

func (c *Client) GetTaskRunsForGroupRun(ctx context.Context, groupRunID string) ([]models.TaskRun, error) {
	rows, err := c.query(ctx, taskRunSelect+`
		WHERE group_run_id = ?
		ORDER BY created_at`, groupRunID)
	if err != nil {
		return nil, fmt.Errorf("failed to query group task runs: %w", err)
	}
	return collectTaskRuns(rows)
}

// GetLatestTaskRuns returns the most recent run per distinct task name.
func (c *Client) GetLatestTaskRuns(ctx context.Context) ([]models.TaskRun, error) {
	rows, err := c.query(ctx, taskRunSelect+`
		WHERE (task_name, created_at) IN (
			SELECT task_name, MAX(created_at) FROM task_runs GROUP BY task_name
		)
		ORDER BY task_name`)
	if err != nil {
		return nil, fmt.Errorf("failed to query latest task runs: %w", err)
	}
	return collectTaskRuns(rows)
}

func (c *Client) GetErrorTaskRuns(ctx context.Context, since time.Time) ([]models.TaskRun, error) {
	rows, err := c.query(ctx, taskRunSelect+`
		WHERE status = ? AND created_at >= ?
		ORDER BY created_at DESC`,
		string(models.TaskStatusError), fmtTime(since),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query error task runs: %w", err)
	}
	return collectTaskRuns(rows)
}

// Maintenance operations

// MarkAllInProgressAsError finalizes every run left in a non-terminal status,
// stamping the given message. Used for startup recovery after a crash and for
// shutdown.
func (c *Client) MarkAllInProgressAsError(ctx context.Context, message string) (int64, error) {
	now := fmtTime(time.Now().UTC())

	groups, err := c.exec(ctx, `
		UPDATE task_group_runs
		SET status = ?, message = ?, end_time = ?, updated_at = ?
		WHERE status = ?`,
		string(models.GroupStatusError), message, now, now,
		string(models.GroupStatusInProgress),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to mark group runs as error: %w", err)
	}

	tasks, err := c.exec(ctx, `
		UPDATE task_runs
		SET status = ?, message = ?, end_time = ?, updated_at = ?
		WHERE status IN (?, ?)`,
		string(models.TaskStatusError), message, now, now,
		string(models.TaskStatusCreated), string(models.TaskStatusInProgress),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to mark task runs as error: %w", err)
	}

	ga, _ := groups.RowsAffected()
	ta, _ := tasks.RowsAffected()
	return ga + ta, nil
}

// DeleteRecordsOlderThan removes runs created before the cutoff. Newer rows,
// including in-progress ones, are left untouched.
func (c *Client) DeleteRecordsOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	cut := fmtTime(cutoff)

	tasks, err := c.exec(ctx, `DELETE FROM task_runs WHERE created_at < ?`, cut)
	if err != nil {
		return 0, fmt.Errorf("failed to delete old task runs: %w", err)
	}
	groups, err := c.exec(ctx, `DELETE FROM task_group_runs WHERE created_at < ?`, cut)
	if err != nil {
		return 0, fmt.Errorf("failed to delete old group runs: %w", err)
	}

	ta, _ := tasks.RowsAffected()
	ga, _ := groups.RowsAffected()
	return ta + ga, nil
}

// Row helpers

const taskRunSelect = `
	SELECT id, group_run_id, task_name, file_path, params, status, message, summary,
	       percentage, start_time, end_time, created_at, updated_at
	FROM task_runs`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanGroupRun(row rowScanner) (*models.TaskGroupRun, error) {
	var (
		run        models.TaskGroupRun
		status     string
		stackTrace sql.NullString
		startTime  string
		endTime    sql.NullString
		createdAt  string
		updatedAt  string
	)
	err := row.Scan(&run.ID, &run.GroupName, &status, &run.Message, &stackTrace,
		&startTime, &endTime, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan group run: %w", err)
	}
	run.Status = models.GroupStatus(status)
	if stackTrace.Valid {
		run.StackTrace = &stackTrace.String
	}
	if run.StartTime, err = parseTime(startTime); err != nil {
		return nil, err
	}
	if run.EndTime, err = parseTimePtr(endTime); err != nil {
		return nil, err
	}
	if run.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if run.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	return &run, nil
}

func scanTaskRun(row rowScanner) (*models.TaskRun, error) {
	var (
		run        models.TaskRun
		status     string
		summary    sql.NullString
		percentage sql.NullFloat64
		startTime  sql.NullString
		endTime    sql.NullString
		createdAt  string
		updatedAt  string
	)
	err := row.Scan(&run.ID, &run.GroupRunID, &run.TaskName, &run.FilePath, &run.Params,
		&status, &run.Message, &summary, &percentage, &startTime, &endTime,
		&createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan task run: %w", err)
	}
	run.Status = models.TaskStatus(status)
	if summary.Valid {
		run.Summary = &summary.String
	}
	if percentage.Valid {
		run.Percentage = &percentage.Float64
	}
	if run.StartTime, err = parseTimePtr(startTime); err != nil {
		return nil, err
	}
	if run.EndTime, err = parseTimePtr(endTime); err != nil {
		return nil, err
	}
	if run.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if run.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	return &run, nil
}

func collectTaskRuns(rows *sql.Rows) ([]models.TaskRun, error) {
	defer rows.Close()
	var runs []models.TaskRun
	for rows.Next() {
		run, err := scanTaskRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}
	return runs, rows.Err()
}

func checkAffected(result sql.Result) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// timeLayout is fixed-width so stored timestamps compare lexicographically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func fmtTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func fmtTimePtr(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return fmtTime(*t)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse stored timestamp %q: %w", s, err)
	}
	return t, nil
}

func parseTimePtr(s sql.NullString) (*time.Time, error) {
	if !s.Valid {
		return nil, nil
	}
	t, err := parseTime(s.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func nullString(v *string) interface{} {
	if v == nil {
		return nil
	}
	return *v
}
