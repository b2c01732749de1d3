package recordstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// RunStatus is the lifecycle state of an extraction run.
type RunStatus string

const (
	RunStatusRunning RunStatus = "running"
	RunStatusSuccess RunStatus = "success"
	RunStatusFailed  RunStatus = "failed"
)

// Run is a row in extraction_runs.
type Run struct {
	RunID       string
	Kind        string
	Mode        string
	JobID       string
	StartedAt   time.Time
	EndedAt     *time.Time
	Status      RunStatus
	ErrorCode   string
	RawCount    int
	EntityCount int
}

const runColumns = `run_id, kind, mode, job_id, started_at, ended_at, status, error_code, raw_count, entity_count`

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insertRun(ctx context.Context, db execer, run Run) error {
	if run.RunID == "" {
		return errors.New("run id is required")
	}
	if run.Status == "" {
		run.Status = RunStatusRunning
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now()
	}
	var ended any
	if run.EndedAt != nil {
		ended = formatDBTime(*run.EndedAt)
	}

	_, err := db.ExecContext(ctx,
		`INSERT INTO extraction_runs (`+runColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(run_id) DO UPDATE SET
		   job_id = excluded.job_id,
		   ended_at = excluded.ended_at,
		   status = excluded.status,
		   error_code = excluded.error_code,
		   raw_count = excluded.raw_count,
		   entity_count = excluded.entity_count`,
		run.RunID, run.Kind, run.Mode, run.JobID, formatDBTime(run.StartedAt), ended,
		string(run.Status), run.ErrorCode, run.RawCount, run.EntityCount)
	if err != nil {
		return fmt.Errorf("upsert run: %w", err)
	}
	return nil
}

// CreateRun inserts a run, or updates a run with the same id.
func CreateRun(ctx context.Context, db *sql.DB, run Run) error {
	if ctx == nil {
		ctx = context.Background()
	}
	return insertRun(ctx, db, run)
}

// FinishRun marks a run as ended.
func FinishRun(ctx context.Context, db *sql.DB, runID string, status RunStatus, errorCode string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	res, err := db.ExecContext(ctx,
		`UPDATE extraction_runs SET status = ?, error_code = ?, ended_at = ? WHERE run_id = ?`,
		string(status), errorCode, formatDBTime(time.Now()), runID)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("finish run: run %s not found", runID)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(s scanner) (*Run, error) {
	var (
		run        Run
		jobID      sql.NullString
		errorCode  sql.NullString
		status     string
		startedRaw any
		endedRaw   any
	)
	if err := s.Scan(&run.RunID, &run.Kind, &run.Mode, &jobID, &startedRaw, &endedRaw,
		&status, &errorCode, &run.RawCount, &run.EntityCount); err != nil {
		return nil, err
	}
	run.JobID = jobID.String
	run.ErrorCode = errorCode.String
	run.Status = RunStatus(status)

	started, err := parseDBTime(startedRaw)
	if err != nil {
		return nil, fmt.Errorf("parse started_at: %w", err)
	}
	run.StartedAt = started

	ended, err := parseOptionalDBTime(endedRaw)
	if err != nil {
		return nil, fmt.Errorf("parse ended_at: %w", err)
	}
	run.EndedAt = ended
	return &run, nil
}

// GetRun returns a run by id, or nil when it does not exist.
func GetRun(ctx context.Context, db *sql.DB, runID string) (*Run, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	row := db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM extraction_runs WHERE run_id = ?`, runID)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get run: %w", err)
	}
	return run, nil
}

// ListRuns returns runs newest first. An empty kind lists every kind;
// limit <= 0 means no limit.
func ListRuns(ctx context.Context, db *sql.DB, kind string, limit int) ([]Run, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	query := `SELECT ` + runColumns + ` FROM extraction_runs`
	var args []any
	if kind != "" {
		query += ` WHERE kind = ?`
		args = append(args, kind)
	}
	query += ` ORDER BY started_at DESC, run_id`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		out = append(out, *run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return out, nil
}
