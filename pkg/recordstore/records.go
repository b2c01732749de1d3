package recordstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/3leaps/gobulk/pkg/record"
)

const upsertRecordSQL = `INSERT INTO canonical_records
	 (kind, record_id, title, created_at, embedding_text, last_run_id, updated_at)
	 VALUES (?, ?, ?, ?, ?, ?, ?)
	 ON CONFLICT(kind, record_id) DO UPDATE SET
	   title = excluded.title,
	   created_at = excluded.created_at,
	   embedding_text = excluded.embedding_text,
	   last_run_id = excluded.last_run_id,
	   updated_at = excluded.updated_at`

// SaveRun records a finished run and upserts its canonical records in one
// transaction. Records already stored under the same kind and id are
// replaced.
func SaveRun(ctx context.Context, db *sql.DB, run Run, records []record.Canonical) error {
	if ctx == nil {
		ctx = context.Background()
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := insertRun(ctx, tx, run); err != nil {
		return err
	}

	if len(records) > 0 {
		stmt, err := tx.PrepareContext(ctx, upsertRecordSQL)
		if err != nil {
			return fmt.Errorf("prepare stmt: %w", err)
		}
		defer func() { _ = stmt.Close() }()

		now := formatDBTime(time.Now())
		for _, rec := range records {
			kind := rec.Kind
			if kind == "" {
				kind = run.Kind
			}
			if _, err := stmt.ExecContext(ctx, kind, rec.ID, rec.Title, rec.CreatedAt,
				rec.EmbeddingText, run.RunID, now); err != nil {
				return fmt.Errorf("exec upsert for %s: %w", rec.ID, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// GetRecord returns a stored record, or nil when it does not exist.
func GetRecord(ctx context.Context, db *sql.DB, kind, id string) (*record.Canonical, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	var rec record.Canonical
	err := db.QueryRowContext(ctx,
		`SELECT record_id, kind, title, created_at, embedding_text
		 FROM canonical_records WHERE kind = ? AND record_id = ?`,
		kind, id).Scan(&rec.ID, &rec.Kind, &rec.Title, &rec.CreatedAt, &rec.EmbeddingText)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get record: %w", err)
	}
	return &rec, nil
}

// ListParams filters ListRecords.
type ListParams struct {
	// Kind restricts results to one kind. Empty lists every kind.
	Kind string

	// RunID restricts results to records last written by a run.
	RunID string

	// Limit caps the number of rows. Zero means no limit.
	Limit int

	Offset int
}

// ListRecords returns stored records ordered by kind and id.
func ListRecords(ctx context.Context, db *sql.DB, params ListParams) ([]record.Canonical, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	query := `SELECT record_id, kind, title, created_at, embedding_text FROM canonical_records WHERE 1=1`
	var args []any
	if params.Kind != "" {
		query += ` AND kind = ?`
		args = append(args, params.Kind)
	}
	if params.RunID != "" {
		query += ` AND last_run_id = ?`
		args = append(args, params.RunID)
	}
	query += ` ORDER BY kind, record_id`
	if params.Limit > 0 {
		query += ` LIMIT ? OFFSET ?`
		args = append(args, params.Limit, params.Offset)
	}

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []record.Canonical
	for rows.Next() {
		var rec record.Canonical
		if err := rows.Scan(&rec.ID, &rec.Kind, &rec.Title, &rec.CreatedAt, &rec.EmbeddingText); err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate records: %w", err)
	}
	return out, nil
}

// CountRecords counts stored records of kind, or of every kind when empty.
func CountRecords(ctx context.Context, db *sql.DB, kind string) (int64, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	var count int64
	var err error
	if kind == "" {
		err = db.QueryRowContext(ctx, `SELECT COUNT(*) FROM canonical_records`).Scan(&count)
	} else {
		err = db.QueryRowContext(ctx, `SELECT COUNT(*) FROM canonical_records WHERE kind = ?`, kind).Scan(&count)
	}
	if err != nil {
		return 0, fmt.Errorf("count records: %w", err)
	}
	return count, nil
}
