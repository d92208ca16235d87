package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Run status values.
const (
	RunSucceeded          = "succeeded"
	RunCompletedRejection = "completed_with_rejections"
	RunFailed             = "failed"
)

// RunRecord is one row of pipeline_runs.
type RunRecord struct {
	RunID      string
	StartedAt  time.Time
	FinishedAt time.Time
	Status     string
	Report     []byte // JSON
}

// Rejection is one row of the rejected-record sink.
type Rejection struct {
	Feed      string
	SourceKey string
	Reason    string
	Field     string
	Detail    string
}

// RecordRun stores a run and its rejections in one transaction. A
// rejection already in the sink for the same (feed, source_key, reason)
// is replaced, so re-running a snapshot does not grow the sink. Rows leave
// the sink when their key later loads (see WriteBatch).
func (s *Store) RecordRun(ctx context.Context, run RunRecord, rejections []Rejection) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("record run: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	_, err = tx.ExecContext(ctx, `
		INSERT INTO pipeline_runs (run_id, started_at, finished_at, status, report_json)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(run_id) DO UPDATE SET
			finished_at = excluded.finished_at,
			status      = excluded.status,
			report_json = excluded.report_json
	`,
		run.RunID,
		run.StartedAt.UTC().Format(time.RFC3339Nano),
		run.FinishedAt.UTC().Format(time.RFC3339Nano),
		run.Status,
		string(run.Report),
	)
	if err != nil {
		return fmt.Errorf("record run %s: %w", run.RunID, err)
	}

	if len(rejections) > 0 {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO rejected_records (feed, source_key, reason, field, detail, run_id)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT(feed, source_key, reason) DO UPDATE SET
				field  = excluded.field,
				detail = excluded.detail,
				run_id = excluded.run_id
		`)
		if err != nil {
			return fmt.Errorf("record run: prepare rejection insert: %w", err)
		}
		defer stmt.Close()

		for _, r := range rejections {
			if _, err := stmt.ExecContext(ctx, r.Feed, r.SourceKey, r.Reason, r.Field, r.Detail, run.RunID); err != nil {
				return fmt.Errorf("record rejection %s/%s: %w", r.Feed, r.SourceKey, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("record run: commit: %w", err)
	}
	return nil
}

// LatestRun returns the most recently finished run. Returns sql.ErrNoRows
// if no run was recorded.
func (s *Store) LatestRun(ctx context.Context) (RunRecord, error) {
	var run RunRecord
	var started, finished, report string
	err := s.db.QueryRowContext(ctx, `
		SELECT run_id, started_at, finished_at, status, report_json
		FROM pipeline_runs
		ORDER BY finished_at DESC, run_id COLLATE BINARY DESC
		LIMIT 1
	`).Scan(&run.RunID, &started, &finished, &run.Status, &report)
	if errors.Is(err, sql.ErrNoRows) {
		return RunRecord{}, err
	}
	if err != nil {
		return RunRecord{}, fmt.Errorf("latest run: %w", err)
	}
	if run.StartedAt, err = time.Parse(time.RFC3339Nano, started); err != nil {
		return RunRecord{}, fmt.Errorf("latest run: parse started_at: %w", err)
	}
	if run.FinishedAt, err = time.Parse(time.RFC3339Nano, finished); err != nil {
		return RunRecord{}, fmt.Errorf("latest run: parse finished_at: %w", err)
	}
	run.Report = []byte(report)
	return run, nil
}

// RejectionsForRun lists the sink rows last written by a run, ordered by
// key.
func (s *Store) RejectionsForRun(ctx context.Context, runID string) ([]Rejection, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT feed, source_key, reason, field, detail
		FROM rejected_records
		WHERE run_id = ?
		ORDER BY feed COLLATE BINARY, source_key COLLATE BINARY, reason COLLATE BINARY
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("query rejections: %w", err)
	}
	defer rows.Close()

	out := []Rejection{}
	for rows.Next() {
		var r Rejection
		if err := rows.Scan(&r.Feed, &r.SourceKey, &r.Reason, &r.Field, &r.Detail); err != nil {
			return nil, fmt.Errorf("scan rejection: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rejections: %w", err)
	}
	return out, nil
}
