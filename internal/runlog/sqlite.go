package runlog

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/me/toolflow/pkg/model"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath, runs the
// schema migration, and returns a Store. Use ":memory:" in tests.
func NewSQLiteStore(dbPath string, logger *slog.Logger) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", dbPath, err)
	}

	// WAL mode for better concurrent read performance.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma wal: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma fk: %w", err)
	}

	s := &SQLiteStore{
		db:     db,
		logger: logger.With("component", "runlog"),
	}
	if err := migrate(context.Background(), db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// RecordRun inserts the run row and one row per call result in a single
// transaction.
func (s *SQLiteStore) RecordRun(ctx context.Context, run *Run, results []*model.ExecutionResult) error {
	s.logger.Debug("sql", "op", "insert", "table", "runs", "id", run.ID)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO runs (id, plan_name, status, total, completed, failed, aborted, started_at, finished_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.PlanName, run.Status, run.Total, run.Completed, run.Failed, run.Aborted,
		run.StartedAt.UTC().Format(time.RFC3339Nano), run.FinishedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}

	for _, res := range results {
		outputJSON, err := json.Marshal(res.Output)
		if err != nil {
			outputJSON = []byte("null")
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO run_calls (run_id, call_id, tool_name, status, output, error, retry_count, duration_ns)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			run.ID, res.CallID, res.ToolName, string(res.Status),
			string(outputJSON), res.Error, res.RetryCount, res.Duration.Nanoseconds(),
		)
		if err != nil {
			return fmt.Errorf("insert call %s: %w", res.CallID, err)
		}
	}

	return tx.Commit()
}

// GetRun returns a run and its call rows, or (nil, nil, nil) when no run
// with that id exists.
func (s *SQLiteStore) GetRun(ctx context.Context, id string) (*Run, []RunCall, error) {
	s.logger.Debug("sql", "op", "select", "table", "runs", "id", id)

	var run Run
	var startedAt, finishedAt string
	err := s.db.QueryRowContext(ctx,
		`SELECT id, plan_name, status, total, completed, failed, aborted, started_at, finished_at
		 FROM runs WHERE id = ?`, id,
	).Scan(&run.ID, &run.PlanName, &run.Status, &run.Total, &run.Completed, &run.Failed, &run.Aborted,
		&startedAt, &finishedAt)
	if err == sql.ErrNoRows {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, err
	}
	if run.StartedAt, err = time.Parse(time.RFC3339Nano, startedAt); err != nil {
		return nil, nil, fmt.Errorf("parse started_at: %w", err)
	}
	if run.FinishedAt, err = time.Parse(time.RFC3339Nano, finishedAt); err != nil {
		return nil, nil, fmt.Errorf("parse finished_at: %w", err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT call_id, tool_name, status, output, error, retry_count, duration_ns
		 FROM run_calls WHERE run_id = ? ORDER BY rowid`, id)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	var calls []RunCall
	for rows.Next() {
		var rc RunCall
		var status, outputJSON string
		var durationNS int64
		if err := rows.Scan(&rc.CallID, &rc.ToolName, &status, &outputJSON, &rc.Error, &rc.RetryCount, &durationNS); err != nil {
			return nil, nil, err
		}
		rc.RunID = id
		rc.Status = model.CallState(status)
		rc.Duration = time.Duration(durationNS)
		if outputJSON != "" && outputJSON != "null" {
			if err := json.Unmarshal([]byte(outputJSON), &rc.Output); err != nil {
				return nil, nil, fmt.Errorf("unmarshal output for %s: %w", rc.CallID, err)
			}
		}
		calls = append(calls, rc)
	}
	return &run, calls, rows.Err()
}

// ListRuns returns the most recent runs, newest first. A non-positive
// limit defaults to 20.
func (s *SQLiteStore) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}
	s.logger.Debug("sql", "op", "select", "table", "runs", "limit", limit)

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, plan_name, status, total, completed, failed, aborted, started_at, finished_at
		 FROM runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var run Run
		var startedAt, finishedAt string
		if err := rows.Scan(&run.ID, &run.PlanName, &run.Status, &run.Total, &run.Completed,
			&run.Failed, &run.Aborted, &startedAt, &finishedAt); err != nil {
			return nil, err
		}
		if run.StartedAt, err = time.Parse(time.RFC3339Nano, startedAt); err != nil {
			return nil, fmt.Errorf("parse started_at: %w", err)
		}
		if run.FinishedAt, err = time.Parse(time.RFC3339Nano, finishedAt); err != nil {
			return nil, fmt.Errorf("parse finished_at: %w", err)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}
