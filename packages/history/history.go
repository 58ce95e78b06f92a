// Package history persists run summaries to a local SQLite database so
// consecutive runs against the same API can be compared over time.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	// SQLite driver
	_ "github.com/mattn/go-sqlite3"

	"github.com/abdul-hamid-achik/schemaprobe/packages/core/runner"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS runs (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	schema_location TEXT NOT NULL,
	started_at TIMESTAMP NOT NULL,
	duration_ms INTEGER NOT NULL,
	seed INTEGER NOT NULL,
	passed INTEGER NOT NULL,
	failed INTEGER NOT NULL,
	errored INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS endpoint_results (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id INTEGER NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
	endpoint TEXT NOT NULL,
	status TEXT NOT NULL,
	checks_passed INTEGER NOT NULL,
	checks_failed INTEGER NOT NULL,
	errors INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_endpoint_results_run ON endpoint_results(run_id);
`

// RunRecord is one stored run summary.
type RunRecord struct {
	ID             int64
	SchemaLocation string
	StartedAt      time.Time
	Duration       time.Duration
	Seed           int64
	Passed         int
	Failed         int
	Errored        int
}

// Store writes run summaries into a SQLite file.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the history database at path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open history database: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to connect to history database: %w", err)
	}
	if _, err := db.ExecContext(ctx, schemaSQL); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create history tables: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// RecordRun stores the summary of a finished run and its per-endpoint rows.
func (s *Store) RecordRun(ctx context.Context, schemaLocation string, startedAt time.Time, duration time.Duration, seed int64, results *runner.TestResultSet) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx,
		`INSERT INTO runs (schema_location, started_at, duration_ms, seed, passed, failed, errored)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		schemaLocation, startedAt, duration.Milliseconds(), seed,
		results.PassedCount(), results.FailedCount(), results.ErroredCount())
	if err != nil {
		return 0, fmt.Errorf("failed to insert run: %w", err)
	}
	runID, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read run id: %w", err)
	}

	for _, result := range results.Results() {
		var passed, failed int
		for _, check := range result.Checks {
			if check.Status == runner.StatusFailure {
				failed++
			} else {
				passed++
			}
		}
		status := runner.StatusSuccess
		switch {
		case result.HasErrors() || result.IsErrored():
			status = runner.StatusError
		case result.HasFailures():
			status = runner.StatusFailure
		}

		if _, err := tx.ExecContext(ctx,
			`INSERT INTO endpoint_results (run_id, endpoint, status, checks_passed, checks_failed, errors)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			runID, result.Endpoint.Name(), status.String(), passed, failed, len(result.Errors)); err != nil {
			return 0, fmt.Errorf("failed to insert endpoint result: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit run: %w", err)
	}
	return runID, nil
}

// ListRuns returns the most recent runs, newest first.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]RunRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, schema_location, started_at, duration_ms, seed, passed, failed, errored
		 FROM runs ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var records []RunRecord
	for rows.Next() {
		var r RunRecord
		var durationMs int64
		if err := rows.Scan(&r.ID, &r.SchemaLocation, &r.StartedAt, &durationMs, &r.Seed, &r.Passed, &r.Failed, &r.Errored); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		r.Duration = time.Duration(durationMs) * time.Millisecond
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return records, nil
}
