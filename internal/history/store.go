// Package history persists completed run reports to a local SQLite
// database so past runs can be inspected with the history command.
package history

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/marcel/stitch/internal/models"
)

//go:embed schema.sql
var schemaSQL string

// Store manages the SQLite database holding run history.
type Store struct {
	db     *sql.DB
	dbPath string
}

// NewStore opens (creating if needed) the database at dbPath and
// initializes the schema. ":memory:" is supported for tests.
func NewStore(dbPath string) (*Store, error) {
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// busy_timeout first so the later pragmas wait on locks instead
	// of failing.
	pragmas := []string{
		"PRAGMA busy_timeout=5000",
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("set %s: %w", pragma, err)
		}
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}

	return &Store{db: db, dbPath: dbPath}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// RecordRun persists a completed run and its per-task outcomes in one
// transaction.
func (s *Store) RecordRun(ctx context.Context, startedAt time.Time, report *models.RunReport) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO runs (id, request, started_at, duration_ms, done, failed, halted_early, final_answer)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		report.RunID, report.Request, startedAt.UTC(),
		report.Duration.Milliseconds(), report.Done, report.Failed,
		report.HaltedEarly, report.FinalAnswer)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}

	for _, o := range report.Outcomes {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO task_executions (run_id, task_id, title, status, digest, retries, message)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			report.RunID, o.ID, o.Title, o.Status, o.Digest, o.Retries, o.Message)
		if err != nil {
			return fmt.Errorf("insert task execution: %w", err)
		}
	}

	return tx.Commit()
}

// RunSummary is one row of the run listing.
type RunSummary struct {
	ID          string
	Request     string
	StartedAt   time.Time
	Duration    time.Duration
	Done        int
	Failed      int
	HaltedEarly bool
}

// ListRuns returns the most recent runs, newest first.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]RunSummary, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, request, started_at, duration_ms, done, failed, halted_early
		 FROM runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var out []RunSummary
	for rows.Next() {
		var r RunSummary
		var durationMS int64
		if err := rows.Scan(&r.ID, &r.Request, &r.StartedAt, &durationMS, &r.Done, &r.Failed, &r.HaltedEarly); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		r.Duration = time.Duration(durationMS) * time.Millisecond
		out = append(out, r)
	}
	return out, rows.Err()
}

// RunDetail returns a stored run's report, reconstructed from the
// database. Returns sql.ErrNoRows when the id is unknown.
func (s *Store) RunDetail(ctx context.Context, id string) (*models.RunReport, error) {
	report := &models.RunReport{RunID: id}
	var durationMS int64
	err := s.db.QueryRowContext(ctx,
		`SELECT request, duration_ms, done, failed, halted_early, final_answer
		 FROM runs WHERE id = ?`, id).
		Scan(&report.Request, &durationMS, &report.Done, &report.Failed,
			&report.HaltedEarly, &report.FinalAnswer)
	if err != nil {
		return nil, err
	}
	report.Duration = time.Duration(durationMS) * time.Millisecond

	rows, err := s.db.QueryContext(ctx,
		`SELECT task_id, title, status, digest, retries, message
		 FROM task_executions WHERE run_id = ? ORDER BY task_id`, id)
	if err != nil {
		return nil, fmt.Errorf("query task executions: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var o models.TaskOutcome
		if err := rows.Scan(&o.ID, &o.Title, &o.Status, &o.Digest, &o.Retries, &o.Message); err != nil {
			return nil, fmt.Errorf("scan task execution: %w", err)
		}
		report.Outcomes = append(report.Outcomes, o)
	}
	return report, rows.Err()
}
