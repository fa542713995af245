// Package ledger persists run outcomes in a SQLite database so that sweeps
// can be compared across runs and exported for later analysis.
package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver
)

const (
	// timeFormat is the ISO 8601 format used for all timestamps in SQLite.
	timeFormat = "2006-01-02T15:04:05.000Z"

	schemaVersion = 1
)

// Run is one recorded harness run.
type Run struct {
	RunID      string
	Mode       string
	Endpoint   string
	StartedAt  time.Time
	FinishedAt time.Time // zero while the run is in progress
	Passed     int
	Failed     int
}

// Entry is one recorded scenario or plan step outcome.
type Entry struct {
	RunID    string
	Seq      int
	Name     string
	Mode     string
	Category string
	Key      string
	Size     int64
	Passed   bool
	Reason   string
	Error    string
	Duration time.Duration
}

// Store is a SQLite-backed results ledger. It is safe for concurrent use;
// database/sql serializes access to the connection pool.
type Store struct {
	db *sql.DB
}

// Open opens or creates the ledger database at path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening SQLite database: %w", err)
	}
	// Sweep workers record concurrently; SQLite allows a single writer.
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.initDB(); err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing SQLite database: %w", err)
	}
	return s, nil
}

// initDB applies PRAGMAs and creates the tables. Safe to call repeatedly.
func (s *Store) initDB() error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, p := range pragmas {
		if _, err := s.db.Exec(p); err != nil {
			return fmt.Errorf("executing %q: %w", p, err)
		}
	}

	schema := `
		CREATE TABLE IF NOT EXISTS schema_version (
			version    INTEGER PRIMARY KEY,
			applied_at TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS runs (
			run_id      TEXT PRIMARY KEY,
			mode        TEXT NOT NULL,
			endpoint    TEXT NOT NULL DEFAULT '',
			started_at  TEXT NOT NULL,
			finished_at TEXT,
			passed      INTEGER NOT NULL DEFAULT 0,
			failed      INTEGER NOT NULL DEFAULT 0
		);

		CREATE TABLE IF NOT EXISTS results (
			run_id      TEXT NOT NULL,
			seq         INTEGER NOT NULL,
			name        TEXT NOT NULL,
			mode        TEXT NOT NULL,
			category    TEXT NOT NULL DEFAULT '',
			key         TEXT NOT NULL DEFAULT '',
			size        INTEGER NOT NULL DEFAULT 0,
			passed      INTEGER NOT NULL,
			reason      TEXT NOT NULL DEFAULT '',
			error       TEXT NOT NULL DEFAULT '',
			duration_ms INTEGER NOT NULL DEFAULT 0,

			PRIMARY KEY (run_id, seq),
			FOREIGN KEY (run_id) REFERENCES runs(run_id) ON DELETE CASCADE
		);

		CREATE INDEX IF NOT EXISTS idx_results_failed ON results(run_id, passed);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("creating schema: %w", err)
	}

	_, err := s.db.Exec(
		`INSERT OR IGNORE INTO schema_version (version, applied_at) VALUES (?, ?)`,
		schemaVersion, time.Now().UTC().Format(timeFormat),
	)
	if err != nil {
		return fmt.Errorf("inserting schema version: %w", err)
	}
	return nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// BeginRun records the start of a run.
func (s *Store) BeginRun(ctx context.Context, run Run) error {
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (run_id, mode, endpoint, started_at) VALUES (?, ?, ?, ?)`,
		run.RunID, run.Mode, run.Endpoint, run.StartedAt.UTC().Format(timeFormat),
	)
	if err != nil {
		return fmt.Errorf("beginning run %q: %w", run.RunID, err)
	}
	return nil
}

// Record appends an entry to its run and bumps the run's counters. The
// sequence number is assigned here.
func (s *Store) Record(ctx context.Context, e Entry) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	var seq int
	if err := tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(seq), 0) + 1 FROM results WHERE run_id = ?`, e.RunID,
	).Scan(&seq); err != nil {
		return fmt.Errorf("allocating sequence for run %q: %w", e.RunID, err)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO results (run_id, seq, name, mode, category, key, size, passed, reason, error, duration_ms)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.RunID, seq, e.Name, e.Mode, e.Category, e.Key, e.Size,
		boolToInt(e.Passed), e.Reason, e.Error, e.Duration.Milliseconds(),
	)
	if err != nil {
		return fmt.Errorf("recording result %q: %w", e.Name, err)
	}

	column := "failed"
	if e.Passed {
		column = "passed"
	}
	res, err := tx.ExecContext(ctx,
		fmt.Sprintf(`UPDATE runs SET %[1]s = %[1]s + 1 WHERE run_id = ?`, column), e.RunID)
	if err != nil {
		return fmt.Errorf("updating run %q: %w", e.RunID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("run %q not found", e.RunID)
	}
	return tx.Commit()
}

// FinishRun stamps the run's end time.
func (s *Store) FinishRun(ctx context.Context, runID string, at time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET finished_at = ? WHERE run_id = ?`,
		at.UTC().Format(timeFormat), runID,
	)
	if err != nil {
		return fmt.Errorf("finishing run %q: %w", runID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("run %q not found", runID)
	}
	return nil
}

// Runs returns every run, newest first.
func (s *Store) Runs(ctx context.Context) ([]Run, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT run_id, mode, endpoint, started_at, finished_at, passed, failed
		 FROM runs ORDER BY started_at DESC, run_id`)
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var (
			r          Run
			startedAt  string
			finishedAt sql.NullString
		)
		if err := rows.Scan(&r.RunID, &r.Mode, &r.Endpoint, &startedAt, &finishedAt, &r.Passed, &r.Failed); err != nil {
			return nil, fmt.Errorf("scanning run: %w", err)
		}
		r.StartedAt, _ = time.Parse(timeFormat, startedAt)
		if finishedAt.Valid {
			r.FinishedAt, _ = time.Parse(timeFormat, finishedAt.String)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// Results returns the entries of a run in sequence order. With failedOnly
// only failed entries are returned.
func (s *Store) Results(ctx context.Context, runID string, failedOnly bool) ([]Entry, error) {
	query := `SELECT run_id, seq, name, mode, category, key, size, passed, reason, error, duration_ms
		FROM results WHERE run_id = ?`
	if failedOnly {
		query += ` AND passed = 0`
	}
	query += ` ORDER BY seq`

	rows, err := s.db.QueryContext(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("listing results of run %q: %w", runID, err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			e          Entry
			passed     int
			durationMS int64
		)
		if err := rows.Scan(&e.RunID, &e.Seq, &e.Name, &e.Mode, &e.Category, &e.Key, &e.Size,
			&passed, &e.Reason, &e.Error, &durationMS); err != nil {
			return nil, fmt.Errorf("scanning result: %w", err)
		}
		e.Passed = passed != 0
		e.Duration = time.Duration(durationMS) * time.Millisecond
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
