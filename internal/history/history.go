// Package history is the durable store behind the deployment and
// comparison trackers. Every mutation is a single SQLite transaction;
// the unique run id and the active-name index are the arbiters between
// concurrent processes.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// timeFormat is fixed width so text timestamps sort chronologically.
const timeFormat = "2006-01-02T15:04:05.000000Z07:00"

const timeResolution = time.Microsecond

// History manages deployments, comparisons and the dispatch log in SQLite.
type History struct {
	db  *sql.DB
	now func() time.Time
}

// NewHistory opens (creating if needed) the store at dbPath.
func NewHistory(dbPath string) (*History, error) {
	db, err := sql.Open("sqlite", dsn(dbPath))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool for SQLite (single writer)
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	h := &History{db: db, now: time.Now}

	if err := h.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return h, nil
}

// Close closes the database connection
func (h *History) Close() error {
	return h.db.Close()
}

// Ping checks the database is reachable.
func (h *History) Ping(ctx context.Context) error {
	return h.db.PingContext(ctx)
}

func dsn(path string) string {
	// busy_timeout lets a second process wait for the write lock instead of
	// failing; _txlock=immediate takes that lock at BEGIN.
	params := "_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)&_txlock=immediate"
	if path == ":memory:" {
		return "file::memory:?" + params
	}
	return "file:" + path + "?" + params + "&_pragma=journal_mode(WAL)"
}

// initSchema creates the tables and indexes if they do not exist.
func (h *History) initSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS workflow_runs (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			workflow TEXT NOT NULL,
			network_name TEXT NOT NULL,
			ref TEXT NOT NULL,
			run_id INTEGER NOT NULL UNIQUE,
			run_url TEXT NOT NULL,
			inputs TEXT NOT NULL DEFAULT '{}',
			triggered_at TEXT NOT NULL,
			run_status TEXT NOT NULL DEFAULT 'queued',
			run_conclusion TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS deployments (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL,
			network_id INTEGER NOT NULL DEFAULT 0,
			environment_type TEXT,
			workflow TEXT NOT NULL,
			ref TEXT NOT NULL,
			run_id INTEGER NOT NULL UNIQUE,
			run_url TEXT NOT NULL,
			created_at TEXT NOT NULL,
			related_pr INTEGER,
			description TEXT,
			inputs TEXT NOT NULL DEFAULT '{}',
			run_status TEXT NOT NULL DEFAULT 'queued',
			run_conclusion TEXT,
			smoke_test_result TEXT NOT NULL DEFAULT 'not_run',
			smoke_test_answers TEXT,
			smoke_tested_at TEXT,
			posted INTEGER NOT NULL DEFAULT 0,
			posted_at TEXT,
			destroyed_at TEXT
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_deployments_active_name
			ON deployments(name) WHERE destroyed_at IS NULL`,
		`CREATE INDEX IF NOT EXISTS idx_deployments_created
			ON deployments(created_at)`,
		`CREATE TABLE IF NOT EXISTS comparisons (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			label TEXT NOT NULL,
			description TEXT,
			thread_link TEXT,
			created_at TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS comparison_members (
			comparison_id INTEGER NOT NULL REFERENCES comparisons(id),
			position INTEGER NOT NULL,
			deployment_id INTEGER NOT NULL REFERENCES deployments(id),
			label TEXT NOT NULL DEFAULT '',
			PRIMARY KEY (comparison_id, position)
		)`,
		`CREATE TABLE IF NOT EXISTS comparison_reports (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			comparison_id INTEGER NOT NULL REFERENCES comparisons(id),
			body TEXT NOT NULL,
			created_at TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS comparison_results (
			comparison_id INTEGER PRIMARY KEY REFERENCES comparisons(id),
			started_at TEXT NOT NULL,
			ended_at TEXT NOT NULL,
			report TEXT NOT NULL,
			passed INTEGER NOT NULL,
			recorded_at TEXT NOT NULL
		)`,
	}

	for _, stmt := range statements {
		if _, err := h.db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
	}
	return nil
}

// IsRunBound reports whether runID is already recorded by any process.
func (h *History) IsRunBound(ctx context.Context, runID int64) (bool, error) {
	var bound bool
	err := h.db.QueryRowContext(ctx, `
		SELECT EXISTS (SELECT 1 FROM workflow_runs WHERE run_id = ?)
		    OR EXISTS (SELECT 1 FROM deployments WHERE run_id = ?)
	`, runID, runID).Scan(&bound)
	if err != nil {
		return false, fmt.Errorf("failed to check run binding: %w", err)
	}
	return bound, nil
}

// scanner is an interface that both *sql.Row and *sql.Rows implement
type scanner interface {
	Scan(dest ...interface{}) error
}

func (h *History) timestamp() (string, time.Time) {
	t := h.now().UTC().Truncate(timeResolution)
	return t.Format(timeFormat), t
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeFormat)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(timeFormat, s)
}

func parseNullTime(ns sql.NullString) (*time.Time, error) {
	if !ns.Valid {
		return nil, nil
	}
	t, err := parseTime(ns.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func isUniqueViolation(err error) bool {
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// bindError maps a unique violation to the tracker error it represents.
func bindError(err error) error {
	if strings.Contains(err.Error(), ".run_id") {
		return ErrRunAlreadyBound
	}
	return ErrDuplicateActiveName
}
