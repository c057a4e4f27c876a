package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"memvault/internal/logging"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements Querier over a local SQLite database.
type SQLiteStore struct {
	db     *sql.DB
	hasFTS bool
}

// Open opens (or creates) the knowledge database at path and bootstraps the
// schema. Use ":memory:" for tests.
func Open(path string) (*SQLiteStore, error) {
	timer := logging.StartTimer(logging.CategoryStore, "Open")
	defer timer.Stop()

	dsn := path
	if path != ":memory:" {
		if dir := filepath.Dir(path); dir != "." && dir != "" {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create store directory: %w", err)
			}
		}
		dsn = "file:" + path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, err
	}

	s.hasFTS = s.detectFTS()
	if s.hasFTS {
		logging.Store("knowledge store ready at %s (fts5 enabled)", path)
	} else {
		logging.Get(logging.CategoryStore).Warn("fts5 unavailable; full-text search degrades to substring matching")
	}

	return s, nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// HasFTS reports whether FTS5 virtual tables are available.
func (s *SQLiteStore) HasFTS() bool {
	return s.hasFTS
}

// =============================================================================
// Querier implementation
// =============================================================================

// Get returns the first matching row, or nil when there is none.
func (s *SQLiteStore) Get(ctx context.Context, query string, args ...interface{}) (Row, error) {
	rows, err := s.All(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0], nil
}

// All returns every matching row as generic column maps.
func (s *SQLiteStore) All(ctx context.Context, query string, args ...interface{}) ([]Row, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("columns: %w", err)
	}

	var out []Row
	for rows.Next() {
		values := make([]interface{}, len(cols))
		ptrs := make([]interface{}, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		row := make(Row, len(cols))
		for i, col := range cols {
			row[col] = values[i]
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// Run executes a statement and reports insert id and affected rows.
func (s *SQLiteStore) Run(ctx context.Context, query string, args ...interface{}) (Result, error) {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return Result{}, fmt.Errorf("exec: %w", err)
	}
	lastID, _ := res.LastInsertId()
	changes, _ := res.RowsAffected()
	return Result{LastID: lastID, Changes: changes}, nil
}

// =============================================================================
// Schema
// =============================================================================

// initSchema creates the knowledge tables the context engine reads. Creation
// is idempotent. FTS5 tables are attempted separately and failure there is
// tolerated.
func (s *SQLiteStore) initSchema() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS files (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			path TEXT NOT NULL UNIQUE,
			purpose TEXT DEFAULT '',
			fragility REAL DEFAULT 0,
			last_error TEXT DEFAULT '',
			scope_id TEXT DEFAULT '',
			updated_at INTEGER DEFAULT (unixepoch())
		)`,
		`CREATE TABLE IF NOT EXISTS decisions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			title TEXT NOT NULL,
			decision TEXT NOT NULL,
			affects TEXT DEFAULT '',
			outcome TEXT DEFAULT 'pending',
			outcome_reason TEXT DEFAULT '',
			confidence REAL DEFAULT 5,
			status TEXT DEFAULT 'active',
			embedding BLOB,
			scope_id TEXT DEFAULT '',
			created_at INTEGER DEFAULT (unixepoch())
		)`,
		`CREATE TABLE IF NOT EXISTS learnings (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			content TEXT NOT NULL,
			category TEXT DEFAULT '',
			confidence REAL DEFAULT 5,
			embedding BLOB,
			scope_id TEXT DEFAULT '',
			created_at INTEGER DEFAULT (unixepoch())
		)`,
		`CREATE TABLE IF NOT EXISTS issues (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			title TEXT NOT NULL,
			severity REAL DEFAULT 5,
			issue_type TEXT DEFAULT '',
			status TEXT DEFAULT 'open',
			scope_id TEXT DEFAULT '',
			created_at INTEGER DEFAULT (unixepoch())
		)`,
		`CREATE TABLE IF NOT EXISTS error_fixes (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			error_signature TEXT NOT NULL,
			fix TEXT NOT NULL,
			confidence REAL DEFAULT 0.5,
			fix_count INTEGER DEFAULT 1,
			created_at INTEGER DEFAULT (unixepoch())
		)`,
		`CREATE TABLE IF NOT EXISTS strategies (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL,
			situation TEXT DEFAULT '',
			approach TEXT DEFAULT '',
			success_rate REAL DEFAULT 0,
			times_used INTEGER DEFAULT 0
		)`,
		`CREATE TABLE IF NOT EXISTS focus_areas (
			id TEXT PRIMARY KEY,
			files TEXT DEFAULT '',
			keywords TEXT DEFAULT '',
			domains TEXT DEFAULT '',
			reason TEXT DEFAULT '',
			created_at INTEGER DEFAULT (unixepoch())
		)`,
		`CREATE TABLE IF NOT EXISTS budget_recommendations (
			category TEXT PRIMARY KEY,
			tokens INTEGER NOT NULL,
			updated_at INTEGER DEFAULT (unixepoch())
		)`,
		`CREATE INDEX IF NOT EXISTS idx_decisions_outcome ON decisions(outcome, created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_learnings_confidence ON learnings(confidence)`,
		`CREATE INDEX IF NOT EXISTS idx_issues_status ON issues(status)`,
	}

	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("init schema: %w", err)
		}
	}

	s.initFTS()
	return nil
}

// initFTS creates FTS5 shadow tables with sync triggers. Errors are
// swallowed: without FTS5 the retrieval layer falls back to LIKE matching.
func (s *SQLiteStore) initFTS() {
	stmts := []string{
		`CREATE VIRTUAL TABLE IF NOT EXISTS files_fts USING fts5(
			path, purpose, content='files', content_rowid='id')`,
		`CREATE TRIGGER IF NOT EXISTS files_ai AFTER INSERT ON files BEGIN
			INSERT INTO files_fts(rowid, path, purpose) VALUES (new.id, new.path, new.purpose);
		END`,
		`CREATE TRIGGER IF NOT EXISTS files_ad AFTER DELETE ON files BEGIN
			INSERT INTO files_fts(files_fts, rowid, path, purpose) VALUES ('delete', old.id, old.path, old.purpose);
		END`,
		`CREATE TRIGGER IF NOT EXISTS files_au AFTER UPDATE ON files BEGIN
			INSERT INTO files_fts(files_fts, rowid, path, purpose) VALUES ('delete', old.id, old.path, old.purpose);
			INSERT INTO files_fts(rowid, path, purpose) VALUES (new.id, new.path, new.purpose);
		END`,
		`CREATE VIRTUAL TABLE IF NOT EXISTS decisions_fts USING fts5(
			title, decision, content='decisions', content_rowid='id')`,
		`CREATE TRIGGER IF NOT EXISTS decisions_ai AFTER INSERT ON decisions BEGIN
			INSERT INTO decisions_fts(rowid, title, decision) VALUES (new.id, new.title, new.decision);
		END`,
		`CREATE TRIGGER IF NOT EXISTS decisions_ad AFTER DELETE ON decisions BEGIN
			INSERT INTO decisions_fts(decisions_fts, rowid, title, decision) VALUES ('delete', old.id, old.title, old.decision);
		END`,
		`CREATE VIRTUAL TABLE IF NOT EXISTS learnings_fts USING fts5(
			content, content='learnings', content_rowid='id')`,
		`CREATE TRIGGER IF NOT EXISTS learnings_ai AFTER INSERT ON learnings BEGIN
			INSERT INTO learnings_fts(rowid, content) VALUES (new.id, new.content);
		END`,
		`CREATE TRIGGER IF NOT EXISTS learnings_ad AFTER DELETE ON learnings BEGIN
			INSERT INTO learnings_fts(learnings_fts, rowid, content) VALUES ('delete', old.id, old.content);
		END`,
		`CREATE VIRTUAL TABLE IF NOT EXISTS issues_fts USING fts5(
			title, content='issues', content_rowid='id')`,
		`CREATE TRIGGER IF NOT EXISTS issues_ai AFTER INSERT ON issues BEGIN
			INSERT INTO issues_fts(rowid, title) VALUES (new.id, new.title);
		END`,
		`CREATE TRIGGER IF NOT EXISTS issues_ad AFTER DELETE ON issues BEGIN
			INSERT INTO issues_fts(issues_fts, rowid, title) VALUES ('delete', old.id, old.title);
		END`,
	}

	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			logging.StoreDebug("fts init statement failed (tolerated): %v", err)
			return
		}
	}
}

// detectFTS probes whether the FTS5 module is usable.
func (s *SQLiteStore) detectFTS() bool {
	var n int
	err := s.db.QueryRow("SELECT count(*) FROM decisions_fts").Scan(&n)
	return err == nil
}
