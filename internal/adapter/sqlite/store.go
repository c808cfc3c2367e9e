package sqlite

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/vertextoedge/batchfetch/internal/port"
)

// Store implements port.Store interface using SQLite
type Store struct {
	db *sql.DB
}

// Ensure Store implements port.Store
var _ port.Store = (*Store)(nil)

// Open opens a connection to the SQLite database
func Open(dbPath string) (*Store, error) {
	if dir := filepath.Dir(dbPath); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	// Open database with WAL mode and busy timeout
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// A single connection serialises writers; ledger updates are short
	// transactions and concurrent read-modify-write must not interleave.
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA cache_size = -16000", // 16MB cache
		"PRAGMA temp_store = MEMORY",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma %s: %w", pragma, err)
		}
	}

	store := &Store{db: db}

	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Ping checks database connectivity
func (s *Store) Ping() error {
	return s.db.Ping()
}

// migrate creates or updates the database schema
func (s *Store) migrate() error {
	migrations := []string{
		// Tasks and their progress marker
		`CREATE TABLE IF NOT EXISTS tasks (
			id TEXT PRIMARY KEY,
			repo_id TEXT NOT NULL,
			repo_type TEXT NOT NULL DEFAULT 'model',
			revision TEXT NOT NULL DEFAULT 'main',
			local_dir TEXT NOT NULL,
			status TEXT NOT NULL DEFAULT 'planning',
			current_batch INTEGER NOT NULL DEFAULT 0,
			executed_batches TEXT NOT NULL DEFAULT '',
			plan_version INTEGER NOT NULL DEFAULT 0,
			auto_proceed BOOLEAN NOT NULL DEFAULT FALSE,
			replanned BOOLEAN NOT NULL DEFAULT FALSE,
			last_error TEXT,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)`,

		// One row per plan version; exactly one active per planned task
		`CREATE TABLE IF NOT EXISTS batch_plans (
			task_id TEXT NOT NULL,
			version INTEGER NOT NULL,
			capacity INTEGER NOT NULL,
			safety_margin REAL NOT NULL,
			active BOOLEAN NOT NULL DEFAULT TRUE,
			created_at TIMESTAMP NOT NULL,
			PRIMARY KEY (task_id, version),
			FOREIGN KEY (task_id) REFERENCES tasks(id) ON DELETE CASCADE
		)`,

		`CREATE TABLE IF NOT EXISTS plan_batches (
			task_id TEXT NOT NULL,
			version INTEGER NOT NULL,
			batch_index INTEGER NOT NULL,
			total_bytes INTEGER NOT NULL,
			oversized BOOLEAN NOT NULL DEFAULT FALSE,
			PRIMARY KEY (task_id, version, batch_index),
			FOREIGN KEY (task_id, version) REFERENCES batch_plans(task_id, version) ON DELETE CASCADE
		)`,

		`CREATE TABLE IF NOT EXISTS plan_entries (
			task_id TEXT NOT NULL,
			version INTEGER NOT NULL,
			batch_index INTEGER NOT NULL,
			position INTEGER NOT NULL,
			path TEXT NOT NULL,
			size_unknown BOOLEAN NOT NULL DEFAULT FALSE,
			PRIMARY KEY (task_id, version, batch_index, position),
			UNIQUE (task_id, version, path),
			FOREIGN KEY (task_id, version, batch_index)
				REFERENCES plan_batches(task_id, version, batch_index) ON DELETE CASCADE
		)`,

		// Per-file ledger
		`CREATE TABLE IF NOT EXISTS file_records (
			task_id TEXT NOT NULL,
			path TEXT NOT NULL,
			expected_size INTEGER NOT NULL DEFAULT 0,
			size_unknown BOOLEAN NOT NULL DEFAULT FALSE,
			actual_size INTEGER NOT NULL DEFAULT 0,
			status TEXT NOT NULL DEFAULT 'pending',
			attempts INTEGER NOT NULL DEFAULT 0,
			last_error TEXT,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL,
			completed_at TIMESTAMP,
			PRIMARY KEY (task_id, path),
			FOREIGN KEY (task_id) REFERENCES tasks(id) ON DELETE CASCADE
		)`,

		`CREATE TABLE IF NOT EXISTS file_audit (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			task_id TEXT NOT NULL,
			path TEXT NOT NULL,
			from_status TEXT NOT NULL,
			to_status TEXT NOT NULL,
			reason TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMP NOT NULL,
			FOREIGN KEY (task_id, path) REFERENCES file_records(task_id, path) ON DELETE CASCADE
		)`,

		`CREATE INDEX IF NOT EXISTS idx_tasks_status ON tasks(status)`,
		`CREATE INDEX IF NOT EXISTS idx_batch_plans_active ON batch_plans(task_id, active)`,
		`CREATE INDEX IF NOT EXISTS idx_file_records_status ON file_records(task_id, status)`,
		`CREATE INDEX IF NOT EXISTS idx_file_records_updated ON file_records(status, updated_at)`,
		`CREATE INDEX IF NOT EXISTS idx_file_audit_record ON file_audit(task_id, path)`,
	}

	for _, migration := range migrations {
		if _, err := s.db.Exec(migration); err != nil {
			return fmt.Errorf("migration failed: %w\nSQL: %s", err, migration)
		}
	}

	return nil
}

// isUniqueConstraintError checks if the error is a unique constraint violation
func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "UNIQUE constraint failed") ||
		strings.Contains(errStr, "PRIMARY KEY constraint failed")
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
