package db

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
)

// schemaVersion is the schema this binary expects. Older databases are
// migrated forward by adding missing columns with safe defaults; a database
// newer than the binary aborts startup.
const schemaVersion = 3

const schema = `
CREATE TABLE IF NOT EXISTS papers (
	doc_id              TEXT PRIMARY KEY,
	content_id          TEXT UNIQUE,
	filename            TEXT NOT NULL,
	ocr_quality         TEXT NOT NULL DEFAULT 'unknown',
	ocr_regenerated     INTEGER NOT NULL DEFAULT 0,
	original_file_path  TEXT NOT NULL DEFAULT '',
	processing_notes    TEXT NOT NULL DEFAULT '',
	pending_vector_sync INTEGER NOT NULL DEFAULT 0,
	created_at          TIMESTAMP NOT NULL,
	updated_at          TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS page_embeddings (
	doc_id      TEXT NOT NULL REFERENCES papers(doc_id) ON DELETE CASCADE,
	page_number INTEGER NOT NULL,
	page_text   TEXT NOT NULL,
	vector_dim  INTEGER NOT NULL,
	model_name  TEXT NOT NULL,
	vector      BLOB NOT NULL,
	PRIMARY KEY (doc_id, page_number)
);

CREATE TABLE IF NOT EXISTS document_embeddings (
	doc_id     TEXT PRIMARY KEY REFERENCES papers(doc_id) ON DELETE CASCADE,
	model_name TEXT NOT NULL,
	vector_dim INTEGER NOT NULL,
	vector     BLOB NOT NULL
);

CREATE TABLE IF NOT EXISTS paper_metadata (
	doc_id          TEXT PRIMARY KEY REFERENCES papers(doc_id) ON DELETE CASCADE,
	title           TEXT NOT NULL,
	authors         TEXT NOT NULL DEFAULT '[]',
	journal         TEXT NOT NULL DEFAULT '',
	year            INTEGER NOT NULL DEFAULT 0,
	doi             TEXT NOT NULL DEFAULT '',
	abstract        TEXT NOT NULL DEFAULT '',
	extraction_tier TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS layout_analyses (
	doc_id      TEXT PRIMARY KEY REFERENCES papers(doc_id) ON DELETE CASCADE,
	page_count  INTEGER NOT NULL,
	layout_json TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS duplicate_hashes (
	doc_id                TEXT PRIMARY KEY REFERENCES papers(doc_id) ON DELETE CASCADE,
	file_hash             TEXT NOT NULL,
	content_hash          TEXT NOT NULL,
	page_count            INTEGER NOT NULL,
	sample_embedding_hash TEXT NOT NULL,
	sample_strategy       TEXT NOT NULL,
	sample_vector_dim     INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_dup_file_hash ON duplicate_hashes(file_hash);
CREATE INDEX IF NOT EXISTS idx_dup_content_hash ON duplicate_hashes(content_hash);
CREATE INDEX IF NOT EXISTS idx_dup_sample_hash ON duplicate_hashes(sample_embedding_hash);

CREATE TABLE IF NOT EXISTS duplicate_refs (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	doc_id     TEXT NOT NULL REFERENCES papers(doc_id) ON DELETE CASCADE,
	file_hash  TEXT NOT NULL,
	filename   TEXT NOT NULL,
	level      INTEGER NOT NULL,
	similarity REAL NOT NULL DEFAULT 0,
	created_at TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS jobs (
	job_id              TEXT PRIMARY KEY,
	filename            TEXT NOT NULL,
	priority            TEXT NOT NULL,
	status              TEXT NOT NULL,
	progress_percentage INTEGER NOT NULL DEFAULT 0,
	current_step        TEXT NOT NULL DEFAULT '',
	steps_completed     TEXT NOT NULL DEFAULT '[]',
	steps_failed        TEXT NOT NULL DEFAULT '[]',
	error_kind          TEXT NOT NULL DEFAULT '',
	error_message       TEXT NOT NULL DEFAULT '',
	paper_id            TEXT NOT NULL DEFAULT '',
	upload_path         TEXT NOT NULL DEFAULT '',
	source_ip           TEXT NOT NULL DEFAULT '',
	created_at          TIMESTAMP NOT NULL,
	started_at          TIMESTAMP,
	completed_at        TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_jobs_status ON jobs(status);

CREATE TABLE IF NOT EXISTS backups (
	backup_id   TEXT PRIMARY KEY,
	type        TEXT NOT NULL,
	timestamp   TIMESTAMP NOT NULL,
	size_bytes  INTEGER NOT NULL DEFAULT 0,
	checksum    TEXT NOT NULL DEFAULT '',
	status      TEXT NOT NULL,
	expire_date TIMESTAMP NOT NULL,
	source      TEXT NOT NULL,
	path        TEXT NOT NULL
);
`

// SQLiteDB wraps the relational store connection pool. The pool is swapped
// out during a restore, so access goes through DB() under a read lock.
type SQLiteDB struct {
	mu   sync.RWMutex
	db   *sqlx.DB
	path string
}

// OpenSQLite opens (creating if necessary) the relational store and brings
// the schema up to the version this binary expects.
func OpenSQLite(path string) (*SQLiteDB, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}

	conn, err := openPool(path)
	if err != nil {
		return nil, err
	}

	s := &SQLiteDB{db: conn, path: path}
	if err := s.migrate(); err != nil {
		conn.Close()
		return nil, err
	}
	return s, nil
}

func openPool(path string) (*sqlx.DB, error) {
	dsn := path + "?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000"
	conn, err := sqlx.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	return conn, nil
}

// DB returns the current sqlx pool. Repositories fetch it per query rather
// than caching it, so a restore swap takes effect everywhere at once.
func (s *SQLiteDB) DB() *sqlx.DB {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.db
}

// Path returns the database file path.
func (s *SQLiteDB) Path() string {
	return s.path
}

// Ping checks the connection.
func (s *SQLiteDB) Ping(ctx context.Context) error {
	return s.DB().PingContext(ctx)
}

// Close closes the connection pool.
func (s *SQLiteDB) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}

// Checkpoint flushes the WAL into the main database file so a plain file
// copy captures a consistent snapshot.
func (s *SQLiteDB) Checkpoint(ctx context.Context) error {
	_, err := s.DB().ExecContext(ctx, "PRAGMA wal_checkpoint(TRUNCATE)")
	return err
}

// RestoreFrom replaces the database file with whatever swap writes to it.
// The pool is closed first so no connection sees the old file, the WAL
// sidecars are discarded, and a fresh pool reopens with migrations applied.
// Callers must stop writers before invoking it.
func (s *SQLiteDB) RestoreFrom(swap func(path string) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close pool for restore: %w", err)
	}
	os.Remove(s.path + "-wal")
	os.Remove(s.path + "-shm")

	swapErr := swap(s.path)

	conn, err := openPool(s.path)
	if err != nil {
		return fmt.Errorf("reopen after restore: %w", err)
	}
	s.db = conn
	if swapErr != nil {
		return fmt.Errorf("swap database file: %w", swapErr)
	}
	return s.migrate()
}

// WithTx runs fn inside a transaction, committing on nil error.
func (s *SQLiteDB) WithTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := s.DB().BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("%w (rollback also failed: %v)", err, rbErr)
		}
		return err
	}
	return tx.Commit()
}

func (s *SQLiteDB) migrate() error {
	var current int
	if err := s.db.Get(&current, "PRAGMA user_version"); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}

	if current > schemaVersion {
		return fmt.Errorf("database schema version %d is newer than supported version %d; refusing to downgrade", current, schemaVersion)
	}

	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}

	// Column additions for databases created by older binaries.
	if current > 0 && current < 2 {
		if err := s.addColumnIfMissing("papers", "pending_vector_sync", "INTEGER NOT NULL DEFAULT 0"); err != nil {
			return err
		}
	}
	if current > 0 && current < 3 {
		if err := s.addColumnIfMissing("jobs", "source_ip", "TEXT NOT NULL DEFAULT ''"); err != nil {
			return err
		}
	}

	if _, err := s.db.Exec(fmt.Sprintf("PRAGMA user_version = %d", schemaVersion)); err != nil {
		return fmt.Errorf("set schema version: %w", err)
	}
	return nil
}

func (s *SQLiteDB) addColumnIfMissing(table, column, definition string) error {
	rows, err := s.db.Queryx(fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return fmt.Errorf("inspect table %s: %w", table, err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			cid        int
			name, typ  string
			notnull    int
			dflt       interface{}
			primaryKey int
		)
		if err := rows.Scan(&cid, &name, &typ, &notnull, &dflt, &primaryKey); err != nil {
			return fmt.Errorf("scan table info: %w", err)
		}
		if name == column {
			return nil
		}
	}

	_, err = s.db.Exec(fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", table, column, definition))
	if err != nil {
		return fmt.Errorf("add column %s.%s: %w", table, column, err)
	}
	return nil
}
