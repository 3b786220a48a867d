// Package db provides the durable SQLite store behind the offline cache and
// the pending operation queue.
//
// The store runs embedded SQLite (ncruces/go-sqlite3, WASM build) in WAL
// mode so reads proceed while a write is in flight. Row mapping uses sqlx.
//
// Architecture:
//   - Database file: <data_dir>/daycast.db
//   - Tables: items, generations, day_summaries, channel_settings,
//     published_posts, pending_operations
//   - Writes: serialized through Update, one transaction at a time
//   - Reads: lock free, straight against the connection pool
package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
)

// DB wraps the SQLite connection with the offline store's queries.
type DB struct {
	conn   *sqlx.DB
	path   string
	mu     sync.Mutex
	closed bool
}

// Tx is a write transaction handed out by Update.
type Tx struct {
	tx *sqlx.Tx
}

// Open creates a new database connection at the specified path.
//
// The caller MUST call Close() when done to ensure proper cleanup.
//
// Example:
//
//	store, err := db.Open(filepath.Join(dataDir, "daycast.db"))
//	if err != nil {
//	    return err
//	}
//	defer store.Close()
func Open(path string) (*DB, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	// Pragmas go in the DSN so every pooled connection gets them.
	connStr := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(wal)&_pragma=foreign_keys(1)&_txlock=immediate", path)
	conn, err := sqlx.Open("sqlite3", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	conn.SetMaxOpenConns(8)
	conn.SetMaxIdleConns(4)
	conn.SetConnMaxLifetime(5 * time.Minute)

	return &DB{
		conn: conn,
		path: path,
	}, nil
}

// Path returns the database file location.
func (db *DB) Path() string {
	return db.path
}

// RawDB returns the underlying connection pool.
func (db *DB) RawDB() *sqlx.DB {
	return db.conn
}

// Close checkpoints the WAL and closes the connection. Calls after the
// first are no-ops; queries against a closed DB return errors.
func (db *DB) Close() error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if db.closed {
		return nil
	}
	db.closed = true

	if _, err := db.conn.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to checkpoint WAL: %v\n", err)
	}

	if err := db.conn.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	return nil
}

// InitSchema creates the tables and indexes if they don't exist.
// Safe to call on every start.
func (db *DB) InitSchema() error {
	return db.InitSchemaContext(context.Background())
}

// InitSchemaContext creates the schema with context support.
func (db *DB) InitSchemaContext(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS items (
		id TEXT PRIMARY KEY,
		type TEXT NOT NULL,
		content TEXT NOT NULL,
		extracted_text TEXT,
		extract_error TEXT,
		date TEXT NOT NULL,
		cleared INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		edits TEXT NOT NULL DEFAULT '[]',  -- JSON array
		importance INTEGER,
		include_in_generation INTEGER NOT NULL DEFAULT 1,
		is_local INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS generations (
		id TEXT PRIMARY KEY,
		date TEXT NOT NULL,
		results TEXT NOT NULL DEFAULT '[]',  -- JSON array
		created_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS day_summaries (
		date TEXT PRIMARY KEY,
		input_count INTEGER NOT NULL DEFAULT 0,
		generation_count INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS channel_settings (
		channel_id TEXT PRIMARY KEY,
		position INTEGER NOT NULL,
		is_active INTEGER NOT NULL DEFAULT 0,
		default_style TEXT NOT NULL DEFAULT '',
		default_language TEXT NOT NULL DEFAULT '',
		default_length TEXT NOT NULL DEFAULT ''
	);

	CREATE TABLE IF NOT EXISTS published_posts (
		id TEXT PRIMARY KEY,
		slug TEXT NOT NULL UNIQUE,
		channel_id TEXT NOT NULL DEFAULT '',
		style TEXT NOT NULL DEFAULT '',
		language TEXT NOT NULL DEFAULT '',
		text TEXT NOT NULL,
		date TEXT NOT NULL,
		published_at TEXT NOT NULL,
		input_items_preview TEXT NOT NULL DEFAULT '[]',  -- JSON array
		source TEXT
	);

	CREATE TABLE IF NOT EXISTS pending_operations (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		kind TEXT NOT NULL,
		entity_type TEXT NOT NULL,
		entity_id TEXT NOT NULL DEFAULT '',
		payload BLOB NOT NULL,
		attachment_path TEXT,
		date TEXT NOT NULL DEFAULT '',
		retry_count INTEGER NOT NULL DEFAULT 0,
		last_error TEXT,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_items_date ON items(date, created_at);
	CREATE INDEX IF NOT EXISTS idx_items_local ON items(is_local);
	CREATE INDEX IF NOT EXISTS idx_generations_date ON generations(date, created_at);
	CREATE INDEX IF NOT EXISTS idx_posts_channel ON published_posts(channel_id, published_at);
	CREATE INDEX IF NOT EXISTS idx_pending_entity ON pending_operations(entity_id);
	CREATE INDEX IF NOT EXISTS idx_pending_date ON pending_operations(date);
	`

	if _, err := db.conn.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	return nil
}

// Update runs fn inside a write transaction. Writers are serialized: only
// one Update runs at a time, so multi-statement rules (prune then insert,
// remap, replace) are never interleaved. The transaction commits if fn
// returns nil and rolls back otherwise.
func (db *DB) Update(ctx context.Context, fn func(tx *Tx) error) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if db.closed {
		return fmt.Errorf("database is closed")
	}

	tx, err := db.conn.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	if err := fn(&Tx{tx: tx}); err != nil {
		_ = tx.Rollback()
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// IsNotFound reports whether err came from a point lookup that matched no row.
func IsNotFound(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

// inClause expands query for a slice argument bound to an IN (?) clause.
func inClause(query string, args ...any) (string, []any, error) {
	q, a, err := sqlx.In(query, args...)
	if err != nil {
		return "", nil, fmt.Errorf("failed to expand query: %w", err)
	}
	return q, a, nil
}
