// Package store exports rule datasets to SQLite and reads them back, with
// an FTS5 index over entity titles and content.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

// DB is a SQLite database holding one rule dataset.
type DB struct {
	conn   *sql.DB
	dbPath string
}

// Open opens or creates the database at path and ensures the schema exists.
// ":memory:" opens a private in-memory database.
func Open(path string) (*DB, error) {
	if path != ":memory:" {
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("failed to create database directory: %w", err)
			}
		}
	}

	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if path == ":memory:" {
		// An in-memory database exists per connection.
		conn.SetMaxOpenConns(1)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
		"PRAGMA temp_store=MEMORY",
	}
	for _, pragma := range pragmas {
		if _, err := conn.Exec(pragma); err != nil {
			conn.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	db := &DB{conn: conn, dbPath: path}
	if err := db.initializeSchema(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	log.Debug().Str("path", path).Msg("opened rule store")
	return db, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	if db.conn != nil {
		return db.conn.Close()
	}
	return nil
}

// Path returns the database path.
func (db *DB) Path() string {
	return db.dbPath
}

// WithTx executes fn within a transaction. The transaction is rolled back
// when fn returns an error and committed otherwise.
func (db *DB) WithTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			log.Error().Err(rbErr).AnErr("cause", err).Msg("failed to rollback transaction")
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (db *DB) initializeSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS dataset_meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS entities (
			rowid INTEGER PRIMARY KEY AUTOINCREMENT,
			id TEXT UNIQUE NOT NULL,
			label TEXT NOT NULL,
			title TEXT NOT NULL,
			content TEXT NOT NULL,
			level INTEGER NOT NULL,
			parent_id TEXT,
			position INTEGER NOT NULL,
			dataset_version TEXT NOT NULL
		)`,
		"CREATE INDEX IF NOT EXISTS idx_entities_parent ON entities(parent_id)",
		"CREATE INDEX IF NOT EXISTS idx_entities_level ON entities(level)",
		`CREATE TABLE IF NOT EXISTS cross_refs (
			source_id TEXT NOT NULL,
			target_id TEXT NOT NULL,
			position INTEGER NOT NULL,
			PRIMARY KEY (source_id, target_id)
		)`,
		"CREATE INDEX IF NOT EXISTS idx_cross_refs_target ON cross_refs(target_id)",
		`CREATE TABLE IF NOT EXISTS anomalies (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			kind TEXT NOT NULL,
			entity_id TEXT NOT NULL,
			parent_id TEXT,
			line INTEGER,
			message TEXT NOT NULL
		)`,
		`CREATE VIRTUAL TABLE IF NOT EXISTS entities_fts USING fts5(
			id,
			title,
			content,
			content='entities',
			content_rowid='rowid'
		)`,
	}

	for _, stmt := range statements {
		if _, err := db.conn.Exec(stmt); err != nil {
			return fmt.Errorf("failed to create schema: %w", err)
		}
	}
	return nil
}
