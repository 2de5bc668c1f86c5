// Package index is the embedded SQLite store behind the note store: canonical
// note rows, the link graph with materialized backlinks, and the full-text
// search entries. FTS5 is used when built with the sqlite_fts5 tag.
package index

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"github.com/starford/mimir/internal/apperr"
)

const coreSchemaSQL = `
CREATE TABLE IF NOT EXISTS notes (
	id       TEXT PRIMARY KEY,
	title    TEXT NOT NULL,
	content  TEXT NOT NULL DEFAULT '',
	path     TEXT NOT NULL UNIQUE,
	tags     TEXT NOT NULL DEFAULT '[]',
	created  INTEGER NOT NULL,
	modified INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_notes_modified ON notes(modified);

CREATE TABLE IF NOT EXISTS links (
	source    TEXT NOT NULL,
	target    TEXT NOT NULL,
	target_id TEXT NOT NULL,
	kind      TEXT NOT NULL,
	context   TEXT NOT NULL DEFAULT '',
	position  INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_links_source ON links(source, kind, position);
CREATE INDEX IF NOT EXISTS idx_links_target ON links(target_id, kind);
CREATE UNIQUE INDEX IF NOT EXISTS idx_links_backlink ON links(source, target_id) WHERE kind = 'backlink';
`

// DB wraps a sql.DB with index-specific operations.
type DB struct {
	conn *sql.DB
}

// Open opens (or creates) the SQLite database and applies the schema.
// Schema errors wrap apperr.ErrSchema.
func Open(dsn string) (*DB, error) {
	conn, err := sql.Open("sqlite3", dsn+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on&_txlock=immediate")
	if err != nil {
		return nil, fmt.Errorf("index: open db: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("index: ping: %w", err)
	}
	if _, err := conn.Exec(coreSchemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("%w: apply core schema: %v", apperr.ErrSchema, err)
	}
	if err := initSearch(conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("%w: apply search schema: %v", apperr.ErrSchema, err)
	}
	return &DB{conn: conn}, nil
}

// Close closes the underlying database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Tx is a write transaction spanning a note row, its links and its search
// entry.
type Tx struct {
	ctx context.Context
	tx  *sql.Tx
}

// WithTx runs fn inside a single write transaction and commits when fn
// returns nil. Any error from fn or from the commit rolls everything back.
func (db *DB) WithTx(ctx context.Context, fn func(tx *Tx) error) error {
	sqlTx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("index: begin tx: %w", err)
	}
	defer sqlTx.Rollback() //nolint:errcheck // no-op after commit

	if err := fn(&Tx{ctx: ctx, tx: sqlTx}); err != nil {
		return err
	}
	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("index: commit: %w", err)
	}
	return nil
}
