// Package graphdb stores graph entities in SQLite and applies import
// transactions atomically.
package graphdb

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"github.com/K9kd22r8/logseq/internal/exporter"
)

const coreSchemaSQL = `
CREATE TABLE IF NOT EXISTS entities (
	uuid       TEXT PRIMARY KEY,
	name       TEXT UNIQUE,
	type       TEXT NOT NULL DEFAULT '',
	page       TEXT NOT NULL DEFAULT '',
	content    TEXT NOT NULL DEFAULT '',
	attrs      TEXT NOT NULL DEFAULT '{}',
	updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_entities_type ON entities(type);
CREATE INDEX IF NOT EXISTS idx_entities_page ON entities(page);

CREATE TABLE IF NOT EXISTS refs (
	source TEXT NOT NULL,
	target TEXT NOT NULL,
	UNIQUE(source, target)
);

CREATE INDEX IF NOT EXISTS idx_refs_source ON refs(source);
CREATE INDEX IF NOT EXISTS idx_refs_target ON refs(target);

CREATE TABLE IF NOT EXISTS files (
	path        TEXT PRIMARY KEY,
	checksum    TEXT NOT NULL DEFAULT '',
	imported_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`

// DB wraps a sql.DB with entity store operations.
type DB struct {
	conn *sql.DB
}

// Open opens (or creates) the SQLite database, applies the schema and
// seeds the built-in closed values.
func Open(dsn string) (*DB, error) {
	conn, err := sql.Open("sqlite3", dsn+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("graphdb: open db: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("graphdb: ping: %w", err)
	}
	if _, err := conn.Exec(coreSchemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("graphdb: apply core schema: %w", err)
	}
	if err := initFTS(conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("graphdb: apply fts schema: %w", err)
	}
	db := &DB{conn: conn}
	if err := db.seed(); err != nil {
		conn.Close()
		return nil, err
	}
	return db, nil
}

// seed writes the closed values built-in properties resolve to.
func (db *DB) seed() error {
	var tx exporter.Transaction
	for _, cv := range exporter.BuiltInClosedValues() {
		_, ok, err := db.EntityByUUID(cv.UUID)
		if err != nil {
			return fmt.Errorf("graphdb: seed: %w", err)
		}
		if !ok {
			tx = append(tx, exporter.ClosedValueEntity(cv))
		}
	}
	if len(tx) == 0 {
		return nil
	}
	if err := db.Transact(tx); err != nil {
		return fmt.Errorf("graphdb: seed: %w", err)
	}
	return nil
}

// Close closes the underlying database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Ping checks that the database is reachable.
func (db *DB) Ping() error {
	return db.conn.Ping()
}
