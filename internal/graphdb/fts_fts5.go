//go:build sqlite_fts5

package graphdb

import (
	"database/sql"
	"fmt"
)

func initFTS(conn *sql.DB) error {
	_, err := conn.Exec(`
		CREATE VIRTUAL TABLE IF NOT EXISTS entities_fts USING fts5(
			uuid UNINDEXED,
			name,
			content,
			tokenize = 'unicode61 remove_diacritics 2'
		);
	`)
	return err
}

func ftsUpsert(tx *sql.Tx, id, name, content string) error {
	_, _ = tx.Exec(`DELETE FROM entities_fts WHERE uuid = ?`, id)
	if name == "" && content == "" {
		return nil
	}
	_, err := tx.Exec(`INSERT INTO entities_fts (uuid, name, content) VALUES (?, ?, ?)`, id, name, content)
	if err != nil {
		return fmt.Errorf("graphdb: upsert fts: %w", err)
	}
	return nil
}

// Search performs an FTS5 full-text search and returns matching entities
// with snippets.
func (db *DB) Search(query string, limit int) ([]SearchResult, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := db.conn.Query(`
		SELECT uuid,
		       name,
		       snippet(entities_fts, 2, '<b>', '</b>', '...', 64)
		FROM entities_fts
		WHERE entities_fts MATCH ?
		ORDER BY rank
		LIMIT ?
	`, query, limit)
	if err != nil {
		return nil, fmt.Errorf("graphdb: search: %w", err)
	}
	return scanResults(rows)
}
