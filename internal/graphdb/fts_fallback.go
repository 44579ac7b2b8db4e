//go:build !sqlite_fts5

package graphdb

import (
	"database/sql"
	"fmt"
)

func initFTS(_ *sql.DB) error {
	// FTS5 not available; search uses a LIKE fallback on entities.
	return nil
}

func ftsUpsert(_ *sql.Tx, _, _, _ string) error {
	// Name and content are already stored in the entities table.
	return nil
}

// Search performs a LIKE-based search over page names and block content
// (fallback when FTS5 is not compiled in).
func (db *DB) Search(query string, limit int) ([]SearchResult, error) {
	if limit <= 0 {
		limit = 20
	}
	like := "%" + query + "%"
	rows, err := db.conn.Query(`
		SELECT uuid, coalesce(name, ''), substr(content, 1, 200)
		FROM entities
		WHERE name LIKE ? OR content LIKE ?
		ORDER BY uuid
		LIMIT ?
	`, like, like, limit)
	if err != nil {
		return nil, fmt.Errorf("graphdb: search: %w", err)
	}
	return scanResults(rows)
}
