package graphdb

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// SearchResult represents one search hit. Title is empty for blocks.
type SearchResult struct {
	UUID    uuid.UUID `json:"uuid"`
	Title   string    `json:"title,omitempty"`
	Snippet string    `json:"snippet"`
}

func scanResults(rows *sql.Rows) ([]SearchResult, error) {
	defer rows.Close()
	var out []SearchResult
	for rows.Next() {
		var (
			r  SearchResult
			id string
		)
		if err := rows.Scan(&id, &r.Title, &r.Snippet); err != nil {
			return nil, err
		}
		u, err := uuid.Parse(id)
		if err != nil {
			return nil, fmt.Errorf("graphdb: search: %w", err)
		}
		r.UUID = u
		out = append(out, r)
	}
	return out, rows.Err()
}

// GetChecksum returns the checksum recorded for the last import of path,
// or "" when the file was never imported.
func (db *DB) GetChecksum(path string) (string, error) {
	var sum string
	err := db.conn.QueryRow(`SELECT checksum FROM files WHERE path = ?`, path).Scan(&sum)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("graphdb: get checksum: %w", err)
	}
	return sum, nil
}

// SetChecksum records a successful import of path.
func (db *DB) SetChecksum(path, sum string) error {
	_, err := db.conn.Exec(`
		INSERT INTO files (path, checksum, imported_at) VALUES (?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET
			checksum    = excluded.checksum,
			imported_at = excluded.imported_at
	`, path, sum, time.Now())
	if err != nil {
		return fmt.Errorf("graphdb: set checksum: %w", err)
	}
	return nil
}

// AllChecksums returns a map of path to checksum for every imported file.
func (db *DB) AllChecksums() (map[string]string, error) {
	rows, err := db.conn.Query(`SELECT path, checksum FROM files`)
	if err != nil {
		return nil, fmt.Errorf("graphdb: all checksums: %w", err)
	}
	defer rows.Close()

	m := make(map[string]string)
	for rows.Next() {
		var p, c string
		if err := rows.Scan(&p, &c); err != nil {
			return nil, err
		}
		m[p] = c
	}
	return m, rows.Err()
}

// DeleteFile forgets the import record of path. Entities imported from the
// file stay in the graph: other pages may still reference them.
func (db *DB) DeleteFile(path string) error {
	if _, err := db.conn.Exec(`DELETE FROM files WHERE path = ?`, path); err != nil {
		return fmt.Errorf("graphdb: delete file: %w", err)
	}
	return nil
}
