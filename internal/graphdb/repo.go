package graphdb

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mattn/go-sqlite3"

	"github.com/K9kd22r8/logseq/internal/apperr"
	"github.com/K9kd22r8/logseq/internal/exporter"
)

type querier interface {
	QueryRow(query string, args ...any) *sql.Row
}

func loadEntity(q querier, query string, arg any) (exporter.Entity, bool, error) {
	var attrs string
	err := q.QueryRow(query, arg).Scan(&attrs)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	e, err := exporter.DecodeEntity([]byte(attrs))
	if err != nil {
		return nil, false, err
	}
	return e, true, nil
}

// PageByName returns the entity with the given normalized name.
func (db *DB) PageByName(name string) (exporter.Entity, bool, error) {
	e, ok, err := loadEntity(db.conn, `SELECT attrs FROM entities WHERE name = ?`, name)
	if err != nil {
		return nil, false, fmt.Errorf("graphdb: page by name: %w", err)
	}
	return e, ok, nil
}

// EntityByUUID returns the entity with the given id.
func (db *DB) EntityByUUID(id uuid.UUID) (exporter.Entity, bool, error) {
	e, ok, err := loadEntity(db.conn, `SELECT attrs FROM entities WHERE uuid = ?`, id.String())
	if err != nil {
		return nil, false, fmt.Errorf("graphdb: entity by uuid: %w", err)
	}
	return e, ok, nil
}

// Transact applies tx atomically. Fragments are merged into the stored
// entity attribute by attribute. A fragment addressed by db/id must name an
// existing entity, names must be unique, and every reference must resolve
// once the whole transaction is applied; otherwise nothing is written and
// the error wraps apperr.ErrConstraintViolation.
func (db *DB) Transact(tx exporter.Transaction) error {
	sqlTx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("graphdb: begin tx: %w", err)
	}
	defer sqlTx.Rollback() //nolint:errcheck // best-effort on failure path

	touched := make(map[uuid.UUID]exporter.Entity, len(tx))
	var order []uuid.UUID
	for _, frag := range tx {
		id, ok := frag.UUID()
		if !ok {
			return fmt.Errorf("graphdb: %w: fragment without id", apperr.ErrConstraintViolation)
		}
		cur, seen := touched[id]
		if !seen {
			stored, exists, err := loadEntity(sqlTx, `SELECT attrs FROM entities WHERE uuid = ?`, id.String())
			if err != nil {
				return fmt.Errorf("graphdb: load %s: %w", id, err)
			}
			if _, addressed := frag[exporter.AttrID]; addressed && !exists {
				return fmt.Errorf("graphdb: %w: %s does not exist", apperr.ErrConstraintViolation, id)
			}
			cur = stored
			if cur == nil {
				cur = exporter.Entity{}
			}
			order = append(order, id)
		}
		for k, v := range frag {
			if k != exporter.AttrID {
				cur[k] = v
			}
		}
		cur[exporter.AttrUUID] = id
		touched[id] = cur
	}

	now := time.Now()
	for _, id := range order {
		if err := upsertEntity(sqlTx, id, touched[id], now); err != nil {
			return err
		}
	}

	var dangling string
	err = sqlTx.QueryRow(`
		SELECT r.target FROM refs r
		LEFT JOIN entities e ON e.uuid = r.target
		WHERE e.uuid IS NULL
		LIMIT 1
	`).Scan(&dangling)
	switch {
	case err == nil:
		return fmt.Errorf("graphdb: %w: dangling reference to %s", apperr.ErrConstraintViolation, dangling)
	case !errors.Is(err, sql.ErrNoRows):
		return fmt.Errorf("graphdb: check refs: %w", err)
	}

	return sqlTx.Commit()
}

func upsertEntity(tx *sql.Tx, id uuid.UUID, e exporter.Entity, now time.Time) error {
	attrs, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("graphdb: encode %s: %w", id, err)
	}
	var name sql.NullString
	if n, ok := e[exporter.AttrName].(string); ok && n != "" {
		name = sql.NullString{String: n, Valid: true}
	}
	typ, _ := e[exporter.AttrType].(string)
	content, _ := e[exporter.AttrContent].(string)
	page := ""
	if r, ok := e[exporter.AttrPage].(exporter.Ref); ok {
		page = r.UUID.String()
	}

	_, err = tx.Exec(`
		INSERT INTO entities (uuid, name, type, page, content, attrs, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(uuid) DO UPDATE SET
			name       = excluded.name,
			type       = excluded.type,
			page       = excluded.page,
			content    = excluded.content,
			attrs      = excluded.attrs,
			updated_at = excluded.updated_at
	`, id.String(), name, typ, page, content, string(attrs), now)
	if err != nil {
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && sqliteErr.Code == sqlite3.ErrConstraint {
			return fmt.Errorf("graphdb: %w: %s: %v", apperr.ErrConstraintViolation, id, err)
		}
		return fmt.Errorf("graphdb: upsert %s: %w", id, err)
	}

	if err := ftsUpsert(tx, id.String(), name.String, content); err != nil {
		return err
	}

	// Replace refs: delete old then bulk insert.
	_, _ = tx.Exec(`DELETE FROM refs WHERE source = ?`, id.String())
	refs := e.Refs()
	if len(refs) == 0 {
		return nil
	}
	stmt, err := tx.Prepare(`INSERT OR IGNORE INTO refs (source, target) VALUES (?, ?)`)
	if err != nil {
		return fmt.Errorf("graphdb: prepare ref insert: %w", err)
	}
	defer stmt.Close()
	for _, r := range refs {
		if _, err := stmt.Exec(id.String(), r.UUID.String()); err != nil {
			return fmt.Errorf("graphdb: insert ref: %w", err)
		}
	}
	return nil
}

// PropertySchemas returns the schema of every stored property, ordered by
// name.
func (db *DB) PropertySchemas() ([]exporter.SchemaEntry, error) {
	rows, err := db.conn.Query(`SELECT name, attrs FROM entities WHERE type = ? AND name IS NOT NULL ORDER BY name`,
		exporter.EntityTypeProperty)
	if err != nil {
		return nil, fmt.Errorf("graphdb: property schemas: %w", err)
	}
	defer rows.Close()

	var out []exporter.SchemaEntry
	for rows.Next() {
		var name, attrs string
		if err := rows.Scan(&name, &attrs); err != nil {
			return nil, err
		}
		var raw struct {
			Schema *exporter.PropertySchema `json:"block/schema"`
		}
		if err := json.Unmarshal([]byte(attrs), &raw); err != nil {
			return nil, fmt.Errorf("graphdb: decode schema of %q: %w", name, err)
		}
		if raw.Schema == nil || !exporter.IsValidTypeTag(raw.Schema.Type) {
			continue
		}
		out = append(out, exporter.SchemaEntry{Key: exporter.UserKey(name), Schema: *raw.Schema})
	}
	return out, rows.Err()
}

// ListPages returns named entities ordered by name, and their total count.
func (db *DB) ListPages(limit, offset int) ([]exporter.Entity, int, error) {
	if limit <= 0 {
		limit = 50
	}
	var total int
	if err := db.conn.QueryRow(`SELECT count(*) FROM entities WHERE name IS NOT NULL`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("graphdb: count pages: %w", err)
	}
	rows, err := db.conn.Query(`SELECT attrs FROM entities WHERE name IS NOT NULL ORDER BY name LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("graphdb: list pages: %w", err)
	}
	out, err := scanEntities(rows)
	return out, total, err
}

// PageBlocks returns the blocks of a page.
func (db *DB) PageBlocks(pageID uuid.UUID) ([]exporter.Entity, error) {
	rows, err := db.conn.Query(`SELECT attrs FROM entities WHERE page = ? ORDER BY uuid`, pageID.String())
	if err != nil {
		return nil, fmt.Errorf("graphdb: page blocks: %w", err)
	}
	return scanEntities(rows)
}

func scanEntities(rows *sql.Rows) ([]exporter.Entity, error) {
	defer rows.Close()
	var out []exporter.Entity
	for rows.Next() {
		var attrs string
		if err := rows.Scan(&attrs); err != nil {
			return nil, err
		}
		e, err := exporter.DecodeEntity([]byte(attrs))
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Backlinks returns the ids of all entities that reference id.
func (db *DB) Backlinks(id uuid.UUID) ([]uuid.UUID, error) {
	rows, err := db.conn.Query(`SELECT source FROM refs WHERE target = ? ORDER BY source`, id.String())
	if err != nil {
		return nil, fmt.Errorf("graphdb: backlinks: %w", err)
	}
	defer rows.Close()

	var out []uuid.UUID
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		u, err := uuid.Parse(s)
		if err != nil {
			return nil, fmt.Errorf("graphdb: backlinks: %w", err)
		}
		out = append(out, u)
	}
	return out, rows.Err()
}
