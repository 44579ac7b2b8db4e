//go:build sqlite_fts5

package graphdb

import (
	"testing"

	"github.com/google/uuid"

	"github.com/K9kd22r8/logseq/internal/exporter"
)

func TestFTS5_TableExists(t *testing.T) {
	db := testDB(t)
	var count int
	if err := db.conn.QueryRow(`SELECT count(*) FROM entities_fts`).Scan(&count); err != nil {
		t.Fatalf("entities_fts table missing: %v", err)
	}
}

func TestFTS5_UpsertReplacesContent(t *testing.T) {
	db := testDB(t)
	pageID, blockID := uuid.New(), uuid.New()
	block := func(content string) exporter.Transaction {
		return exporter.Transaction{
			page(pageID, "evolving"),
			{
				exporter.AttrUUID:    blockID,
				exporter.AttrContent: content,
				exporter.AttrPage:    exporter.RefTo(pageID),
			},
		}
	}
	if err := db.Transact(block("original text")); err != nil {
		t.Fatalf("Transact: %v", err)
	}
	if err := db.Transact(block("replacement text")); err != nil {
		t.Fatalf("Transact: %v", err)
	}

	results, _ := db.Search("original", 10)
	if len(results) != 0 {
		t.Error("old FTS content should be gone")
	}
	results, _ = db.Search("replacement", 10)
	if len(results) != 1 || results[0].UUID != blockID {
		t.Errorf("FTS not updated: %+v", results)
	}
}
