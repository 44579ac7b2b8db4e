package graphdb

import (
	"github.com/google/uuid"

	"github.com/K9kd22r8/logseq/internal/exporter"
)

// Store defines the graph database operations used by the import session
// and its surfaces. Consumers should depend on this interface rather than
// the concrete *DB type.
type Store interface {
	exporter.Conn
	PropertySchemas() ([]exporter.SchemaEntry, error)
	ListPages(limit, offset int) ([]exporter.Entity, int, error)
	PageBlocks(pageID uuid.UUID) ([]exporter.Entity, error)
	Backlinks(id uuid.UUID) ([]uuid.UUID, error)
	Search(query string, limit int) ([]SearchResult, error)
	GetChecksum(path string) (string, error)
	SetChecksum(path, sum string) error
	AllChecksums() (map[string]string, error)
	DeleteFile(path string) error
	Close() error
}

// Verify *DB satisfies Store at compile time.
var _ Store = (*DB)(nil)
