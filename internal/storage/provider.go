// Package storage defines the read-only view of a file graph directory.
package storage

import "github.com/K9kd22r8/logseq/internal/models"

// Provider is the interface for graph file access.
type Provider interface {
	// List returns metadata for every importable file under dir (relative to
	// the graph root): Markdown pages and journals, and whiteboard JSON.
	List(dir string) ([]models.FileMetadata, error)
	// Read returns the raw bytes of the file at path (relative to the graph root).
	Read(path string) ([]byte, error)
	// Root returns the absolute graph root.
	Root() string
}
