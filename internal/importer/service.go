// Package importer runs an import session over a graph directory: it owns
// the session state, serializes imports into the graph database, and keeps
// the database in step with the directory.
package importer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/K9kd22r8/logseq/internal/apperr"
	"github.com/K9kd22r8/logseq/internal/checksum"
	"github.com/K9kd22r8/logseq/internal/exporter"
	"github.com/K9kd22r8/logseq/internal/graphdb"
	"github.com/K9kd22r8/logseq/internal/storage"
)

// PageDetail is a page with its blocks and the entities referencing it.
type PageDetail struct {
	Page      exporter.Entity   `json:"page"`
	Blocks    []exporter.Entity `json:"blocks"`
	Backlinks []uuid.UUID       `json:"backlinks"`
}

// EventCallback is called after a successful import or removal.
// kind is one of "imported", "skipped", "removed".
type EventCallback func(kind string, res *exporter.Result)

// Service is the import session. All imports go through it; it holds the
// one ImportState of the session and never runs two imports at once.
type Service struct {
	mu     sync.Mutex
	db     graphdb.Store
	store  storage.Provider
	opts   exporter.Options
	state  *exporter.ImportState
	logger *slog.Logger
}

// NewService creates the session. Property schemas already stored in db
// are registered first, so types inferred by earlier sessions keep winning.
func NewService(db graphdb.Store, store storage.Provider, opts exporter.Options, logger *slog.Logger) (*Service, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Logger == nil {
		opts.Logger = logger
	}
	state := exporter.NewImportState()
	stored, err := db.PropertySchemas()
	if err != nil {
		return nil, fmt.Errorf("importer: load schemas: %w", err)
	}
	for _, e := range stored {
		state.Schemas.RegisterIfAbsent(e.Key, e.Schema)
	}
	logger.Debug("importer: session started", slog.Int("stored_schemas", len(stored)))
	return &Service{db: db, store: store, opts: opts, state: state, logger: logger}, nil
}

// ImportFile imports content as the file at path and records its checksum.
func (s *Service) ImportFile(ctx context.Context, path string, content []byte) (*exporter.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := exporter.AddFileToDBGraph(ctx, s.db, path, content, s.opts, s.state)
	if err != nil {
		return nil, err
	}
	if res.Skipped {
		return res, nil
	}
	if err := s.db.SetChecksum(path, checksum.Sum(content)); err != nil {
		return nil, err
	}
	return res, nil
}

// ImportPath reads path from the graph directory and imports it.
func (s *Service) ImportPath(ctx context.Context, path string) (*exporter.Result, error) {
	data, err := s.store.Read(path)
	if err != nil {
		return nil, err
	}
	return s.ImportFile(ctx, path, data)
}

// Forget drops the import record of a file that left the directory.
func (s *Service) Forget(path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.DeleteFile(path)
}

// Schemas returns every property schema registered in the session.
func (s *Service) Schemas() []exporter.SchemaEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Schemas.All()
}

// Ignored returns the session's ignored log.
func (s *Service) Ignored() []exporter.IgnoredProperty {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Ignored()
}

// Page returns the page with the given name.
func (s *Service) Page(_ context.Context, name string) (*PageDetail, error) {
	e, ok, err := s.db.PageByName(exporter.NormalizeName(name))
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("page %q: %w", name, apperr.ErrNotFound)
	}
	id, _ := e.UUID()
	blocks, err := s.db.PageBlocks(id)
	if err != nil {
		return nil, err
	}
	bl, err := s.db.Backlinks(id)
	if err != nil {
		return nil, err
	}
	return &PageDetail{Page: e, Blocks: nonNilSlice(blocks), Backlinks: nonNilSlice(bl)}, nil
}

// ListPages returns a page of named entities and the total count.
func (s *Service) ListPages(_ context.Context, limit, offset int) ([]exporter.Entity, int, error) {
	pages, total, err := s.db.ListPages(limit, offset)
	if err != nil {
		return nil, 0, err
	}
	return nonNilSlice(pages), total, nil
}

// Search delegates full-text search to the graph database.
func (s *Service) Search(_ context.Context, query string, limit int) ([]graphdb.SearchResult, error) {
	res, err := s.db.Search(query, limit)
	return nonNilSlice(res), err
}

// importLogged imports path and reports the outcome through logger and cb.
func (s *Service) importLogged(ctx context.Context, prefix, path string, cb EventCallback) bool {
	res, err := s.ImportPath(ctx, path)
	if err != nil {
		level := slog.LevelWarn
		if errors.Is(err, context.Canceled) {
			level = slog.LevelDebug
		}
		s.logger.Log(ctx, level, prefix+": import failed", slog.String("path", path), slog.String("error", err.Error()))
		return false
	}
	kind := "imported"
	if res.Skipped {
		kind = "skipped"
	}
	s.logger.Debug(prefix+": "+kind, slog.String("path", path),
		slog.Int("pages", res.Pages), slog.Int("blocks", res.Blocks))
	if cb != nil {
		cb(kind, res)
	}
	return true
}

func nonNilSlice[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
