package exporter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/K9kd22r8/logseq/internal/apperr"
	"github.com/K9kd22r8/logseq/internal/models"
)

// ExtractOptions are passed through to the extractor unchanged.
type ExtractOptions struct {
	BlockPattern string
	DateFormat   string
	DBGraphMode  bool
}

// Extractor parses file content into pages and blocks.
type Extractor interface {
	Extract(path string, content []byte, opts ExtractOptions) (*models.Extraction, error)
	ExtractWhiteboard(path string, content []byte, opts ExtractOptions) (*models.Extraction, error)
}

// Conn is the database the assembler reads from and writes to.
type Conn interface {
	Reader
	// Transact applies tx atomically.
	Transact(tx Transaction) error
}

// Options configure AddFileToDBGraph.
type Options struct {
	Extractor      Extractor
	ExtractOptions ExtractOptions
	// TagClasses lists tag names promoted to classes.
	TagClasses []string
	// PageTagsPropertyID is the property holding non-class page tags.
	PageTagsPropertyID uuid.UUID
	// Macros maps macro names to their expansion, used during inference.
	Macros map[string]string
	Now    func() time.Time
	Logger *slog.Logger
}

func (o Options) withDefaults() Options {
	if o.PageTagsPropertyID == uuid.Nil {
		o.PageTagsPropertyID = DefaultPageTagsPropertyID
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}

// Result describes one file import.
type Result struct {
	File   string        `json:"file"`
	Format models.Format `json:"format,omitempty"`
	// Skipped is set when the file was not imported; SkipReason says why.
	Skipped    bool        `json:"skipped,omitempty"`
	SkipReason string      `json:"skip_reason,omitempty"`
	Tx         Transaction `json:"-"`
	Pages      int         `json:"pages"`
	Blocks     int         `json:"blocks"`
	Schemas    int         `json:"schemas"`
}

// DetectFormat returns the format of the file at p.
func DetectFormat(p string) (models.Format, error) {
	slash := filepath.ToSlash(p)
	switch strings.ToLower(path.Ext(slash)) {
	case ".md", ".markdown":
		return models.FormatMarkdown, nil
	case ".json":
		if isWhiteboardPath(slash) {
			return models.FormatWhiteboard, nil
		}
	}
	return "", fmt.Errorf("%w: %s", apperr.ErrUnsupportedFileFormat, p)
}

func isWhiteboardPath(slash string) bool {
	for _, part := range strings.Split(path.Dir(slash), "/") {
		if part == "whiteboards" {
			return true
		}
	}
	return false
}

// AddFileToDBGraph converts one file and applies the resulting transaction.
// Files with an unsupported format are skipped: the result is marked, the
// skip is logged and recorded in state, and no error is returned.
func AddFileToDBGraph(ctx context.Context, conn Conn, p string, content []byte, opts Options, state *ImportState) (*Result, error) {
	res, err := BuildFileTx(conn, p, content, opts, state)
	if err != nil {
		return nil, err
	}
	if res.Skipped || len(res.Tx) == 0 {
		return res, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("import %s: %w", p, err)
	}
	if err := conn.Transact(res.Tx); err != nil {
		return nil, fmt.Errorf("import %s: transact: %w", p, err)
	}
	return res, nil
}

// BuildFileTx converts one file into a transaction without applying it.
// The registry in state is updated with every property first seen in the
// file, whether or not the transaction is later applied.
func BuildFileTx(db Reader, p string, content []byte, opts Options, state *ImportState) (*Result, error) {
	opts = opts.withDefaults()
	if opts.Extractor == nil {
		return nil, errors.New("exporter: no extractor configured")
	}
	if state == nil {
		return nil, errors.New("exporter: nil import state")
	}

	format, err := DetectFormat(p)
	if err != nil {
		opts.Logger.Warn("import: skipping file",
			slog.String("file", p),
			slog.String("error", err.Error()))
		state.Ignore(IgnoredProperty{Reason: apperr.ErrUnsupportedFileFormat, File: p, Location: "file"})
		return &Result{File: p, Skipped: true, SkipReason: err.Error()}, nil
	}

	var ext *models.Extraction
	mode := modeNormal
	if format == models.FormatWhiteboard {
		mode = modeWhiteboard
		ext, err = opts.Extractor.ExtractWhiteboard(p, content, opts.ExtractOptions)
	} else {
		ext, err = opts.Extractor.Extract(p, content, opts.ExtractOptions)
	}
	if err != nil {
		return nil, fmt.Errorf("extract %s: %w", p, err)
	}

	now := opts.Now().UnixMilli()
	b := &fileBuilder{
		file:          p,
		opts:          &opts,
		state:         state,
		db:            db,
		res:           newResolver(db, mode, opts.TagClasses, now),
		now:           now,
		preBlocks:     make(map[uuid.UUID]struct{}),
		propertyPages: make(map[string]struct{}),
	}
	checkpoint := state.Schemas.Checkpoint()

	pages := append([]models.RawPage(nil), ext.Pages...)
	for _, name := range userPropertyNames(ext) {
		b.propertyPages[name] = struct{}{}
		pages = append(pages, models.RawPage{Name: name, OriginalName: name})
	}
	pages = mergePages(pages)
	for _, pg := range pages {
		if pg.Journal {
			b.journals = append(b.journals, models.PageRef{Name: NormalizeName(pg.Name), Journal: true})
		}
	}

	// Every page gets its id before any entity is built so forward
	// references inside the file resolve.
	for _, pg := range pages {
		name := NormalizeName(pg.Name)
		_, exists, err := b.res.existingPage(name)
		if err != nil {
			return nil, err
		}
		if exists {
			continue
		}
		id := pg.UUID
		if id == uuid.Nil {
			if id, err = uuid.NewV7(); err != nil {
				return nil, fmt.Errorf("generating page id: %w", err)
			}
		}
		b.res.assign(name, id)
	}
	// Tag-class pages of this file are written as classes by the page
	// builder; promoting them first keeps tags from emitting them again.
	for _, pg := range pages {
		if b.res.IsTagClass(pg.Name) {
			if _, _, err := b.res.PromoteTag(pg.Name); err != nil {
				return nil, err
			}
		}
	}

	var tx Transaction
	for _, pg := range pages {
		e, err := b.buildPage(pg)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", p, err)
		}
		if e != nil {
			tx = append(tx, e)
		}
	}

	for _, blk := range ext.Blocks {
		if blk.PreBlock {
			b.preBlocks[blk.UUID] = struct{}{}
		}
	}
	blocks := 0
	for _, blk := range ext.Blocks {
		if blk.PreBlock {
			continue
		}
		e, err := b.buildBlock(blk)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", p, err)
		}
		tx = append(tx, e)
		blocks++
	}

	if b.usesPageTags {
		if err := b.ensurePageTagsProperty(&tx); err != nil {
			return nil, err
		}
	}

	diff := state.Schemas.DiffSince(checkpoint)
	tx, err = b.applySchemaDiff(tx, diff)
	if err != nil {
		return nil, err
	}
	tx = append(tx, b.extra...)

	index, err := b.indexFragments(tx)
	if err != nil {
		return nil, err
	}
	tx = cleanTransaction(append(index, tx...))

	opts.Logger.Debug("import: built transaction",
		slog.String("file", p),
		slog.Int("entities", len(tx)),
		slog.Int("schemas", len(diff)))

	return &Result{
		File:    p,
		Format:  format,
		Tx:      tx,
		Pages:   len(pages),
		Blocks:  blocks,
		Schemas: len(diff),
	}, nil
}

func (b *fileBuilder) ensurePageTagsProperty(tx *Transaction) error {
	id := b.opts.PageTagsPropertyID
	_, ok, err := b.db.EntityByUUID(id)
	if err != nil {
		return fmt.Errorf("lookup page-tags property: %w", err)
	}
	if ok {
		return nil
	}
	named, err := b.pageTagsNameFree(id)
	if err != nil {
		return err
	}
	prop := pageTagsProperty(id, b.now)
	if !named {
		delete(prop, AttrName)
		b.opts.Logger.Warn("import: page-tags property name already taken",
			slog.String("name", pageTagsName))
	}
	*tx = append(*tx, prop)
	return nil
}

// pageTagsNameFree reports whether no other page of the graph or of the
// current file already holds the page-tags property name.
func (b *fileBuilder) pageTagsNameFree(id uuid.UUID) (bool, error) {
	if other, ok := b.res.newIDs[pageTagsName]; ok && other != id {
		return false, nil
	}
	e, ok, err := b.res.existingPage(pageTagsName)
	if err != nil {
		return false, err
	}
	if !ok {
		return true, nil
	}
	other, _ := e.UUID()
	return other == id, nil
}

// applySchemaDiff writes the type and schema of each newly registered
// property onto its property page.
func (b *fileBuilder) applySchemaDiff(tx Transaction, diff []SchemaEntry) (Transaction, error) {
	for _, entry := range diff {
		id, err := b.res.PageID(entry.Key.Name())
		if err != nil {
			return nil, fmt.Errorf("property page %q: %w", entry.Key, err)
		}
		if stored, ok, err := b.res.existingPage(entry.Key.Name()); err != nil {
			return nil, err
		} else if ok && entityType(stored) == EntityTypeProperty && sameValue(stored[AttrSchema], entry.Schema) {
			continue
		}
		target := findEntity(tx, id)
		if target == nil {
			target = Entity{AttrID: RefTo(id)}
			tx = append(tx, target)
		}
		if t := entityType(target); t == "" || t == EntityTypeProperty {
			target[AttrType] = EntityTypeProperty
		}
		target[AttrSchema] = entry.Schema
	}
	return tx, nil
}

func findEntity(tx Transaction, id uuid.UUID) Entity {
	for _, e := range tx {
		if eid, ok := e.UUID(); ok && eid == id {
			return e
		}
	}
	return nil
}

// indexFragments returns {block/uuid: id} for every id the transaction
// references that neither it nor the database defines yet.
func (b *fileBuilder) indexFragments(tx Transaction) (Transaction, error) {
	defined := make(map[uuid.UUID]struct{})
	for _, e := range tx {
		if id, ok := e.UUID(); ok {
			defined[id] = struct{}{}
		}
	}
	var refs []Ref
	for _, e := range tx {
		refs = append(refs, e.Refs()...)
		refs = append(refs, contentRefs(e)...)
	}
	var out Transaction
	for _, r := range sortedRefs(refs) {
		if _, ok := defined[r.UUID]; ok {
			continue
		}
		_, ok, err := b.db.EntityByUUID(r.UUID)
		if err != nil {
			return nil, fmt.Errorf("lookup %s: %w", r.UUID, err)
		}
		if !ok {
			out = append(out, Entity{AttrUUID: r.UUID})
		}
		defined[r.UUID] = struct{}{}
	}
	return out, nil
}

func contentRefs(e Entity) []Ref {
	s, _ := e[AttrContent].(string)
	ids := ContentRefIDs(s)
	out := make([]Ref, 0, len(ids))
	for _, id := range ids {
		out = append(out, RefTo(id))
	}
	return out
}

// cleanTransaction strips empty values and drops fragments that address an
// existing entity without changing it.
func cleanTransaction(tx Transaction) Transaction {
	out := tx[:0]
	for _, e := range tx {
		for k, v := range e {
			if isEmptyValue(v) {
				delete(e, k)
			}
		}
		if _, hasID := e[AttrID]; hasID && len(e.Attrs()) == 0 {
			continue
		}
		if len(e) == 0 {
			continue
		}
		out = append(out, e)
	}
	return out
}
