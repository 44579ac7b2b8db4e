package exporter

import (
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/K9kd22r8/logseq/internal/models"
)

// fileBuilder holds what the page and block builders share while one file
// is converted.
type fileBuilder struct {
	file      string
	opts      *Options
	state     *ImportState
	db        Reader
	res       *resolver
	now       int64
	preBlocks map[uuid.UUID]struct{}
	// propertyPages names the pages that stand for user properties.
	propertyPages map[string]struct{}
	usesPageTags  bool
	// journals lists the journal pages of the file, for page property inference.
	journals []models.PageRef
	// extra collects entities created as a side effect: classes, macros.
	extra Transaction
}

func (b *fileBuilder) ignore(p IgnoredProperty) {
	p.File = b.file
	b.state.Ignore(p)
	b.opts.Logger.Debug("import: ignored value",
		slog.String("file", b.file),
		slog.String("location", p.Location),
		slog.String("property", p.Property),
		slog.String("reason", p.ReasonText()))
}

// fixPreBlockPointers redirects parent and left pointers that target a
// pre-block to the page itself. Blocks lifted this way are not checked for
// sibling collisions: two blocks may end up with the same parent and left.
func (b *fileBuilder) fixPreBlockPointers(raw models.RawBlock) models.RawBlock {
	if _, ok := b.preBlocks[raw.Left.Block]; ok && raw.Left.Block != uuid.Nil {
		raw.Left = models.PagePointer(raw.Page)
	}
	if _, ok := b.preBlocks[raw.Parent.Block]; ok && raw.Parent.Block != uuid.Nil {
		raw.Parent = models.PagePointer(raw.Page)
	}
	return raw
}

func (b *fileBuilder) pointerRef(p models.Pointer, page uuid.UUID) (Ref, error) {
	switch {
	case p.Block != uuid.Nil:
		return RefTo(p.Block), nil
	case p.Page != "":
		id, err := b.res.PageID(p.Page)
		if err != nil {
			return Ref{}, err
		}
		return RefTo(id), nil
	}
	return RefTo(page), nil
}

// buildMacros gives each inline macro an entity of its own. Macro ids are
// derived from the block id and position so re-imports address the same
// entities.
func (b *fileBuilder) buildMacros(block uuid.UUID, macros []models.Macro) []Ref {
	if len(macros) == 0 {
		return nil
	}
	refs := make([]Ref, 0, len(macros))
	for i, m := range macros {
		id := uuid.NewSHA1(block, []byte(fmt.Sprintf("macro/%d/%s", i, m.Name)))
		props := map[string]any{string(BuiltInKey("macro-name")): m.Name}
		if len(m.Arguments) > 0 {
			props[string(BuiltInKey("macro-arguments"))] = append([]string(nil), m.Arguments...)
		}
		b.extra = append(b.extra, Entity{
			AttrUUID:       id,
			AttrType:       EntityTypeMacro,
			AttrProperties: props,
		})
		refs = append(refs, RefTo(id))
	}
	return refs
}

// buildBlock converts one block. Steps run in a fixed order: pre-block
// pointers, macros, properties, references and content, tags, timestamps,
// format.
func (b *fileBuilder) buildBlock(raw models.RawBlock) (Entity, error) {
	loc := "block " + raw.UUID.String()

	raw = b.fixPreBlockPointers(raw)

	macros := b.buildMacros(raw.UUID, raw.Macros)

	props, propRefs, err := b.handleProperties(raw.Properties, raw.PropertiesTextValues, raw.Refs, loc)
	if err != nil {
		return nil, err
	}

	pageID, err := b.res.PageID(raw.Page)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", loc, err)
	}
	parent, err := b.pointerRef(raw.Parent, pageID)
	if err != nil {
		return nil, fmt.Errorf("%s: parent: %w", loc, err)
	}
	left, err := b.pointerRef(raw.Left, pageID)
	if err != nil {
		return nil, fmt.Errorf("%s: left: %w", loc, err)
	}
	refs := append([]Ref(nil), propRefs...)
	tagged := make(map[string]struct{}, len(raw.Tags))
	for _, name := range raw.Tags {
		tagged[NormalizeName(name)] = struct{}{}
	}
	for _, r := range raw.Refs {
		if b.res.IsTagClass(r.Name) {
			if _, ok := tagged[NormalizeName(r.Name)]; ok {
				// added with the tags below
				continue
			}
			id, class, err := b.res.PromoteTag(r.Name)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", loc, err)
			}
			if class != nil {
				b.extra = append(b.extra, class)
			}
			refs = append(refs, RefTo(id))
			continue
		}
		id, err := b.res.PageID(r.Name)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", loc, err)
		}
		refs = append(refs, RefTo(id))
	}
	for _, id := range raw.BlockRefs {
		refs = append(refs, RefTo(id))
	}
	content, err := b.res.RewriteContent(raw.Content)
	if err != nil {
		return nil, fmt.Errorf("%s: content: %w", loc, err)
	}

	var tags []Ref
	for _, name := range raw.Tags {
		if !b.res.IsTagClass(name) {
			id, err := b.res.PageID(name)
			if err != nil {
				return nil, fmt.Errorf("%s: tag: %w", loc, err)
			}
			refs = append(refs, RefTo(id))
			continue
		}
		id, class, err := b.res.PromoteTag(name)
		if err != nil {
			return nil, fmt.Errorf("%s: tag: %w", loc, err)
		}
		if class != nil {
			b.extra = append(b.extra, class)
		}
		tags = append(tags, RefTo(id))
		refs = append(refs, RefTo(id))
	}

	created, updated, err := b.blockTimestamps(raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", loc, err)
	}

	return Entity{
		AttrUUID:       raw.UUID,
		AttrContent:    content,
		AttrPage:       RefTo(pageID),
		AttrParent:     parent,
		AttrLeft:       left,
		AttrProperties: props,
		AttrRefs:       sortedRefs(refs),
		AttrTags:       sortedRefs(tags),
		AttrMacros:     macros,
		AttrCreatedAt:  created,
		AttrUpdatedAt:  updated,
		AttrFormat:     string(models.FormatMarkdown),
	}, nil
}

// blockTimestamps returns the block's own timestamps. Missing ones are taken
// from the stored block, so a re-import never overwrites them, and default to
// the import time for new blocks.
func (b *fileBuilder) blockTimestamps(raw models.RawBlock) (created, updated int64, err error) {
	created, updated = raw.CreatedAt, raw.UpdatedAt
	if created != 0 && updated != 0 {
		return created, updated, nil
	}
	stored, ok, err := b.db.EntityByUUID(raw.UUID)
	if err != nil {
		return 0, 0, fmt.Errorf("load block: %w", err)
	}
	if created == 0 {
		created = b.now
		if v, has := millis(stored[AttrCreatedAt]); ok && has {
			created = v
		}
	}
	if updated == 0 {
		updated = b.now
		if v, has := millis(stored[AttrUpdatedAt]); ok && has {
			updated = v
		}
	}
	return created, updated, nil
}

// millis reads a stored unix millisecond timestamp.
func millis(v any) (int64, bool) {
	switch x := v.(type) {
	case int64:
		return x, x != 0
	case int:
		return int64(x), x != 0
	case float64:
		return int64(x), x != 0
	}
	return 0, false
}
