package exporter

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/pmezard/go-difflib/difflib"

	"github.com/K9kd22r8/logseq/internal/apperr"
	"github.com/K9kd22r8/logseq/internal/models"
)

// Attributes an import may change on a page that already exists.
var updatableAttrs = map[string]bool{
	AttrProperties: true,
	AttrTags:       true,
	AttrAlias:      true,
	AttrNamespace:  true,
	AttrType:       true,
	AttrSchema:     true,
}

// Attributes that identify a page or belong to the database, never re-emitted.
var identityAttrs = map[string]bool{
	AttrUUID:         true,
	AttrName:         true,
	AttrOriginalName: true,
	AttrJournal:      true,
	AttrJournalDay:   true,
	AttrFormat:       true,
	AttrCreatedAt:    true,
	AttrUpdatedAt:    true,
}

// buildPage converts one page. A page already in the database yields only
// the updatable attributes that differ from the stored entity, addressed by
// db/id; it yields nil when nothing differs.
func (b *fileBuilder) buildPage(raw models.RawPage) (Entity, error) {
	name := NormalizeName(raw.Name)
	existing, exists, err := b.res.existingPage(name)
	if err != nil {
		return nil, err
	}
	var id uuid.UUID
	if exists {
		id, _ = existing.UUID()
	} else if id, err = b.res.PageID(name); err != nil {
		return nil, err
	}

	page, err := b.newPageEntity(raw, id)
	if err != nil {
		return nil, err
	}
	if !exists {
		return page, nil
	}
	return b.existingPageUpdate(name, id, page, existing), nil
}

func (b *fileBuilder) newPageEntity(raw models.RawPage, id uuid.UUID) (Entity, error) {
	name := NormalizeName(raw.Name)
	loc := "page " + name
	original := strings.TrimSpace(raw.OriginalName)
	if original == "" {
		original = strings.TrimSpace(raw.Name)
	}
	created, updated := raw.CreatedAt, raw.UpdatedAt
	if created == 0 {
		created = b.now
	}
	if updated == 0 {
		updated = b.now
	}
	e := Entity{
		AttrUUID:         id,
		AttrName:         name,
		AttrOriginalName: original,
		AttrJournal:      raw.Journal,
		AttrFormat:       string(models.FormatMarkdown),
		AttrCreatedAt:    created,
		AttrUpdatedAt:    updated,
	}
	if raw.Journal && raw.JournalDay != 0 {
		e[AttrJournalDay] = raw.JournalDay
	}
	if raw.File != "" {
		e[AttrFile] = raw.File
	}

	switch {
	case b.res.IsTagClass(name):
		e[AttrType] = EntityTypeClass
	case b.isPropertyPage(name):
		e[AttrType] = EntityTypeProperty
		if s, ok := b.state.Schemas.Get(UserKey(name)); ok {
			e[AttrSchema] = s
		}
	case raw.Whiteboard:
		e[AttrType] = EntityTypeWhiteboard
	}

	props, _, err := b.handleProperties(raw.Properties, raw.PropertiesTextValues, b.journals, loc)
	if err != nil {
		return nil, err
	}

	var classTags, pageTags []Ref
	for _, t := range raw.Tags {
		if b.res.IsTagClass(t) {
			tid, class, err := b.res.PromoteTag(t)
			if err != nil {
				return nil, fmt.Errorf("%s: tag: %w", loc, err)
			}
			if class != nil {
				b.extra = append(b.extra, class)
			}
			classTags = append(classTags, RefTo(tid))
			continue
		}
		tid, err := b.res.PageID(t)
		if err != nil {
			return nil, fmt.Errorf("%s: tag: %w", loc, err)
		}
		pageTags = append(pageTags, RefTo(tid))
	}
	if len(pageTags) > 0 {
		if props == nil {
			props = make(map[string]any)
		}
		props[b.opts.PageTagsPropertyID.String()] = sortedRefs(pageTags)
		b.usesPageTags = true
	}
	if len(props) > 0 {
		e[AttrProperties] = props
	}
	if len(classTags) > 0 {
		e[AttrTags] = sortedRefs(classTags)
	}

	if len(raw.Alias) > 0 {
		alias, err := b.res.PageRefs(raw.Alias)
		if err != nil {
			return nil, fmt.Errorf("%s: alias: %w", loc, err)
		}
		e[AttrAlias] = alias
	}
	if raw.Namespace != "" {
		nsID, err := b.res.PageID(raw.Namespace)
		if err != nil {
			return nil, fmt.Errorf("%s: namespace: %w", loc, err)
		}
		e[AttrNamespace] = RefTo(nsID)
	}
	return e, nil
}

func (b *fileBuilder) isPropertyPage(name string) bool {
	_, ok := b.propertyPages[NormalizeName(name)]
	return ok
}

// existingPageUpdate keeps the updatable attributes of page that differ from
// the stored entity. Other differences are logged and dropped.
func (b *fileBuilder) existingPageUpdate(name string, id uuid.UUID, page, stored Entity) Entity {
	out := Entity{AttrID: RefTo(id)}
	for _, attr := range page.Attrs() {
		if identityAttrs[attr] {
			continue
		}
		v := page[attr]
		if isEmptyValue(v) || sameValue(v, stored[attr]) {
			continue
		}
		if updatableAttrs[attr] {
			out[attr] = v
			continue
		}
		b.ignore(IgnoredProperty{
			Reason:   apperr.ErrUnhandledPageAttributeChange,
			Location: "page " + name,
			Property: attr,
			Value:    v,
			Detail:   attributeDiff(stored[attr], v),
		})
	}
	if len(out) == 1 {
		return nil
	}
	return out
}

// attributeDiff renders a unified diff between the stored and new values.
func attributeDiff(stored, incoming any) string {
	d := difflib.UnifiedDiff{
		A:        difflib.SplitLines(indentedJSON(stored)),
		B:        difflib.SplitLines(indentedJSON(incoming)),
		FromFile: "database",
		ToFile:   "file",
		Context:  2,
	}
	s, err := difflib.GetUnifiedDiffString(d)
	if err != nil {
		return ""
	}
	return s
}

func indentedJSON(v any) string {
	var generic any
	if err := json.Unmarshal([]byte(canonicalJSON(v)), &generic); err != nil {
		return fmt.Sprint(v) + "\n"
	}
	b, err := json.MarshalIndent(generic, "", "  ")
	if err != nil {
		return fmt.Sprint(v) + "\n"
	}
	return string(b) + "\n"
}

// isEmptyValue reports whether v carries no information. False and the
// empty string are values.
func isEmptyValue(v any) bool {
	switch x := v.(type) {
	case nil:
		return true
	case []Ref:
		return len(x) == 0
	case []any:
		return len(x) == 0
	case []string:
		return len(x) == 0
	case map[string]any:
		return len(x) == 0
	case uuid.UUID:
		return x == uuid.Nil
	}
	return false
}

const pageTagsName = "pagetags"

// pageTagsProperty returns the property entity holding non-class page tags.
func pageTagsProperty(id uuid.UUID, now int64) Entity {
	return Entity{
		AttrUUID:         id,
		AttrName:         pageTagsName,
		AttrOriginalName: "pageTags",
		AttrType:         EntityTypeProperty,
		AttrSchema:       PropertySchema{Type: TypePageReference, Cardinality: CardinalityMany},
		AttrJournal:      false,
		AttrFormat:       string(models.FormatMarkdown),
		AttrCreatedAt:    now,
		AttrUpdatedAt:    now,
	}
}

// mergePages folds duplicate page records of one extraction into one record
// per name, preserving first-seen order. Later records fill in what earlier
// ones left empty.
func mergePages(pages []models.RawPage) []models.RawPage {
	index := make(map[string]int, len(pages))
	var out []models.RawPage
	for _, p := range pages {
		name := NormalizeName(p.Name)
		if name == "" {
			continue
		}
		i, ok := index[name]
		if !ok {
			index[name] = len(out)
			out = append(out, p)
			continue
		}
		out[i] = mergePage(out[i], p)
	}
	return out
}

func mergePage(a, b models.RawPage) models.RawPage {
	if a.UUID == uuid.Nil {
		a.UUID = b.UUID
	}
	if a.OriginalName == "" {
		a.OriginalName = b.OriginalName
	}
	if !a.Journal && b.Journal {
		a.Journal, a.JournalDay = true, b.JournalDay
	}
	if len(a.Properties) == 0 {
		a.Properties, a.PropertiesTextValues = b.Properties, b.PropertiesTextValues
	}
	if len(a.Tags) == 0 {
		a.Tags = b.Tags
	}
	if len(a.Alias) == 0 {
		a.Alias = b.Alias
	}
	if a.Namespace == "" {
		a.Namespace = b.Namespace
	}
	a.Whiteboard = a.Whiteboard || b.Whiteboard
	if a.File == "" {
		a.File = b.File
	}
	if a.CreatedAt == 0 {
		a.CreatedAt = b.CreatedAt
	}
	if a.UpdatedAt == 0 {
		a.UpdatedAt = b.UpdatedAt
	}
	return a
}

// userPropertyNames returns the normalized user property names used by the
// extraction's pages and blocks, sorted.
func userPropertyNames(ext *models.Extraction) []string {
	seen := make(map[string]struct{})
	add := func(props map[string]any) {
		for name := range props {
			if IsBuiltInProperty(name) {
				continue
			}
			seen[NormalizeName(name)] = struct{}{}
		}
	}
	for _, p := range ext.Pages {
		add(p.Properties)
	}
	for _, blk := range ext.Blocks {
		add(blk.Properties)
	}
	out := make([]string, 0, len(seen))
	for n := range seen {
		if n != "" {
			out = append(out, n)
		}
	}
	sort.Strings(out)
	return out
}
