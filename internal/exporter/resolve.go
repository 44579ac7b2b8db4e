package exporter

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"

	"github.com/K9kd22r8/logseq/internal/apperr"
	"github.com/K9kd22r8/logseq/internal/models"
)

// Reader is the database read boundary.
type Reader interface {
	// PageByName returns the page entity with the given normalized name.
	PageByName(name string) (Entity, bool, error)
	// EntityByUUID returns the entity with the given stable id.
	EntityByUUID(id uuid.UUID) (Entity, bool, error)
}

// RefPrefix marks an id-based reference inside rewritten block content.
const RefPrefix = "~^"

var (
	contentPageRefRe = regexp.MustCompile(`\[\[([^\[\]]+)\]\]`)
	contentTagRe     = regexp.MustCompile(`(^|\s)#(\[\[([^\[\]]+)\]\]|[^\s#\[\],.!?;:"'()]+)`)
	contentIDRefRe   = regexp.MustCompile(`\[\[` + regexp.QuoteMeta(RefPrefix) + `([0-9a-f-]{36})\]\]`)
)

type resolveMode int

const (
	modeNormal resolveMode = iota
	// modeWhiteboard resolves names only against the database and the pages
	// the whiteboard file itself defines.
	modeWhiteboard
)

// resolver maps page names to stable ids for one file. The same resolver
// serves structural references and content rewriting in a pass.
type resolver struct {
	db         Reader
	mode       resolveMode
	newIDs     map[string]uuid.UUID
	existing   map[string]Entity
	missing    map[string]struct{}
	classes    map[string]uuid.UUID
	tagClasses map[string]struct{}
	now        int64
}

func newResolver(db Reader, mode resolveMode, tagClasses []string, now int64) *resolver {
	tc := make(map[string]struct{}, len(tagClasses))
	for _, t := range tagClasses {
		tc[NormalizeName(t)] = struct{}{}
	}
	return &resolver{
		db:         db,
		mode:       mode,
		newIDs:     make(map[string]uuid.UUID),
		existing:   make(map[string]Entity),
		missing:    make(map[string]struct{}),
		classes:    make(map[string]uuid.UUID),
		tagClasses: tc,
		now:        now,
	}
}

// existingPage looks a page up in the database, caching hits and misses.
func (r *resolver) existingPage(name string) (Entity, bool, error) {
	if e, ok := r.existing[name]; ok {
		return e, true, nil
	}
	if _, ok := r.missing[name]; ok {
		return nil, false, nil
	}
	e, ok, err := r.db.PageByName(name)
	if err != nil {
		return nil, false, fmt.Errorf("lookup page %q: %w", name, err)
	}
	if !ok {
		r.missing[name] = struct{}{}
		return nil, false, nil
	}
	if _, hasID := e.UUID(); !hasID {
		return nil, false, fmt.Errorf("page %q has no uuid", name)
	}
	r.existing[name] = e
	return e, true, nil
}

// assign records a fresh id for a page the current file creates.
func (r *resolver) assign(name string, id uuid.UUID) {
	r.newIDs[NormalizeName(name)] = id
}

// PageID resolves a page name to its stable id.
func (r *resolver) PageID(name string) (uuid.UUID, error) {
	key := NormalizeName(name)
	if r.mode == modeNormal {
		if id, ok := r.newIDs[key]; ok {
			return id, nil
		}
	}
	e, ok, err := r.existingPage(key)
	if err != nil {
		return uuid.Nil, err
	}
	if ok {
		id, _ := e.UUID()
		return id, nil
	}
	if r.mode == modeWhiteboard {
		if id, ok := r.newIDs[key]; ok {
			return id, nil
		}
	}
	return uuid.Nil, fmt.Errorf("%w: page %q", apperr.ErrUnresolvedReference, name)
}

// PageRefs resolves each name to a ref.
func (r *resolver) PageRefs(names []string) ([]Ref, error) {
	out := make([]Ref, 0, len(names))
	for _, n := range names {
		id, err := r.PageID(n)
		if err != nil {
			return nil, err
		}
		out = append(out, RefTo(id))
	}
	return sortedRefs(out), nil
}

// IsTagClass reports whether name is configured to become a class.
func (r *resolver) IsTagClass(name string) bool {
	_, ok := r.tagClasses[NormalizeName(name)]
	return ok
}

// PromoteTag returns the class id for a tag-class name. The returned entity
// is non-nil only the first time a class needs to be written in this file:
// a brand-new class, or an existing page that must be marked as a class.
func (r *resolver) PromoteTag(name string) (uuid.UUID, Entity, error) {
	key := NormalizeName(name)
	if id, ok := r.classes[key]; ok {
		return id, nil, nil
	}
	e, ok, err := r.existingPage(key)
	if err != nil {
		return uuid.Nil, nil, err
	}
	if ok {
		id, _ := e.UUID()
		r.classes[key] = id
		if entityType(e) == EntityTypeClass {
			return id, nil, nil
		}
		return id, Entity{AttrID: RefTo(id), AttrType: EntityTypeClass}, nil
	}
	id, ok := r.newIDs[key]
	if !ok {
		id, err = uuid.NewV7()
		if err != nil {
			return uuid.Nil, nil, fmt.Errorf("generating class id: %w", err)
		}
		r.newIDs[key] = id
	}
	r.classes[key] = id
	return id, r.newClass(id, name), nil
}

func (r *resolver) newClass(id uuid.UUID, name string) Entity {
	return Entity{
		AttrUUID:         id,
		AttrName:         NormalizeName(name),
		AttrOriginalName: strings.TrimSpace(name),
		AttrType:         EntityTypeClass,
		AttrJournal:      false,
		AttrFormat:       string(models.FormatMarkdown),
		AttrCreatedAt:    r.now,
		AttrUpdatedAt:    r.now,
	}
}

// RewriteContent replaces page references and tags in content with id-based
// placeholders. Tags promoted to classes are removed from the text.
func (r *resolver) RewriteContent(content string) (string, error) {
	var firstErr error
	stripped := false
	out := contentTagRe.ReplaceAllStringFunc(content, func(m string) string {
		sub := contentTagRe.FindStringSubmatch(m)
		lead, name := sub[1], sub[2]
		if sub[3] != "" {
			name = sub[3]
		}
		if strings.HasPrefix(name, RefPrefix) {
			return m
		}
		if r.IsTagClass(name) {
			stripped = true
			// the tag goes with its leading blank; line breaks stay
			if lead == " " || lead == "\t" {
				return ""
			}
			return lead
		}
		id, err := r.PageID(name)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			return m
		}
		return lead + "#[[" + RefPrefix + id.String() + "]]"
	})
	out = contentPageRefRe.ReplaceAllStringFunc(out, func(m string) string {
		name := contentPageRefRe.FindStringSubmatch(m)[1]
		if strings.HasPrefix(name, RefPrefix) {
			return m
		}
		id, err := r.PageID(name)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			return m
		}
		return "[[" + RefPrefix + id.String() + "]]"
	})
	if firstErr != nil {
		return "", firstErr
	}
	if stripped {
		out = strings.TrimSpace(out)
	}
	return out, nil
}

// ContentRefIDs returns the ids referenced by placeholders in content.
func ContentRefIDs(content string) []uuid.UUID {
	var out []uuid.UUID
	for _, m := range contentIDRefRe.FindAllStringSubmatch(content, -1) {
		if id, err := uuid.Parse(m[1]); err == nil {
			out = append(out, id)
		}
	}
	return out
}

func entityType(e Entity) string {
	s, _ := e[AttrType].(string)
	return s
}
