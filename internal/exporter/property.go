package exporter

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/K9kd22r8/logseq/internal/apperr"
	"github.com/K9kd22r8/logseq/internal/models"
)

// propertyValue is one property of one block or page being migrated.
type propertyValue struct {
	name  string
	value any
	// text is the value as written in the file, when the extractor kept it.
	text string
}

// migration converts a value whose inferred type conflicts with the
// registered type into a value of the registered type.
type migration func(b *fileBuilder, pv propertyValue) (any, error)

// anyType matches every target type in a migration table entry.
const anyType TypeTag = "*"

// migrations lists the type changes whose values are kept. Any change not
// listed here drops the value and records it in the ignored log.
var migrations = map[TypeChange]migration{
	{From: TypeDefault, To: anyType}:         migrateKeepText,
	{From: TypePageReference, To: TypeDate}: migrateAsPageRefs,
}

func lookupMigration(c TypeChange) (migration, bool) {
	if m, ok := migrations[c]; ok {
		return m, true
	}
	m, ok := migrations[TypeChange{From: c.From, To: anyType}]
	return m, ok
}

func migrateKeepText(_ *fileBuilder, pv propertyValue) (any, error) {
	if pv.text != "" {
		return pv.text, nil
	}
	return scalarText(pv.value), nil
}

func migrateAsPageRefs(b *fileBuilder, pv propertyValue) (any, error) {
	return b.res.PageRefs(valueNames(pv.value))
}

// valueNames returns the page names held by a reference-typed value.
func valueNames(v any) []string {
	if names, isColl, err := stringCollection(v); isColl && err == nil {
		return names
	}
	s := strings.TrimSpace(scalarText(v))
	if s == "" {
		return nil
	}
	return []string{s}
}

// convertValue stores a value whose inferred type matches its schema.
func (b *fileBuilder) convertValue(t TypeTag, pv propertyValue) (any, error) {
	switch t {
	case TypePageReference, TypeDate:
		return b.res.PageRefs(valueNames(pv.value))
	case TypeNumber:
		switch n := pv.value.(type) {
		case float64:
			return n, nil
		case int:
			return float64(n), nil
		case int64:
			return float64(n), nil
		}
		s := strings.TrimSpace(ExpandMacros(scalarText(pv.value), b.opts.Macros))
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, fmt.Errorf("property %q: parse number %q: %w", pv.name, s, err)
		}
		return f, nil
	case TypeBoolean:
		if v, ok := pv.value.(bool); ok {
			return v, nil
		}
		s := strings.TrimSpace(ExpandMacros(scalarText(pv.value), b.opts.Macros))
		v, err := strconv.ParseBool(strings.ToLower(s))
		if err != nil {
			return nil, fmt.Errorf("property %q: parse boolean %q: %w", pv.name, s, err)
		}
		return v, nil
	}
	if pv.text != "" {
		return pv.text, nil
	}
	return scalarText(pv.value), nil
}

// handleProperties migrates a property map. Built-in properties keep their
// fixed types and are only translated; user properties go through type
// inference and, on a type change, through the migration table. It returns
// the stored property map keyed by property id, and every entity the
// properties reference.
func (b *fileBuilder) handleProperties(props map[string]any, text map[string]string, refs []models.PageRef, loc string) (map[string]any, []Ref, error) {
	if len(props) == 0 {
		return nil, nil, nil
	}
	names := make([]string, 0, len(props))
	for name := range props {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make(map[string]any, len(names))
	var used []Ref
	for _, name := range names {
		pv := propertyValue{name: name, value: props[name], text: text[name]}
		if isAttributeProperty(name) {
			continue
		}
		if IsBuiltInProperty(name) {
			v, err := translateBuiltin(b.db, name, pv.value, pv.text)
			if err != nil {
				if !errors.Is(err, apperr.ErrMalformedBuiltinValue) {
					return nil, nil, err
				}
				b.ignore(IgnoredProperty{
					Reason:   apperr.ErrMalformedBuiltinValue,
					Location: loc,
					Property: name,
					Value:    pv.value,
					Detail:   err.Error(),
				})
			}
			if v != nil {
				out[string(BuiltInKey(name))] = v
				used = collectRefs(v, used)
			}
			continue
		}

		key := UserKey(name)
		t, change, err := InferPropertySchema(b.state.Schemas, key, pv.value, refs, b.opts.Macros)
		if err != nil {
			return nil, nil, fmt.Errorf("%s: %w", loc, err)
		}
		propID, err := b.res.PageID(key.Name())
		if err != nil {
			return nil, nil, fmt.Errorf("%s: property %q: %w", loc, name, err)
		}

		var v any
		if change == nil {
			v, err = b.convertValue(t, pv)
		} else if m, ok := lookupMigration(*change); ok {
			v, err = m(b, pv)
		} else {
			b.ignore(IgnoredProperty{
				Reason:   apperr.ErrDiscardedPropertyValue,
				Location: loc,
				Property: name,
				Value:    pv.value,
				Change:   change,
			})
			continue
		}
		if err != nil {
			return nil, nil, err
		}
		out[propID.String()] = v
		used = append(used, RefTo(propID))
		used = collectRefs(v, used)
	}
	return out, used, nil
}
