// Package exporter converts extracted file-graph pages and blocks into
// transactions for the typed, property-based graph database.
//
// One ImportState is created per import session and threaded through every
// call to AddFileToDBGraph. Files must be imported one at a time: the property
// schema registry inside the state is serially dependent across files.
package exporter

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
)

// TypeTag is the semantic type inferred for a property.
type TypeTag string

const (
	TypeDefault       TypeTag = "default"
	TypeNumber        TypeTag = "number"
	TypeBoolean       TypeTag = "boolean"
	TypeURL           TypeTag = "url"
	TypePageReference TypeTag = "page-reference"
	TypeDate          TypeTag = "date"
)

var validTypeTags = map[TypeTag]bool{
	TypeDefault:       true,
	TypeNumber:        true,
	TypeBoolean:       true,
	TypeURL:           true,
	TypePageReference: true,
	TypeDate:          true,
}

// IsValidTypeTag reports whether t is a recognized type tag.
func IsValidTypeTag(t TypeTag) bool {
	return validTypeTags[t]
}

// IsRef reports whether values of this type are stored as entity references.
func (t TypeTag) IsRef() bool {
	return t == TypePageReference || t == TypeDate
}

// Cardinality is the number of values a property holds.
type Cardinality string

const (
	CardinalityOne  Cardinality = "one"
	CardinalityMany Cardinality = "many"
)

// PropertySchema is the registered shape of a property.
type PropertySchema struct {
	Type        TypeTag     `json:"type"`
	Cardinality Cardinality `json:"cardinality"`
}

// TypeChange reports that a property was observed with a type different from
// the one registered for it.
type TypeChange struct {
	From TypeTag `json:"from"`
	To   TypeTag `json:"to"`
}

func (c TypeChange) String() string {
	return fmt.Sprintf("%s -> %s", c.From, c.To)
}

// PropertyKey identifies a property. User properties are keyed by their
// normalized name; built-in properties live under a fixed namespace.
type PropertyKey string

const builtInNamespace = "logseq.property/"

// UserKey returns the key for a user property name.
func UserKey(name string) PropertyKey {
	return PropertyKey(NormalizeName(name))
}

// BuiltInKey returns the key for a built-in property name.
func BuiltInKey(name string) PropertyKey {
	return PropertyKey(builtInNamespace + NormalizeName(name))
}

// IsBuiltIn reports whether k names a built-in property.
func (k PropertyKey) IsBuiltIn() bool {
	return strings.HasPrefix(string(k), builtInNamespace)
}

// Name returns the property name without its namespace.
func (k PropertyKey) Name() string {
	return strings.TrimPrefix(string(k), builtInNamespace)
}

// NormalizeName returns the lookup form of a page or property name.
func NormalizeName(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// Entity attributes.
const (
	AttrID           = "db/id"
	AttrUUID         = "block/uuid"
	AttrName         = "block/name"
	AttrOriginalName = "block/original-name"
	AttrContent      = "block/content"
	AttrPage         = "block/page"
	AttrParent       = "block/parent"
	AttrLeft         = "block/left"
	AttrJournal      = "block/journal?"
	AttrJournalDay   = "block/journal-day"
	AttrFormat       = "block/format"
	AttrCreatedAt    = "block/created-at"
	AttrUpdatedAt    = "block/updated-at"
	AttrProperties   = "block/properties"
	AttrRefs         = "block/refs"
	AttrTags         = "block/tags"
	AttrAlias        = "block/alias"
	AttrNamespace    = "block/namespace"
	AttrType         = "block/type"
	AttrSchema       = "block/schema"
	AttrMacros       = "block/macros"
	AttrFile         = "block/file"
)

// Entity types stored under AttrType.
const (
	EntityTypeClass      = "class"
	EntityTypeProperty   = "property"
	EntityTypeWhiteboard = "whiteboard"
	EntityTypeMacro      = "macro"
	EntityTypeClosed     = "closed value"
)

// Ref points at another entity by its stable id.
type Ref struct {
	UUID uuid.UUID
}

// RefTo returns a Ref for id.
func RefTo(id uuid.UUID) Ref { return Ref{UUID: id} }

type refJSON struct {
	Ref uuid.UUID `json:"ref"`
}

// MarshalJSON encodes the ref as {"ref": "<uuid>"}.
func (r Ref) MarshalJSON() ([]byte, error) {
	return json.Marshal(refJSON{Ref: r.UUID})
}

// UnmarshalJSON decodes {"ref": "<uuid>"}.
func (r *Ref) UnmarshalJSON(data []byte) error {
	var v refJSON
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	r.UUID = v.Ref
	return nil
}

// Entity is one entity-attribute map of a transaction.
type Entity map[string]any

// UUID returns the entity's own id, taken from block/uuid or db/id.
func (e Entity) UUID() (uuid.UUID, bool) {
	switch v := e[AttrUUID].(type) {
	case uuid.UUID:
		return v, true
	}
	if r, ok := e[AttrID].(Ref); ok {
		return r.UUID, true
	}
	return uuid.Nil, false
}

// Attrs returns the entity's attribute names, excluding db/id, sorted.
func (e Entity) Attrs() []string {
	out := make([]string, 0, len(e))
	for k := range e {
		if k == AttrID {
			continue
		}
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Transaction is the ordered list of entity maps applied atomically.
type Transaction []Entity

// Refs walks every Ref reachable from the entity's attribute values.
func (e Entity) Refs() []Ref {
	var out []Ref
	for k, v := range e {
		if k == AttrID {
			continue
		}
		out = collectRefs(v, out)
	}
	return out
}

func collectRefs(v any, out []Ref) []Ref {
	switch x := v.(type) {
	case Ref:
		out = append(out, x)
	case []Ref:
		out = append(out, x...)
	case []any:
		for _, item := range x {
			out = collectRefs(item, out)
		}
	case map[string]any:
		for _, item := range x {
			out = collectRefs(item, out)
		}
	}
	return out
}

// sortedRefs returns refs deduplicated and sorted by uuid.
func sortedRefs(refs []Ref) []Ref {
	if len(refs) == 0 {
		return nil
	}
	seen := make(map[uuid.UUID]struct{}, len(refs))
	out := make([]Ref, 0, len(refs))
	for _, r := range refs {
		if _, ok := seen[r.UUID]; ok {
			continue
		}
		seen[r.UUID] = struct{}{}
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].UUID.String() < out[j].UUID.String()
	})
	return out
}

// DecodeEntity parses an entity map stored as JSON. Nested {"ref": id}
// objects become Refs and block/uuid becomes a uuid.UUID.
func DecodeEntity(data []byte) (Entity, error) {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode entity: %w", err)
	}
	e := make(Entity, len(raw))
	for k, v := range raw {
		e[k] = decodeValue(v)
	}
	if s, ok := e[AttrUUID].(string); ok {
		id, err := uuid.Parse(s)
		if err != nil {
			return nil, fmt.Errorf("decode entity: %s: %w", AttrUUID, err)
		}
		e[AttrUUID] = id
	}
	return e, nil
}

func decodeValue(v any) any {
	switch x := v.(type) {
	case map[string]any:
		if len(x) == 1 {
			if s, ok := x["ref"].(string); ok {
				if id, err := uuid.Parse(s); err == nil {
					return RefTo(id)
				}
			}
		}
		out := make(map[string]any, len(x))
		for k, item := range x {
			out[k] = decodeValue(item)
		}
		return out
	case []any:
		refs := make([]Ref, 0, len(x))
		out := make([]any, len(x))
		for i, item := range x {
			out[i] = decodeValue(item)
			if r, ok := out[i].(Ref); ok {
				refs = append(refs, r)
			}
		}
		if len(x) > 0 && len(refs) == len(x) {
			return refs
		}
		return out
	}
	return v
}

// canonicalJSON renders v so that equal values render identically.
// encoding/json sorts map keys, so maps compare by content.
func canonicalJSON(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%#v", v)
	}
	// Round-trip through a generic value so that []Ref and []any of the same
	// refs, or int and float64 of the same number, render the same way.
	var generic any
	if err := json.Unmarshal(b, &generic); err != nil {
		return string(b)
	}
	b, _ = json.Marshal(generic)
	return string(b)
}

func sameValue(a, b any) bool {
	return canonicalJSON(a) == canonicalJSON(b)
}
