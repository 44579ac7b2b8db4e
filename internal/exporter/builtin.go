package exporter

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/K9kd22r8/logseq/internal/apperr"
)

// builtinKind determines how a built-in property value is translated.
type builtinKind int

const (
	builtinText builtinKind = iota
	builtinBoolean
	builtinNumber
	builtinClosed
	builtinLiteral
	// builtinAttribute values become entity attributes, never properties.
	builtinAttribute
)

type builtinProperty struct {
	kind   builtinKind
	closed []string
}

var builtInProperties = map[string]builtinProperty{
	"tags":                      {kind: builtinAttribute},
	"alias":                     {kind: builtinAttribute},
	"title":                     {kind: builtinAttribute},
	"id":                        {kind: builtinAttribute},
	"icon":                      {kind: builtinText},
	"template":                  {kind: builtinText},
	"query-sort-by":             {kind: builtinText},
	"template-including-parent": {kind: builtinBoolean},
	"public":                    {kind: builtinBoolean},
	"collapsed":                 {kind: builtinBoolean},
	"exclude-from-graph-view":   {kind: builtinBoolean},
	"query-table":               {kind: builtinBoolean},
	"query-sort-desc":           {kind: builtinBoolean},
	"hl-page":                   {kind: builtinNumber},
	"hl-stamp":                  {kind: builtinNumber},
	"heading":                   {kind: builtinNumber},
	"filters":                   {kind: builtinLiteral},
	"query-properties":          {kind: builtinLiteral},
	"background-color": {
		kind:   builtinClosed,
		closed: []string{"yellow", "red", "pink", "green", "blue", "purple", "gray"},
	},
	"logseq.order-list-type": {
		kind:   builtinClosed,
		closed: []string{"number", "bullet"},
	},
}

// Stable namespaces for ids derived from names.
var (
	closedValueNamespace = uuid.MustParse("5b0c9a3e-7f1d-4d5e-9c1a-2f6b8e4d7a10")
	propertyNamespace    = uuid.MustParse("a7e3f2c1-0b9d-4e8a-8f6c-3d2b1a0e9c87")
)

// DefaultPageTagsPropertyID is the id of the property holding a page's
// non-class tags when the caller does not assign one.
var DefaultPageTagsPropertyID = uuid.NewSHA1(propertyNamespace, []byte("pagetags"))

// IsBuiltInProperty reports whether name is a built-in property.
func IsBuiltInProperty(name string) bool {
	_, ok := builtInProperties[NormalizeName(name)]
	return ok
}

// isAttributeProperty reports whether name is consumed as an entity attribute.
func isAttributeProperty(name string) bool {
	bp, ok := builtInProperties[NormalizeName(name)]
	return ok && bp.kind == builtinAttribute
}

// ClosedValueID returns the stable id of a closed value of a built-in property.
func ClosedValueID(property, value string) uuid.UUID {
	return uuid.NewSHA1(closedValueNamespace, []byte(NormalizeName(property)+"/"+NormalizeName(value)))
}

// ClosedValue is one allowed value of a built-in closed-value property.
type ClosedValue struct {
	Property PropertyKey
	Value    string
	UUID     uuid.UUID
}

// BuiltInClosedValues lists every closed value the database must hold,
// ordered by property then value.
func BuiltInClosedValues() []ClosedValue {
	names := make([]string, 0, len(builtInProperties))
	for name, bp := range builtInProperties {
		if bp.kind == builtinClosed {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	var out []ClosedValue
	for _, name := range names {
		for _, v := range builtInProperties[name].closed {
			out = append(out, ClosedValue{Property: BuiltInKey(name), Value: v, UUID: ClosedValueID(name, v)})
		}
	}
	return out
}

// ClosedValueEntity returns the entity stored for a closed value.
func ClosedValueEntity(cv ClosedValue) Entity {
	return Entity{
		AttrUUID:    cv.UUID,
		AttrType:    EntityTypeClosed,
		AttrContent: cv.Value,
		AttrProperties: map[string]any{
			string(BuiltInKey("closed-value-property")): string(cv.Property),
		},
	}
}

// translateBuiltin converts a built-in property value to its stored form.
// On a malformed value it returns the fallback to store (nil to drop the
// property) together with an error wrapping ErrMalformedBuiltinValue.
func translateBuiltin(db Reader, name string, value any, text string) (any, error) {
	bp := builtInProperties[NormalizeName(name)]
	raw := text
	if raw == "" {
		raw = scalarText(value)
	}
	raw = strings.TrimSpace(raw)

	switch bp.kind {
	case builtinBoolean:
		if b, ok := value.(bool); ok {
			return b, nil
		}
		b, err := strconv.ParseBool(strings.ToLower(raw))
		if err != nil {
			return nil, fmt.Errorf("%w: %s=%q is not a boolean", apperr.ErrMalformedBuiltinValue, name, raw)
		}
		return b, nil
	case builtinNumber:
		switch n := value.(type) {
		case int:
			return float64(n), nil
		case int64:
			return float64(n), nil
		case float64:
			return n, nil
		}
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: %s=%q is not a number", apperr.ErrMalformedBuiltinValue, name, raw)
		}
		return f, nil
	case builtinClosed:
		id := ClosedValueID(name, raw)
		_, ok, err := db.EntityByUUID(id)
		if err != nil {
			return nil, fmt.Errorf("lookup closed value %s=%q: %w", name, raw, err)
		}
		if !ok {
			return nil, fmt.Errorf("%w: %s=%q is not an allowed value", apperr.ErrMalformedBuiltinValue, name, raw)
		}
		return RefTo(id), nil
	case builtinLiteral:
		var decoded any
		if err := yaml.Unmarshal([]byte(raw), &decoded); err != nil {
			return map[string]any{}, fmt.Errorf("%w: %s: %v", apperr.ErrMalformedBuiltinValue, name, err)
		}
		switch decoded.(type) {
		case map[string]any, []any:
			return decoded, nil
		}
		return map[string]any{}, fmt.Errorf("%w: %s=%q is not a map or list literal", apperr.ErrMalformedBuiltinValue, name, raw)
	}
	return raw, nil
}

// scalarText renders a property value as the text a user would have typed.
func scalarText(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case []string:
		return strings.Join(x, ", ")
	case []any:
		parts := make([]string, 0, len(x))
		for _, item := range x {
			parts = append(parts, scalarText(item))
		}
		return strings.Join(parts, ", ")
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	}
	return fmt.Sprint(v)
}
