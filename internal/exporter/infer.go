package exporter

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/K9kd22r8/logseq/internal/apperr"
	"github.com/K9kd22r8/logseq/internal/models"
)

var (
	macroRe  = regexp.MustCompile(`\{\{\s*([^\s{}]+)[^{}]*\}\}`)
	numberRe = regexp.MustCompile(`^[-+]?(\d+\.?\d*|\.\d+)([eE][-+]?\d+)?$`)
)

var urlSchemes = map[string]bool{"http": true, "https": true, "ftp": true, "file": true}

// ExpandMacros replaces every {{name ...}} placeholder whose name is in the
// macro table with the table's value. Unknown macros are left as written.
func ExpandMacros(s string, macros map[string]string) string {
	if len(macros) == 0 || !strings.Contains(s, "{{") {
		return s
	}
	return macroRe.ReplaceAllStringFunc(s, func(m string) string {
		name := macroRe.FindStringSubmatch(m)[1]
		if v, ok := macros[name]; ok {
			return v
		}
		return m
	})
}

// stringCollection reports whether v is a collection and returns its elements.
// Collections holding anything but strings, and maps, are rejected.
func stringCollection(v any) ([]string, bool, error) {
	switch x := v.(type) {
	case []string:
		return x, true, nil
	case []any:
		out := make([]string, 0, len(x))
		for _, item := range x {
			s, ok := item.(string)
			if !ok {
				return nil, true, fmt.Errorf("%w: collection element %v (%T)", apperr.ErrUnsupportedValueShape, item, item)
			}
			out = append(out, s)
		}
		return out, true, nil
	case map[string]any, map[any]any:
		return nil, true, fmt.Errorf("%w: map value", apperr.ErrUnsupportedValueShape)
	}
	return nil, false, nil
}

// InferValueType classifies a scalar value by its shape.
func InferValueType(v any, macros map[string]string) TypeTag {
	switch x := v.(type) {
	case bool:
		return TypeBoolean
	case int, int32, int64, float32, float64:
		return TypeNumber
	case string:
		s := strings.TrimSpace(ExpandMacros(x, macros))
		switch {
		case numberRe.MatchString(s):
			return TypeNumber
		case isBoolLiteral(s):
			return TypeBoolean
		case isURL(s):
			return TypeURL
		}
	}
	return TypeDefault
}

func isBoolLiteral(s string) bool {
	switch strings.ToLower(s) {
	case "true", "false":
		return true
	}
	return false
}

func isURL(s string) bool {
	if strings.ContainsAny(s, " \t\n") {
		return false
	}
	u, err := url.Parse(s)
	if err != nil || !urlSchemes[strings.ToLower(u.Scheme)] {
		return false
	}
	return u.Host != "" || u.Scheme == "file"
}

// inferType classifies value, using refs to learn which names are journals.
func inferType(value any, refs []models.PageRef, macros map[string]string) (TypeTag, error) {
	vals, isColl, err := stringCollection(value)
	if err != nil {
		return "", err
	}
	if !isColl {
		return InferValueType(value, macros), nil
	}
	names := make([]string, len(vals))
	for i, v := range vals {
		names[i] = refName(ExpandMacros(v, macros))
	}
	if len(names) > 0 && allJournals(names, refs) {
		return TypeDate, nil
	}
	return TypePageReference, nil
}

// refName unwraps a [[name]] or #name element to the bare name.
func refName(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "[[") && strings.HasSuffix(s, "]]") {
		return strings.TrimSpace(s[2 : len(s)-2])
	}
	return strings.TrimPrefix(s, "#")
}

func allJournals(names []string, refs []models.PageRef) bool {
	journals := make(map[string]struct{})
	for _, r := range refs {
		if r.Journal {
			journals[NormalizeName(r.Name)] = struct{}{}
		}
	}
	for _, n := range names {
		if _, ok := journals[NormalizeName(n)]; !ok {
			return false
		}
	}
	return true
}

// InferPropertySchema infers the type of value for key. An unseen key is
// registered; reference types are registered with cardinality many since a
// single file cannot prove a property always holds one value. A non-nil
// TypeChange is returned only when the registered type differs.
func InferPropertySchema(reg *SchemaRegistry, key PropertyKey, value any, refs []models.PageRef, macros map[string]string) (TypeTag, *TypeChange, error) {
	t, err := inferType(value, refs, macros)
	if err != nil {
		return "", nil, fmt.Errorf("infer property %q: %w", key, err)
	}
	prev, ok := reg.Get(key)
	if !ok {
		card := CardinalityOne
		if t.IsRef() {
			card = CardinalityMany
		}
		reg.RegisterIfAbsent(key, PropertySchema{Type: t, Cardinality: card})
		return t, nil, nil
	}
	if prev.Type != t {
		return t, &TypeChange{From: prev.Type, To: t}, nil
	}
	return t, nil, nil
}
