package exporter

// SchemaEntry pairs a property key with its registered schema.
type SchemaEntry struct {
	Key    PropertyKey    `json:"key"`
	Schema PropertySchema `json:"schema"`
}

// Checkpoint marks a position in the registry's registration history.
type Checkpoint int

// SchemaRegistry accumulates the first observed schema of every property in
// an import session. Entries are never changed or removed.
type SchemaRegistry struct {
	schemas map[PropertyKey]PropertySchema
	order   []PropertyKey
}

// NewSchemaRegistry returns an empty registry.
func NewSchemaRegistry() *SchemaRegistry {
	return &SchemaRegistry{schemas: make(map[PropertyKey]PropertySchema)}
}

// Get returns the registered schema for key.
func (r *SchemaRegistry) Get(key PropertyKey) (PropertySchema, bool) {
	s, ok := r.schemas[key]
	return s, ok
}

// RegisterIfAbsent records schema for key unless key is already registered.
// It reports whether the schema was recorded.
func (r *SchemaRegistry) RegisterIfAbsent(key PropertyKey, schema PropertySchema) bool {
	if _, ok := r.schemas[key]; ok {
		return false
	}
	r.schemas[key] = schema
	r.order = append(r.order, key)
	return true
}

// Checkpoint returns the current position for a later DiffSince.
func (r *SchemaRegistry) Checkpoint() Checkpoint {
	return Checkpoint(len(r.order))
}

// DiffSince returns the entries registered after cp, in registration order.
func (r *SchemaRegistry) DiffSince(cp Checkpoint) []SchemaEntry {
	if int(cp) >= len(r.order) {
		return nil
	}
	if cp < 0 {
		cp = 0
	}
	out := make([]SchemaEntry, 0, len(r.order)-int(cp))
	for _, k := range r.order[cp:] {
		out = append(out, SchemaEntry{Key: k, Schema: r.schemas[k]})
	}
	return out
}

// All returns every entry in registration order.
func (r *SchemaRegistry) All() []SchemaEntry {
	return r.DiffSince(0)
}

// Len returns the number of registered properties.
func (r *SchemaRegistry) Len() int {
	return len(r.order)
}
