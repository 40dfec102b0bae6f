package entity

// Schema is the explicit per-entity-type descriptor table. Every entity
// package builds exactly one Schema at init time and shares it across
// all instances of that entity.
type Schema struct {
	name   string
	order  []string
	fields map[string]Field
}

// NewSchema returns an empty schema for the named entity type.
func NewSchema(name string) *Schema {
	return &Schema{name: name, fields: make(map[string]Field)}
}

// Add registers a field descriptor under the given name. Registering
// the same name twice panics; schemas are assembled once at init.
func (s *Schema) Add(name string, f Field) *Schema {
	if _, dup := s.fields[name]; dup {
		panic("entity: duplicate field " + name + " in schema " + s.name)
	}
	s.order = append(s.order, name)
	s.fields[name] = f
	return s
}

// Name returns the entity type name, used in error messages and
// equality checks.
func (s *Schema) Name() string { return s.name }

// Field returns the descriptor for name, or nil.
func (s *Schema) Field(name string) Field { return s.fields[name] }

// FieldNames returns field names in declaration order.
func (s *Schema) FieldNames() []string {
	out := make([]string, len(s.order))
	copy(out, s.order)
	return out
}
