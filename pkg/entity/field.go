package entity

import (
	"fmt"
	"regexp"
	"time"
)

// Field describes a single entity attribute: how raw assignments are
// validated and coerced into the stored form, how the stored form is
// exposed back to callers, and whether the attribute may be assigned
// at all.
type Field interface {
	// Correct validates a caller-supplied value and returns the value
	// to store, or an *InvalidFieldError / *ReadOnlyFieldError.
	Correct(name string, value any) (any, error)

	// Proofread converts the stored value into the exposed value.
	Proofread(stored any) any

	// Default returns the initial stored value for a fresh entity.
	Default() any

	// ReadOnly reports whether callers may assign the field. Providers
	// bypass this through Entity.SetDirect.
	ReadOnly() bool

	// Required reports whether Create fails when the field is unset.
	Required() bool
}

type baseField struct {
	def      any
	required bool
	readOnly bool
}

func (f baseField) Default() any   { return f.def }
func (f baseField) Required() bool { return f.required }
func (f baseField) ReadOnly() bool { return f.readOnly }

func (f baseField) Proofread(stored any) any { return stored }

// StringField validates string attributes with optional length bounds.
type StringField struct {
	baseField
	minLen int
	maxLen int // 0 means unbounded
}

// String returns a new optional string field with no length bounds.
func String() *StringField { return &StringField{} }

func (f *StringField) Min(n int) *StringField    { f.minLen = n; return f }
func (f *StringField) Max(n int) *StringField    { f.maxLen = n; return f }
func (f *StringField) Require() *StringField     { f.required = true; return f }
func (f *StringField) Def(v string) *StringField { f.def = v; return f }
func (f *StringField) AsReadOnly() *StringField  { f.readOnly = true; return f }
func (f *StringField) check(name, s string) error {
	if len(s) < f.minLen {
		return &InvalidFieldError{Field: name, Reason: fmt.Sprintf("shorter than %d characters", f.minLen)}
	}
	if f.maxLen > 0 && len(s) > f.maxLen {
		return &InvalidFieldError{Field: name, Reason: fmt.Sprintf("longer than %d characters", f.maxLen)}
	}
	return nil
}

func (f *StringField) Correct(name string, value any) (any, error) {
	if f.readOnly {
		return nil, &ReadOnlyFieldError{Field: name}
	}
	if value == nil {
		if f.def == nil && !f.required {
			return nil, nil
		}
		return nil, &InvalidFieldError{Field: name, Reason: "must not be nil"}
	}
	s, ok := value.(string)
	if !ok {
		return nil, &InvalidFieldError{Field: name, Reason: "must be a string"}
	}
	if err := f.check(name, s); err != nil {
		return nil, err
	}
	return s, nil
}

// aliasPattern admits letters, digits, dots, underscores and hyphens.
var aliasPattern = regexp.MustCompile(`^[A-Za-z0-9._-]+$`)

// AliasField is a StringField restricted to the alias character set.
type AliasField struct {
	StringField
}

// Alias returns a new alias field with the given length bounds.
func Alias(minLen, maxLen int) *AliasField {
	f := &AliasField{}
	f.minLen = minLen
	f.maxLen = maxLen
	return f
}

func (f *AliasField) Require() *AliasField { f.required = true; return f }

func (f *AliasField) Correct(name string, value any) (any, error) {
	v, err := f.StringField.Correct(name, value)
	if err != nil || v == nil {
		return v, err
	}
	if !aliasPattern.MatchString(v.(string)) {
		return nil, &InvalidFieldError{Field: name, Reason: "contains characters outside [A-Za-z0-9._-]"}
	}
	return v, nil
}

// IntField validates integer attributes with optional value bounds.
type IntField struct {
	baseField
	min *int64
	max *int64
}

// Int returns a new optional integer field.
func Int() *IntField { return &IntField{} }

func (f *IntField) MinValue(n int64) *IntField { f.min = &n; return f }
func (f *IntField) MaxValue(n int64) *IntField { f.max = &n; return f }
func (f *IntField) Require() *IntField         { f.required = true; return f }
func (f *IntField) Def(v int64) *IntField      { f.def = v; return f }

func (f *IntField) Correct(name string, value any) (any, error) {
	if f.readOnly {
		return nil, &ReadOnlyFieldError{Field: name}
	}
	if value == nil {
		if f.def == nil && !f.required {
			return nil, nil
		}
		return nil, &InvalidFieldError{Field: name, Reason: "must not be nil"}
	}
	var n int64
	switch v := value.(type) {
	case int:
		n = int64(v)
	case int64:
		n = v
	default:
		return nil, &InvalidFieldError{Field: name, Reason: "must be an integer"}
	}
	if f.min != nil && n < *f.min {
		return nil, &InvalidFieldError{Field: name, Reason: fmt.Sprintf("less than %d", *f.min)}
	}
	if f.max != nil && n > *f.max {
		return nil, &InvalidFieldError{Field: name, Reason: fmt.Sprintf("greater than %d", *f.max)}
	}
	return n, nil
}

// BoolField validates boolean attributes.
type BoolField struct {
	baseField
}

// Bool returns a new boolean field defaulting to false.
func Bool() *BoolField { return &BoolField{baseField{def: false}} }

func (f *BoolField) Def(v bool) *BoolField  { f.def = v; return f }
func (f *BoolField) AsReadOnly() *BoolField { f.readOnly = true; return f }

func (f *BoolField) Correct(name string, value any) (any, error) {
	if f.readOnly {
		return nil, &ReadOnlyFieldError{Field: name}
	}
	b, ok := value.(bool)
	if !ok {
		return nil, &InvalidFieldError{Field: name, Reason: "must be a boolean"}
	}
	return b, nil
}

// DateTimeField validates time attributes.
type DateTimeField struct {
	baseField
}

// DateTime returns a new optional time field.
func DateTime() *DateTimeField { return &DateTimeField{} }

func (f *DateTimeField) AsReadOnly() *DateTimeField { f.readOnly = true; return f }

func (f *DateTimeField) Correct(name string, value any) (any, error) {
	if f.readOnly {
		return nil, &ReadOnlyFieldError{Field: name}
	}
	if value == nil {
		return nil, nil
	}
	t, ok := value.(time.Time)
	if !ok {
		return nil, &InvalidFieldError{Field: name, Reason: "must be a time.Time"}
	}
	return t, nil
}

// ReadOnlyField rejects every assignment. Providers fill the value
// through SetDirect.
type ReadOnlyField struct {
	baseField
}

// ReadOnly returns a new read-only field.
func ReadOnly() *ReadOnlyField {
	f := &ReadOnlyField{}
	f.readOnly = true
	return f
}

func (f *ReadOnlyField) Def(v any) *ReadOnlyField { f.def = v; return f }

func (f *ReadOnlyField) Correct(name string, value any) (any, error) {
	return nil, &ReadOnlyFieldError{Field: name}
}

// Referencer is the minimal view of an entity a RelatedField needs to
// accept it as a foreign value.
type Referencer interface {
	ID() int64
	State() State
}

// RelatedField stores only the id of a referenced entity. Unsaved
// foreign entities are rejected; resolution back to an object happens
// on demand through the owning package's reader.
type RelatedField struct {
	baseField
}

// Related returns a new related-entity field.
func Related() *RelatedField { return &RelatedField{} }

func (f *RelatedField) Require() *RelatedField { f.required = true; return f }

func (f *RelatedField) Correct(name string, value any) (any, error) {
	if f.readOnly {
		return nil, &ReadOnlyFieldError{Field: name}
	}
	switch v := value.(type) {
	case nil:
		return nil, nil
	case int64:
		return v, nil
	case Referencer:
		if v.State() == Creating || v.State() == Deleted || v.ID() == 0 {
			return nil, &InvalidFieldError{Field: name, Reason: "refers to an entity that has not been saved"}
		}
		return v.ID(), nil
	default:
		return nil, &InvalidFieldError{Field: name, Reason: "must be a saved entity"}
	}
}

// ManagedField yields a value manager instead of a raw value. The
// manager mutates one or more underlying raw fields and dirty-marks the
// entity through NotifyFieldChanged.
type ManagedField struct {
	baseField
	newManager func(e *Entity, name string) any
}

// Managed returns a field whose reads produce ctor(entity, fieldName).
func Managed(ctor func(e *Entity, name string) any) *ManagedField {
	return &ManagedField{newManager: ctor}
}

func (f *ManagedField) Correct(name string, value any) (any, error) {
	return nil, &ReadOnlyFieldError{Field: name}
}

func (f *ManagedField) manager(e *Entity, name string) any {
	return f.newManager(e, name)
}
