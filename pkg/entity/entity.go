package entity

import (
	"context"
	"database/sql"
	"fmt"
)

// State is the lifecycle position of an entity.
type State int

const (
	// Creating is a fresh entity that has never been persisted.
	Creating State = iota
	// Loaded was materialised from storage and not modified since.
	Loaded
	// Saved has been written and carries no pending edits.
	Saved
	// Changed carries field edits that Update has not flushed yet.
	Changed
	// Deleted has been removed; every further operation fails.
	Deleted
)

func (s State) String() string {
	switch s {
	case Creating:
		return "creating"
	case Loaded:
		return "loaded"
	case Saved:
		return "saved"
	case Changed:
		return "changed"
	case Deleted:
		return "deleted"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Entity is the uniform persistence core. Concrete entity types embed a
// *Entity and expose typed accessors that delegate to GetField and
// SetField.
type Entity struct {
	schema    *Schema
	id        int64
	state     State
	values    map[string]any
	edited    map[string]struct{}
	originals map[string]any
	providers []Provider
	db        TxBeginner
}

// New returns a fresh entity in the Creating state with every field at
// its descriptor default.
func New(schema *Schema, db TxBeginner, providers ...Provider) *Entity {
	e := &Entity{
		schema:    schema,
		state:     Creating,
		values:    make(map[string]any),
		edited:    make(map[string]struct{}),
		originals: make(map[string]any),
		providers: providers,
		db:        db,
	}
	for _, name := range schema.FieldNames() {
		e.values[name] = schema.Field(name).Default()
	}
	return e
}

// Wrap returns an entity in the Loaded state around values a provider
// read from its backend. Used by readers and by LoadEntity.
func Wrap(schema *Schema, db TxBeginner, id int64, values map[string]any, providers ...Provider) *Entity {
	e := New(schema, db, providers...)
	e.id = id
	e.state = Loaded
	for name, v := range values {
		e.values[name] = v
	}
	return e
}

// Schema returns the descriptor table of this entity type.
func (e *Entity) Schema() *Schema { return e.schema }

// ID returns the authoritative identifier, 0 before the first Create.
func (e *Entity) ID() int64 { return e.id }

// State returns the current lifecycle state.
func (e *Entity) State() State { return e.state }

// SetID is called by the authoritative provider after an insert.
func (e *Entity) SetID(id int64) { e.id = id }

// Equal reports entity identity: same type and same persisted id.
// Entities still in the Creating state equal only themselves.
func (e *Entity) Equal(other *Entity) bool {
	if other == nil || e.schema != other.schema {
		return false
	}
	if e.state == Creating || other.state == Creating {
		return e == other
	}
	return e.id == other.id
}

// GetField returns the exposed value of a field. Managed fields yield
// their value manager instead of a raw value.
func (e *Entity) GetField(name string) (any, error) {
	f := e.schema.Field(name)
	if f == nil {
		return nil, fmt.Errorf("entity %s has no field %q", e.schema.Name(), name)
	}
	if mf, ok := f.(*ManagedField); ok {
		return mf.manager(e, name), nil
	}
	return f.Proofread(e.values[name]), nil
}

// SetField validates value through the descriptor, stores the corrected
// form and dirty-marks the field.
func (e *Entity) SetField(name string, value any) error {
	if e.state == Deleted {
		return ErrOperationNotPermitted
	}
	f := e.schema.Field(name)
	if f == nil {
		return fmt.Errorf("entity %s has no field %q", e.schema.Name(), name)
	}
	corrected, err := f.Correct(name, value)
	if err != nil {
		return err
	}
	if _, seen := e.originals[name]; !seen {
		e.originals[name] = e.values[name]
	}
	e.values[name] = corrected
	e.NotifyFieldChanged(name)
	return nil
}

// Original returns the value a field held before the first pending
// edit. Providers use it to locate backend objects under their old
// natural key (e.g. a login rename).
func (e *Entity) Original(name string) (any, bool) {
	v, ok := e.originals[name]
	return v, ok
}

// SetDirect stores a value bypassing descriptor correction and dirty
// tracking. Reserved for providers copying backend truth into the
// entity (read-only names, home directories, unix groups).
func (e *Entity) SetDirect(name string, value any) {
	e.values[name] = value
}

// Raw returns the stored (corrected) value without proofreading.
// Providers use it when translating the entity to their backend.
func (e *Entity) Raw(name string) any { return e.values[name] }

// NotifyFieldChanged dirty-marks a field; value managers call it after
// mutating a stored value behind SetDirect.
func (e *Entity) NotifyFieldChanged(name string) {
	e.edited[name] = struct{}{}
	if e.state == Loaded || e.state == Saved {
		e.state = Changed
	}
}

// EditedFields reports the dirty field names in schema order.
func (e *Entity) EditedFields() []string {
	var out []string
	for _, name := range e.schema.FieldNames() {
		if _, ok := e.edited[name]; ok {
			out = append(out, name)
		}
	}
	return out
}

// WasEdited reports whether the named field carries a pending edit.
func (e *Entity) WasEdited(name string) bool {
	_, ok := e.edited[name]
	return ok
}

func (e *Entity) checkProviders() error {
	if len(e.providers) == 0 {
		return ErrProvidersNotDefined
	}
	return nil
}

func (e *Entity) checkRequired() error {
	for _, name := range e.schema.FieldNames() {
		f := e.schema.Field(name)
		if f.Required() && e.values[name] == nil {
			return &FieldRequiredError{Field: name}
		}
	}
	return nil
}

// transact opens one transaction and runs fn over every provider in
// declaration order. Providers running after the authoritative first
// one may copy backend truth (home directory, unix group) back into
// the entity; any field dirtied during the fan-out is flushed through
// the first provider before committing so the relational row carries
// it. Any provider error rolls the transaction back; no relational
// side effect survives.
func (e *Entity) transact(ctx context.Context, fn func(ctx context.Context, tx *sql.Tx, p Provider) error) error {
	before := make(map[string]struct{}, len(e.edited))
	for name := range e.edited {
		before[name] = struct{}{}
	}
	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	for _, p := range e.providers {
		if err := fn(ctx, tx, p); err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	if e.dirtiedSince(before) {
		if err := e.providers[0].UpdateEntity(ctx, tx, e); err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (e *Entity) dirtiedSince(before map[string]struct{}) bool {
	for name := range e.edited {
		if _, ok := before[name]; !ok {
			return true
		}
	}
	return false
}

// Create persists a Creating entity through every provider.
func (e *Entity) Create(ctx context.Context) error {
	if e.state != Creating {
		return ErrOperationNotPermitted
	}
	if err := e.checkProviders(); err != nil {
		return err
	}
	if err := e.checkRequired(); err != nil {
		return err
	}
	err := e.transact(ctx, func(ctx context.Context, tx *sql.Tx, p Provider) error {
		existing, err := p.LoadEntity(ctx, tx, e)
		if err != nil {
			return err
		}
		if existing != nil {
			return p.ResolveConflict(ctx, tx, e, existing)
		}
		return p.CreateEntity(ctx, tx, e)
	})
	if err != nil {
		return err
	}
	e.state = Saved
	e.edited = make(map[string]struct{})
	e.originals = make(map[string]any)
	return nil
}

// Update flushes pending edits through every provider.
func (e *Entity) Update(ctx context.Context) error {
	switch e.state {
	case Changed:
	case Saved, Loaded:
		// Nothing edited; a no-op rather than an error so callers can
		// Update unconditionally after conditional mutations.
		return nil
	default:
		return ErrOperationNotPermitted
	}
	if err := e.checkProviders(); err != nil {
		return err
	}
	err := e.transact(ctx, func(ctx context.Context, tx *sql.Tx, p Provider) error {
		return p.UpdateEntity(ctx, tx, e)
	})
	if err != nil {
		return err
	}
	e.state = Saved
	e.edited = make(map[string]struct{})
	e.originals = make(map[string]any)
	return nil
}

// Delete removes the entity from every provider.
func (e *Entity) Delete(ctx context.Context) error {
	if e.state == Creating || e.state == Deleted {
		return ErrOperationNotPermitted
	}
	if err := e.checkProviders(); err != nil {
		return err
	}
	err := e.transact(ctx, func(ctx context.Context, tx *sql.Tx, p Provider) error {
		return p.DeleteEntity(ctx, tx, e)
	})
	if err != nil {
		return err
	}
	e.state = Deleted
	return nil
}
