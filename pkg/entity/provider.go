package entity

import (
	"context"
	"database/sql"
)

// Provider persists an entity into one specific backend. Providers run
// sequentially in declaration order inside a single transaction opened
// by the entity core; the relational provider is authoritative for
// identity, every other backend is a convergent cache that the DB
// overrides through ResolveConflict.
//
// Non-relational providers ignore tx; their side effects cannot be
// rolled back and are reconciled lazily on the next touch.
type Provider interface {
	// LoadEntity looks the entity up by its natural key. A (nil, nil)
	// return means the backend holds no duplicate.
	LoadEntity(ctx context.Context, tx *sql.Tx, e *Entity) (*Entity, error)

	// CreateEntity writes the entity and, for the authoritative
	// provider, fills its id via SetID.
	CreateEntity(ctx context.Context, tx *sql.Tx, e *Entity) error

	// UpdateEntity writes the edited fields.
	UpdateEntity(ctx context.Context, tx *sql.Tx, e *Entity) error

	// DeleteEntity removes the entity from the backend.
	DeleteEntity(ctx context.Context, tx *sql.Tx, e *Entity) error

	// ResolveConflict reconciles e with a duplicate the backend already
	// holds. Providers that cannot absorb the collision return
	// ErrDuplicatedEntity.
	ResolveConflict(ctx context.Context, tx *sql.Tx, e *Entity, existing *Entity) error
}

// TxBeginner abstracts *sql.DB for the entity core so tests can inject
// mock connections.
type TxBeginner interface {
	BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
}
