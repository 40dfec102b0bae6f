package groups

import (
	"context"
	"database/sql"

	"github.com/platinummonkey/corefacility/pkg/access"
	"github.com/platinummonkey/corefacility/pkg/entity"
	"github.com/platinummonkey/corefacility/pkg/query"
	"github.com/platinummonkey/corefacility/pkg/users"
)

// Field names of the group entity.
const (
	FieldName     = "name"
	FieldGovernor = "governor"
)

func newSchema() *entity.Schema {
	return entity.NewSchema("group").
		Add(FieldName, entity.String().Min(1).Max(256).Require()).
		Add(FieldGovernor, entity.Related().Require())
}

// Factory builds group entities and their set.
type Factory struct {
	db       *sql.DB
	dialect  query.Dialect
	schema   *entity.Schema
	users    *users.Factory
	aclCache *access.Cache
}

// NewFactory wires the group entity against the relational store. The
// user factory resolves governor and member references.
func NewFactory(db *sql.DB, dialect query.Dialect, userFactory *users.Factory) *Factory {
	return &Factory{db: db, dialect: dialect, schema: newSchema(), users: userFactory}
}

// UseACLCache registers the resolution cache. Membership changes then
// drop every access list cached for the affected user, since the
// user's reachable groups decide project access.
func (f *Factory) UseACLCache(c *access.Cache) { f.aclCache = c }

// NewGroup returns a fresh group in the creating state with its initial
// governor. The governor automatically becomes a member on create.
func (f *Factory) NewGroup(name string, governor *users.User) (*Group, error) {
	e := entity.New(f.schema, f.db, &sqlProvider{factory: f})
	g := &Group{Entity: e, factory: f}
	if err := g.SetField(FieldName, name); err != nil {
		return nil, err
	}
	if err := g.SetField(FieldGovernor, governor.Entity); err != nil {
		return nil, err
	}
	return g, nil
}

// Groups returns a fresh, unfiltered entity set.
func (f *Factory) Groups() *Set {
	return &Set{factory: f}
}

func (f *Factory) wrap(id int64, name string, governorID int64) *Group {
	e := entity.Wrap(f.schema, f.db, id, map[string]any{
		FieldName:     name,
		FieldGovernor: governorID,
	}, &sqlProvider{factory: f})
	return &Group{Entity: e, factory: f}
}

// Group is a set of users led by a single governor. The governor is
// always a member and cannot be removed from the membership.
type Group struct {
	*entity.Entity
	factory *Factory
}

// Name returns the display name.
func (g *Group) Name() string {
	v, _ := g.GetField(FieldName)
	s, _ := v.(string)
	return s
}

// SetName renames the group.
func (g *Group) SetName(name string) error {
	return g.SetField(FieldName, name)
}

// GovernorID returns the id of the leading user.
func (g *Group) GovernorID() int64 {
	v, _ := g.GetField(FieldGovernor)
	id, _ := v.(int64)
	return id
}

// Governor resolves the leading user through the user set.
func (g *Group) Governor(ctx context.Context) (*users.User, error) {
	return g.factory.users.Users().Get(ctx, g.GovernorID())
}

// SetGovernor hands leadership to another user. The new governor must
// already be a member; the swap is applied atomically on Update.
func (g *Group) SetGovernor(governor *users.User) error {
	return g.SetField(FieldGovernor, governor.Entity)
}

// Users returns the membership manager.
func (g *Group) Users() *Membership {
	return &Membership{group: g}
}
