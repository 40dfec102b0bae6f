package groups

import (
	"context"
	"fmt"

	"github.com/platinummonkey/corefacility/pkg/entity"
	"github.com/platinummonkey/corefacility/pkg/query"
	"github.com/platinummonkey/corefacility/pkg/users"
)

// Membership is the value manager over a group's user set. Mutations
// are immediate side effects on the relational store.
type Membership struct {
	group *Group
}

func (m *Membership) saved() bool {
	st := m.group.State()
	return m.group.ID() != 0 && st != entity.Creating && st != entity.Deleted
}

// Add inserts a user into the group. Adding a present member is a
// no-op.
func (m *Membership) Add(ctx context.Context, u *users.User) error {
	if !m.saved() {
		return entity.ErrOperationNotPermitted
	}
	if u.State() == entity.Creating || u.State() == entity.Deleted || u.ID() == 0 {
		return entity.ErrOperationNotPermitted
	}
	exists, err := m.Exists(ctx, u)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	f := m.group.factory
	_, err = query.InsertReturningID(ctx, f.db, f.dialect, "core_groupuser",
		[]string{"group_id", "user_id", "is_governor"}, m.group.ID(), u.ID(), false)
	if err != nil {
		return fmt.Errorf("failed to add group member: %w", err)
	}
	return m.dropCached(ctx, u.ID())
}

func (m *Membership) dropCached(ctx context.Context, userID int64) error {
	c := m.group.factory.aclCache
	if c == nil {
		return nil
	}
	if err := c.InvalidateUser(ctx, userID); err != nil {
		return fmt.Errorf("membership stored but cached access lists were not dropped: %w", err)
	}
	return nil
}

// Remove takes a user out of the group. Removing the governor is
// forbidden.
func (m *Membership) Remove(ctx context.Context, u *users.User) error {
	if !m.saved() {
		return entity.ErrOperationNotPermitted
	}
	if u.ID() == m.group.GovernorID() {
		return entity.ErrOperationNotPermitted
	}
	f := m.group.factory
	stmt := f.dialect.Rebind("DELETE FROM core_groupuser WHERE group_id = ? AND user_id = ?")
	if _, err := f.db.ExecContext(ctx, stmt, m.group.ID(), u.ID()); err != nil {
		return fmt.Errorf("failed to remove group member: %w", err)
	}
	return m.dropCached(ctx, u.ID())
}

// Exists reports membership.
func (m *Membership) Exists(ctx context.Context, u *users.User) (bool, error) {
	f := m.group.factory
	stmt := f.dialect.Rebind(
		"SELECT COUNT(*) FROM core_groupuser WHERE group_id = ? AND user_id = ?")
	var n int64
	if err := f.db.QueryRowContext(ctx, stmt, m.group.ID(), u.ID()).Scan(&n); err != nil {
		return false, fmt.Errorf("failed to probe membership: %w", err)
	}
	return n > 0, nil
}

// All returns members in login order through the user set.
func (m *Membership) All(ctx context.Context) ([]*users.User, error) {
	set := m.group.factory.users.Users()
	id := m.group.ID()
	set.SetGroupFilter(&id)
	return set.All(ctx)
}

// Count returns the number of members.
func (m *Membership) Count(ctx context.Context) (int64, error) {
	set := m.group.factory.users.Users()
	id := m.group.ID()
	set.SetGroupFilter(&id)
	return set.Count(ctx)
}

// At returns the member at position i in login order.
func (m *Membership) At(ctx context.Context, i int) (*users.User, error) {
	set := m.group.factory.users.Users()
	id := m.group.ID()
	set.SetGroupFilter(&id)
	return set.At(ctx, i)
}
