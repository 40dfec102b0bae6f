package users

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/platinummonkey/corefacility/pkg/query"
)

// Set is the filtered, ordered, paginated view over all users. Filters
// compose as AND; setting a filter again replaces the previous value
// and a nil argument clears it.
type Set struct {
	factory      *Factory
	loginFilter  *string
	searchFilter *string
	lockedFilter *bool
	groupFilter  *int64
}

// SetLoginFilter narrows the set to one exact login.
func (s *Set) SetLoginFilter(login *string) { s.loginFilter = login }

// SetSearchFilter narrows the set by a case-insensitive search over
// login, name and surname.
func (s *Set) SetSearchFilter(term *string) {
	if term != nil {
		t := strings.TrimSpace(*term)
		term = &t
	}
	s.searchFilter = term
}

// SetIsLockedFilter narrows the set by the lock flag.
func (s *Set) SetIsLockedFilter(locked *bool) { s.lockedFilter = locked }

// SetGroupFilter narrows the set to members of one group.
func (s *Set) SetGroupFilter(groupID *int64) { s.groupFilter = groupID }

func (s *Set) reader() *query.Reader {
	b := query.NewBuilder(s.factory.dialect)
	for _, col := range userColumns {
		b.AddSelectExpression("u." + col)
	}
	b.AddDataSource("core_user", "u")
	b.AddOrderTerm("u.login", true, query.NullsDefault)
	if s.groupFilter != nil {
		b.AddJoin(query.InnerJoin, "core_groupuser gu", "gu.user_id = u.id")
	}
	r := query.NewReader(s.factory.db, b)
	if s.loginFilter != nil {
		r.ApplyFilter(query.Where("u.login = ?", *s.loginFilter))
	}
	if s.searchFilter != nil && *s.searchFilter != "" {
		r.ApplyFilter(query.Or(
			query.Search("u.login", *s.searchFilter),
			query.Search("u.name", *s.searchFilter),
			query.Search("u.surname", *s.searchFilter),
		))
	}
	if s.lockedFilter != nil {
		r.ApplyFilter(query.Where("u.is_locked = ?", *s.lockedFilter))
	}
	if s.groupFilter != nil {
		r.ApplyFilter(query.Where("gu.group_id = ?", *s.groupFilter))
	}
	return r
}

// All streams every matching user in login order.
func (s *Set) All(ctx context.Context) ([]*User, error) {
	var out []*User
	err := s.reader().All(ctx, func(rows *sql.Rows) error {
		u, err := s.factory.scanUser(rows)
		if err != nil {
			return err
		}
		out = append(out, u)
		return nil
	})
	return out, err
}

// Count runs the single aggregate statement matching All.
func (s *Set) Count(ctx context.Context) (int64, error) {
	return s.reader().Count(ctx)
}

// At returns the user at position i of the ordered set.
func (s *Set) At(ctx context.Context, i int) (*User, error) {
	var out *User
	err := s.reader().At(ctx, i, func(rows *sql.Rows) error {
		u, err := s.factory.scanUser(rows)
		if err != nil {
			return err
		}
		out = u
		return nil
	})
	return out, err
}

// Slice returns the users at positions [a, b) of the ordered set.
func (s *Set) Slice(ctx context.Context, a, b int) ([]*User, error) {
	var out []*User
	err := s.reader().Slice(ctx, a, b, func(rows *sql.Rows) error {
		u, err := s.factory.scanUser(rows)
		if err != nil {
			return err
		}
		out = append(out, u)
		return nil
	})
	return out, err
}

// Get looks one user up by id.
func (s *Set) Get(ctx context.Context, id int64) (*User, error) {
	return s.one(ctx, query.Where("u.id = ?", id))
}

// GetByLogin looks one user up by its natural key.
func (s *Set) GetByLogin(ctx context.Context, login string) (*User, error) {
	return s.one(ctx, query.Where("u.login = ?", login))
}

func (s *Set) one(ctx context.Context, f query.Filter) (*User, error) {
	var out *User
	err := s.reader().One(ctx, f, func(rows *sql.Rows) error {
		u, err := s.factory.scanUser(rows)
		if err != nil {
			return fmt.Errorf("failed to wrap user row: %w", err)
		}
		out = u
		return nil
	})
	return out, err
}
