package groups

import (
	"context"
	"database/sql"

	"github.com/platinummonkey/corefacility/pkg/query"
)

// Set is the filtered view over all groups.
type Set struct {
	factory      *Factory
	searchFilter *string
	userFilter   *int64
}

// SetSearchFilter narrows the set by a case-insensitive name search.
func (s *Set) SetSearchFilter(term *string) { s.searchFilter = term }

// SetUserFilter narrows the set to groups the user belongs to.
func (s *Set) SetUserFilter(userID *int64) { s.userFilter = userID }

func (s *Set) reader() *query.Reader {
	b := query.NewBuilder(s.factory.dialect).
		AddSelectExpression("g.id").
		AddSelectExpression("g.name").
		AddSelectExpression("gov.user_id").
		AddDataSource("core_group", "g").
		AddJoin(query.InnerJoin, "core_groupuser gov", "gov.group_id = g.id AND gov.is_governor").
		AddOrderTerm("g.name", true, query.NullsDefault)
	if s.userFilter != nil {
		b.AddJoin(query.InnerJoin, "core_groupuser gu", "gu.group_id = g.id")
	}
	r := query.NewReader(s.factory.db, b)
	if s.searchFilter != nil && *s.searchFilter != "" {
		r.ApplyFilter(query.Search("g.name", *s.searchFilter))
	}
	if s.userFilter != nil {
		r.ApplyFilter(query.Where("gu.user_id = ?", *s.userFilter))
	}
	return r
}

func (s *Set) scan(rows *sql.Rows) (*Group, error) {
	var id, governorID int64
	var name string
	if err := rows.Scan(&id, &name, &governorID); err != nil {
		return nil, err
	}
	return s.factory.wrap(id, name, governorID), nil
}

// All streams every matching group in name order.
func (s *Set) All(ctx context.Context) ([]*Group, error) {
	var out []*Group
	err := s.reader().All(ctx, func(rows *sql.Rows) error {
		g, err := s.scan(rows)
		if err != nil {
			return err
		}
		out = append(out, g)
		return nil
	})
	return out, err
}

// Count runs the single aggregate statement matching All.
func (s *Set) Count(ctx context.Context) (int64, error) {
	return s.reader().Count(ctx)
}

// At returns the group at position i of the ordered set.
func (s *Set) At(ctx context.Context, i int) (*Group, error) {
	var out *Group
	err := s.reader().At(ctx, i, func(rows *sql.Rows) error {
		g, err := s.scan(rows)
		if err != nil {
			return err
		}
		out = g
		return nil
	})
	return out, err
}

// Get looks one group up by id.
func (s *Set) Get(ctx context.Context, id int64) (*Group, error) {
	var out *Group
	err := s.reader().One(ctx, query.Where("g.id = ?", id), func(rows *sql.Rows) error {
		g, err := s.scan(rows)
		if err != nil {
			return err
		}
		out = g
		return nil
	})
	return out, err
}
