package projects

import (
	"context"
	"database/sql"
	"strings"

	"github.com/platinummonkey/corefacility/pkg/access"
	"github.com/platinummonkey/corefacility/pkg/entity"
	"github.com/platinummonkey/corefacility/pkg/query"
)

// projectColumns is the authoritative column order shared by the
// provider and the reader. The governor comes from the root group's
// membership row, so it can never drift from the group.
var projectColumns = []string{
	"p.id", "p.alias", "p.name", "p.description", "p.avatar",
	"p.root_group_id", "p.project_dir", "p.unix_group", "gov.user_id",
}

// projectBase joins the governor membership onto each project row.
const projectBase = "FROM core_project p " +
	"JOIN core_groupuser gov ON gov.group_id = p.root_group_id AND gov.is_governor"

// aclSource builds the derived table that resolves one user's access
// to every project in a single pass. Three row sources feed it: an
// implicit full row for every project whose root group the user
// belongs to, the explicit ACL rows of groups the user belongs to, and
// the wildcard ACL rows that apply to everybody. Wildcard rows count
// only when the user matched no explicit row.
func aclSource(d query.Dialect) string {
	groupLevels := d.StringAgg("CASE WHEN src.explicit = 1 AND src.alias <> 'no_access' THEN src.alias END")
	return "(SELECT src.project_id AS project_id, " +
		"MAX(src.explicit) AS has_explicit, " +
		groupLevels + " AS group_levels, " +
		"MAX(CASE WHEN src.explicit = 0 AND src.alias <> 'no_access' THEN src.alias END) AS wildcard_level " +
		"FROM (" +
		"SELECT pr.id AS project_id, 'full' AS alias, 1 AS explicit " +
		"FROM core_project pr " +
		"JOIN core_groupuser m ON m.group_id = pr.root_group_id AND m.user_id = ? " +
		"UNION ALL " +
		"SELECT pp.project_id, al.alias, 1 " +
		"FROM core_projectpermission pp " +
		"JOIN core_accesslevel al ON al.id = pp.access_level_id " +
		"JOIN core_groupuser m ON m.group_id = pp.group_id AND m.user_id = ? " +
		"WHERE pp.group_id IS NOT NULL " +
		"UNION ALL " +
		"SELECT pp.project_id, al.alias, 0 " +
		"FROM core_projectpermission pp " +
		"JOIN core_accesslevel al ON al.id = pp.access_level_id " +
		"WHERE pp.group_id IS NULL" +
		") src GROUP BY src.project_id) acl"
}

// userLevelsExpr picks the alias list the user actually gets: the
// explicit group levels when any explicit row matched, the wildcard
// level otherwise.
const userLevelsExpr = "CASE WHEN acl.has_explicit = 1 THEN acl.group_levels ELSE acl.wildcard_level END"

// Set is the filtered, ordered, paginated view over all projects.
// With a user filter the set shrinks to the projects that user can see
// at all, and every returned project carries the resolved access facts.
type Set struct {
	factory      *Factory
	aliasFilter  *string
	searchFilter *string
	userFilter   *int64
}

// SetAliasFilter narrows the set to one exact alias.
func (s *Set) SetAliasFilter(alias *string) { s.aliasFilter = alias }

// SetSearchFilter narrows the set by a case-insensitive search over
// alias and name.
func (s *Set) SetSearchFilter(term *string) {
	if term != nil {
		t := strings.TrimSpace(*term)
		term = &t
	}
	s.searchFilter = term
}

// SetUserFilter narrows the set to projects the user has any access
// to and resolves the user's access level per project.
func (s *Set) SetUserFilter(userID *int64) { s.userFilter = userID }

func (s *Set) reader() *query.Reader {
	b := query.NewBuilder(s.factory.dialect)
	for _, col := range projectColumns {
		b.AddSelectExpression(col)
	}
	b.AddDataSource("core_project", "p")
	b.AddJoin(query.InnerJoin, "core_groupuser gov", "gov.group_id = p.root_group_id AND gov.is_governor")
	b.AddOrderTerm("p.name", true, query.NullsDefault)
	if s.userFilter != nil {
		b.AddSelectExpression(userLevelsExpr)
		b.AddJoin(query.InnerJoin, aclSource(s.factory.dialect), "acl.project_id = p.id",
			*s.userFilter, *s.userFilter)
	}
	r := query.NewReader(s.factory.db, b)
	if s.userFilter != nil {
		r.ApplyFilter(query.Where(userLevelsExpr + " IS NOT NULL AND " + userLevelsExpr + " <> ''"))
	}
	if s.aliasFilter != nil {
		r.ApplyFilter(query.Where("p.alias = ?", *s.aliasFilter))
	}
	if s.searchFilter != nil && *s.searchFilter != "" {
		r.ApplyFilter(query.Or(
			query.Search("p.alias", *s.searchFilter),
			query.Search("p.name", *s.searchFilter),
		))
	}
	return r
}

func (s *Set) scan(ctx context.Context, rows *sql.Rows) (*Project, error) {
	if s.userFilter == nil {
		return s.factory.scanProject(rows)
	}
	var id, rootGroupID, governorID int64
	var alias, name string
	var description, avatar, projectDir, unixGroup, levels sql.NullString
	if err := rows.Scan(&id, &alias, &name, &description, &avatar,
		&rootGroupID, &projectDir, &unixGroup, &governorID, &levels); err != nil {
		return nil, err
	}
	p := s.factory.wrapProject(id, alias, name, description, avatar,
		rootGroupID, projectDir, unixGroup, governorID)
	p.userLevels = access.ParseAggregatedLevels(levels.String)
	p.isUserGovernor = governorID == *s.userFilter
	if c := s.factory.opts.ACLCache; c != nil {
		// Refill is best effort; a failed write only costs a later miss.
		_ = c.Put(ctx, *s.userFilter, id, &access.ResolvedAccess{
			Levels:     p.userLevels,
			IsGovernor: p.isUserGovernor,
		})
	}
	return p, nil
}

// cachedAccess returns the cached resolution for the filtering user, or
// nil when the cache is absent, cold, or unreadable.
func (s *Set) cachedAccess(ctx context.Context, projectID int64) *access.ResolvedAccess {
	c := s.factory.opts.ACLCache
	if c == nil || s.userFilter == nil {
		return nil
	}
	hit, err := c.Get(ctx, *s.userFilter, projectID)
	if err != nil {
		return nil
	}
	return hit
}

// All streams every matching project in name order.
func (s *Set) All(ctx context.Context) ([]*Project, error) {
	var out []*Project
	err := s.reader().All(ctx, func(rows *sql.Rows) error {
		p, err := s.scan(ctx, rows)
		if err != nil {
			return err
		}
		out = append(out, p)
		return nil
	})
	return out, err
}

// Count runs the single aggregate statement matching All.
func (s *Set) Count(ctx context.Context) (int64, error) {
	return s.reader().Count(ctx)
}

// At returns the project at position i of the ordered set.
func (s *Set) At(ctx context.Context, i int) (*Project, error) {
	var out *Project
	err := s.reader().At(ctx, i, func(rows *sql.Rows) error {
		p, err := s.scan(ctx, rows)
		if err != nil {
			return err
		}
		out = p
		return nil
	})
	return out, err
}

// Slice returns the projects at positions [a, b) of the ordered set.
func (s *Set) Slice(ctx context.Context, a, b int) ([]*Project, error) {
	var out []*Project
	err := s.reader().Slice(ctx, a, b, func(rows *sql.Rows) error {
		p, err := s.scan(ctx, rows)
		if err != nil {
			return err
		}
		out = append(out, p)
		return nil
	})
	return out, err
}

// Get looks one project up by id. With a user filter the resolved
// access facts come from the cache when it holds them, so only the
// plain project row is read and the ACL aggregation is skipped.
func (s *Set) Get(ctx context.Context, id int64) (*Project, error) {
	if hit := s.cachedAccess(ctx, id); hit != nil {
		plain := &Set{factory: s.factory}
		p, err := plain.one(ctx, query.Where("p.id = ?", id))
		if err != nil {
			return nil, err
		}
		p.userLevels = hit.Levels
		p.isUserGovernor = hit.IsGovernor
		return p, nil
	}
	return s.one(ctx, query.Where("p.id = ?", id))
}

// GetByAlias looks one project up by its natural key.
func (s *Set) GetByAlias(ctx context.Context, alias string) (*Project, error) {
	return s.one(ctx, query.Where("p.alias = ?", alias))
}

func (s *Set) one(ctx context.Context, f query.Filter) (*Project, error) {
	var out *Project
	err := s.reader().One(ctx, f, func(rows *sql.Rows) error {
		p, err := s.scan(ctx, rows)
		if err != nil {
			return err
		}
		out = p
		return nil
	})
	return out, err
}

// scanProject wraps one plain project row into a loaded entity.
func (f *Factory) scanProject(rows *sql.Rows) (*Project, error) {
	var id, rootGroupID, governorID int64
	var alias, name string
	var description, avatar, projectDir, unixGroup sql.NullString
	if err := rows.Scan(&id, &alias, &name, &description, &avatar,
		&rootGroupID, &projectDir, &unixGroup, &governorID); err != nil {
		return nil, err
	}
	return f.wrapProject(id, alias, name, description, avatar, rootGroupID, projectDir, unixGroup, governorID), nil
}

func (f *Factory) wrapProject(id int64, alias, name string, description, avatar sql.NullString,
	rootGroupID int64, projectDir, unixGroup sql.NullString, governorID int64) *Project {
	values := map[string]any{
		FieldAlias:     alias,
		FieldName:      name,
		FieldRootGroup: rootGroupID,
		FieldGovernor:  governorID,
	}
	setNullString := func(field string, v sql.NullString) {
		if v.Valid {
			values[field] = v.String
		}
	}
	setNullString(FieldDescription, description)
	setNullString(FieldAvatar, avatar)
	setNullString(FieldProjectDir, projectDir)
	setNullString(FieldUnixGroup, unixGroup)
	e := entity.Wrap(f.schema, f.db, id, values, f.providers...)
	return &Project{Entity: e, factory: f}
}
