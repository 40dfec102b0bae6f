package modules

import (
	"context"
	"database/sql"

	"github.com/platinummonkey/corefacility/pkg/query"
)

// Row is the relational projection of one installed module, used for
// listing and administration regardless of whether the process holds a
// live singleton for it.
type Row struct {
	UUID               string
	ParentEntryPointID *int64
	Alias              string
	Name               string
	HTMLCode           string
	AppClass           string
	IsApplication      bool
	IsEnabled          bool
}

// Set is the filtered, ordered view over installed module rows.
type Set struct {
	db      *sql.DB
	dialect query.Dialect

	entryPointFilter  *int64
	enabledFilter     *bool
	applicationFilter *bool
}

// NewSet builds an unfiltered set over the module table.
func NewSet(db *sql.DB, dialect query.Dialect) *Set {
	return &Set{db: db, dialect: dialect}
}

// SetEntryPointFilter narrows the set to modules attached to one slot.
func (s *Set) SetEntryPointFilter(epID *int64) { s.entryPointFilter = epID }

// SetIsEnabledFilter narrows the set by the enabled flag.
func (s *Set) SetIsEnabledFilter(enabled *bool) { s.enabledFilter = enabled }

// SetIsApplicationFilter narrows the set to applications or plain
// modules.
func (s *Set) SetIsApplicationFilter(isApp *bool) { s.applicationFilter = isApp }

func (s *Set) reader() *query.Reader {
	b := query.NewBuilder(s.dialect)
	for _, col := range []string{"m.uuid", "m.parent_entry_point_id", "m.alias", "m.name",
		"m.html_code", "m.app_class", "m.is_application", "m.is_enabled"} {
		b.AddSelectExpression(col)
	}
	b.AddDataSource("core_module", "m")
	b.AddOrderTerm("m.alias", true, query.NullsDefault)
	r := query.NewReader(s.db, b)
	if s.entryPointFilter != nil {
		r.ApplyFilter(query.Where("m.parent_entry_point_id = ?", *s.entryPointFilter))
	}
	if s.enabledFilter != nil {
		r.ApplyFilter(query.Where("m.is_enabled = ?", *s.enabledFilter))
	}
	if s.applicationFilter != nil {
		r.ApplyFilter(query.Where("m.is_application = ?", *s.applicationFilter))
	}
	return r
}

func scanRow(rows *sql.Rows) (Row, error) {
	var row Row
	var parent sql.NullInt64
	var html sql.NullString
	if err := rows.Scan(&row.UUID, &parent, &row.Alias, &row.Name, &html,
		&row.AppClass, &row.IsApplication, &row.IsEnabled); err != nil {
		return Row{}, err
	}
	if parent.Valid {
		row.ParentEntryPointID = &parent.Int64
	}
	row.HTMLCode = html.String
	return row, nil
}

// All streams every matching row in alias order.
func (s *Set) All(ctx context.Context) ([]Row, error) {
	var out []Row
	err := s.reader().All(ctx, func(rows *sql.Rows) error {
		row, err := scanRow(rows)
		if err != nil {
			return err
		}
		out = append(out, row)
		return nil
	})
	return out, err
}

// Count runs the single aggregate statement matching All.
func (s *Set) Count(ctx context.Context) (int64, error) {
	return s.reader().Count(ctx)
}

// Get looks one row up by UUID.
func (s *Set) Get(ctx context.Context, moduleUUID string) (Row, error) {
	var out Row
	err := s.reader().One(ctx, query.Where("m.uuid = ?", moduleUUID), func(rows *sql.Rows) error {
		row, err := scanRow(rows)
		if err != nil {
			return err
		}
		out = row
		return nil
	})
	return out, err
}
