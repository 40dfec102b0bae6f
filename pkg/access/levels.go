package access

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/platinummonkey/corefacility/pkg/entity"
	"github.com/platinummonkey/corefacility/pkg/query"
)

// LevelType discriminates project-scoped from application-scoped
// access levels.
type LevelType string

const (
	ProjectLevel LevelType = "prj"
	AppLevel     LevelType = "app"
)

// Project-scope aliases, ordered by weight.
const (
	AliasNoAccess    = "no_access"
	AliasDataView    = "data_view"
	AliasDataProcess = "data_process"
	AliasDataAdd     = "data_add"
	AliasDataFull    = "data_full"
	AliasFull        = "full"
)

// Application-scope aliases.
const (
	AliasAdd                = "add"
	AliasPermissionRequired = "permission_required"
	AliasUsage              = "usage"
)

// levelWeights is the project-scope hierarchy used for winner
// selection.
var levelWeights = map[string]float64{
	AliasNoAccess:    0.0,
	AliasDataView:    1.0,
	AliasDataProcess: 2.0,
	AliasDataAdd:     3.0,
	AliasDataFull:    4.0,
	AliasFull:        5.0,
}

// systemAliases may never be renamed or deleted regardless of type.
var systemAliases = map[string]bool{
	AliasAdd:                true,
	AliasPermissionRequired: true,
	AliasUsage:              true,
	AliasNoAccess:           true,
}

// Level is one named permission rung.
type Level struct {
	ID    int64
	Type  LevelType
	Alias string
	Name  string
}

// immutable reports whether the row may be modified or deleted. Every
// project-scope row and every system alias is frozen after install.
func (l Level) immutable() bool {
	return l.Type == ProjectLevel || systemAliases[l.Alias]
}

// ProperAccessLevel picks the winner among the aliases a user inherits
// through their groups: the alias of maximum weight. Duplicate weights
// indicate a misconfigured hierarchy and fail. A single alias passes
// through unchanged.
func ProperAccessLevel(aliases []string) (string, error) {
	if len(aliases) == 0 {
		return "", fmt.Errorf("cannot select an access level from an empty set")
	}
	if len(aliases) == 1 {
		return aliases[0], nil
	}
	best := ""
	bestWeight := -1.0
	for _, alias := range aliases {
		w, ok := levelWeights[alias]
		if !ok {
			return "", fmt.Errorf("access level %q has no weight in the hierarchy", alias)
		}
		if w == bestWeight {
			return "", fmt.Errorf("access levels %q and %q have equal weight", best, alias)
		}
		if w > bestWeight {
			best, bestWeight = alias, w
		}
	}
	return best, nil
}

// ParseAggregatedLevels splits the comma-joined alias set the bulk
// resolution query emits.
func ParseAggregatedLevels(joined string) []string {
	if joined == "" {
		return nil
	}
	seen := make(map[string]bool)
	var out []string
	for _, alias := range strings.Split(joined, ",") {
		alias = strings.TrimSpace(alias)
		if alias == "" || seen[alias] {
			continue
		}
		seen[alias] = true
		out = append(out, alias)
	}
	return out
}

// LevelStore reads and maintains the core_accesslevel table.
type LevelStore struct {
	db      *sql.DB
	dialect query.Dialect
}

// NewLevelStore returns a store over the access level table.
func NewLevelStore(db *sql.DB, dialect query.Dialect) *LevelStore {
	return &LevelStore{db: db, dialect: dialect}
}

// defaultLevels are installed once by the root module.
var defaultLevels = []Level{
	{Type: ProjectLevel, Alias: AliasFull, Name: "Full access"},
	{Type: ProjectLevel, Alias: AliasDataFull, Name: "Full data access"},
	{Type: ProjectLevel, Alias: AliasDataAdd, Name: "Add and process data"},
	{Type: ProjectLevel, Alias: AliasDataProcess, Name: "Process existing data"},
	{Type: ProjectLevel, Alias: AliasDataView, Name: "View data"},
	{Type: ProjectLevel, Alias: AliasNoAccess, Name: "No access"},
	{Type: AppLevel, Alias: AliasAdd, Name: "Add application"},
	{Type: AppLevel, Alias: AliasPermissionRequired, Name: "Permission required"},
}

// InstallDefaults bulk-inserts the standard levels inside the install
// transaction. Idempotent: present rows are kept.
func (s *LevelStore) InstallDefaults(ctx context.Context, tx *sql.Tx) error {
	check := s.dialect.Rebind("SELECT COUNT(*) FROM core_accesslevel WHERE type = ? AND alias = ?")
	insert := s.dialect.Rebind("INSERT INTO core_accesslevel (type, alias, name) VALUES (?, ?, ?)")
	for _, l := range defaultLevels {
		var n int64
		if err := tx.QueryRowContext(ctx, check, string(l.Type), l.Alias).Scan(&n); err != nil {
			return fmt.Errorf("failed to probe access level %s: %w", l.Alias, err)
		}
		if n > 0 {
			continue
		}
		if _, err := tx.ExecContext(ctx, insert, string(l.Type), l.Alias, l.Name); err != nil {
			return fmt.Errorf("failed to install access level %s: %w", l.Alias, err)
		}
	}
	return nil
}

func (s *LevelStore) scanLevel(rows *sql.Rows) (Level, error) {
	var l Level
	var typ string
	err := rows.Scan(&l.ID, &typ, &l.Alias, &l.Name)
	l.Type = LevelType(typ)
	return l, err
}

func (s *LevelStore) baseBuilder() *query.Builder {
	return query.NewBuilder(s.dialect).
		AddSelectExpression("id").
		AddSelectExpression("type").
		AddSelectExpression("alias").
		AddSelectExpression("name").
		AddDataSource("core_accesslevel").
		AddOrderTerm("id", true, query.NullsDefault)
}

// Get returns the level with the given type and alias.
func (s *LevelStore) Get(ctx context.Context, t LevelType, alias string) (Level, error) {
	reader := query.NewReader(s.db, s.baseBuilder())
	var out Level
	err := reader.One(ctx, query.Where("type = ? AND alias = ?", string(t), alias), func(rows *sql.Rows) error {
		var err error
		out, err = s.scanLevel(rows)
		return err
	})
	return out, err
}

// List returns every level of the given type in insertion order.
func (s *LevelStore) List(ctx context.Context, t LevelType) ([]Level, error) {
	reader := query.NewReader(s.db, s.baseBuilder())
	reader.ApplyFilter(query.Where("type = ?", string(t)))
	var out []Level
	err := reader.All(ctx, func(rows *sql.Rows) error {
		l, err := s.scanLevel(rows)
		if err != nil {
			return err
		}
		out = append(out, l)
		return nil
	})
	return out, err
}

// Create adds a custom application-scope level. Project-scope rows are
// fixed at install time.
func (s *LevelStore) Create(ctx context.Context, l *Level) error {
	if l.Type != AppLevel || systemAliases[l.Alias] {
		return entity.ErrOperationNotPermitted
	}
	id, err := query.InsertReturningID(ctx, s.db, s.dialect, "core_accesslevel",
		[]string{"type", "alias", "name"}, string(l.Type), l.Alias, l.Name)
	if err != nil {
		return fmt.Errorf("failed to create access level: %w", err)
	}
	l.ID = id
	return nil
}

// Rename updates the display name of a mutable level.
func (s *LevelStore) Rename(ctx context.Context, l Level, name string) error {
	if l.immutable() {
		return entity.ErrOperationNotPermitted
	}
	stmt := s.dialect.Rebind("UPDATE core_accesslevel SET name = ? WHERE id = ?")
	_, err := s.db.ExecContext(ctx, stmt, name, l.ID)
	if err != nil {
		return fmt.Errorf("failed to rename access level: %w", err)
	}
	return nil
}

// Delete removes a mutable level.
func (s *LevelStore) Delete(ctx context.Context, l Level) error {
	if l.immutable() {
		return entity.ErrOperationNotPermitted
	}
	stmt := s.dialect.Rebind("DELETE FROM core_accesslevel WHERE id = ?")
	_, err := s.db.ExecContext(ctx, stmt, l.ID)
	if err != nil {
		return fmt.Errorf("failed to delete access level: %w", err)
	}
	return nil
}
