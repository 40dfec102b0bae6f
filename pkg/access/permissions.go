package access

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/platinummonkey/corefacility/pkg/entity"
	"github.com/platinummonkey/corefacility/pkg/query"
)

// Entry is one yielded ACL row. A nil GroupID is the wildcard row that
// applies to every user not matched by an explicit row.
type Entry struct {
	GroupID *int64
	Level   Level
}

// ProjectPermissions is the ACL manager of one project. Mutations are
// immediate side effects on the relational store; they do not pass
// through the owning entity's transaction.
type ProjectPermissions struct {
	db           *sql.DB
	dialect      query.Dialect
	levels       *LevelStore
	cache        *Cache
	projectID    int64
	projectState entity.State
	rootGroupID  int64
}

// NewProjectPermissions wires an ACL manager to its project. The
// projects package calls this from the Permissions accessor.
func NewProjectPermissions(db *sql.DB, dialect query.Dialect, projectID int64, projectState entity.State, rootGroupID int64) *ProjectPermissions {
	return &ProjectPermissions{
		db:           db,
		dialect:      dialect,
		levels:       NewLevelStore(db, dialect),
		projectID:    projectID,
		projectState: projectState,
		rootGroupID:  rootGroupID,
	}
}

// WithCache attaches the resolution cache. Mutations then drop every
// cached access list of this project before returning. A nil cache
// leaves mutations unobserved.
func (p *ProjectPermissions) WithCache(c *Cache) *ProjectPermissions {
	p.cache = c
	return p
}

func (p *ProjectPermissions) dropCached(ctx context.Context) error {
	if p.cache == nil {
		return nil
	}
	if err := p.cache.InvalidateProject(ctx, p.projectID); err != nil {
		return fmt.Errorf("permission stored but cached access lists were not dropped: %w", err)
	}
	return nil
}

func (p *ProjectPermissions) projectSaved() bool {
	return p.projectID != 0 && p.projectState != entity.Creating && p.projectState != entity.Deleted
}

// Iterate yields the ACL in its canonical order: the implicit
// (root group, full) row first, then every explicit row in insertion
// order, then a synthetic (nil, no_access) terminator when no wildcard
// row is stored.
func (p *ProjectPermissions) Iterate(ctx context.Context) ([]Entry, error) {
	full, err := p.levels.Get(ctx, ProjectLevel, AliasFull)
	if err != nil {
		return nil, fmt.Errorf("access level table is not installed: %w", err)
	}
	rootID := p.rootGroupID
	entries := []Entry{{GroupID: &rootID, Level: full}}

	stmt := p.dialect.Rebind(`
		SELECT p.group_id, l.id, l.type, l.alias, l.name
		FROM core_projectpermission p
		INNER JOIN core_accesslevel l ON l.id = p.access_level_id
		WHERE p.project_id = ?
		ORDER BY p.id ASC`)
	rows, err := p.db.QueryContext(ctx, stmt, p.projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to read project permissions: %w", err)
	}
	defer rows.Close()

	sawWildcard := false
	for rows.Next() {
		var groupID sql.NullInt64
		var l Level
		var typ string
		if err := rows.Scan(&groupID, &l.ID, &typ, &l.Alias, &l.Name); err != nil {
			return nil, err
		}
		l.Type = LevelType(typ)
		e := Entry{Level: l}
		if groupID.Valid {
			id := groupID.Int64
			e.GroupID = &id
		} else {
			sawWildcard = true
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if !sawWildcard {
		noAccess, err := p.levels.Get(ctx, ProjectLevel, AliasNoAccess)
		if err != nil {
			return nil, fmt.Errorf("access level table is not installed: %w", err)
		}
		entries = append(entries, Entry{GroupID: nil, Level: noAccess})
	}
	return entries, nil
}

// Get returns the stored level for a group, the implicit full level for
// the root group, or ErrEntityNotFound.
func (p *ProjectPermissions) Get(ctx context.Context, groupID *int64) (Level, error) {
	if groupID != nil && *groupID == p.rootGroupID {
		return p.levels.Get(ctx, ProjectLevel, AliasFull)
	}
	var row *sql.Row
	if groupID == nil {
		stmt := p.dialect.Rebind(`
			SELECT l.id, l.type, l.alias, l.name
			FROM core_projectpermission p
			INNER JOIN core_accesslevel l ON l.id = p.access_level_id
			WHERE p.project_id = ? AND p.group_id IS NULL`)
		row = p.db.QueryRowContext(ctx, stmt, p.projectID)
	} else {
		stmt := p.dialect.Rebind(`
			SELECT l.id, l.type, l.alias, l.name
			FROM core_projectpermission p
			INNER JOIN core_accesslevel l ON l.id = p.access_level_id
			WHERE p.project_id = ? AND p.group_id = ?`)
		row = p.db.QueryRowContext(ctx, stmt, p.projectID, *groupID)
	}
	var l Level
	var typ string
	if err := row.Scan(&l.ID, &typ, &l.Alias, &l.Name); err != nil {
		if err == sql.ErrNoRows {
			return Level{}, entity.ErrEntityNotFound
		}
		return Level{}, fmt.Errorf("failed to read permission: %w", err)
	}
	l.Type = LevelType(typ)
	return l, nil
}

// Set installs or replaces the row for a group. A nil group sets the
// wildcard row; at most one wildcard row is kept.
func (p *ProjectPermissions) Set(ctx context.Context, group entity.Referencer, level Level) error {
	if !p.projectSaved() || level.ID == 0 {
		return entity.ErrOperationNotPermitted
	}
	if level.Type != ProjectLevel {
		return entity.ErrOperationNotPermitted
	}
	var groupID *int64
	if group != nil {
		if group.State() == entity.Creating || group.State() == entity.Deleted || group.ID() == 0 {
			return entity.ErrOperationNotPermitted
		}
		id := group.ID()
		if id == p.rootGroupID {
			// The root group row is implicit and frozen at full access.
			return entity.ErrOperationNotPermitted
		}
		groupID = &id
	}

	existing, err := p.Get(ctx, groupID)
	if err != nil && !entity.IsNotFound(err) {
		return err
	}
	if err == nil && existing.ID == level.ID {
		return nil
	}
	if err == nil {
		var stmt string
		var args []any
		if groupID == nil {
			stmt = p.dialect.Rebind("UPDATE core_projectpermission SET access_level_id = ? WHERE project_id = ? AND group_id IS NULL")
			args = []any{level.ID, p.projectID}
		} else {
			stmt = p.dialect.Rebind("UPDATE core_projectpermission SET access_level_id = ? WHERE project_id = ? AND group_id = ?")
			args = []any{level.ID, p.projectID, *groupID}
		}
		if _, err := p.db.ExecContext(ctx, stmt, args...); err != nil {
			return fmt.Errorf("failed to update permission: %w", err)
		}
		return p.dropCached(ctx)
	}

	stmt := p.dialect.Rebind("INSERT INTO core_projectpermission (project_id, group_id, access_level_id) VALUES (?, ?, ?)")
	var gid any
	if groupID != nil {
		gid = *groupID
	}
	if _, err := p.db.ExecContext(ctx, stmt, p.projectID, gid, level.ID); err != nil {
		return fmt.Errorf("failed to insert permission: %w", err)
	}
	return p.dropCached(ctx)
}

// Delete removes the explicit row for a group. The implicit root-group
// row and the wildcard row cannot be deleted, only the wildcard may be
// replaced through Set.
func (p *ProjectPermissions) Delete(ctx context.Context, groupID *int64) error {
	if !p.projectSaved() {
		return entity.ErrOperationNotPermitted
	}
	if groupID == nil || *groupID == p.rootGroupID {
		return entity.ErrOperationNotPermitted
	}
	stmt := p.dialect.Rebind("DELETE FROM core_projectpermission WHERE project_id = ? AND group_id = ?")
	if _, err := p.db.ExecContext(ctx, stmt, p.projectID, *groupID); err != nil {
		return fmt.Errorf("failed to delete permission: %w", err)
	}
	return p.dropCached(ctx)
}

// AppPermissions is the ACL manager of an application module, keyed by
// the module's UUID rather than a numeric primary key.
type AppPermissions struct {
	db      *sql.DB
	dialect query.Dialect
	levels  *LevelStore
	appUUID string
}

// NewAppPermissions wires an ACL manager to an installed application.
func NewAppPermissions(db *sql.DB, dialect query.Dialect, appUUID string) *AppPermissions {
	return &AppPermissions{
		db:      db,
		dialect: dialect,
		levels:  NewLevelStore(db, dialect),
		appUUID: appUUID,
	}
}

// Iterate yields explicit rows in insertion order, with a synthetic
// (nil, no_access) sentinel when no wildcard row is stored. The
// no_access sentinel borrows the project-scope alias: a missing app
// entry simply means no access.
func (p *AppPermissions) Iterate(ctx context.Context) ([]Entry, error) {
	stmt := p.dialect.Rebind(`
		SELECT p.group_id, l.id, l.type, l.alias, l.name
		FROM core_apppermission p
		INNER JOIN core_accesslevel l ON l.id = p.access_level_id
		WHERE p.application_id = ?
		ORDER BY p.id ASC`)
	rows, err := p.db.QueryContext(ctx, stmt, p.appUUID)
	if err != nil {
		return nil, fmt.Errorf("failed to read app permissions: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	sawWildcard := false
	for rows.Next() {
		var groupID sql.NullInt64
		var l Level
		var typ string
		if err := rows.Scan(&groupID, &l.ID, &typ, &l.Alias, &l.Name); err != nil {
			return nil, err
		}
		l.Type = LevelType(typ)
		e := Entry{Level: l}
		if groupID.Valid {
			id := groupID.Int64
			e.GroupID = &id
		} else {
			sawWildcard = true
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if !sawWildcard {
		noAccess, err := p.levels.Get(ctx, ProjectLevel, AliasNoAccess)
		if err != nil {
			return nil, fmt.Errorf("access level table is not installed: %w", err)
		}
		entries = append(entries, Entry{GroupID: nil, Level: noAccess})
	}
	return entries, nil
}

// Get returns the stored level for a group; a missing entry reads as
// no access.
func (p *AppPermissions) Get(ctx context.Context, groupID *int64) (Level, error) {
	var row *sql.Row
	if groupID == nil {
		stmt := p.dialect.Rebind(`
			SELECT l.id, l.type, l.alias, l.name
			FROM core_apppermission p
			INNER JOIN core_accesslevel l ON l.id = p.access_level_id
			WHERE p.application_id = ? AND p.group_id IS NULL`)
		row = p.db.QueryRowContext(ctx, stmt, p.appUUID)
	} else {
		stmt := p.dialect.Rebind(`
			SELECT l.id, l.type, l.alias, l.name
			FROM core_apppermission p
			INNER JOIN core_accesslevel l ON l.id = p.access_level_id
			WHERE p.application_id = ? AND p.group_id = ?`)
		row = p.db.QueryRowContext(ctx, stmt, p.appUUID, *groupID)
	}
	var l Level
	var typ string
	if err := row.Scan(&l.ID, &typ, &l.Alias, &l.Name); err != nil {
		if err == sql.ErrNoRows {
			return p.levels.Get(ctx, ProjectLevel, AliasNoAccess)
		}
		return Level{}, fmt.Errorf("failed to read app permission: %w", err)
	}
	l.Type = LevelType(typ)
	return l, nil
}

// Set installs or replaces the application-scope row for a group.
func (p *AppPermissions) Set(ctx context.Context, group entity.Referencer, level Level) error {
	if p.appUUID == "" || level.ID == 0 {
		return entity.ErrOperationNotPermitted
	}
	if level.Type != AppLevel {
		return entity.ErrOperationNotPermitted
	}
	var groupID *int64
	if group != nil {
		if group.State() == entity.Creating || group.State() == entity.Deleted || group.ID() == 0 {
			return entity.ErrOperationNotPermitted
		}
		id := group.ID()
		groupID = &id
	}

	var lookup string
	var lookupArgs []any
	if groupID == nil {
		lookup = p.dialect.Rebind("SELECT COUNT(*) FROM core_apppermission WHERE application_id = ? AND group_id IS NULL")
		lookupArgs = []any{p.appUUID}
	} else {
		lookup = p.dialect.Rebind("SELECT COUNT(*) FROM core_apppermission WHERE application_id = ? AND group_id = ?")
		lookupArgs = []any{p.appUUID, *groupID}
	}
	var n int64
	if err := p.db.QueryRowContext(ctx, lookup, lookupArgs...).Scan(&n); err != nil {
		return fmt.Errorf("failed to count app permission rows: %w", err)
	}
	if n > 0 {
		var stmt string
		var args []any
		if groupID == nil {
			stmt = p.dialect.Rebind("UPDATE core_apppermission SET access_level_id = ? WHERE application_id = ? AND group_id IS NULL")
			args = []any{level.ID, p.appUUID}
		} else {
			stmt = p.dialect.Rebind("UPDATE core_apppermission SET access_level_id = ? WHERE application_id = ? AND group_id = ?")
			args = []any{level.ID, p.appUUID, *groupID}
		}
		if _, err := p.db.ExecContext(ctx, stmt, args...); err != nil {
			return fmt.Errorf("failed to update app permission: %w", err)
		}
		return nil
	}
	stmt := p.dialect.Rebind("INSERT INTO core_apppermission (application_id, group_id, access_level_id) VALUES (?, ?, ?)")
	var gid any
	if groupID != nil {
		gid = *groupID
	}
	if _, err := p.db.ExecContext(ctx, stmt, p.appUUID, gid, level.ID); err != nil {
		return fmt.Errorf("failed to insert app permission: %w", err)
	}
	return nil
}

// Delete removes the explicit application-scope row for a group.
func (p *AppPermissions) Delete(ctx context.Context, groupID *int64) error {
	if groupID == nil {
		return entity.ErrOperationNotPermitted
	}
	stmt := p.dialect.Rebind("DELETE FROM core_apppermission WHERE application_id = ? AND group_id = ?")
	if _, err := p.db.ExecContext(ctx, stmt, p.appUUID, *groupID); err != nil {
		return fmt.Errorf("failed to delete app permission: %w", err)
	}
	return nil
}
