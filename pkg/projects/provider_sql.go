package projects

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/platinummonkey/corefacility/pkg/entity"
	"github.com/platinummonkey/corefacility/pkg/query"
)

// sqlProvider is the authoritative backend. It wins every conflict.
type sqlProvider struct {
	factory *Factory
}

func (p *sqlProvider) LoadEntity(ctx context.Context, tx *sql.Tx, e *entity.Entity) (*entity.Entity, error) {
	alias, _ := e.Raw(FieldAlias).(string)
	if alias == "" {
		return nil, nil
	}
	q := p.factory.dialect.Rebind(
		"SELECT " + strings.Join(projectColumns, ", ") + " " + projectBase + " WHERE p.alias = ? LIMIT 1")
	rows, err := tx.QueryContext(ctx, q, alias)
	if err != nil {
		return nil, fmt.Errorf("load project: %w", err)
	}
	defer rows.Close()
	if !rows.Next() {
		return nil, rows.Err()
	}
	dup, err := p.factory.scanProject(rows)
	if err != nil {
		return nil, fmt.Errorf("load project: %w", err)
	}
	return dup.Entity, nil
}

func (p *sqlProvider) CreateEntity(ctx context.Context, tx *sql.Tx, e *entity.Entity) error {
	id, err := query.InsertReturningID(ctx, tx, p.factory.dialect, "core_project",
		[]string{"alias", "name", "description", "avatar", "root_group_id", "project_dir", "unix_group"},
		e.Raw(FieldAlias), e.Raw(FieldName), nullable(e.Raw(FieldDescription)),
		nullable(e.Raw(FieldAvatar)), e.Raw(FieldRootGroup),
		nullable(e.Raw(FieldProjectDir)), nullable(e.Raw(FieldUnixGroup)))
	if err != nil {
		return fmt.Errorf("create project: %w", err)
	}
	e.SetID(id)
	return nil
}

func (p *sqlProvider) UpdateEntity(ctx context.Context, tx *sql.Tx, e *entity.Entity) error {
	q := p.factory.dialect.Rebind(
		"UPDATE core_project SET alias = ?, name = ?, description = ?, avatar = ?, root_group_id = ?, project_dir = ?, unix_group = ? WHERE id = ?")
	_, err := tx.ExecContext(ctx, q,
		e.Raw(FieldAlias), e.Raw(FieldName), nullable(e.Raw(FieldDescription)),
		nullable(e.Raw(FieldAvatar)), e.Raw(FieldRootGroup),
		nullable(e.Raw(FieldProjectDir)), nullable(e.Raw(FieldUnixGroup)), e.ID())
	if err != nil {
		return fmt.Errorf("update project: %w", err)
	}
	return nil
}

func (p *sqlProvider) DeleteEntity(ctx context.Context, tx *sql.Tx, e *entity.Entity) error {
	for _, q := range []string{
		"DELETE FROM core_projectpermission WHERE project_id = ?",
		"DELETE FROM core_projectapplication WHERE project_id = ?",
		"DELETE FROM core_project WHERE id = ?",
	} {
		if _, err := tx.ExecContext(ctx, p.factory.dialect.Rebind(q), e.ID()); err != nil {
			return fmt.Errorf("delete project: %w", err)
		}
	}
	return nil
}

func (p *sqlProvider) ResolveConflict(ctx context.Context, tx *sql.Tx, e, dup *entity.Entity) error {
	return entity.ErrDuplicatedEntity
}

func nullable(v any) any {
	if s, ok := v.(string); ok && s == "" {
		return nil
	}
	if v == nil {
		return nil
	}
	return v
}
