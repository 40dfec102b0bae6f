package projects

import (
	"context"
	"database/sql"
	"fmt"
	"hash/crc32"

	"github.com/platinummonkey/corefacility/pkg/entity"
	"github.com/platinummonkey/corefacility/pkg/posix"
)

// posixGroupName derives the OS group for a project. Short aliases are
// used verbatim; longer ones are replaced by "p" plus the decimal CRC32
// of the alias, capped to 11 characters total.
func posixGroupName(alias string) string {
	if len(alias) <= 10 {
		return alias
	}
	name := "p" + fmt.Sprint(crc32.ChecksumIEEE([]byte(alias)))
	if len(name) > 11 {
		name = name[:11]
	}
	return name
}

// posixGroupProvider mirrors each project as an OS group so that file
// ownership can follow project membership.
type posixGroupProvider struct {
	factory *Factory
}

func (p *posixGroupProvider) LoadEntity(ctx context.Context, tx *sql.Tx, e *entity.Entity) (*entity.Entity, error) {
	alias, _ := e.Raw(FieldAlias).(string)
	if alias == "" {
		return nil, nil
	}
	name := posixGroupName(alias)
	if !posix.GroupExists(ctx, p.factory.opts.Commands, name) {
		return nil, nil
	}
	dup := entity.Wrap(p.factory.schema, p.factory.db, 0, map[string]any{FieldUnixGroup: name}, p.factory.providers...)
	return dup, nil
}

func (p *posixGroupProvider) CreateEntity(ctx context.Context, tx *sql.Tx, e *entity.Entity) error {
	alias, _ := e.Raw(FieldAlias).(string)
	name := posixGroupName(alias)
	if err := posix.AddGroup(ctx, p.factory.opts.Commands, name); err != nil {
		return fmt.Errorf("add group %s: %w", name, err)
	}
	e.SetDirect(FieldUnixGroup, name)
	e.NotifyFieldChanged(FieldUnixGroup)
	return nil
}

func (p *posixGroupProvider) UpdateEntity(ctx context.Context, tx *sql.Tx, e *entity.Entity) error {
	if !e.WasEdited(FieldAlias) {
		return nil
	}
	orig, _ := e.Original(FieldAlias)
	oldAlias, _ := orig.(string)
	newName := posixGroupName(e.Raw(FieldAlias).(string))
	oldName := posixGroupName(oldAlias)
	if oldName == newName {
		return nil
	}
	if posix.GroupExists(ctx, p.factory.opts.Commands, oldName) {
		if err := posix.DeleteGroup(ctx, p.factory.opts.Commands, oldName); err != nil {
			return fmt.Errorf("delete group %s: %w", oldName, err)
		}
	}
	if err := posix.AddGroup(ctx, p.factory.opts.Commands, newName); err != nil {
		return fmt.Errorf("add group %s: %w", newName, err)
	}
	e.SetDirect(FieldUnixGroup, newName)
	e.NotifyFieldChanged(FieldUnixGroup)
	return nil
}

func (p *posixGroupProvider) DeleteEntity(ctx context.Context, tx *sql.Tx, e *entity.Entity) error {
	name, _ := e.Raw(FieldUnixGroup).(string)
	if name == "" {
		alias, _ := e.Raw(FieldAlias).(string)
		name = posixGroupName(alias)
	}
	if !posix.GroupExists(ctx, p.factory.opts.Commands, name) {
		return nil
	}
	if err := posix.DeleteGroup(ctx, p.factory.opts.Commands, name); err != nil {
		return fmt.Errorf("delete group %s: %w", name, err)
	}
	return nil
}

// ResolveConflict adopts the already present OS group instead of
// failing: the relational record stays authoritative.
func (p *posixGroupProvider) ResolveConflict(ctx context.Context, tx *sql.Tx, e, dup *entity.Entity) error {
	name, _ := dup.Raw(FieldUnixGroup).(string)
	e.SetDirect(FieldUnixGroup, name)
	e.NotifyFieldChanged(FieldUnixGroup)
	return nil
}
