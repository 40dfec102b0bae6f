package projects

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/platinummonkey/corefacility/pkg/entity"
	"github.com/platinummonkey/corefacility/pkg/posix"
)

// projectDirMode is 02770: setgid plus owner and group rwx, so files
// created inside inherit the project group.
const projectDirMode = os.FileMode(0o770) | os.ModeSetgid

// filesProvider materialises the shared directory of a project at
// <DirRoot>/<alias>. On an alias change the directory is renamed.
type filesProvider struct {
	factory *Factory
}

func (p *filesProvider) path(alias string) string {
	return filepath.Join(p.factory.opts.DirRoot, alias)
}

func (p *filesProvider) LoadEntity(ctx context.Context, tx *sql.Tx, e *entity.Entity) (*entity.Entity, error) {
	alias, _ := e.Raw(FieldAlias).(string)
	if alias == "" {
		return nil, nil
	}
	if _, err := os.Stat(p.path(alias)); err != nil {
		return nil, nil
	}
	dup := entity.Wrap(p.factory.schema, nil, e.ID(), map[string]any{
		FieldAlias:      alias,
		FieldProjectDir: p.path(alias),
	})
	return dup, nil
}

func (p *filesProvider) CreateEntity(ctx context.Context, tx *sql.Tx, e *entity.Entity) error {
	alias, _ := e.Raw(FieldAlias).(string)
	dir := p.path(alias)
	if err := os.MkdirAll(dir, 0o770); err != nil {
		return fmt.Errorf("failed to create project directory: %w", err)
	}
	if err := os.Chmod(dir, projectDirMode); err != nil {
		return fmt.Errorf("failed to set project directory mode: %w", err)
	}
	if p.factory.opts.ManageUnixGroups {
		if group, _ := e.Raw(FieldUnixGroup).(string); group != "" {
			if err := posix.Chgrp(ctx, p.factory.opts.Commands, dir, group); err != nil {
				return err
			}
		}
	}
	e.SetDirect(FieldProjectDir, dir)
	e.NotifyFieldChanged(FieldProjectDir)
	return nil
}

func (p *filesProvider) UpdateEntity(ctx context.Context, tx *sql.Tx, e *entity.Entity) error {
	if !e.WasEdited(FieldAlias) {
		return nil
	}
	prev, ok := e.Original(FieldAlias)
	if !ok {
		return nil
	}
	oldAlias, _ := prev.(string)
	alias, _ := e.Raw(FieldAlias).(string)
	if oldAlias == "" || oldAlias == alias {
		return nil
	}
	oldDir, newDir := p.path(oldAlias), p.path(alias)
	if _, err := os.Stat(oldDir); err == nil {
		if err := os.Rename(oldDir, newDir); err != nil {
			return fmt.Errorf("failed to rename project directory: %w", err)
		}
	}
	e.SetDirect(FieldProjectDir, newDir)
	e.NotifyFieldChanged(FieldProjectDir)
	return nil
}

func (p *filesProvider) DeleteEntity(ctx context.Context, tx *sql.Tx, e *entity.Entity) error {
	alias, _ := e.Raw(FieldAlias).(string)
	if err := os.RemoveAll(p.path(alias)); err != nil {
		return fmt.Errorf("failed to remove project directory: %w", err)
	}
	return nil
}

func (p *filesProvider) ResolveConflict(ctx context.Context, tx *sql.Tx, e *entity.Entity, existing *entity.Entity) error {
	// The directory is already there: adopt it.
	alias, _ := e.Raw(FieldAlias).(string)
	e.SetDirect(FieldProjectDir, p.path(alias))
	e.NotifyFieldChanged(FieldProjectDir)
	return nil
}
