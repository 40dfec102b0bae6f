package users

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/platinummonkey/corefacility/pkg/entity"
	"github.com/platinummonkey/corefacility/pkg/posix"
)

// homeDirMode is 04750: setuid, owner rwx, group rx.
const homeDirMode = os.FileMode(0o750) | os.ModeSetuid

// filesProvider materialises the home directory of a user at
// <BaseDir>/<login>. On a login change the directory is renamed.
type filesProvider struct {
	factory *Factory
}

func (p *filesProvider) path(login string) string {
	return filepath.Join(p.factory.opts.BaseDir, login)
}

func (p *filesProvider) LoadEntity(ctx context.Context, tx *sql.Tx, e *entity.Entity) (*entity.Entity, error) {
	login, _ := e.Raw(FieldLogin).(string)
	if _, err := os.Stat(p.path(login)); err != nil {
		return nil, nil
	}
	dup := entity.Wrap(p.factory.schema, nil, e.ID(), map[string]any{
		FieldLogin:   login,
		FieldHomeDir: p.path(login),
	})
	return dup, nil
}

func (p *filesProvider) CreateEntity(ctx context.Context, tx *sql.Tx, e *entity.Entity) error {
	login, _ := e.Raw(FieldLogin).(string)
	dir := p.path(login)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("failed to create home directory: %w", err)
	}
	if err := os.Chmod(dir, homeDirMode); err != nil {
		return fmt.Errorf("failed to set home directory mode: %w", err)
	}
	if p.factory.opts.ManageUnixUsers {
		if err := posix.Chown(ctx, p.factory.opts.Commands, dir, login); err != nil {
			return err
		}
	}
	e.SetDirect(FieldHomeDir, dir)
	e.NotifyFieldChanged(FieldHomeDir)
	return nil
}

func (p *filesProvider) UpdateEntity(ctx context.Context, tx *sql.Tx, e *entity.Entity) error {
	if !e.WasEdited(FieldLogin) {
		return nil
	}
	prev, ok := e.Original(FieldLogin)
	if !ok {
		return nil
	}
	oldLogin, _ := prev.(string)
	login, _ := e.Raw(FieldLogin).(string)
	if oldLogin == "" || oldLogin == login {
		return nil
	}
	oldDir, newDir := p.path(oldLogin), p.path(login)
	if _, err := os.Stat(oldDir); err == nil {
		if err := os.Rename(oldDir, newDir); err != nil {
			return fmt.Errorf("failed to rename home directory: %w", err)
		}
	}
	e.SetDirect(FieldHomeDir, newDir)
	e.NotifyFieldChanged(FieldHomeDir)
	return nil
}

func (p *filesProvider) DeleteEntity(ctx context.Context, tx *sql.Tx, e *entity.Entity) error {
	login, _ := e.Raw(FieldLogin).(string)
	if err := os.RemoveAll(p.path(login)); err != nil {
		return fmt.Errorf("failed to remove home directory: %w", err)
	}
	return nil
}

func (p *filesProvider) ResolveConflict(ctx context.Context, tx *sql.Tx, e *entity.Entity, existing *entity.Entity) error {
	// The directory is already there: adopt it.
	login, _ := e.Raw(FieldLogin).(string)
	e.SetDirect(FieldHomeDir, p.path(login))
	e.NotifyFieldChanged(FieldHomeDir)
	return nil
}
