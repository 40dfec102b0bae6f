package users

import (
	"context"
	"database/sql"
	"path/filepath"

	"github.com/platinummonkey/corefacility/pkg/entity"
	"github.com/platinummonkey/corefacility/pkg/posix"
)

// posixProvider maintains the operating-system account that mirrors a
// user. The account is a convergent cache: when it already exists the
// provider reconciles instead of failing, and the relational store
// stays the source of truth.
type posixProvider struct {
	factory *Factory
}

func (p *posixProvider) homeDir(e *entity.Entity) string {
	login, _ := e.Raw(FieldLogin).(string)
	return filepath.Join(p.factory.opts.BaseDir, login)
}

func (p *posixProvider) LoadEntity(ctx context.Context, tx *sql.Tx, e *entity.Entity) (*entity.Entity, error) {
	login, _ := e.Raw(FieldLogin).(string)
	if !posix.UserExists(ctx, p.factory.opts.Commands, login) {
		return nil, nil
	}
	dup := entity.Wrap(p.factory.schema, nil, e.ID(), map[string]any{FieldLogin: login})
	return dup, nil
}

func (p *posixProvider) CreateEntity(ctx context.Context, tx *sql.Tx, e *entity.Entity) error {
	login, _ := e.Raw(FieldLogin).(string)
	if err := posix.AddUser(ctx, p.factory.opts.Commands, login, p.homeDir(e)); err != nil {
		return err
	}
	e.SetDirect(FieldUnixGroup, login)
	e.NotifyFieldChanged(FieldUnixGroup)
	return nil
}

func (p *posixProvider) UpdateEntity(ctx context.Context, tx *sql.Tx, e *entity.Entity) error {
	login, _ := e.Raw(FieldLogin).(string)
	cmds := p.factory.opts.Commands
	if e.WasEdited(FieldLogin) {
		if prev, ok := e.Original(FieldLogin); ok {
			if oldLogin, ok := prev.(string); ok && oldLogin != "" && oldLogin != login {
				if err := posix.RenameUser(ctx, cmds, oldLogin, login); err != nil {
					return err
				}
				e.SetDirect(FieldUnixGroup, login)
				e.NotifyFieldChanged(FieldUnixGroup)
			}
		}
	}
	if e.WasEdited(FieldIsLocked) {
		locked, _ := e.Raw(FieldIsLocked).(bool)
		if locked {
			return posix.LockUser(ctx, cmds, login)
		}
		return posix.UnlockUser(ctx, cmds, login)
	}
	return nil
}

func (p *posixProvider) DeleteEntity(ctx context.Context, tx *sql.Tx, e *entity.Entity) error {
	login, _ := e.Raw(FieldLogin).(string)
	if !posix.UserExists(ctx, p.factory.opts.Commands, login) {
		return nil
	}
	return posix.DeleteUser(ctx, p.factory.opts.Commands, login)
}

func (p *posixProvider) ResolveConflict(ctx context.Context, tx *sql.Tx, e *entity.Entity, existing *entity.Entity) error {
	// The account already exists: adopt it and copy backend truth back
	// into the entity.
	login, _ := e.Raw(FieldLogin).(string)
	e.SetDirect(FieldUnixGroup, login)
	e.NotifyFieldChanged(FieldUnixGroup)
	return nil
}
