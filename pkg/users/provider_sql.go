package users

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/platinummonkey/corefacility/pkg/entity"
	"github.com/platinummonkey/corefacility/pkg/query"
)

// sqlProvider is the authoritative relational backend of the user
// entity.
type sqlProvider struct {
	factory *Factory
}

func (p *sqlProvider) LoadEntity(ctx context.Context, tx *sql.Tx, e *entity.Entity) (*entity.Entity, error) {
	login, _ := e.Raw(FieldLogin).(string)
	stmt := p.factory.dialect.Rebind(fmt.Sprintf(
		"SELECT %s FROM core_user WHERE login = ? LIMIT 1", strings.Join(userColumns, ", ")))
	rows, err := tx.QueryContext(ctx, stmt, login)
	if err != nil {
		return nil, fmt.Errorf("failed to look up user by login: %w", err)
	}
	defer rows.Close()
	if !rows.Next() {
		return nil, rows.Err()
	}
	u, err := p.factory.scanUser(rows)
	if err != nil {
		return nil, err
	}
	return u.Entity, nil
}

func (p *sqlProvider) CreateEntity(ctx context.Context, tx *sql.Tx, e *entity.Entity) error {
	id, err := query.InsertReturningID(ctx, tx, p.factory.dialect, "core_user",
		[]string{"login", "password_hash", "name", "surname", "email", "phone",
			"is_locked", "is_superuser", "is_support", "avatar", "unix_group",
			"home_dir", "activation_code_hash", "activation_code_expiry_date"},
		e.Raw(FieldLogin), e.Raw(FieldPasswordHash), e.Raw(FieldName), e.Raw(FieldSurname),
		e.Raw(FieldEmail), e.Raw(FieldPhone), e.Raw(FieldIsLocked), e.Raw(FieldIsSuperuser),
		e.Raw(FieldIsSupport), e.Raw(FieldAvatar), e.Raw(FieldUnixGroup),
		e.Raw(FieldHomeDir), e.Raw(FieldActivationCodeHash), rawTime(e, FieldActivationCodeExpiryDate))
	if err != nil {
		return err
	}
	e.SetID(id)
	return nil
}

func (p *sqlProvider) UpdateEntity(ctx context.Context, tx *sql.Tx, e *entity.Entity) error {
	stmt := p.factory.dialect.Rebind(`
		UPDATE core_user SET login = ?, password_hash = ?, name = ?, surname = ?,
			email = ?, phone = ?, is_locked = ?, is_superuser = ?, is_support = ?,
			avatar = ?, unix_group = ?, home_dir = ?, activation_code_hash = ?,
			activation_code_expiry_date = ?
		WHERE id = ?`)
	_, err := tx.ExecContext(ctx, stmt,
		e.Raw(FieldLogin), e.Raw(FieldPasswordHash), e.Raw(FieldName), e.Raw(FieldSurname),
		e.Raw(FieldEmail), e.Raw(FieldPhone), e.Raw(FieldIsLocked), e.Raw(FieldIsSuperuser),
		e.Raw(FieldIsSupport), e.Raw(FieldAvatar), e.Raw(FieldUnixGroup),
		e.Raw(FieldHomeDir), e.Raw(FieldActivationCodeHash), rawTime(e, FieldActivationCodeExpiryDate),
		e.ID())
	if err != nil {
		return fmt.Errorf("failed to update user: %w", err)
	}
	return nil
}

func (p *sqlProvider) DeleteEntity(ctx context.Context, tx *sql.Tx, e *entity.Entity) error {
	// A governor cannot be deleted while any governed group survives.
	probe := p.factory.dialect.Rebind(
		"SELECT COUNT(*) FROM core_groupuser WHERE user_id = ? AND is_governor = ?")
	var n int64
	if err := tx.QueryRowContext(ctx, probe, e.ID(), true).Scan(&n); err != nil {
		return fmt.Errorf("failed to probe governor relation: %w", err)
	}
	if n > 0 {
		login, _ := e.Raw(FieldLogin).(string)
		return &entity.GroupGovernorConstraintError{Login: login}
	}
	stmt := p.factory.dialect.Rebind("DELETE FROM core_user WHERE id = ?")
	if _, err := tx.ExecContext(ctx, stmt, e.ID()); err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}
	return nil
}

func (p *sqlProvider) ResolveConflict(ctx context.Context, tx *sql.Tx, e *entity.Entity, existing *entity.Entity) error {
	// The relational store is authoritative: a login collision here is
	// a real duplicate that nothing can absorb.
	return entity.ErrDuplicatedEntity
}
