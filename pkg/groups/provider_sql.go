package groups

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/platinummonkey/corefacility/pkg/entity"
	"github.com/platinummonkey/corefacility/pkg/query"
)

// sqlProvider persists groups and keeps the governor membership row in
// step with the governor field.
type sqlProvider struct {
	factory *Factory
}

func (p *sqlProvider) LoadEntity(ctx context.Context, tx *sql.Tx, e *entity.Entity) (*entity.Entity, error) {
	// Group names are not unique; there is no natural key to collide on.
	return nil, nil
}

func (p *sqlProvider) CreateEntity(ctx context.Context, tx *sql.Tx, e *entity.Entity) error {
	name, _ := e.Raw(FieldName).(string)
	id, err := query.InsertReturningID(ctx, tx, p.factory.dialect, "core_group",
		[]string{"name"}, name)
	if err != nil {
		return err
	}
	e.SetID(id)

	// The initial governor becomes a member immediately.
	governorID, _ := e.Raw(FieldGovernor).(int64)
	_, err = query.InsertReturningID(ctx, tx, p.factory.dialect, "core_groupuser",
		[]string{"group_id", "user_id", "is_governor"}, id, governorID, true)
	if err != nil {
		return fmt.Errorf("failed to add governor membership: %w", err)
	}
	return nil
}

func (p *sqlProvider) UpdateEntity(ctx context.Context, tx *sql.Tx, e *entity.Entity) error {
	if e.WasEdited(FieldGovernor) {
		if err := p.switchGovernor(ctx, tx, e); err != nil {
			return err
		}
	}
	name, _ := e.Raw(FieldName).(string)
	stmt := p.factory.dialect.Rebind("UPDATE core_group SET name = ? WHERE id = ?")
	if _, err := tx.ExecContext(ctx, stmt, name, e.ID()); err != nil {
		return fmt.Errorf("failed to update group: %w", err)
	}
	return nil
}

// switchGovernor demotes the previous governor and promotes the new
// one. The new governor must already be a member.
func (p *sqlProvider) switchGovernor(ctx context.Context, tx *sql.Tx, e *entity.Entity) error {
	newGovernor, _ := e.Raw(FieldGovernor).(int64)
	probe := p.factory.dialect.Rebind(
		"SELECT COUNT(*) FROM core_groupuser WHERE group_id = ? AND user_id = ?")
	var n int64
	if err := tx.QueryRowContext(ctx, probe, e.ID(), newGovernor).Scan(&n); err != nil {
		return fmt.Errorf("failed to probe membership: %w", err)
	}
	if n == 0 {
		return entity.ErrOperationNotPermitted
	}
	demote := p.factory.dialect.Rebind(
		"UPDATE core_groupuser SET is_governor = ? WHERE group_id = ? AND is_governor = ?")
	if _, err := tx.ExecContext(ctx, demote, false, e.ID(), true); err != nil {
		return fmt.Errorf("failed to demote governor: %w", err)
	}
	promote := p.factory.dialect.Rebind(
		"UPDATE core_groupuser SET is_governor = ? WHERE group_id = ? AND user_id = ?")
	if _, err := tx.ExecContext(ctx, promote, true, e.ID(), newGovernor); err != nil {
		return fmt.Errorf("failed to promote governor: %w", err)
	}
	return nil
}

func (p *sqlProvider) DeleteEntity(ctx context.Context, tx *sql.Tx, e *entity.Entity) error {
	// A group referenced as a project root group must survive.
	probe := p.factory.dialect.Rebind(
		"SELECT COUNT(*) FROM core_project WHERE root_group_id = ?")
	var n int64
	if err := tx.QueryRowContext(ctx, probe, e.ID()).Scan(&n); err != nil {
		return fmt.Errorf("failed to probe root group references: %w", err)
	}
	if n > 0 {
		return entity.ErrOperationNotPermitted
	}
	stmt := p.factory.dialect.Rebind("DELETE FROM core_group WHERE id = ?")
	if _, err := tx.ExecContext(ctx, stmt, e.ID()); err != nil {
		return fmt.Errorf("failed to delete group: %w", err)
	}
	return nil
}

func (p *sqlProvider) ResolveConflict(ctx context.Context, tx *sql.Tx, e *entity.Entity, existing *entity.Entity) error {
	return entity.ErrDuplicatedEntity
}
