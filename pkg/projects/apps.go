package projects

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/platinummonkey/corefacility/pkg/entity"
)

// AttachedApp is one application enabled for a project.
type AttachedApp struct {
	UUID      string
	IsEnabled bool
}

// AppList manages which applications a project exposes to its members.
type AppList struct {
	project *Project
}

func (l *AppList) guard() error {
	if l.project.State() == entity.Creating || l.project.State() == entity.Deleted {
		return entity.ErrOperationNotPermitted
	}
	return nil
}

// Attach links an application to the project. Attaching twice is a
// no-op that keeps the stored enabled flag.
func (l *AppList) Attach(ctx context.Context, appUUID string) error {
	if err := l.guard(); err != nil {
		return err
	}
	f := l.project.factory
	probe := f.dialect.Rebind(
		"SELECT id FROM core_projectapplication WHERE project_id = ? AND application_uuid = ? LIMIT 1")
	var id int64
	err := f.db.QueryRowContext(ctx, probe, l.project.ID(), appUUID).Scan(&id)
	if err == nil {
		return nil
	}
	if err != sql.ErrNoRows {
		return fmt.Errorf("probe project application: %w", err)
	}
	ins := f.dialect.Rebind(
		"INSERT INTO core_projectapplication (project_id, application_uuid, is_enabled) VALUES (?, ?, ?)")
	if _, err := f.db.ExecContext(ctx, ins, l.project.ID(), appUUID, true); err != nil {
		return fmt.Errorf("attach project application: %w", err)
	}
	return nil
}

// Detach removes the link. Detaching an absent link is a no-op.
func (l *AppList) Detach(ctx context.Context, appUUID string) error {
	if err := l.guard(); err != nil {
		return err
	}
	f := l.project.factory
	q := f.dialect.Rebind(
		"DELETE FROM core_projectapplication WHERE project_id = ? AND application_uuid = ?")
	if _, err := f.db.ExecContext(ctx, q, l.project.ID(), appUUID); err != nil {
		return fmt.Errorf("detach project application: %w", err)
	}
	return nil
}

// SetEnabled toggles an attached application without detaching it.
func (l *AppList) SetEnabled(ctx context.Context, appUUID string, enabled bool) error {
	if err := l.guard(); err != nil {
		return err
	}
	f := l.project.factory
	q := f.dialect.Rebind(
		"UPDATE core_projectapplication SET is_enabled = ? WHERE project_id = ? AND application_uuid = ?")
	res, err := f.db.ExecContext(ctx, q, enabled, l.project.ID(), appUUID)
	if err != nil {
		return fmt.Errorf("toggle project application: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return entity.ErrEntityNotFound
	}
	return nil
}

// All lists the attached applications in attachment order.
func (l *AppList) All(ctx context.Context) ([]AttachedApp, error) {
	if err := l.guard(); err != nil {
		return nil, err
	}
	f := l.project.factory
	q := f.dialect.Rebind(
		"SELECT application_uuid, is_enabled FROM core_projectapplication WHERE project_id = ? ORDER BY id")
	rows, err := f.db.QueryContext(ctx, q, l.project.ID())
	if err != nil {
		return nil, fmt.Errorf("list project applications: %w", err)
	}
	defer rows.Close()
	var out []AttachedApp
	for rows.Next() {
		var app AttachedApp
		if err := rows.Scan(&app.UUID, &app.IsEnabled); err != nil {
			return nil, err
		}
		out = append(out, app)
	}
	return out, rows.Err()
}
