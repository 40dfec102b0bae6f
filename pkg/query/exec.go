package query

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// Execer is the subset of *sql.DB and *sql.Tx the insert helpers need.
type Execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// InsertReturningID inserts one row and returns the generated id.
// PostgreSQL goes through RETURNING; SQLite through LastInsertId.
func InsertReturningID(ctx context.Context, ex Execer, d Dialect, table string, columns []string, values ...any) (int64, error) {
	if len(columns) != len(values) {
		return 0, fmt.Errorf("insert into %s: %d columns but %d values", table, len(columns), len(values))
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(columns)), ", ")
	stmt := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", table, strings.Join(columns, ", "), placeholders)
	if d == PostgreSQL {
		stmt = d.Rebind(stmt + " RETURNING id")
		var id int64
		if err := ex.QueryRowContext(ctx, stmt, values...).Scan(&id); err != nil {
			return 0, fmt.Errorf("failed to insert into %s: %w", table, err)
		}
		return id, nil
	}
	res, err := ex.ExecContext(ctx, stmt, values...)
	if err != nil {
		return 0, fmt.Errorf("failed to insert into %s: %w", table, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read generated id for %s: %w", table, err)
	}
	return id, nil
}
