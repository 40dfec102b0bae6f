package query

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/platinummonkey/corefacility/pkg/entity"
)

// Reader composes two builders from one base: an items statement that
// keeps ordering and pagination, and a count statement that collapses
// the output list to a single aggregate. Filters applied through the
// reader narrow both, so iteration and counting always agree.
//
// Iteration and slicing execute exactly one statement; counting
// executes exactly one statement.
type Reader struct {
	db    *sql.DB
	items *Builder
	count *Builder
}

// NewReader derives a reader from a base builder. The base carries the
// data sources, joins, default filter and order terms.
func NewReader(db *sql.DB, base *Builder) *Reader {
	count := base.Clone()
	count.ClearSelectExpressions()
	count.ClearOrderTerms()
	count.ClearLimit()
	count.AddSelectExpression("COUNT(*)")
	return &Reader{db: db, items: base.Clone(), count: count}
}

// Items exposes the items builder for set-specific customisation.
func (r *Reader) Items() *Builder { return r.items }

// CountBuilder exposes the count builder for set-specific customisation.
func (r *Reader) CountBuilder() *Builder { return r.count }

// ApplyFilter narrows both statements conjunctively.
func (r *Reader) ApplyFilter(f Filter) {
	r.items.AndFilter(f)
	r.count.AndFilter(f)
}

// RowScanner consumes one result row.
type RowScanner func(rows *sql.Rows) error

// All streams every matching row through scan in the declared order.
func (r *Reader) All(ctx context.Context, scan RowScanner) error {
	stmt, args, err := r.items.Build()
	if err != nil {
		return err
	}
	rows, err := r.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("failed to query items: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		if err := scan(rows); err != nil {
			return err
		}
	}
	return rows.Err()
}

// Count runs the single aggregate statement.
func (r *Reader) Count(ctx context.Context) (int64, error) {
	stmt, args, err := r.count.Build()
	if err != nil {
		return 0, err
	}
	var n int64
	if err := r.db.QueryRowContext(ctx, stmt, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count items: %w", err)
	}
	return n, nil
}

// At reads the single row at position i. Negative positions and
// positions past the end yield ErrEntityNotFound.
func (r *Reader) At(ctx context.Context, i int, scan RowScanner) error {
	if i < 0 {
		return entity.ErrEntityNotFound
	}
	return r.window(ctx, 1, i, scan, true)
}

// Slice reads rows [a, b). A negative bound or b < a is invalid.
func (r *Reader) Slice(ctx context.Context, a, b int, scan RowScanner) error {
	if a < 0 || b < a {
		return entity.ErrEntityNotFound
	}
	return r.window(ctx, b-a, a, scan, false)
}

func (r *Reader) window(ctx context.Context, limit, offset int, scan RowScanner, exactlyOne bool) error {
	b := r.items.Clone()
	b.AddLimit(limit, offset)
	stmt, args, err := b.Build()
	if err != nil {
		return err
	}
	rows, err := r.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("failed to query window: %w", err)
	}
	defer rows.Close()
	found := false
	for rows.Next() {
		found = true
		if err := scan(rows); err != nil {
			return err
		}
	}
	if err := rows.Err(); err != nil {
		return err
	}
	if exactlyOne && !found {
		return entity.ErrEntityNotFound
	}
	return nil
}

// One reads exactly one row matched by an extra filter, leaving the
// reader's own filters untouched. Used by Get-style lookups on primary
// or natural keys.
func (r *Reader) One(ctx context.Context, f Filter, scan RowScanner) error {
	b := r.items.Clone()
	if f != nil {
		b.AndFilter(f)
	}
	b.AddLimit(1, 0)
	stmt, args, err := b.Build()
	if err != nil {
		return err
	}
	rows, err := r.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("failed to query item: %w", err)
	}
	defer rows.Close()
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return err
		}
		return entity.ErrEntityNotFound
	}
	return scan(rows)
}
