// Package throttle records failed authorization attempts, so the
// transport layer can slow down or lock out a misbehaving source. The
// table prunes itself: every count pass drops rows older than the
// window being asked about.
package throttle

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/platinummonkey/corefacility/pkg/query"
)

// Log is the failed-authorization ledger keyed by (ip, user) pairs.
type Log struct {
	db      *sql.DB
	dialect query.Dialect
}

// NewLog builds the ledger over the failed authorization table.
func NewLog(db *sql.DB, dialect query.Dialect) *Log {
	return &Log{db: db, dialect: dialect}
}

// Add records one failed attempt. userID is nil when the attempt never
// resolved to an account.
func (l *Log) Add(ctx context.Context, ip string, userID *int64) error {
	q := l.dialect.Rebind(
		"INSERT INTO core_failedauthorizations (auth_time, ip, user_id) VALUES (?, ?, ?)")
	var user any
	if userID != nil {
		user = *userID
	}
	if _, err := l.db.ExecContext(ctx, q, time.Now().UTC(), ip, user); err != nil {
		return fmt.Errorf("record failed authorization: %w", err)
	}
	return nil
}

// Count returns how many failures the (ip, user) pair accumulated
// inside the window, pruning rows older than the window table-wide
// first. Concurrent pruning of the same rows is harmless.
func (l *Log) Count(ctx context.Context, ip string, userID *int64, window time.Duration) (int64, error) {
	cutoff := time.Now().Add(-window).UTC()
	prune := l.dialect.Rebind("DELETE FROM core_failedauthorizations WHERE auth_time < ?")
	if _, err := l.db.ExecContext(ctx, prune, cutoff); err != nil {
		return 0, fmt.Errorf("prune failed authorizations: %w", err)
	}

	var (
		q    string
		args []any
	)
	if userID != nil {
		q = "SELECT COUNT(*) FROM core_failedauthorizations WHERE ip = ? AND user_id = ? AND auth_time >= ?"
		args = []any{ip, *userID, cutoff}
	} else {
		q = "SELECT COUNT(*) FROM core_failedauthorizations WHERE ip = ? AND user_id IS NULL AND auth_time >= ?"
		args = []any{ip, cutoff}
	}
	var n int64
	if err := l.db.QueryRowContext(ctx, l.dialect.Rebind(q), args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count failed authorizations: %w", err)
	}
	return n, nil
}
