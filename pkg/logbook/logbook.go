// Package logbook keeps the relational audit trail: one log row per
// handled request plus free-form records appended while the request
// runs. The open log travels through the request context, so any layer
// can append without holding a reference.
package logbook

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/platinummonkey/corefacility/pkg/contextkeys"
	"github.com/platinummonkey/corefacility/pkg/entity"
	"github.com/platinummonkey/corefacility/pkg/query"
)

// Record levels follow the three-letter convention of the log table.
const (
	LevelDebug   = "DBG"
	LevelInfo    = "INF"
	LevelWarning = "WRN"
	LevelError   = "ERR"
)

// Log is one request audit row.
type Log struct {
	ID             int64
	RequestDate    time.Time
	Address        string
	Method         string
	Description    string
	UserID         *int64
	IP             string
	ResponseStatus *int
}

// Record is one line appended to a log.
type Record struct {
	ID      int64
	LogID   int64
	Time    time.Time
	Level   string
	Message string
}

// Store reads and writes the audit tables.
type Store struct {
	db      *sql.DB
	dialect query.Dialect
}

// NewStore builds the audit store.
func NewStore(db *sql.DB, dialect query.Dialect) *Store {
	return &Store{db: db, dialect: dialect}
}

// Open writes the log row for a fresh request and binds its id to the
// returned context. The user id and client ip are taken from the
// context when present.
func (s *Store) Open(ctx context.Context, address, method, description string) (context.Context, *Log, error) {
	l := &Log{
		RequestDate: time.Now().UTC(),
		Address:     address,
		Method:      method,
		Description: description,
	}
	if id, ok := contextkeys.CurrentUser(ctx); ok {
		l.UserID = &id
	}
	if ip, ok := contextkeys.ClientIP(ctx); ok {
		l.IP = ip
	}
	var user any
	if l.UserID != nil {
		user = *l.UserID
	}
	id, err := query.InsertReturningID(ctx, s.db, s.dialect, "core_log",
		[]string{"request_date", "log_address", "request_method", "operation_description", "user_id", "ip_address"},
		l.RequestDate, l.Address, l.Method, l.Description, user, l.IP)
	if err != nil {
		return ctx, nil, fmt.Errorf("open request log: %w", err)
	}
	l.ID = id
	return contextkeys.WithCurrentLog(ctx, id), l, nil
}

// Close stores the final response status on the log row.
func (s *Store) Close(ctx context.Context, logID int64, responseStatus int) error {
	q := s.dialect.Rebind("UPDATE core_log SET response_status = ? WHERE id = ?")
	if _, err := s.db.ExecContext(ctx, q, responseStatus, logID); err != nil {
		return fmt.Errorf("close request log: %w", err)
	}
	return nil
}

// Append adds one record to the log currently open on the context.
// Appending with no open log fails, records never float free.
func (s *Store) Append(ctx context.Context, level, message string) error {
	logID, ok := contextkeys.CurrentLog(ctx)
	if !ok {
		return entity.ErrOperationNotPermitted
	}
	q := s.dialect.Rebind(
		"INSERT INTO core_logrecord (log_id, record_time, level, message) VALUES (?, ?, ?, ?)")
	if _, err := s.db.ExecContext(ctx, q, logID, time.Now().UTC(), level, message); err != nil {
		return fmt.Errorf("append log record: %w", err)
	}
	return nil
}

// Get reads one log row.
func (s *Store) Get(ctx context.Context, logID int64) (*Log, error) {
	q := s.dialect.Rebind(
		"SELECT id, request_date, log_address, request_method, operation_description, user_id, ip_address, response_status FROM core_log WHERE id = ?")
	l, err := scanLog(s.db.QueryRowContext(ctx, q, logID))
	if err == sql.ErrNoRows {
		return nil, entity.ErrEntityNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load request log: %w", err)
	}
	return l, nil
}

// Records lists the records of one log in append order.
func (s *Store) Records(ctx context.Context, logID int64) ([]Record, error) {
	q := s.dialect.Rebind(
		"SELECT id, log_id, record_time, level, message FROM core_logrecord WHERE log_id = ? ORDER BY id")
	rows, err := s.db.QueryContext(ctx, q, logID)
	if err != nil {
		return nil, fmt.Errorf("list log records: %w", err)
	}
	defer rows.Close()
	var out []Record
	for rows.Next() {
		var r Record
		if err := rows.Scan(&r.ID, &r.LogID, &r.Time, &r.Level, &r.Message); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// List returns the most recent logs, newest first.
func (s *Store) List(ctx context.Context, limit int) ([]*Log, error) {
	q := s.dialect.Rebind(
		"SELECT id, request_date, log_address, request_method, operation_description, user_id, ip_address, response_status FROM core_log ORDER BY request_date DESC, id DESC LIMIT ?")
	rows, err := s.db.QueryContext(ctx, q, limit)
	if err != nil {
		return nil, fmt.Errorf("list request logs: %w", err)
	}
	defer rows.Close()
	var out []*Log
	for rows.Next() {
		l, err := scanLog(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanLog(row rowScanner) (*Log, error) {
	var l Log
	var address, method, description, ip sql.NullString
	var user sql.NullInt64
	var status sql.NullInt64
	if err := row.Scan(&l.ID, &l.RequestDate, &address, &method, &description,
		&user, &ip, &status); err != nil {
		return nil, err
	}
	l.Address = address.String
	l.Method = method.String
	l.Description = description.String
	l.IP = ip.String
	if user.Valid {
		l.UserID = &user.Int64
	}
	if status.Valid {
		n := int(status.Int64)
		l.ResponseStatus = &n
	}
	return &l, nil
}
