package tokens

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/platinummonkey/corefacility/pkg/entity"
	"github.com/platinummonkey/corefacility/pkg/query"
)

// SessionEngine issues single-use sessions for external authorization
// round trips. Sessions bind to the initiating module, not to a user,
// and are consumed by the first successful restore.
type SessionEngine struct {
	db      *sql.DB
	dialect query.Dialect
}

// NewSessionEngine builds the engine over the external session table.
func NewSessionEngine(db *sql.DB, dialect query.Dialect) *SessionEngine {
	return &SessionEngine{db: db, dialect: dialect}
}

// Initialize opens a session for the module and returns its wire form.
func (e *SessionEngine) Initialize(ctx context.Context, moduleUUID string, ttl time.Duration) (string, error) {
	secret, err := entity.GenerateSecret(entity.PasswordAlphabet, sessionSecretLength)
	if err != nil {
		return "", err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	expiration := time.Now().Add(ttl).UTC()
	id, err := query.InsertReturningID(ctx, e.db, e.dialect, "core_externalauthsession",
		[]string{"module_uuid", "token_hash", "expiration_date"}, moduleUUID, string(hash), expiration)
	if err != nil {
		return "", fmt.Errorf("initialize session: %w", err)
	}
	return encode(id, secret), nil
}

// Restore consumes a presented session. The row is deleted on success,
// so a second restore of the same token fails. A session initialized
// by a different module fails identically. Every failure surfaces as
// ErrEntityNotFound.
func (e *SessionEngine) Restore(ctx context.Context, moduleUUID, token string) error {
	id, secret, err := decode(token)
	if err != nil {
		return entity.ErrEntityNotFound
	}
	q := e.dialect.Rebind(
		"SELECT module_uuid, token_hash, expiration_date FROM core_externalauthsession WHERE id = ?")
	var owner, hash string
	var expiration time.Time
	if err := e.db.QueryRowContext(ctx, q, id).Scan(&owner, &hash, &expiration); err != nil {
		return entity.ErrEntityNotFound
	}
	if owner != moduleUUID {
		return entity.ErrEntityNotFound
	}
	if !time.Now().Before(expiration) {
		return entity.ErrEntityNotFound
	}
	if bcrypt.CompareHashAndPassword([]byte(hash), []byte(secret)) != nil {
		return entity.ErrEntityNotFound
	}
	del := e.dialect.Rebind("DELETE FROM core_externalauthsession WHERE id = ?")
	if _, err := e.db.ExecContext(ctx, del, id); err != nil {
		return fmt.Errorf("consume session: %w", err)
	}
	return nil
}

// ClearAllExpired removes every session past its expiration.
func (e *SessionEngine) ClearAllExpired(ctx context.Context) (int64, error) {
	q := e.dialect.Rebind("DELETE FROM core_externalauthsession WHERE expiration_date < ?")
	res, err := e.db.ExecContext(ctx, q, time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("clear expired sessions: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}
