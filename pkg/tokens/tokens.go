package tokens

import (
	"context"
	"database/sql"
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/platinummonkey/corefacility/pkg/entity"
	"github.com/platinummonkey/corefacility/pkg/query"
)

// Secret lengths are fixed per token family.
const (
	authSecretLength    = 20
	sessionSecretLength = 10
)

// Token is one issued credential row. The plaintext secret is returned
// exactly once, by Issue; only its hash is stored.
type Token struct {
	ID         int64
	UserID     int64
	Expiration time.Time
}

// IsExpired reports whether the credential is past its expiration.
func (t *Token) IsExpired() bool { return !time.Now().Before(t.Expiration) }

// encode packs the row id and plaintext secret into the wire form.
func encode(id int64, secret string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(strconv.FormatInt(id, 10) + ":" + secret))
}

// decode unpacks the wire form. Any malformed input fails.
func decode(token string) (int64, string, error) {
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return 0, "", err
	}
	id, secret, ok := strings.Cut(string(raw), ":")
	if !ok {
		return 0, "", fmt.Errorf("malformed token")
	}
	n, err := strconv.ParseInt(id, 10, 64)
	if err != nil {
		return 0, "", err
	}
	return n, secret, nil
}

// Engine issues and verifies user-bound bearer credentials. Two
// instances exist per deployment, one over the authentication table
// and one over the cookie table.
type Engine struct {
	db      *sql.DB
	dialect query.Dialect
	table   string
}

// NewAuthenticationEngine builds the engine behind the Authorization
// header.
func NewAuthenticationEngine(db *sql.DB, dialect query.Dialect) *Engine {
	return &Engine{db: db, dialect: dialect, table: "core_authentication"}
}

// NewCookieEngine builds the engine behind the persistent cookie.
func NewCookieEngine(db *sql.DB, dialect query.Dialect) *Engine {
	return &Engine{db: db, dialect: dialect, table: "core_cookie"}
}

// Issue creates a credential for the user and returns its wire form.
// The returned string is the only copy of the secret.
func (e *Engine) Issue(ctx context.Context, userID int64, ttl time.Duration) (string, *Token, error) {
	secret, err := entity.GenerateSecret(entity.PasswordAlphabet, authSecretLength)
	if err != nil {
		return "", nil, err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return "", nil, err
	}
	expiration := time.Now().Add(ttl).UTC()
	id, err := query.InsertReturningID(ctx, e.db, e.dialect, e.table,
		[]string{"user_id", "token_hash", "expiration_date"}, userID, string(hash), expiration)
	if err != nil {
		return "", nil, fmt.Errorf("issue token: %w", err)
	}
	return encode(id, secret), &Token{ID: id, UserID: userID, Expiration: expiration}, nil
}

// Apply verifies a presented credential. Decode failures, missing
// rows, expired rows and wrong secrets are indistinguishable: all of
// them surface as ErrEntityNotFound.
func (e *Engine) Apply(ctx context.Context, token string) (*Token, error) {
	id, secret, err := decode(token)
	if err != nil {
		return nil, entity.ErrEntityNotFound
	}
	q := e.dialect.Rebind(
		"SELECT user_id, token_hash, expiration_date FROM " + e.table + " WHERE id = ?")
	var userID int64
	var hash string
	var expiration time.Time
	if err := e.db.QueryRowContext(ctx, q, id).Scan(&userID, &hash, &expiration); err != nil {
		return nil, entity.ErrEntityNotFound
	}
	t := &Token{ID: id, UserID: userID, Expiration: expiration}
	if t.IsExpired() {
		return nil, entity.ErrEntityNotFound
	}
	if bcrypt.CompareHashAndPassword([]byte(hash), []byte(secret)) != nil {
		return nil, entity.ErrEntityNotFound
	}
	return t, nil
}

// Refresh pushes the expiration forward and persists it.
func (e *Engine) Refresh(ctx context.Context, t *Token, ttl time.Duration) error {
	expiration := time.Now().Add(ttl).UTC()
	q := e.dialect.Rebind("UPDATE " + e.table + " SET expiration_date = ? WHERE id = ?")
	if _, err := e.db.ExecContext(ctx, q, expiration, t.ID); err != nil {
		return fmt.Errorf("refresh token: %w", err)
	}
	t.Expiration = expiration
	return nil
}

// ClearAllExpired removes every credential past its expiration.
func (e *Engine) ClearAllExpired(ctx context.Context) (int64, error) {
	q := e.dialect.Rebind("DELETE FROM " + e.table + " WHERE expiration_date < ?")
	res, err := e.db.ExecContext(ctx, q, time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("clear expired tokens: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}
