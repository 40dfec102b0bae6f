package users

import (
	"database/sql"
	"time"

	"github.com/platinummonkey/corefacility/pkg/entity"
	"github.com/platinummonkey/corefacility/pkg/posix"
	"github.com/platinummonkey/corefacility/pkg/query"
)

// Options configures which backends participate in user persistence.
type Options struct {
	// ManageUnixUsers enables the POSIX account provider.
	ManageUnixUsers bool
	// BaseDir is the root under which home directories are created.
	// Empty disables the home directory provider.
	BaseDir string
	// Commands runs OS account tooling; defaults to ExecCommands.
	Commands posix.Commands
	// AvatarRoot and DefaultAvatarURL configure the public file
	// manager of the avatar field.
	AvatarRoot       string
	DefaultAvatarURL string
}

// Factory builds user entities and their set, sharing one schema and
// provider list.
type Factory struct {
	db        *sql.DB
	dialect   query.Dialect
	schema    *entity.Schema
	providers []entity.Provider
	opts      Options
}

// NewFactory wires the user entity against its backends. The
// relational provider is always first and authoritative.
func NewFactory(db *sql.DB, dialect query.Dialect, opts Options) *Factory {
	if opts.Commands == nil {
		opts.Commands = posix.ExecCommands{}
	}
	if opts.DefaultAvatarURL == "" {
		opts.DefaultAvatarURL = "/static/core/user.svg"
	}
	f := &Factory{
		db:      db,
		dialect: dialect,
		schema:  newSchema(opts.AvatarRoot, opts.DefaultAvatarURL),
		opts:    opts,
	}
	f.providers = []entity.Provider{&sqlProvider{factory: f}}
	if opts.ManageUnixUsers {
		f.providers = append(f.providers, &posixProvider{factory: f})
	}
	if opts.BaseDir != "" {
		f.providers = append(f.providers, &filesProvider{factory: f})
	}
	return f
}

// NewUser returns a fresh user in the creating state.
func (f *Factory) NewUser() *User {
	return &User{Entity: entity.New(f.schema, f.db, f.providers...), factory: f}
}

// Users returns a fresh, unfiltered entity set.
func (f *Factory) Users() *Set {
	return &Set{factory: f}
}

// userColumns is the authoritative column order shared by the provider
// and the reader.
var userColumns = []string{
	"id", "login", "password_hash", "name", "surname", "email", "phone",
	"is_locked", "is_superuser", "is_support", "avatar", "unix_group",
	"home_dir", "activation_code_hash", "activation_code_expiry_date",
}

// scanUser wraps one core_user row into a loaded entity.
func (f *Factory) scanUser(rows *sql.Rows) (*User, error) {
	var id int64
	var login string
	var passwordHash, name, surname, email, phone sql.NullString
	var isLocked, isSuperuser, isSupport bool
	var avatar, unixGroup, homeDir, activationHash sql.NullString
	var activationExpiry sql.NullTime
	if err := rows.Scan(&id, &login, &passwordHash, &name, &surname, &email, &phone,
		&isLocked, &isSuperuser, &isSupport, &avatar, &unixGroup, &homeDir,
		&activationHash, &activationExpiry); err != nil {
		return nil, err
	}
	values := map[string]any{
		FieldLogin:       login,
		FieldIsLocked:    isLocked,
		FieldIsSuperuser: isSuperuser,
		FieldIsSupport:   isSupport,
	}
	setNullString := func(field string, v sql.NullString) {
		if v.Valid {
			values[field] = v.String
		}
	}
	setNullString(FieldPasswordHash, passwordHash)
	setNullString(FieldName, name)
	setNullString(FieldSurname, surname)
	setNullString(FieldEmail, email)
	setNullString(FieldPhone, phone)
	setNullString(FieldAvatar, avatar)
	setNullString(FieldUnixGroup, unixGroup)
	setNullString(FieldHomeDir, homeDir)
	setNullString(FieldActivationCodeHash, activationHash)
	if activationExpiry.Valid {
		values[FieldActivationCodeExpiryDate] = activationExpiry.Time.UTC()
	}
	e := entity.Wrap(f.schema, f.db, id, values, f.providers...)
	return &User{Entity: e, factory: f}, nil
}

// rawTime extracts a nullable time field for SQL writing.
func rawTime(e *entity.Entity, field string) any {
	if t, ok := e.Raw(field).(time.Time); ok {
		return t
	}
	return nil
}
