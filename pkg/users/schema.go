package users

import (
	"unicode"

	"github.com/platinummonkey/corefacility/pkg/entity"
)

// Field names of the user entity.
const (
	FieldLogin                    = "login"
	FieldPasswordHash             = "password_hash"
	FieldName                     = "name"
	FieldSurname                  = "surname"
	FieldEmail                    = "email"
	FieldPhone                    = "phone"
	FieldIsLocked                 = "is_locked"
	FieldIsSuperuser              = "is_superuser"
	FieldIsSupport                = "is_support"
	FieldAvatar                   = "avatar"
	FieldUnixGroup                = "unix_group"
	FieldHomeDir                  = "home_dir"
	FieldActivationCodeHash       = "activation_code_hash"
	FieldActivationCodeExpiryDate = "activation_code_expiry_date"
)

// SupportLogin is the distinguished account installed with the root
// module. It cannot be renamed, unprivileged or deleted; only the lock
// flag stays mutable.
const SupportLogin = "support"

// loginField accepts 1..100 printable, non-whitespace characters.
type loginField struct {
	inner *entity.StringField
}

func (f loginField) Default() any             { return f.inner.Default() }
func (f loginField) Required() bool           { return f.inner.Required() }
func (f loginField) ReadOnly() bool           { return f.inner.ReadOnly() }
func (f loginField) Proofread(stored any) any { return f.inner.Proofread(stored) }

func (f loginField) Correct(name string, value any) (any, error) {
	v, err := f.inner.Correct(name, value)
	if err != nil || v == nil {
		return v, err
	}
	for _, r := range v.(string) {
		if unicode.IsSpace(r) || !unicode.IsPrint(r) {
			return nil, &entity.InvalidFieldError{Field: name, Reason: "must contain only printable non-whitespace characters"}
		}
	}
	return v, nil
}

func newSchema(avatarRoot, defaultAvatarURL string) *entity.Schema {
	return entity.NewSchema("user").
		Add(FieldLogin, loginField{inner: entity.String().Min(1).Max(100).Require()}).
		Add(FieldPasswordHash, entity.Managed(entity.NewPasswordManager)).
		Add(FieldName, entity.String().Max(100)).
		Add(FieldSurname, entity.String().Max(100)).
		Add(FieldEmail, entity.String().Max(254)).
		Add(FieldPhone, entity.String().Max(20)).
		Add(FieldIsLocked, entity.Bool()).
		Add(FieldIsSuperuser, entity.Bool()).
		Add(FieldIsSupport, entity.Bool().AsReadOnly()).
		Add(FieldAvatar, entity.Managed(entity.NewFileManagerFactory(avatarRoot, defaultAvatarURL))).
		Add(FieldUnixGroup, entity.ReadOnly()).
		Add(FieldHomeDir, entity.ReadOnly()).
		Add(FieldActivationCodeHash, entity.Managed(entity.NewPasswordManager)).
		Add(FieldActivationCodeExpiryDate, entity.Managed(entity.NewExpiryManager))
}
