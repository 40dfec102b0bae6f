package users

import (
	"context"
	"fmt"

	"github.com/platinummonkey/corefacility/pkg/entity"
)

// User is a person able to authenticate against the facility.
type User struct {
	*entity.Entity
	factory *Factory
}

func (u *User) str(field string) string {
	v, _ := u.GetField(field)
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

func (u *User) boolean(field string) bool {
	v, _ := u.GetField(field)
	b, _ := v.(bool)
	return b
}

// guarded blocks mutation of every support-user field except the lock
// flag.
func (u *User) guarded(field string) error {
	if u.IsSupport() && field != FieldIsLocked {
		return entity.ErrOperationNotPermitted
	}
	return nil
}

func (u *User) Login() string   { return u.str(FieldLogin) }
func (u *User) Name() string    { return u.str(FieldName) }
func (u *User) Surname() string { return u.str(FieldSurname) }
func (u *User) Email() string   { return u.str(FieldEmail) }
func (u *User) Phone() string   { return u.str(FieldPhone) }

func (u *User) IsLocked() bool    { return u.boolean(FieldIsLocked) }
func (u *User) IsSuperuser() bool { return u.boolean(FieldIsSuperuser) }
func (u *User) IsSupport() bool   { return u.boolean(FieldIsSupport) }

// UnixGroup and HomeDir are provider-maintained and read-only.
func (u *User) UnixGroup() string { return u.str(FieldUnixGroup) }
func (u *User) HomeDir() string   { return u.str(FieldHomeDir) }

func (u *User) SetLogin(login string) error {
	if err := u.guarded(FieldLogin); err != nil {
		return err
	}
	return u.SetField(FieldLogin, login)
}

func (u *User) SetName(name string) error {
	if err := u.guarded(FieldName); err != nil {
		return err
	}
	return u.SetField(FieldName, name)
}

func (u *User) SetSurname(surname string) error {
	if err := u.guarded(FieldSurname); err != nil {
		return err
	}
	return u.SetField(FieldSurname, surname)
}

func (u *User) SetEmail(email string) error {
	if err := u.guarded(FieldEmail); err != nil {
		return err
	}
	return u.SetField(FieldEmail, email)
}

func (u *User) SetPhone(phone string) error {
	if err := u.guarded(FieldPhone); err != nil {
		return err
	}
	return u.SetField(FieldPhone, phone)
}

func (u *User) SetIsLocked(locked bool) error {
	return u.SetField(FieldIsLocked, locked)
}

func (u *User) SetIsSuperuser(super bool) error {
	if err := u.guarded(FieldIsSuperuser); err != nil {
		return err
	}
	return u.SetField(FieldIsSuperuser, super)
}

// Password returns the credential manager of the account.
func (u *User) Password() *entity.PasswordManager {
	v, _ := u.GetField(FieldPasswordHash)
	return v.(*entity.PasswordManager)
}

// ActivationCode returns the credential manager of the one-time
// activation code.
func (u *User) ActivationCode() *entity.PasswordManager {
	v, _ := u.GetField(FieldActivationCodeHash)
	return v.(*entity.PasswordManager)
}

// ActivationCodeExpiry returns the expiry manager of the activation
// code.
func (u *User) ActivationCodeExpiry() *entity.ExpiryManager {
	v, _ := u.GetField(FieldActivationCodeExpiryDate)
	return v.(*entity.ExpiryManager)
}

// Avatar returns the public file manager of the account picture.
func (u *User) Avatar() *entity.FileManager {
	v, _ := u.GetField(FieldAvatar)
	return v.(*entity.FileManager)
}

// GeneratePassword draws a fresh password of the configured length and
// returns the plaintext once.
func (u *User) GeneratePassword(length int) (string, error) {
	return u.Password().Generate(entity.PasswordAlphabet, length)
}

// Delete removes the user. Fails while the user governs any group and
// always fails for the support account.
func (u *User) Delete(ctx context.Context) error {
	if u.IsSupport() {
		return entity.ErrOperationNotPermitted
	}
	return u.Entity.Delete(ctx)
}

// ForceDelete removes the user together with every group the user
// governs. Groups still referenced as a project root group keep their
// referential protection and abort the cascade.
func (u *User) ForceDelete(ctx context.Context) error {
	if u.IsSupport() {
		return entity.ErrOperationNotPermitted
	}
	if u.State() == entity.Creating || u.State() == entity.Deleted {
		return entity.ErrOperationNotPermitted
	}
	stmt := u.factory.dialect.Rebind(`
		DELETE FROM core_group WHERE id IN (
			SELECT group_id FROM core_groupuser WHERE user_id = ? AND is_governor = ?
		)`)
	if _, err := u.factory.db.ExecContext(ctx, stmt, u.ID(), true); err != nil {
		return fmt.Errorf("failed to cascade governor-owned groups: %w", err)
	}
	return u.Entity.Delete(ctx)
}
