package modules

import (
	"context"
	"time"
)

// Recognised user setting keys of the core module.
const (
	SettingMaxPasswordSymbols       = "max_password_symbols"
	SettingAuthTokenLifetime        = "auth_token_lifetime"
	SettingUserCanChangePassword    = "is_user_can_change_password"
	SettingMaxActivationCodeSymbols = "max_activation_code_symbols"
	SettingActivationCodeLifetime   = "activation_code_lifetime"
)

// MaxPasswordSymbols returns the generated password length, at least 6.
func (m *Module) MaxPasswordSymbols(ctx context.Context) (int, error) {
	return m.intSetting(ctx, SettingMaxPasswordSymbols, 10, 6)
}

// AuthTokenLifetime returns the issued token lifetime, at least five
// minutes. Stored as seconds.
func (m *Module) AuthTokenLifetime(ctx context.Context) (time.Duration, error) {
	return m.durationSetting(ctx, SettingAuthTokenLifetime, 30*time.Minute, 5*time.Minute)
}

// UserCanChangePassword reports whether self-service password change
// is allowed.
func (m *Module) UserCanChangePassword(ctx context.Context) (bool, error) {
	v, err := m.GetSetting(ctx, SettingUserCanChangePassword, false)
	if err != nil {
		return false, err
	}
	b, ok := v.(bool)
	if !ok {
		return false, nil
	}
	return b, nil
}

// MaxActivationCodeSymbols returns the generated activation code
// length.
func (m *Module) MaxActivationCodeSymbols(ctx context.Context) (int, error) {
	return m.intSetting(ctx, SettingMaxActivationCodeSymbols, 20, 1)
}

// ActivationCodeLifetime returns how long an activation code stays
// valid. Stored as seconds.
func (m *Module) ActivationCodeLifetime(ctx context.Context) (time.Duration, error) {
	return m.durationSetting(ctx, SettingActivationCodeLifetime, 72*time.Hour, time.Minute)
}
