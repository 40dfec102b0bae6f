package entity

import (
	"crypto/rand"
	"math/big"

	"golang.org/x/crypto/bcrypt"
)

// PasswordAlphabet is the default alphabet for generated secrets.
const PasswordAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

// PasswordManager handles a hash-only credential field. The plaintext
// exists only in the return value of Generate; storage ever holds the
// bcrypt hash.
type PasswordManager struct {
	entity *Entity
	field  string
}

// NewPasswordManager is the manager constructor wired into Managed
// password fields.
func NewPasswordManager(e *Entity, field string) any {
	return &PasswordManager{entity: e, field: field}
}

// GenerateSecret returns n random characters from alphabet.
func GenerateSecret(alphabet string, n int) (string, error) {
	out := make([]byte, n)
	max := big.NewInt(int64(len(alphabet)))
	for i := range out {
		idx, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		out[i] = alphabet[idx.Int64()]
	}
	return string(out), nil
}

// Generate draws a fresh password, stores its hash and returns the
// plaintext exactly once.
func (m *PasswordManager) Generate(alphabet string, n int) (string, error) {
	plain, err := GenerateSecret(alphabet, n)
	if err != nil {
		return "", err
	}
	if err := m.SetPlain(plain); err != nil {
		return "", err
	}
	return plain, nil
}

// SetPlain hashes an externally chosen password and stores the hash.
func (m *PasswordManager) SetPlain(plain string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(plain), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	m.entity.SetDirect(m.field, string(hash))
	m.entity.NotifyFieldChanged(m.field)
	return nil
}

// Check reports whether plain matches the stored hash. A cleared field
// matches nothing.
func (m *PasswordManager) Check(plain string) bool {
	raw := m.entity.Raw(m.field)
	hash, ok := raw.(string)
	if !ok || hash == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plain)) == nil
}

// Clear drops the hash; every subsequent Check returns false.
func (m *PasswordManager) Clear() {
	m.entity.SetDirect(m.field, nil)
	m.entity.NotifyFieldChanged(m.field)
}
