package entity

import "time"

// ExpiryManager handles an absolute expiry timestamp field.
type ExpiryManager struct {
	entity *Entity
	field  string
	now    func() time.Time
}

// NewExpiryManager is the manager constructor wired into Managed
// expiry-date fields.
func NewExpiryManager(e *Entity, field string) any {
	return &ExpiryManager{entity: e, field: field, now: time.Now}
}

// Set stores now + d as the absolute expiry moment.
func (m *ExpiryManager) Set(d time.Duration) {
	m.entity.SetDirect(m.field, m.now().Add(d))
	m.entity.NotifyFieldChanged(m.field)
}

// Time returns the stored expiry moment; the zero time when unset.
func (m *ExpiryManager) Time() time.Time {
	if t, ok := m.entity.Raw(m.field).(time.Time); ok {
		return t
	}
	return time.Time{}
}

// IsExpired is non-strict: a timestamp equal to now counts as expired.
// An unset expiry also counts as expired.
func (m *ExpiryManager) IsExpired() bool {
	t, ok := m.entity.Raw(m.field).(time.Time)
	if !ok {
		return true
	}
	return !t.After(m.now())
}

// Clear drops the expiry moment.
func (m *ExpiryManager) Clear() {
	m.entity.SetDirect(m.field, nil)
	m.entity.NotifyFieldChanged(m.field)
}
