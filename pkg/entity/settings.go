package entity

import "reflect"

// SettingsManager handles an opaque JSON settings map. Values round-trip
// through encoding/json in the relational provider, so callers should
// stick to JSON-representable types.
type SettingsManager struct {
	entity *Entity
	field  string
}

// NewSettingsManager is the manager constructor wired into Managed
// settings fields.
func NewSettingsManager(e *Entity, field string) any {
	return &SettingsManager{entity: e, field: field}
}

func (m *SettingsManager) current() map[string]any {
	if v, ok := m.entity.Raw(m.field).(map[string]any); ok {
		return v
	}
	return nil
}

// Get returns the value under key, or def when absent.
func (m *SettingsManager) Get(key string, def any) any {
	if v, ok := m.current()[key]; ok {
		return v
	}
	return def
}

// Set stores value under key and dirties the owning entity.
func (m *SettingsManager) Set(key string, value any) {
	cur := m.current()
	next := make(map[string]any, len(cur)+1)
	for k, v := range cur {
		next[k] = v
	}
	next[key] = value
	m.entity.SetDirect(m.field, next)
	m.entity.NotifyFieldChanged(m.field)
}

// Len returns the number of stored keys.
func (m *SettingsManager) Len() int { return len(m.current()) }

// Equal compares two settings maps by deep value equality.
func (m *SettingsManager) Equal(other *SettingsManager) bool {
	a, b := m.current(), other.current()
	if len(a) == 0 && len(b) == 0 {
		return true
	}
	return reflect.DeepEqual(a, b)
}
