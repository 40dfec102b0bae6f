package modules

import (
	"fmt"
	"sync"
)

var (
	// instances is the process-wide singleton table, keyed by app class
	// so two registrations of the same class share one instance.
	instances = make(map[string]*Module)
	// mu protects concurrent access to the instances map
	mu sync.RWMutex
)

// Obtain returns the singleton for def, building it in the Found state
// on first use. The parent entry point fixes where the module attaches;
// nil marks the root module.
func Obtain(env *Env, def Definition, parent *EntryPoint) (*Module, error) {
	if def.AppClass == "" {
		return nil, fmt.Errorf("module %q has no app class", def.Alias)
	}
	mu.Lock()
	defer mu.Unlock()

	if m, exists := instances[def.AppClass]; exists {
		return m, nil
	}
	m := &Module{
		def:      def,
		env:      env,
		state:    Found,
		parentEP: parent,
	}
	instances[def.AppClass] = m
	return m, nil
}

// Lookup retrieves an already built instance by app class.
func Lookup(appClass string) (*Module, bool) {
	mu.RLock()
	defer mu.RUnlock()

	m, exists := instances[appClass]
	return m, exists
}

// Reset marks the instance Deprecated and drops it, so the next Obtain
// builds a fresh one in the Found state.
func Reset(appClass string) {
	mu.Lock()
	defer mu.Unlock()

	if m, exists := instances[appClass]; exists {
		m.state = Deprecated
		delete(instances, appClass)
	}
}

// ResetAll drops every instance. Used between tests and on shutdown.
func ResetAll() {
	mu.Lock()
	defer mu.Unlock()

	for key, m := range instances {
		m.state = Deprecated
		delete(instances, key)
	}
}

// Count returns the number of live instances.
func Count() int {
	mu.RLock()
	defer mu.RUnlock()

	return len(instances)
}
