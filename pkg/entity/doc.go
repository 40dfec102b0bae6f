// Package entity is the persistence kernel shared by every corefacility
// entity: users, groups, projects, modules, tokens.
//
// # Overview
//
// An entity carries a lifecycle state (creating, loaded, saved, changed,
// deleted), a descriptor table validating each attribute, and a list of
// providers that fan a single logical write out to multiple backends
// (relational DB, POSIX accounts, file system) inside one transaction.
//
// # Descriptor tables
//
// Each entity package assembles its schema once at init:
//
//	var userSchema = entity.NewSchema("user").
//		Add("login", entity.String().Min(1).Max(100).Require()).
//		Add("password_hash", entity.Managed(entity.NewPasswordManager)).
//		Add("is_locked", entity.Bool())
//
// Reads and writes go through GetField / SetField; providers bypass
// validation with SetDirect when copying backend truth back into the
// entity.
//
// # Providers
//
// The relational provider is authoritative for identity. POSIX and
// file-system providers are convergent caches: when a backend already
// holds the object, ResolveConflict reconciles it instead of failing.
// Any provider error rolls the shared transaction back; non-relational
// side effects are repaired lazily on the next touch.
//
// # Value managers
//
// Managed fields yield small handle values (PasswordManager,
// ExpiryManager, SettingsManager) that mutate the underlying stored
// value and dirty-mark the entity through NotifyFieldChanged.
package entity
