// Package access computes and persists the permission facts of the
// system: named access levels, per-project and per-application ACLs,
// and the weighted winner selection applied to the level set a user
// inherits through group membership.
//
// The package never performs transport-layer authorization checks; it
// only maintains the facts. A project ACL always yields the implicit
// (root group, full) row first and a (nil, no_access) terminator when
// no wildcard row is stored. Project-scope levels and the system
// aliases are installed once and immutable.
package access
