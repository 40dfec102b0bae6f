// Package users implements the user account entity: relational storage
// as the source of truth, plus optional POSIX account and home
// directory providers that converge on it.
//
// The distinguished "support" account installed by the root module is
// immutable apart from its lock flag and can never be deleted. Deleting
// any user fails while the user governs a group; ForceDelete cascades
// through governor-owned groups first.
package users
