// Package projects implements the project entity: the unit of work
// that owns an access control list, a root group and optionally an OS
// group mirror. Project sets support bulk access resolution, so that
// listing the projects one user can reach costs a single statement.
package projects
