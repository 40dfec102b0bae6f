package entity

import (
	"errors"
	"fmt"
)

// Sentinel errors shared by every entity package.
var (
	// ErrEntityNotFound is the single failure surfaced for bad lookups,
	// bad tokens, expired tokens and wrong secrets alike. Callers must not
	// be able to distinguish why a credential was rejected.
	ErrEntityNotFound = errors.New("entity not found")

	// ErrOperationNotPermitted reports a lifecycle or ACL rule violation.
	ErrOperationNotPermitted = errors.New("operation not permitted")

	// ErrDuplicatedEntity reports a natural-key collision that no provider
	// could absorb via conflict resolution.
	ErrDuplicatedEntity = errors.New("duplicated entity")

	// ErrProvidersNotDefined reports an attempt to persist an entity whose
	// provider list is empty.
	ErrProvidersNotDefined = errors.New("no providers defined for the entity")
)

// InvalidFieldError reports a validation failure in a field descriptor.
type InvalidFieldError struct {
	Field  string
	Reason string
}

func (e *InvalidFieldError) Error() string {
	return fmt.Sprintf("invalid value for field %q: %s", e.Field, e.Reason)
}

// ReadOnlyFieldError reports an assignment to a read-only field.
type ReadOnlyFieldError struct {
	Field string
}

func (e *ReadOnlyFieldError) Error() string {
	return fmt.Sprintf("field %q is read-only", e.Field)
}

// FieldRequiredError reports a create attempt with a required field unset.
type FieldRequiredError struct {
	Field string
}

func (e *FieldRequiredError) Error() string {
	return fmt.Sprintf("field %q is required but was not set", e.Field)
}

// GroupGovernorConstraintError reports an attempt to delete a user that
// still governs at least one group.
type GroupGovernorConstraintError struct {
	Login string
}

func (e *GroupGovernorConstraintError) Error() string {
	return fmt.Sprintf("user %q governs at least one group and cannot be deleted", e.Login)
}

// ErrRootModuleDelete reports an attempt to uninstall the root module.
var ErrRootModuleDelete = errors.New("the root module cannot be deleted")

// InstallationError reports a module installation precondition failure.
// Reason names the exact precondition, so operators can tell a corrupt
// row from a duplicate alias.
type InstallationError struct {
	Module string
	Reason string
}

func (e *InstallationError) Error() string {
	return fmt.Sprintf("cannot install module %q: %s", e.Module, e.Reason)
}

// IsNotFound reports whether err collapses to ErrEntityNotFound.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrEntityNotFound)
}
