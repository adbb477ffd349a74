package rbac

import "errors"

var (
	// ErrDataAccess means the role store could not be reached or its
	// response could not be parsed. Callers must not treat it as a denial.
	ErrDataAccess = errors.New("role data access failed")

	// ErrNoRoleAssigned means an authenticated principal has zero role rows
	ErrNoRoleAssigned = errors.New("no role assigned")

	// ErrUnauthorized is a policy denial: the principal's roles do not
	// satisfy the requirement. It is an expected outcome, not a failure.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrValidation rejects administrative input before any change is made
	ErrValidation = errors.New("validation failed")

	ErrNotFound = errors.New("not found")
	ErrConflict = errors.New("conflict")
)
