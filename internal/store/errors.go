package store

import "errors"

var (
	// ErrRoleNotFound is returned when a role does not exist in the local store.
	ErrRoleNotFound = errors.New("role not found")
	// ErrNotGranted is returned when revoking a role the user does not hold.
	ErrNotGranted = errors.New("role not granted")
	// ErrInvalidRole is returned for a role key without realm or name.
	ErrInvalidRole = errors.New("role needs a realm and a name")
)
