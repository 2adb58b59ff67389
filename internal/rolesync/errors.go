package rolesync

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrSyncInProgress is returned when a mapper is already being synchronized.
	ErrSyncInProgress = errors.New("synchronization already in progress")
	// ErrMissingRoleName is recorded for a role object without a name attribute.
	ErrMissingRoleName = errors.New("role object has no name")
)

// Failure is one object or membership that could not be synchronized.
type Failure struct {
	// Object is the DN of the role object, or the member value.
	Object string
	Err    error
}

func (f Failure) String() string {
	return f.Object + ": " + f.Err.Error()
}

// PartialSyncFailure is returned by a run that completed but could not
// synchronize every object or membership.
type PartialSyncFailure struct {
	RealmID  string
	Mapper   string
	Failures []Failure
}

func (e *PartialSyncFailure) Error() string {
	lines := make([]string, 0, len(e.Failures))
	for _, f := range e.Failures {
		lines = append(lines, f.String())
	}

	return fmt.Sprintf("sync of %s/%s completed with %d failures: %s",
		e.RealmID, e.Mapper, len(e.Failures), strings.Join(lines, "; "))
}

// Unwrap exposes the individual failures to errors.Is and errors.As.
func (e *PartialSyncFailure) Unwrap() []error {
	out := make([]error, 0, len(e.Failures))
	for _, f := range e.Failures {
		out = append(out, f.Err)
	}

	return out
}
