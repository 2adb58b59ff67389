package directory

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/go-ldap/ldap/v3"
)

var (
	// ErrObjectNotFound is returned when no directory object exists at the requested identifier.
	ErrObjectNotFound = errors.New("directory object not found")

	// ErrObjectExists is returned when creating an object whose identifier is already taken.
	ErrObjectExists = errors.New("directory object already exists")
)

// Kind tells whether a directory failure is worth retrying.
type Kind int

const (
	// Permanent failures will fail again with the same input (bad filter, schema violation, ...).
	Permanent Kind = iota
	// Transient failures are connectivity or load related and may succeed on retry.
	Transient
)

func (k Kind) String() string {
	if k == Transient {
		return "transient"
	}

	return "permanent"
}

// DirectoryError wraps any I/O or protocol fault raised while talking to the directory.
type DirectoryError struct { //nolint:revive
	Kind Kind
	Op   string
	Err  error
}

func (e *DirectoryError) Error() string {
	return fmt.Sprintf("directory %s failed (%s): %v", e.Op, e.Kind, e.Err)
}

func (e *DirectoryError) Unwrap() error {
	return e.Err
}

// Temporary reports whether the operation may succeed when retried.
func (e *DirectoryError) Temporary() bool {
	return e.Kind == Transient
}

// IsTransient reports whether err is a DirectoryError of kind Transient.
func IsTransient(err error) bool {
	var de *DirectoryError

	return errors.As(err, &de) && de.Kind == Transient
}

// transientCodes are the LDAP result codes a retry can fix.
var transientCodes = []uint16{ //nolint:gochecknoglobals
	ldap.ErrorNetwork,
	ldap.LDAPResultBusy,
	ldap.LDAPResultUnavailable,
	ldap.LDAPResultTimeLimitExceeded,
	ldap.LDAPResultAdminLimitExceeded,
}

// wrap classifies err into a *DirectoryError. Errors that already are
// directory errors or sentinels of this package pass through unchanged.
func wrap(op string, err error) error {
	if err == nil {
		return nil
	}

	var de *DirectoryError
	if errors.As(err, &de) || errors.Is(err, ErrObjectNotFound) || errors.Is(err, ErrObjectExists) {
		return err
	}

	kind := Permanent

	var netErr net.Error

	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		kind = Transient
	case errors.As(err, &netErr):
		kind = Transient
	case ldap.IsErrorAnyOf(err, transientCodes...):
		kind = Transient
	}

	return &DirectoryError{Kind: kind, Op: op, Err: err}
}
