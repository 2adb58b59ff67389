package mapping

import (
	"errors"
	"fmt"

	"github.com/GoPowerDNS-Admin/rolesync/internal/identity"
)

var (
	// ErrReadOnlyViolation is returned when revoking a role the directory grants
	// under a read only mapper.
	ErrReadOnlyViolation = errors.New("role is granted by the directory and can not be revoked")
	// ErrUserNotFederated is returned for directory writes on behalf of a user
	// without a directory counterpart.
	ErrUserNotFederated = fmt.Errorf("%w in directory", identity.ErrUserNotFound)
	// ErrUnknownMode is returned for a mapper mode without a strategy.
	ErrUnknownMode = errors.New("unknown mapping mode")
	// ErrUnknownOrigin is returned when decoding an origin other than local or directory.
	ErrUnknownOrigin = errors.New("unknown origin")
)
