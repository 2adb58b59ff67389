package mapper

import "errors"

var (
	// ErrMapperNotFound is returned when no mapper of that name exists in the realm.
	ErrMapperNotFound = errors.New("role mapper not found")
	// ErrInvalidMapper is returned for a mapper configuration that fails validation.
	ErrInvalidMapper = errors.New("invalid role mapper")
)
