package cachekey

import "errors"

var (
	// ErrInvalidArgument reports a caller contract violation, such as asking
	// for an attribute key without naming any attribute.
	ErrInvalidArgument = errors.New("cachekey: invalid argument")

	// ErrUnknownAttribute is returned by readers asked for an attribute the
	// entity does not have.
	ErrUnknownAttribute = errors.New("cachekey: unknown attribute")
)
