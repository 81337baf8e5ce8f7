package app

import "errors"

var (
	// ErrProfileNotFound indicates an operation that needs an existing
	// profile was called for an unknown user.
	ErrProfileNotFound = errors.New("profile not found")
)
