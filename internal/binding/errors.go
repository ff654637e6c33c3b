package binding

import "errors"

var (
	// ErrNotBound is returned when a user has no binding for an edge device.
	ErrNotBound = errors.New("user not bound to edge")

	// ErrAlreadyBound is returned when creating a binding that already exists.
	ErrAlreadyBound = errors.New("user already bound to edge")
)
