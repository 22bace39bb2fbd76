package internal

import (
	"errors"
)

// Generic errors
var (
	// ErrAccessNotPermitted is returned when receiving a 403.
	ErrAccessNotPermitted = errors.New("access to the resource is not permitted")

	// ErrUnauthorized is returned when receiving a 401.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrResourceNotFound is returned when receiving a 404.
	ErrResourceNotFound = errors.New("resource not found")

	// ErrConflict is returned when receiving a 409.
	ErrConflict = errors.New("resource conflict detected")

	// ErrTimeout is returned when a request exceeds a timeout.
	ErrTimeout = errors.New("timeout")
)

// Session errors
var (
	// ErrStorageUnavailable is returned by session storage backends when the
	// underlying storage denies access. Callers of the token store never see
	// it.
	ErrStorageUnavailable = errors.New("session storage unavailable")
)

// InvalidParameterError is returned when a caller supplies a parameter with an
// unusable value.
type InvalidParameterError string

func (e InvalidParameterError) Error() string {
	return string(e)
}
