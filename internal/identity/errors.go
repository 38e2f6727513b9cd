package identity

import "errors"

var (
	// ErrNoImagePath is returned when the running image path cannot be
	// determined.
	ErrNoImagePath = errors.New("image path unavailable")

	// ErrUnknownProfile is returned when a profile name is not in the
	// builtin table.
	ErrUnknownProfile = errors.New("unknown profile")
)
