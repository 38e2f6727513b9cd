package sink

import "errors"

var (
	// ErrArgCount is returned when the signature and value counts differ.
	ErrArgCount = errors.New("signature and value count differ")
	// ErrBadSignature is returned for unknown signature characters and
	// values of the wrong kind.
	ErrBadSignature = errors.New("malformed record signature")
)
