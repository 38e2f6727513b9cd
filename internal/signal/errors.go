package signal

import "errors"

// ErrNoPipe is returned when no controller pipe name is configured.
var ErrNoPipe = errors.New("no controller pipe configured")

// ErrBadMessage is returned for tokens that are not controller messages.
var ErrBadMessage = errors.New("malformed controller message")
