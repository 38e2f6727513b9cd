package otel

import "errors"

// ErrBadEndpoint is returned for a log server value that names no usable
// OTLP endpoint.
var ErrBadEndpoint = errors.New("invalid log server endpoint")
