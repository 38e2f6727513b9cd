package windows

import "errors"

// ErrUnsupported is returned by capabilities that only exist on Windows.
var ErrUnsupported = errors.New("not available on this platform")

// ModuleResolver resolves loaded modules and their exports in the current
// process. The zero value is ready to use.
type ModuleResolver struct{}
