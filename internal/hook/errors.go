package hook

import "errors"

// ErrNoDetour is returned by InstallHooks when no detour layer is wired.
var ErrNoDetour = errors.New("no detour installer configured")
