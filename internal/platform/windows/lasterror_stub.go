//go:build !windows

package windows

import "sync/atomic"

// emulatedLastError stands in for the per-thread error slot so that the
// dispatch layer behaves the same way off Windows.
var emulatedLastError atomic.Uint32

// LastError returns the emulated last-error value.
func LastError() uint32 {
	return emulatedLastError.Load()
}

// SetLastError overwrites the emulated last-error value.
func SetLastError(code uint32) {
	emulatedLastError.Store(code)
}
