//go:build windows

package windows

import (
	"golang.org/x/sys/windows"
)

var (
	kernel32         = windows.NewLazySystemDLL("kernel32.dll")
	procGetLastError = kernel32.NewProc("GetLastError")
	procSetLastError = kernel32.NewProc("SetLastError")
)

// LastError returns the calling thread's Win32 last-error value.
func LastError() uint32 {
	r, _, _ := procGetLastError.Call()
	return uint32(r)
}

// SetLastError overwrites the calling thread's Win32 last-error value.
func SetLastError(code uint32) {
	procSetLastError.Call(uintptr(code))
}
