//go:build !windows

package windows

import "os"

// ModuleBase is only available on Windows.
func (ModuleResolver) ModuleBase(name string) (uintptr, error) {
	return 0, ErrUnsupported
}

// ProcAddress is only available on Windows.
func (ModuleResolver) ProcAddress(base uintptr, symbol string) (uintptr, error) {
	return 0, ErrUnsupported
}

// SelfBase is only available on Windows.
func (ModuleResolver) SelfBase() (uintptr, error) {
	return 0, ErrUnsupported
}

// SelfPath falls back to the running executable.
func (ModuleResolver) SelfPath() (string, error) {
	return os.Executable()
}
