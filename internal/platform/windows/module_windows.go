//go:build windows

package windows

import (
	"fmt"
	"reflect"
	"unsafe"

	"golang.org/x/sys/windows"
)

const (
	getModuleHandleExFlagUnchangedRefcount = 0x2
	getModuleHandleExFlagFromAddress       = 0x4
)

// ModuleBase returns the base address of a module already loaded into the
// process. Name lookup is case-insensitive, as the loader's is.
func (ModuleResolver) ModuleBase(name string) (uintptr, error) {
	p, err := windows.UTF16PtrFromString(name)
	if err != nil {
		return 0, err
	}
	var h windows.Handle
	if err := windows.GetModuleHandleEx(getModuleHandleExFlagUnchangedRefcount, p, &h); err != nil {
		return 0, fmt.Errorf("GetModuleHandleEx(%s): %w", name, err)
	}
	return uintptr(h), nil
}

// ProcAddress resolves an exported symbol of the module at base.
func (ModuleResolver) ProcAddress(base uintptr, symbol string) (uintptr, error) {
	addr, err := windows.GetProcAddress(windows.Handle(base), symbol)
	if err != nil {
		return 0, fmt.Errorf("GetProcAddress(%s): %w", symbol, err)
	}
	return addr, nil
}

// SelfBase returns the base of the module that contains this code, which is
// the monitor DLL when built as a c-shared library.
func (ModuleResolver) SelfBase() (uintptr, error) {
	addr := reflect.ValueOf(CurrentThreadID).Pointer()
	var h windows.Handle
	flags := uint32(getModuleHandleExFlagFromAddress | getModuleHandleExFlagUnchangedRefcount)
	if err := windows.GetModuleHandleEx(flags, (*uint16)(unsafe.Pointer(addr)), &h); err != nil {
		return 0, fmt.Errorf("GetModuleHandleEx(self): %w", err)
	}
	return uintptr(h), nil
}

// SelfPath returns the on-disk path of the module that contains this code.
func (r ModuleResolver) SelfPath() (string, error) {
	base, err := r.SelfBase()
	if err != nil {
		return "", err
	}
	var buf [windows.MAX_PATH]uint16
	n, err := windows.GetModuleFileName(windows.Handle(base), &buf[0], uint32(len(buf)))
	if err != nil {
		return "", fmt.Errorf("GetModuleFileName: %w", err)
	}
	return windows.UTF16ToString(buf[:n]), nil
}
