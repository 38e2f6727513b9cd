//go:build windows

package windows

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/windows"
)

var (
	modole32            = windows.NewLazySystemDLL("ole32.dll")
	procProgIDFromCLSID = modole32.NewProc("ProgIDFromCLSID")
	procCoTaskMemFree   = modole32.NewProc("CoTaskMemFree")
)

// ProgIDFromCLSID returns the registered ProgID of a class id given in its
// in-memory GUID layout.
func ProgIDFromCLSID(clsid [16]byte) (string, error) {
	if err := procProgIDFromCLSID.Find(); err != nil {
		return "", err
	}
	var out *uint16
	hr, _, _ := procProgIDFromCLSID.Call(uintptr(unsafe.Pointer(&clsid[0])), uintptr(unsafe.Pointer(&out)))
	if int32(hr) < 0 {
		return "", fmt.Errorf("ProgIDFromCLSID: hresult 0x%08x", uint32(hr))
	}
	if out == nil {
		return "", nil
	}
	defer procCoTaskMemFree.Call(uintptr(unsafe.Pointer(out)))
	return windows.UTF16PtrToString(out), nil
}
