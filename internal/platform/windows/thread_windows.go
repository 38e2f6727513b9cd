//go:build windows

package windows

import (
	"fmt"

	"golang.org/x/sys/windows"
)

// CurrentThreadID returns the OS thread id of the caller.
func CurrentThreadID() uint32 {
	return windows.GetCurrentThreadId()
}

// ResumeThread resumes a suspended thread handle.
func ResumeThread(handle uintptr) error {
	if _, err := windows.ResumeThread(windows.Handle(handle)); err != nil {
		return fmt.Errorf("ResumeThread(0x%x): %w", handle, err)
	}
	return nil
}
