//go:build !windows

package windows

import "fmt"

// ResumeThread is only available on Windows.
func ResumeThread(handle uintptr) error {
	return fmt.Errorf("ResumeThread: not available on this platform")
}
