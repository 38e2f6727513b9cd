//go:build linux

package windows

import (
	"golang.org/x/sys/unix"
)

// CurrentThreadID returns the kernel thread id of the caller.
func CurrentThreadID() uint32 {
	return uint32(unix.Gettid())
}
