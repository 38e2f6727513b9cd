//go:build !windows && !linux

package windows

// CurrentThreadID has no portable equivalent here; all callers share slot 0.
func CurrentThreadID() uint32 {
	return 0
}
