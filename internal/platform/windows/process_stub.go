//go:build !windows

package windows

import (
	"os"
	"strings"
)

// ProcessTable is only available on Windows.
func ProcessTable() (map[uint32]ProcessEntry, error) {
	return nil, ErrUnsupported
}

// ProcessImagePath only resolves the current process off Windows.
func ProcessImagePath(pid uint32) (string, error) {
	if int(pid) == os.Getpid() {
		return os.Executable()
	}
	return "", ErrUnsupported
}

// CanOpenProcess is only available on Windows.
func CanOpenProcess(pid uint32) bool {
	return false
}

// CommandLine joins the process arguments.
func CommandLine() string {
	return strings.Join(os.Args, " ")
}
