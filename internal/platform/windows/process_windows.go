//go:build windows

package windows

import (
	"fmt"
	"syscall"
	"unsafe"

	"golang.org/x/sys/windows"
)

// ProcessTable snapshots the process list keyed by pid.
func ProcessTable() (map[uint32]ProcessEntry, error) {
	snapshot, err := windows.CreateToolhelp32Snapshot(windows.TH32CS_SNAPPROCESS, 0)
	if err != nil {
		return nil, fmt.Errorf("CreateToolhelp32Snapshot: %w", err)
	}
	defer windows.CloseHandle(snapshot)

	var entry windows.ProcessEntry32
	entry.Size = uint32(unsafe.Sizeof(entry))
	if err := windows.Process32First(snapshot, &entry); err != nil {
		return nil, fmt.Errorf("Process32First: %w", err)
	}

	table := make(map[uint32]ProcessEntry)
	for {
		table[entry.ProcessID] = ProcessEntry{
			PID:       entry.ProcessID,
			ParentPID: entry.ParentProcessID,
			ExeName:   syscall.UTF16ToString(entry.ExeFile[:]),
		}
		if err := windows.Process32Next(snapshot, &entry); err != nil {
			break
		}
	}
	return table, nil
}

// ProcessImagePath returns the full image path of pid.
func ProcessImagePath(pid uint32) (string, error) {
	h, err := windows.OpenProcess(windows.PROCESS_QUERY_LIMITED_INFORMATION, false, pid)
	if err != nil {
		return "", fmt.Errorf("OpenProcess(%d): %w", pid, err)
	}
	defer windows.CloseHandle(h)

	var buf [windows.MAX_PATH]uint16
	size := uint32(len(buf))
	if err := windows.QueryFullProcessImageName(h, 0, &buf[0], &size); err != nil {
		return "", fmt.Errorf("QueryFullProcessImageName(%d): %w", pid, err)
	}
	return syscall.UTF16ToString(buf[:size]), nil
}

// CanOpenProcess reports whether pid can be opened for limited queries.
func CanOpenProcess(pid uint32) bool {
	h, err := windows.OpenProcess(windows.PROCESS_QUERY_LIMITED_INFORMATION, false, pid)
	if err != nil {
		return false
	}
	windows.CloseHandle(h)
	return true
}

// CommandLine returns the raw command line of the current process.
func CommandLine() string {
	return windows.UTF16PtrToString(syscall.GetCommandLine())
}
