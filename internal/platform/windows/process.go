package windows

// ProcessEntry is one row of the system process table.
type ProcessEntry struct {
	PID       uint32
	ParentPID uint32
	ExeName   string
}
