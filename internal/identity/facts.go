package identity

import (
	"fmt"
	"strings"

	"github.com/umhmon/umh/internal/platform/windows"
)

// maxAncestors bounds the parent chain walk.
const maxAncestors = 8

// Process is one member of the parent chain.
type Process struct {
	PID       uint32 `yaml:"pid"`
	Name      string `yaml:"name"`
	ImagePath string `yaml:"image_path,omitempty"`
}

// Facts are the identity inputs of the running process.
type Facts struct {
	PID         uint32 `yaml:"pid"`
	ImagePath   string `yaml:"image_path"`
	Name        string `yaml:"name"`
	CommandLine string `yaml:"command_line"`
	// Ancestors lists the parent first, then its parent and so on.
	Ancestors []Process `yaml:"ancestors,omitempty"`
	// ParentOpenable is false when the direct parent cannot be opened for
	// query, which is the case for protected service hosts.
	ParentOpenable bool `yaml:"parent_openable"`
}

// Parent returns the direct parent, if known.
func (f Facts) Parent() (Process, bool) {
	if len(f.Ancestors) == 0 {
		return Process{}, false
	}
	return f.Ancestors[0], true
}

// ParentHasPath reports whether the direct parent's image is path.
func (f Facts) ParentHasPath(path string) bool {
	p, ok := f.Parent()
	return ok && p.ImagePath != "" && strings.EqualFold(p.ImagePath, path)
}

// Capture collects facts about pid, which is normally the current process.
// Ancestors that exited or cannot be queried are kept with whatever the
// process table knows about them.
func Capture(pid uint32) (Facts, error) {
	path, err := windows.ProcessImagePath(pid)
	if err != nil {
		return Facts{}, fmt.Errorf("%w: %v", ErrNoImagePath, err)
	}
	f := Facts{
		PID:         pid,
		ImagePath:   path,
		Name:        baseName(path),
		CommandLine: windows.CommandLine(),
	}

	table, err := windows.ProcessTable()
	if err != nil {
		return f, nil
	}
	seen := map[uint32]bool{pid: true}
	cur, ok := table[pid]
	for ok && len(f.Ancestors) < maxAncestors {
		parent, found := table[cur.ParentPID]
		if !found || seen[parent.PID] {
			break
		}
		seen[parent.PID] = true
		anc := Process{PID: parent.PID, Name: parent.ExeName}
		if p, err := windows.ProcessImagePath(parent.PID); err == nil {
			anc.ImagePath = p
		}
		f.Ancestors = append(f.Ancestors, anc)
		cur = parent
	}
	if parent, ok := f.Parent(); ok {
		f.ParentOpenable = windows.CanOpenProcess(parent.PID)
	}
	return f, nil
}

func baseName(path string) string {
	if i := strings.LastIndexAny(path, `\/`); i >= 0 {
		return path[i+1:]
	}
	return path
}
