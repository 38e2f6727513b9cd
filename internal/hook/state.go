package hook

import (
	"strings"
	"sync"
	"sync/atomic"

	"github.com/gobwas/glob"
)

// State holds the flags that interceptions change after the policy has
// been published.
type State struct {
	// SuspendLogging withholds records until the file of interest is
	// touched. Once cleared it stays cleared.
	SuspendLogging atomic.Bool
	// SleepSkipDisabled stops the sleep-skipping logic for the rest of the
	// process lifetime.
	SleepSkipDisabled atomic.Bool
	// ProcessDumped is set once the target image has been dumped.
	ProcessDumped atomic.Bool
	// TargetDLLBase is where the DLL of interest was mapped, zero if unknown.
	TargetDLLBase atomic.Uintptr
}

// ignoredFiles are device and system objects whose opens are never recorded.
var ignoredFiles = compileIgnored(
	exact(`\??\PIPE\lsarpc`),
	prefix(`\??\IDE#`),
	prefix(`\??\STORAGE#`),
	exact(`\??\MountPointManager`),
	prefix(`\??\root#`),
	prefix(`\Device\`),
)

func exact(s string) string  { return glob.QuoteMeta(strings.ToLower(s)) }
func prefix(s string) string { return glob.QuoteMeta(strings.ToLower(s)) + "*" }

func compileIgnored(patterns ...string) []glob.Glob {
	out := make([]glob.Glob, 0, len(patterns))
	for _, p := range patterns {
		out = append(out, glob.MustCompile(p))
	}
	return out
}

// IsIgnoredFile reports whether opens of name are uninteresting noise.
// Matching is case-insensitive.
func IsIgnoredFile(name string) bool {
	lower := strings.ToLower(name)
	for _, g := range ignoredFiles {
		if g.Match(lower) {
			return true
		}
	}
	return false
}

// MaxProtectedPIDs bounds the protected process list.
const MaxProtectedPIDs = 32

// ProtectedPIDs lists processes the monitored program may not open, such as
// the analysis agent itself.
type ProtectedPIDs struct {
	mu   sync.RWMutex
	pids []uint32
}

// Add protects pid. It returns false when the list is full.
func (p *ProtectedPIDs) Add(pid uint32) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, existing := range p.pids {
		if existing == pid {
			return true
		}
	}
	if len(p.pids) >= MaxProtectedPIDs {
		return false
	}
	p.pids = append(p.pids, pid)
	return true
}

// Contains reports whether pid is protected.
func (p *ProtectedPIDs) Contains(pid uint32) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	for _, existing := range p.pids {
		if existing == pid {
			return true
		}
	}
	return false
}

// Len returns the number of protected processes.
func (p *ProtectedPIDs) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.pids)
}
