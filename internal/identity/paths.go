package identity

import (
	"strings"

	"github.com/gobwas/glob"
)

// Branch is the top-level location class of an image.
type Branch int

const (
	BranchNone Branch = iota
	BranchProgramFiles
	BranchSystem
)

func (b Branch) String() string {
	switch b {
	case BranchProgramFiles:
		return "program-files"
	case BranchSystem:
		return "system"
	default:
		return "none"
	}
}

// Patterns are matched against lowercased, slash-separated paths.
var (
	programFilesPaths = mustCompileAll(
		"?:/program files/**",
		"?:/program files (x86)/**",
	)
	systemPaths = mustCompileAll(
		"?:/windows/system32/**",
		"?:/windows/syswow64/**",
		"?:/windows/sysnative/**",
	)
)

func mustCompileAll(patterns ...string) []glob.Glob {
	out := make([]glob.Glob, len(patterns))
	for i, p := range patterns {
		out[i] = glob.MustCompile(p, '/')
	}
	return out
}

func matchAny(globs []glob.Glob, path string) bool {
	key := strings.ToLower(strings.ReplaceAll(path, `\`, "/"))
	key = strings.TrimPrefix(key, "//?/")
	key = strings.TrimPrefix(key, "/??/")
	for _, g := range globs {
		if g.Match(key) {
			return true
		}
	}
	return false
}

// IsProgramFiles reports whether path lies under an installed-programs
// root.
func IsProgramFiles(path string) bool {
	return matchAny(programFilesPaths, path)
}

// IsSystem reports whether path lies under a system directory.
func IsSystem(path string) bool {
	return matchAny(systemPaths, path)
}

// ClassifyPath returns the location branch of path.
func ClassifyPath(path string) Branch {
	switch {
	case IsProgramFiles(path):
		return BranchProgramFiles
	case IsSystem(path):
		return BranchSystem
	default:
		return BranchNone
	}
}
