package windows

import "strings"

const pipePrefix = `\\.\pipe\`

// PipePath turns a bare pipe name from the configuration into a full pipe
// path. Names that already carry the prefix are returned unchanged.
func PipePath(name string) string {
	if name == "" || strings.HasPrefix(strings.ToLower(name), strings.ToLower(pipePrefix)) {
		return name
	}
	return pipePrefix + name
}

// PipeSecuritySDDL returns an SDDL string granting access to:
//   - SY: Local System
//   - BA: Built-in Administrators
//   - AU: Authenticated Users (monitored processes run unprivileged)
func PipeSecuritySDDL() string {
	return "D:(A;;GA;;;SY)(A;;GA;;;BA)(A;;GRGW;;;AU)"
}
