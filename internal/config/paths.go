package config

import (
	"path"
	"strings"
)

// ntPrefixes are object-manager prefixes stripped before path comparison.
var ntPrefixes = []string{`\??\`, `\\?\`}

// NormalizePath returns p backslash-separated with "." and ".." elements
// resolved and any NT object prefix removed. Target-of-interest matching
// compares normalized paths case-insensitively.
func NormalizePath(p string) string {
	if p == "" {
		return ""
	}
	p = strings.ReplaceAll(p, "/", `\`)
	for _, prefix := range ntPrefixes {
		if strings.HasPrefix(p, prefix) {
			p = p[len(prefix):]
			break
		}
	}
	unc := strings.HasPrefix(p, `\\`)
	cleaned := path.Clean(strings.ReplaceAll(p, `\`, "/"))
	cleaned = strings.ReplaceAll(cleaned, "/", `\`)
	if unc && !strings.HasPrefix(cleaned, `\\`) {
		cleaned = `\` + cleaned
	}
	return cleaned
}

// SamePath reports whether a and b name the same file once normalized.
func SamePath(a, b string) bool {
	return strings.EqualFold(NormalizePath(a), NormalizePath(b))
}
