package config

import (
	"slices"
	"unicode/utf16"
	"unicode/utf8"
)

// PathString is a bounded string kept in both its narrow form and the UTF-16
// form handed to wide OS APIs. Values longer than MaxPath-1 bytes are
// truncated at a rune boundary; both forms always agree.
type PathString struct {
	narrow string
	wide   []uint16
}

// NewPathString builds a PathString from s, truncating it if needed.
func NewPathString(s string) PathString {
	s = truncate(s, MaxPath-1)
	return PathString{narrow: s, wide: utf16.Encode([]rune(s))}
}

func (s PathString) String() string { return s.narrow }

// IsEmpty reports whether the string holds no characters.
func (s PathString) IsEmpty() bool { return s.narrow == "" }

// UTF16 returns the wide form with a terminating NUL.
func (s PathString) UTF16() []uint16 {
	out := make([]uint16, len(s.wide)+1)
	copy(out, s.wide)
	return out
}

// MarshalYAML renders the narrow form.
func (s PathString) MarshalYAML() (any, error) {
	return s.narrow, nil
}

// MarshalText renders the narrow form.
func (s PathString) MarshalText() ([]byte, error) {
	return []byte(s.narrow), nil
}

// Append returns s with suffix added, or s unchanged when the result would
// not fit.
func (s PathString) Append(suffix string) PathString {
	if len(s.narrow)+len(suffix) > MaxPath-1 {
		return s
	}
	return NewPathString(s.narrow + suffix)
}

func (s PathString) clone() PathString {
	return PathString{narrow: s.narrow, wide: slices.Clone(s.wide)}
}

// truncate cuts s to at most n bytes without splitting a UTF-8 sequence.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
