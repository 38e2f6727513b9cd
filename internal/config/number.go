package config

import (
	"fmt"
	"math"
	"strings"
)

// parseUint reads an unsigned number from the start of s the way the
// configuration producer writes them: leading blanks are skipped, an optional
// sign is accepted (a minus negates modulo 2^64), and parsing stops at the
// first character that is not a digit of the base. Base 0 selects hex for a
// 0x prefix, octal for a leading 0 and decimal otherwise; base 16 also
// accepts the 0x prefix. Overflow saturates. A value without any digit is
// ErrInvalidNumber.
func parseUint(s string, base int) (uint64, error) {
	mag, neg, overflow, err := scanUint(s, base, math.MaxUint64)
	switch {
	case err != nil:
		return 0, err
	case overflow:
		return math.MaxUint64, nil
	case neg:
		return -mag, nil
	}
	return mag, nil
}

// parseUint32 is parseUint for 32-bit fields: overflow saturates at
// MaxUint32 and negation wraps modulo 2^32.
func parseUint32(s string, base int) (uint32, error) {
	mag, neg, overflow, err := scanUint(s, base, math.MaxUint32)
	switch {
	case err != nil:
		return 0, err
	case overflow:
		return math.MaxUint32, nil
	case neg:
		return -uint32(mag), nil
	}
	return uint32(mag), nil
}

func scanUint(s string, base int, limit uint64) (mag uint64, neg, overflow bool, err error) {
	orig := s
	s = strings.TrimLeft(s, " \t")
	if s != "" && (s[0] == '+' || s[0] == '-') {
		neg = s[0] == '-'
		s = s[1:]
	}

	hasHexPrefix := len(s) > 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') && digitValue(s[2]) < 16
	switch {
	case base == 0 && hasHexPrefix:
		base, s = 16, s[2:]
	case base == 0 && strings.HasPrefix(s, "0"):
		base = 8
	case base == 0:
		base = 10
	case base == 16 && hasHexPrefix:
		s = s[2:]
	}

	digits := 0
	for i := 0; i < len(s); i++ {
		d := digitValue(s[i])
		if d >= base {
			break
		}
		digits++
		if overflow || mag > (limit-uint64(d))/uint64(base) {
			overflow = true
			continue
		}
		mag = mag*uint64(base) + uint64(d)
	}
	if digits == 0 {
		return 0, false, false, fmt.Errorf("%w: %q", ErrInvalidNumber, orig)
	}
	return mag, neg, overflow, nil
}

// parseInt reads a signed decimal prefix of s.
func parseInt(s string) (int, error) {
	s = strings.TrimLeft(s, " \t")
	neg := false
	if s != "" && (s[0] == '+' || s[0] == '-') {
		neg = s[0] == '-'
		s = s[1:]
	}
	n, digits := 0, 0
	for i := 0; i < len(s) && s[i] >= '0' && s[i] <= '9'; i++ {
		if n < math.MaxInt32/10 {
			n = n*10 + int(s[i]-'0')
		}
		digits++
	}
	if digits == 0 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidNumber, s)
	}
	if neg {
		n = -n
	}
	return n, nil
}

// splitDelta splits "base+N" or "base-N" into its base text and a signed
// delta. Without a sign the delta is zero. A delta without digits is an
// error.
func splitDelta(s string) (string, int64, error) {
	i := strings.IndexByte(s, '+')
	neg := false
	if i < 0 {
		// A leading minus belongs to the number itself.
		if j := strings.IndexByte(s, '-'); j > 0 {
			i, neg = j, true
		}
	}
	if i < 0 {
		return s, 0, nil
	}
	d, err := parseUint(s[i+1:], 0)
	if err != nil {
		return s[:i], 0, fmt.Errorf("delta: %w", err)
	}
	if neg {
		return s[:i], -int64(d), nil
	}
	return s[:i], int64(d), nil
}

func digitValue(c byte) int {
	switch {
	case c >= '0' && c <= '9':
		return int(c - '0')
	case c >= 'a' && c <= 'z':
		return int(c-'a') + 10
	case c >= 'A' && c <= 'Z':
		return int(c-'A') + 10
	default:
		return 36
	}
}
