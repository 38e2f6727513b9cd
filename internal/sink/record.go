// Package sink defines the behavioural record emitted by interception
// bodies and the backends that persist or ship it.
package sink

import (
	"encoding/json"
	"fmt"
	"time"
)

// Arg is one named value of a record. Its kind must agree with the matching
// character of the record signature.
type Arg struct {
	Name  string `json:"name"`
	Value any    `json:"value"`
}

// A builds an Arg.
func A(name string, value any) Arg {
	return Arg{Name: name, Value: value}
}

// Record is a single behavioural observation.
type Record struct {
	Time      time.Time `json:"time"`
	PID       uint32    `json:"pid,omitempty"`
	ThreadID  uint32    `json:"tid"`
	API       string    `json:"api"`
	Category  string    `json:"category"`
	Signature string    `json:"signature"`
	Args      []Arg     `json:"args"`
	Success   bool      `json:"success"`
	Return    uint64    `json:"return"`
}

// Get returns the value of the named argument.
func (r Record) Get(name string) (any, bool) {
	for _, a := range r.Args {
		if a.Name == name {
			return a.Value, true
		}
	}
	return nil, false
}

// MarshalJSON renders Return as hex, the way the controller expects it.
func (r Record) MarshalJSON() ([]byte, error) {
	type plain Record
	return json.Marshal(struct {
		plain
		Return string `json:"return"`
	}{plain: plain(r), Return: Hex(r.Return)})
}

type kind int

const (
	kindString kind = iota
	kindInt
	kindBuffer
)

// Signature characters and the value kind each one carries.
//
//	s S  narrow string      u U  wide string     F f  file path
//	o O  object name        e E  registry key    b B  buffer
//	i I  integer            l L  long            h H  hex
//	p P  pointer            x X  large integer   c    CLSID text
var sigKinds = map[byte]kind{
	's': kindString, 'S': kindString,
	'u': kindString, 'U': kindString,
	'F': kindString, 'f': kindString,
	'o': kindString, 'O': kindString,
	'e': kindString, 'E': kindString,
	'c': kindString,
	'b': kindBuffer, 'B': kindBuffer,
	'i': kindInt, 'I': kindInt,
	'l': kindInt, 'L': kindInt,
	'h': kindInt, 'H': kindInt,
	'p': kindInt, 'P': kindInt,
	'x': kindInt, 'X': kindInt,
}

// Validate checks that signature and args form well-formed pairs. A nil
// value is accepted for any kind and means "absent".
func Validate(signature string, args []Arg) error {
	if len(signature) != len(args) {
		return fmt.Errorf("%w: signature %q has %d entries, got %d values", ErrArgCount, signature, len(signature), len(args))
	}
	for i := 0; i < len(signature); i++ {
		k, ok := sigKinds[signature[i]]
		if !ok {
			return fmt.Errorf("%w: %q at position %d", ErrBadSignature, signature[i], i)
		}
		if args[i].Name == "" {
			return fmt.Errorf("%w: value %d has no name", ErrBadSignature, i)
		}
		if !matchesKind(k, args[i].Value) {
			return fmt.Errorf("%w: %s=%T does not fit %q", ErrBadSignature, args[i].Name, args[i].Value, signature[i])
		}
	}
	return nil
}

func matchesKind(k kind, v any) bool {
	if v == nil {
		return true
	}
	switch k {
	case kindString:
		switch v.(type) {
		case string, fmt.Stringer:
			return true
		}
	case kindBuffer:
		switch v.(type) {
		case []byte, string:
			return true
		}
	case kindInt:
		switch v.(type) {
		case int, int8, int16, int32, int64,
			uint, uint8, uint16, uint32, uint64, uintptr, bool:
			return true
		}
	}
	return false
}
