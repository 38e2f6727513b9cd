package signal

import (
	"fmt"
	"strconv"
	"strings"
)

// Kind classifies a controller token.
type Kind int

const (
	KindUnknown Kind = iota
	// KindLoaded announces that the monitor finished loading.
	KindLoaded
	// KindProcess announces a child process held suspended.
	KindProcess
	// KindCategory is the first sighting of an object category.
	KindCategory
)

func (k Kind) String() string {
	switch k {
	case KindLoaded:
		return "loaded"
	case KindProcess:
		return "process"
	case KindCategory:
		return "category"
	}
	return "unknown"
}

// Message is a decoded controller token.
type Message struct {
	Kind     Kind
	PID      uint32
	TID      uint32
	Category Category
	Raw      string
}

// ParseMessage decodes a token written by PipeEmitter or the Gate.
func ParseMessage(raw string) (Message, error) {
	m := Message{Raw: raw}
	name, rest, ok := strings.Cut(raw, ":")
	if !ok {
		return m, fmt.Errorf("%w: %q", ErrBadMessage, raw)
	}
	switch name {
	case "LOADED":
		pid, err := parseID(rest)
		if err != nil {
			return m, fmt.Errorf("%w: %q: %v", ErrBadMessage, raw, err)
		}
		m.Kind, m.PID = KindLoaded, pid
		return m, nil
	case "PROCESS":
		p, t, ok := strings.Cut(rest, ",")
		if !ok {
			return m, fmt.Errorf("%w: %q", ErrBadMessage, raw)
		}
		pid, err := parseID(p)
		if err != nil {
			return m, fmt.Errorf("%w: %q: %v", ErrBadMessage, raw, err)
		}
		tid, err := parseID(t)
		if err != nil {
			return m, fmt.Errorf("%w: %q: %v", ErrBadMessage, raw, err)
		}
		m.Kind, m.PID, m.TID = KindProcess, pid, tid
		return m, nil
	}
	for _, c := range Categories() {
		if c.String() == name && rest == "" {
			m.Kind, m.Category = KindCategory, c
			return m, nil
		}
	}
	return m, fmt.Errorf("%w: %q", ErrBadMessage, raw)
}

func parseID(s string) (uint32, error) {
	v, err := strconv.ParseUint(s, 10, 32)
	return uint32(v), err
}
