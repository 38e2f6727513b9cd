package config

import (
	"errors"
	"fmt"
	"strings"
)

// SymbolResolver looks up modules and their exports in the monitored
// process. Module names are matched case-insensitively.
type SymbolResolver interface {
	ModuleBase(name string) (uintptr, error)
	ProcAddress(base uintptr, symbol string) (uintptr, error)
	SelfBase() (uintptr, error)
}

// Patcher writes a single byte of code or data. It backs the patch key.
type Patcher interface {
	PatchByte(addr Addr, b byte) error
}

// selfAliases name the monitor's own module in module::symbol references.
var selfAliases = []string{"capemon", "self"}

type addrKind int

const (
	addrNumeric addrKind = iota
	addrSymbolic
	addrZero
	addrEntryPoint
)

// addrRef is a parsed address value.
type addrRef struct {
	kind   addrKind
	addr   Addr
	module string
	symbol string
}

// errNoResolver is returned for symbolic references when the parser has no
// resolver, for instance on the inspection CLI.
var errNoResolver = errors.New("no symbol resolver")

// parseAddress applies the address grammar to value. Literals (zero, ep,
// entrypoint) are only recognized when literals is true.
func (p *Parser) parseAddress(value string, literals bool) (addrRef, error) {
	if i := strings.Index(value, "::"); i >= 0 {
		return p.resolveSymbol(value[:i], value[i+2:])
	}
	if literals {
		switch {
		case hasPrefixFold(value, "zero"):
			return addrRef{kind: addrZero}, nil
		case hasPrefixFold(value, "ep"), hasPrefixFold(value, "entrypoint"):
			return addrRef{kind: addrEntryPoint}, nil
		}
	}
	addr, err := parseAddrDelta(value)
	if err != nil {
		return addrRef{}, err
	}
	return addrRef{kind: addrNumeric, addr: addr}, nil
}

// resolveSymbol resolves module::symbol[+-offset]. When the symbol is not an
// export, a numeric symbol is taken as an offset from the module base.
func (p *Parser) resolveSymbol(module, rest string) (addrRef, error) {
	ref := addrRef{kind: addrSymbolic, module: module}
	symbol, delta, err := splitDelta(rest)
	if err != nil {
		return ref, err
	}
	ref.symbol = symbol
	if p.resolver == nil {
		return ref, errNoResolver
	}

	var base uintptr
	if isSelfAlias(module) {
		base, err = p.resolver.SelfBase()
	} else {
		base, err = p.resolver.ModuleBase(module)
	}
	if err != nil || base == 0 {
		return ref, fmt.Errorf("%w: %s: %v", ErrModuleNotFound, module, err)
	}

	addr, err := p.resolver.ProcAddress(base, symbol)
	if err != nil || addr == 0 {
		off, nerr := parseUint(symbol, 0)
		if nerr != nil || off == 0 {
			return ref, fmt.Errorf("%w: %s::%s", ErrSymbolNotFound, module, symbol)
		}
		addr = base + uintptr(off)
	}
	ref.addr = Addr(int64(addr) + delta)
	return ref, nil
}

// parseAddrDelta parses "N", "N+D" or "N-D".
func parseAddrDelta(value string) (Addr, error) {
	text, delta, err := splitDelta(value)
	if err != nil {
		return 0, err
	}
	n, err := parseUint(text, 0)
	if err != nil {
		return 0, err
	}
	return Addr(int64(n) + delta), nil
}

func isSelfAlias(module string) bool {
	for _, a := range selfAliases {
		if strings.EqualFold(module, a) {
			return true
		}
	}
	return false
}

func hasPrefixFold(s, prefix string) bool {
	return len(s) >= len(prefix) && strings.EqualFold(s[:len(prefix)], prefix)
}
