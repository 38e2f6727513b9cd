package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

// ErrUnknownKey is returned by Apply for keys missing from the key table.
var ErrUnknownKey = errors.New("unrecognised key")

// ignoredKeys are accepted without effect or diagnostic.
var ignoredKeys = []string{"no-iat"}

// Parser applies configuration lines to a Policy. It is safe for concurrent
// use on distinct policies; a single Policy must only be parsed by one
// goroutine.
type Parser struct {
	resolver SymbolResolver
	patcher  Patcher
	logger   *slog.Logger
	rejected func(line string, err error)
}

// ParserOption configures a Parser.
type ParserOption func(*Parser)

// WithResolver sets the resolver used for module::symbol references.
func WithResolver(r SymbolResolver) ParserOption {
	return func(p *Parser) { p.resolver = r }
}

// WithPatcher sets the collaborator invoked by the patch key.
func WithPatcher(pt Patcher) ParserOption {
	return func(p *Parser) { p.patcher = pt }
}

// WithLogger sets the diagnostic logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) ParserOption {
	return func(p *Parser) { p.logger = l }
}

// WithRejectHandler is called for every line ParseLine ignores because of
// an error.
func WithRejectHandler(fn func(line string, err error)) ParserOption {
	return func(p *Parser) { p.rejected = fn }
}

// NewParser returns a Parser configured by opts.
func NewParser(opts ...ParserOption) *Parser {
	p := &Parser{}
	for _, o := range opts {
		o(p)
	}
	if p.logger == nil {
		p.logger = slog.Default()
	}
	return p
}

// ParseLine applies one key=value line to pol. Lines without '=' and values
// starting with '$' are inert. Problems are logged at debug level and leave
// pol untouched by that line.
func (p *Parser) ParseLine(pol *Policy, line string) {
	key, value, ok := strings.Cut(line, "=")
	if !ok || strings.HasPrefix(value, "$") {
		return
	}
	if err := p.Apply(pol, key, value); err != nil {
		p.logger.Debug("config: line ignored", "key", key, "value", value, "error", err)
		if p.rejected != nil {
			p.rejected(line, err)
		}
	}
}

// Apply sets key to value on pol.
func (p *Parser) Apply(pol *Policy, key, value string) error {
	set, ok := keys.lookup(key)
	if !ok {
		for _, k := range ignoredKeys {
			if strings.EqualFold(k, key) {
				return nil
			}
		}
		return fmt.Errorf("%w: %s", ErrUnknownKey, key)
	}
	if err := set(p, pol, value); err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	return nil
}

// KeyInfo describes one recognized configuration key.
type KeyInfo struct {
	Name          string
	CaseSensitive bool
}

// Keys lists every recognized key in registration order.
func Keys() []KeyInfo {
	out := make([]KeyInfo, len(keys.order))
	copy(out, keys.order)
	return out
}

type setter func(p *Parser, pol *Policy, value string) error

type keyTable struct {
	exact map[string]setter
	fold  map[string]setter
	order []KeyInfo
}

func (t *keyTable) lookup(key string) (setter, bool) {
	if s, ok := t.exact[key]; ok {
		return s, true
	}
	s, ok := t.fold[strings.ToLower(key)]
	return s, ok
}

// caseSensitive registers name so that only its exact spelling matches.
func (t *keyTable) caseSensitive(name string, s setter) {
	t.exact[name] = s
	t.order = append(t.order, KeyInfo{Name: name, CaseSensitive: true})
}

// caseInsensitive registers name so that any ASCII case matches.
func (t *keyTable) caseInsensitive(s setter, names ...string) {
	for _, name := range names {
		t.fold[strings.ToLower(name)] = s
		t.order = append(t.order, KeyInfo{Name: name})
	}
}
