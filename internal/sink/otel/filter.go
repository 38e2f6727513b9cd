package otel

import (
	"github.com/gobwas/glob"
)

// Filter controls which records are exported. API patterns use glob syntax
// ("Nt*File", "Co*").
type Filter struct {
	IncludeAPIs       []string
	ExcludeAPIs       []string
	IncludeCategories []string
	ExcludeCategories []string

	compiled *compiledFilter
}

type compiledFilter struct {
	include []glob.Glob
	exclude []glob.Glob
}

// Compile parses the API patterns once. Without it, Match recompiles them
// on every call; with an invalid pattern nothing matches.
func (f *Filter) Compile() error {
	c, err := f.compile()
	if err != nil {
		return err
	}
	f.compiled = c
	return nil
}

func (f *Filter) compile() (*compiledFilter, error) {
	c := &compiledFilter{}
	for _, p := range f.IncludeAPIs {
		g, err := glob.Compile(p)
		if err != nil {
			return nil, err
		}
		c.include = append(c.include, g)
	}
	for _, p := range f.ExcludeAPIs {
		g, err := glob.Compile(p)
		if err != nil {
			return nil, err
		}
		c.exclude = append(c.exclude, g)
	}
	return c, nil
}

// Match returns true if the record should be exported.
func (f *Filter) Match(api, category string) bool {
	if f == nil {
		return true
	}
	c := f.compiled
	if c == nil {
		var err error
		if c, err = f.compile(); err != nil {
			return false
		}
	}

	if len(c.include) > 0 {
		matched := false
		for _, g := range c.include {
			if g.Match(api) {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}

	if len(f.IncludeCategories) > 0 {
		found := false
		for _, name := range f.IncludeCategories {
			if name == category {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}

	for _, g := range c.exclude {
		if g.Match(api) {
			return false
		}
	}

	for _, name := range f.ExcludeCategories {
		if name == category {
			return false
		}
	}

	return true
}
