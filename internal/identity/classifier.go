package identity

import (
	"log/slog"
	"strconv"
	"strings"

	"github.com/umhmon/umh/internal/config"
)

// CodeVerifier reports whether the running image's code section still
// matches its file on disk.
type CodeVerifier interface {
	CodeSectionIntact() bool
}

// Classifier picks the behavior profiles for one process and applies them.
// It implements config.Profiler.
type Classifier struct {
	facts    Facts
	verifier CodeVerifier
	is32Bit  bool
	profiles []*Profile
	logger   *slog.Logger
}

var _ config.Profiler = (*Classifier)(nil)

// Option configures a Classifier.
type Option func(*Classifier)

// WithVerifier sets the code-section check. Without one the image is taken
// as intact.
func WithVerifier(v CodeVerifier) Option {
	return func(c *Classifier) { c.verifier = v }
}

// With32Bit overrides the monitor bitness used by 32-bit only rules.
func With32Bit(is32Bit bool) Option {
	return func(c *Classifier) { c.is32Bit = is32Bit }
}

// WithProfiles replaces the builtin profile table.
func WithProfiles(profiles []*Profile) Option {
	return func(c *Classifier) { c.profiles = profiles }
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(c *Classifier) { c.logger = l }
}

// NewClassifier returns a classifier for the process described by facts.
func NewClassifier(facts Facts, opts ...Option) *Classifier {
	c := &Classifier{
		facts:    facts,
		is32Bit:  strconv.IntSize == 32,
		profiles: BuiltinProfiles,
	}
	for _, o := range opts {
		o(c)
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	return c
}

// Facts returns the facts the classifier was built with.
func (c *Classifier) Facts() Facts {
	return c.facts
}

// Classify returns the profiles that apply to the process. The image must
// be in a program-files or system directory and its code section intact;
// the check only runs once a branch matches.
func (c *Classifier) Classify() []*Profile {
	branch := ClassifyPath(c.facts.ImagePath)
	if branch == BranchNone {
		return nil
	}
	if c.verifier != nil && !c.verifier.CodeSectionIntact() {
		c.logger.Debug("identity: code section modified, profiles skipped", "image", c.facts.ImagePath)
		return nil
	}

	var matched []*Profile
	for _, p := range c.profiles {
		if p.Branch != branch || !p.matches(c.facts, c.is32Bit) {
			continue
		}
		matched = append(matched, p)
		if branch == BranchSystem {
			break
		}
	}
	return matched
}

// ApplyProfile classifies the process and applies every matching profile
// to p. Nothing is applied when the image base was remapped. It returns the
// applied profile names joined by commas.
func (c *Classifier) ApplyProfile(p *config.Policy) string {
	if p.ImageBaseRemapped {
		return ""
	}
	var names []string
	for _, prof := range c.Classify() {
		Apply(p, prof, c.logger)
		names = append(names, prof.Name)
	}
	return strings.Join(names, ",")
}

// Apply writes prof's overrides into p.
func Apply(p *config.Policy, prof *Profile, logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	for _, api := range prof.ExcludedAPIs {
		if !p.AddHookExclusion(api) {
			logger.Debug("identity: hook exclusion list full", "profile", prof.Name, "api", api)
			break
		}
	}
	for _, f := range prof.Disable {
		f.disable(p)
	}
	if prof.MinHook {
		p.MinHook = true
	}
	if prof.NoSleepSkip {
		p.SleepSkipDisabled = true
	}
	if prof.mark != nil {
		prof.mark(p)
	}
	logger.Debug("identity: profile applied", "profile", prof.Name)
}
