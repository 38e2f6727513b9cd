// Package hook implements the contract every interception follows: the
// per-thread context and last-error preservation, the pass/suppress/modify
// decision, record gating, and the interception bodies that carry policy
// of their own.
package hook

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/umhmon/umh/internal/config"
	platform "github.com/umhmon/umh/internal/platform/windows"
	"github.com/umhmon/umh/internal/signal"
	"github.com/umhmon/umh/internal/sink"
	"github.com/umhmon/umh/pkg/ratelimit"
)

// Spec names one interception point.
type Spec struct {
	Module   string
	Symbol   string
	Category string
	// Minimal interceptions stay installed when the policy asks for the
	// reduced hook set.
	Minimal bool
}

// Catalog lists the interceptions implemented by this package.
var Catalog = []Spec{
	{Module: "ntdll", Symbol: "LdrLoadDll", Category: "system", Minimal: true},
	{Module: "ntdll", Symbol: "LdrUnloadDll", Category: "system", Minimal: true},
	{Module: "ntdll", Symbol: "NtOpenProcess", Category: "process", Minimal: true},
	{Module: "ntdll", Symbol: "NtCreateFile", Category: "filesystem"},
	{Module: "ntdll", Symbol: "NtOpenFile", Category: "filesystem"},
	{Module: "kernel32", Symbol: "CreateProcessInternalW", Category: "process", Minimal: true},
	{Module: "ole32", Symbol: "CoCreateInstance", Category: "com"},
	{Module: "ole32", Symbol: "CoCreateInstanceEx", Category: "com"},
	{Module: "ole32", Symbol: "CoGetClassObject", Category: "com"},
	{Module: "jscript", Symbol: "JsEval", Category: "browser"},
	{Module: "jscript", Symbol: "COleScript_ParseScriptText", Category: "browser"},
	{Module: "jscript9", Symbol: "JsParseScript", Category: "browser"},
	{Module: "jscript9", Symbol: "JsRunScript", Category: "browser"},
	{Module: "mshtml", Symbol: "CDocument_write", Category: "browser"},
	{Module: "urlmon", Symbol: "IsValidURL", Category: "network"},
}

// Detour installs an interception at its entry point.
type Detour interface {
	Install(spec Spec, kind config.HookType) error
}

// ProcessNotifier tells the controller about a child process that is held
// suspended.
type ProcessNotifier interface {
	NotifyProcess(pid, tid uint32)
}

// ProcessHandler is told about every successfully created child.
type ProcessHandler interface {
	ChildCreated(application, commandLine string, pi ProcessInfo)
}

// Dumper inspects and dumps mapped images.
type Dumper interface {
	CodeModified(base uintptr, path string) bool
	DumpImage(base uintptr, fixImports bool) bool
}

// ProgIDResolver maps a class id to its registered ProgID.
type ProgIDResolver interface {
	ProgID(clsid uuid.UUID) (string, bool)
}

// Reconfig switches the monitor out of TLS-dump or interactive mode.
type Reconfig interface {
	Trigger() bool
}

// Runtime ties the published policy to the interception bodies.
type Runtime struct {
	store    *config.Store
	sink     sink.Sink
	gate     *signal.Gate
	detour   Detour
	notifier ProcessNotifier
	handler  ProcessHandler
	dumper   Dumper
	progIDs  ProgIDResolver
	reconfig Reconfig
	logger   *slog.Logger
	ctx      context.Context
	pid      uint32
	is32Bit  bool

	info      infoTable
	state     State
	protected ProtectedPIDs
	limiter   atomic.Pointer[ratelimit.APILimiter]
	installed atomic.Int64
	applied   atomic.Bool

	threadID     func() uint32
	lastError    func() uint32
	setLastError func(uint32)
	fileExists   func(string) bool
	resumeThread func(uintptr) error
	now          func() time.Time
}

// Option configures a Runtime.
type Option func(*Runtime)

func WithSink(s sink.Sink) Option { return func(rt *Runtime) { rt.sink = s } }
func WithGate(g *signal.Gate) Option { return func(rt *Runtime) { rt.gate = g } }
func WithDetour(d Detour) Option { return func(rt *Runtime) { rt.detour = d } }
func WithNotifier(n ProcessNotifier) Option { return func(rt *Runtime) { rt.notifier = n } }
func WithProcessHandler(h ProcessHandler) Option { return func(rt *Runtime) { rt.handler = h } }
func WithDumper(d Dumper) Option { return func(rt *Runtime) { rt.dumper = d } }
func WithProgIDs(r ProgIDResolver) Option { return func(rt *Runtime) { rt.progIDs = r } }
func WithReconfig(r Reconfig) Option { return func(rt *Runtime) { rt.reconfig = r } }
func WithLogger(l *slog.Logger) Option { return func(rt *Runtime) { rt.logger = l } }
func WithContext(ctx context.Context) Option { return func(rt *Runtime) { rt.ctx = ctx } }
func WithPID(pid uint32) Option { return func(rt *Runtime) { rt.pid = pid } }

// With32Bit overrides the detected pointer width.
func With32Bit(v bool) Option { return func(rt *Runtime) { rt.is32Bit = v } }

// NewRuntime creates a runtime reading policy from store.
func NewRuntime(store *config.Store, opts ...Option) *Runtime {
	rt := &Runtime{
		store:        store,
		sink:         sink.Nop{},
		logger:       slog.Default(),
		ctx:          context.Background(),
		pid:          uint32(os.Getpid()),
		is32Bit:      strconv.IntSize == 32,
		threadID:     platform.CurrentThreadID,
		lastError:    defaultLastError,
		setLastError: defaultSetLastError,
		fileExists:   fileExists,
		resumeThread: platform.ResumeThread,
		now:          time.Now,
	}
	for _, o := range opts {
		o(rt)
	}
	if rt.gate == nil {
		rt.gate = signal.NewGate(nil, rt.logger)
	}
	if p := store.Load(); p != nil {
		rt.applyPolicy(p)
	}
	return rt
}

// Policy returns the current policy snapshot.
func (rt *Runtime) Policy() *config.Policy {
	return rt.store.Load()
}

// State exposes the runtime-mutable flags.
func (rt *Runtime) State() *State { return &rt.state }

// Protected returns the protected process list.
func (rt *Runtime) Protected() *ProtectedPIDs { return &rt.protected }

// Installed returns how many interceptions the last install placed.
func (rt *Runtime) Installed() int { return int(rt.installed.Load()) }

// ThreadExited drops the context of a finished thread.
func (rt *Runtime) ThreadExited(tid uint32) { rt.info.forget(tid) }

var _ config.HookInstaller = (*Runtime)(nil)

// InstallHooks adopts p and places every interception it allows. Failures
// of single interceptions are joined; the rest are still installed.
func (rt *Runtime) InstallHooks(p *config.Policy) error {
	rt.applyPolicy(p)
	if rt.detour == nil {
		return ErrNoDetour
	}

	var errs []error
	n := 0
	for _, spec := range Catalog {
		if !rt.wanted(p, spec) {
			continue
		}
		if err := rt.detour.Install(spec, p.HookType); err != nil {
			errs = append(errs, fmt.Errorf("%s!%s: %w", spec.Module, spec.Symbol, err))
			continue
		}
		n++
	}
	rt.installed.Store(int64(n))
	rt.logger.Debug("hook: interceptions installed", "count", n, "failed", len(errs), "hook_type", int(p.HookType))
	return errors.Join(errs...)
}

func (rt *Runtime) wanted(p *config.Policy, spec Spec) bool {
	if p.MinHook && !spec.Minimal {
		return false
	}
	if p.IsAPIExcluded(spec.Symbol) {
		return false
	}
	for _, dll := range p.ExcludedDLLs {
		if strings.EqualFold(strings.TrimSuffix(strings.ToLower(dll), ".dll"), spec.Module) {
			return false
		}
	}
	return true
}

// applyPolicy copies the runtime-mutable flags out of p. Suspension is only
// ever taken from the first policy; later ones can clear it but not set it
// again.
func (rt *Runtime) applyPolicy(p *config.Policy) {
	if !rt.applied.Swap(true) {
		rt.state.SuspendLogging.Store(p.SuspendLogging)
	} else if !p.SuspendLogging {
		rt.state.SuspendLogging.Store(false)
	}
	if p.SleepSkipDisabled {
		rt.state.SleepSkipDisabled.Store(true)
	}
	cur := rt.limiter.Load()
	if cur == nil || cur.APICap() != p.APICap || cur.RateCap() != p.APIRateCap {
		rt.limiter.Store(ratelimit.NewAPILimiter(p.APICap, p.APIRateCap))
	}
}

// Suspended reports whether records are withheld until the file of
// interest is touched.
func (rt *Runtime) Suspended(p *config.Policy) bool {
	return p != nil && p.FileOfInterest != "" && rt.state.SuspendLogging.Load()
}

// TouchFile clears logging suspension when path names the file of
// interest. It reports whether suspension was cleared by this call.
func (rt *Runtime) TouchFile(p *config.Policy, path string) bool {
	if !rt.Suspended(p) {
		return false
	}
	if !config.SamePath(path, p.FileOfInterest) {
		return false
	}
	if rt.state.SuspendLogging.CompareAndSwap(true, false) {
		rt.logger.Debug("hook: file of interest touched, logging resumed", "path", path)
		return true
	}
	return false
}

// DisableSleepSkip stops sleep skipping for good.
func (rt *Runtime) DisableSleepSkip() {
	rt.state.SleepSkipDisabled.Store(true)
}

func (rt *Runtime) shouldRecord(g *Guard, p *config.Policy, api string) bool {
	if p == nil {
		return !g.CalledByHook()
	}
	switch {
	case p.DisableLogging:
		return false
	case g.CalledByHook():
		return false
	case p.IsAPIExcluded(api):
		return false
	case rt.Suspended(p):
		return false
	}
	return rt.limiter.Load().Allow(api) == ratelimit.Allowed
}

func (rt *Runtime) emit(g *Guard, p *config.Policy, api, category, sig string, args []sink.Arg, success bool, value uint64) {
	if !rt.shouldRecord(g, p, api) {
		return
	}
	rt.sink.Log(rt.ctx, sink.Record{
		Time:      rt.now(),
		PID:       rt.pid,
		ThreadID:  g.ThreadID(),
		API:       api,
		Category:  category,
		Signature: sig,
		Args:      args,
		Success:   success,
		Return:    value,
	})
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
