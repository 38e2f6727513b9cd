// Package config holds the monitor's process-wide policy record and the
// machinery that builds it: compiled-in defaults, the key=value line parser,
// the configuration file loader and the snapshot store that publishes it to
// interception code.
package config

import (
	"fmt"
	"slices"
)

const (
	// MaxPath is the capacity, terminator included, of every path-like field.
	MaxPath = 260

	// ExclusionMax bounds every name list (excluded APIs, DLLs, ...).
	ExclusionMax = 128

	// BreakpointMax bounds the "bp" and "action" list keys.
	BreakpointMax = 4

	// SysbpMax bounds the syscall breakpoint list.
	SysbpMax = 32

	// SlotCount is the number of numbered breakpoint / return breakpoint slots.
	SlotCount = 4

	// SingleStepLimit is the default instruction step limit.
	SingleStepLimit = 0x4000

	// DroppedLimit is the dropped-file limit applied when none is configured.
	DroppedLimit = 100

	// Unlimited is stored for "all" in depth and count keys.
	Unlimited = 0x7FFFFFFF

	// DefaultAPICap is the default absolute per-API record cap.
	DefaultAPICap = 5000
)

// Addr is a code or data address in the monitored process.
type Addr uintptr

func (a Addr) String() string {
	return fmt.Sprintf("0x%x", uintptr(a))
}

// MarshalYAML renders addresses in hex.
func (a Addr) MarshalYAML() (any, error) {
	return a.String(), nil
}

// BreakpointType is the hardware breakpoint access condition.
type BreakpointType uint32

const (
	BreakpointExec      BreakpointType = 0x00
	BreakpointWrite     BreakpointType = 0x01
	BreakpointReadWrite BreakpointType = 0x03
)

func (t BreakpointType) String() string {
	switch t {
	case BreakpointExec:
		return "exec"
	case BreakpointWrite:
		return "write"
	case BreakpointReadWrite:
		return "readwrite"
	default:
		return fmt.Sprintf("type(%d)", uint32(t))
	}
}

// MarshalYAML renders the type name.
func (t BreakpointType) MarshalYAML() (any, error) {
	return t.String(), nil
}

// UnpackMode selects the payload unpacker behavior.
type UnpackMode uint32

const (
	UnpackOff     UnpackMode = 0
	UnpackPassive UnpackMode = 1
	UnpackActive  UnpackMode = 2
)

// HookType selects the detour flavour installed by the hook engine.
type HookType uint32

const (
	HookJmpDirect HookType = iota
	HookJmpIndirect
	HookSafest
	HookHotpatchJmpIndirect
)

// Filetime mirrors the Win32 FILETIME split representation.
type Filetime struct {
	Low  uint32 `yaml:"low"`
	High uint32 `yaml:"high"`
}

// Breakpoint is one of the four numbered debugger breakpoint slots.
type Breakpoint struct {
	Address        Addr           `yaml:"address"`
	Zero           bool           `yaml:"zero,omitempty"`
	VirtualAddress bool           `yaml:"va,omitempty"`
	Count          uint32         `yaml:"count,omitempty"`
	HitCount       uint32         `yaml:"hit_count,omitempty"`
	Type           BreakpointType `yaml:"type"`
	DumpType       uint32         `yaml:"dump_type,omitempty"`
	TypeString     string         `yaml:"type_string,omitempty"`
	Action         string         `yaml:"action,omitempty"`
	Instruction    string         `yaml:"instruction,omitempty"`
}

// Policy is the monitor's complete runtime policy. Once published through a
// Store it must be treated as read-only; changes go through a fresh copy.
type Policy struct {
	// Identity and paths.
	Pipe           PathString `yaml:"pipe"`
	LogServer      PathString `yaml:"logserver"`
	Results        PathString `yaml:"results"`
	PythonPath     PathString `yaml:"pythonpath"`
	Analyzer       PathString `yaml:"analyzer"`
	DLLPath        PathString `yaml:"dllpath"`
	ShutdownMutex  PathString `yaml:"shutdown_mutex"`
	TerminateEvent PathString `yaml:"terminate_event"`
	Referrer       string     `yaml:"referrer,omitempty"`

	// Target of interest: at most one of the two is set.
	FileOfInterest string `yaml:"file_of_interest,omitempty"`
	URLOfInterest  string `yaml:"url_of_interest,omitempty"`

	// Tracing limits.
	TraceDepthLimit uint32 `yaml:"trace_depth_limit"`
	StepLimit       uint32 `yaml:"step_limit"`
	APIRateCap      uint32 `yaml:"api_rate_cap"`
	APICap          uint32 `yaml:"api_cap"`
	DroppedLimit    uint32 `yaml:"dropped_limit"`
	TraceAll        uint32 `yaml:"trace_all,omitempty"`

	// Debugger breakpoints.
	Breakpoints        [SlotCount]Breakpoint `yaml:"breakpoints"`
	ReturnBreakpoints  [SlotCount]Addr       `yaml:"return_breakpoints"`
	SyscallBreakpoints []Addr                `yaml:"syscall_breakpoints,omitempty"`
	SyscallBPMode      uint32                `yaml:"syscall_bp_mode,omitempty"`
	BreakpointList     []Addr                `yaml:"breakpoint_list,omitempty"`
	Actions            []string              `yaml:"actions,omitempty"`
	EntryPointRegister bool                  `yaml:"entry_point_register,omitempty"`
	BreakOnModule      string                `yaml:"break_on_module,omitempty"`
	BreakOnAPI         string                `yaml:"break_on_api,omitempty"`
	BreakOnReturn      string                `yaml:"break_on_return,omitempty"`
	BreakOnReturnSet   bool                  `yaml:"break_on_return_set,omitempty"`
	StepOut            bool                  `yaml:"step_out,omitempty"`
	TypeString         string                `yaml:"type_string,omitempty"`
	ProcName0          string                `yaml:"procname0,omitempty"`
	ExportAddress      Addr                  `yaml:"export_address,omitempty"`
	DumpSize           uint64                `yaml:"dump_size,omitempty"`
	DumpSizeString     string                `yaml:"dump_size_string,omitempty"`
	SearchString       string                `yaml:"search_string,omitempty"`

	// Name lists, each bounded by ExclusionMax.
	ExcludedAPIs    []string `yaml:"excluded_apis,omitempty"`
	ExcludedDLLs    []string `yaml:"excluded_dlls,omitempty"`
	TraceIntoAPIs   []string `yaml:"trace_into_apis,omitempty"`
	BaseOnAPIs      []string `yaml:"base_on_apis,omitempty"`
	DumpOnAPIs      []string `yaml:"dump_on_apis,omitempty"`
	CoverageModules []string `yaml:"coverage_modules,omitempty"`
	DumpOnAPIType   uint32   `yaml:"dump_on_api_type,omitempty"`

	// Run identity.
	FirstProcess bool     `yaml:"first_process"`
	StartupTime  int      `yaml:"startup_time,omitempty"`
	Standalone   bool     `yaml:"standalone"`
	Debug        int      `yaml:"debug,omitempty"`
	SerialNumber uint32   `yaml:"serial_number,omitempty"`
	SysvolCtime  Filetime `yaml:"sysvol_ctime"`
	Sys32Ctime   Filetime `yaml:"sys32_ctime"`

	// Logging behavior.
	FullLogs       bool   `yaml:"full_logs"`
	ForceFlush     int    `yaml:"force_flush,omitempty"`
	BufferMax      uint32 `yaml:"buffer_max,omitempty"`
	LargeBufferMax uint32 `yaml:"large_buffer_max,omitempty"`
	LogExceptions  int    `yaml:"log_exceptions,omitempty"`
	LogBreakpoints bool   `yaml:"log_breakpoints,omitempty"`
	NoLogs         byte   `yaml:"no_logs,omitempty"`
	DisableLogging bool   `yaml:"disable_logging,omitempty"`
	SuspendLogging bool   `yaml:"suspend_logging"`

	// Hooking behavior.
	Debugger           bool     `yaml:"debugger"`
	HookType           HookType `yaml:"hook_type"`
	DisableHookContent int      `yaml:"disable_hook_content,omitempty"`
	ForceSleepSkip     int      `yaml:"force_sleepskip"`
	SleepSkipDisabled  bool     `yaml:"sleep_skip_disabled,omitempty"`
	NoStealth          bool     `yaml:"no_stealth"`
	MinHook            bool     `yaml:"minhook"`
	ZeroHook           bool     `yaml:"zerohook"`
	Syscall            bool     `yaml:"syscall"`
	NtdllProtect       uint32   `yaml:"ntdll_protect"`
	NtdllRemap         uint32   `yaml:"ntdll_remap"`
	FileOffsets        bool     `yaml:"file_offsets,omitempty"`

	// Dumping and scanning.
	ProcDump             uint32     `yaml:"procdump"`
	ProcMemDump          bool       `yaml:"procmemdump"`
	ImportReconstruction bool       `yaml:"import_reconstruction"`
	Injection            bool       `yaml:"injection"`
	Unpacker             UnpackMode `yaml:"unpacker"`
	YaraScan             bool       `yaml:"yarascan"`
	AmsiDump             bool       `yaml:"amsidump"`
	TLSDump              bool       `yaml:"tlsdump"`
	RegDump              bool       `yaml:"regdump"`
	LoaderLockScans      bool       `yaml:"loaderlock_scans"`
	CallerRegions        bool       `yaml:"caller_regions"`
	DumpCrypto           bool       `yaml:"dump_crypto,omitempty"`
	DumpKeys             bool       `yaml:"dump_keys,omitempty"`
	DumpConfigRegion     bool       `yaml:"dump_config_region,omitempty"`

	// Tracer tuning.
	LoopSkip     bool `yaml:"loopskip,omitempty"`
	BaseOnAlloc  bool `yaml:"base_on_alloc,omitempty"`
	BaseOnCaller bool `yaml:"base_on_caller,omitempty"`
	FakeRDTSC    bool `yaml:"fake_rdtsc,omitempty"`
	NopRDTSCP    bool `yaml:"nop_rdtscp,omitempty"`
	BranchTrace  bool `yaml:"branch_trace,omitempty"`
	BreakOnJIT   bool `yaml:"break_on_jit,omitempty"`

	// Process handling.
	TerminateProcesses bool `yaml:"terminate_processes,omitempty"`
	SingleProcess      bool `yaml:"single_process,omitempty"`
	Interactive        int  `yaml:"interactive"`
	PDF                bool `yaml:"pdf,omitempty"`
	PlugX              bool `yaml:"plugx,omitempty"`

	// Profile flags set by identity classification.
	Firefox           bool `yaml:"firefox,omitempty"`
	IExplore          bool `yaml:"iexplore,omitempty"`
	Edge              bool `yaml:"edge,omitempty"`
	Chrome            bool `yaml:"chrome,omitempty"`
	Office            bool `yaml:"office,omitempty"`
	MSI               bool `yaml:"msi,omitempty"`
	Services          bool `yaml:"services,omitempty"`
	ImageBaseRemapped bool `yaml:"image_base_remapped,omitempty"`
}

// Defaults returns the compiled-in policy applied before any configuration
// line is read.
func Defaults() *Policy {
	return &Policy{
		Debugger:        true,
		ForceSleepSkip:  -1,
		HookType:        defaultHookType(),
		NtdllProtect:    1,
		NtdllRemap:      1,
		ProcDump:        1,
		Injection:       true,
		Unpacker:        UnpackPassive,
		APICap:          DefaultAPICap,
		APIRateCap:      1,
		YaraScan:        true,
		LoaderLockScans: true,
		AmsiDump:        true,
		Syscall:         true,
		StepLimit:       SingleStepLimit,
		SuspendLogging:  true,
	}
}

// Clone returns a deep copy that shares no mutable state with p.
func (p *Policy) Clone() *Policy {
	if p == nil {
		return nil
	}
	c := *p
	c.SyscallBreakpoints = slices.Clone(p.SyscallBreakpoints)
	c.BreakpointList = slices.Clone(p.BreakpointList)
	c.Actions = slices.Clone(p.Actions)
	c.ExcludedAPIs = slices.Clone(p.ExcludedAPIs)
	c.ExcludedDLLs = slices.Clone(p.ExcludedDLLs)
	c.TraceIntoAPIs = slices.Clone(p.TraceIntoAPIs)
	c.BaseOnAPIs = slices.Clone(p.BaseOnAPIs)
	c.DumpOnAPIs = slices.Clone(p.DumpOnAPIs)
	c.CoverageModules = slices.Clone(p.CoverageModules)
	c.Pipe = p.Pipe.clone()
	c.LogServer = p.LogServer.clone()
	c.Results = p.Results.clone()
	c.PythonPath = p.PythonPath.clone()
	c.Analyzer = p.Analyzer.clone()
	c.DLLPath = p.DLLPath.clone()
	c.ShutdownMutex = p.ShutdownMutex.clone()
	c.TerminateEvent = p.TerminateEvent.clone()
	return &c
}

// SetFileOfInterest records a file target and drops any URL target.
func (p *Policy) SetFileOfInterest(path string) {
	p.FileOfInterest = path
	p.URLOfInterest = ""
}

// SetURLOfInterest records a URL target and drops any file target.
func (p *Policy) SetURLOfInterest(url string) {
	p.URLOfInterest = url
	p.FileOfInterest = ""
}

// HasTarget reports whether a file or URL of interest is configured.
func (p *Policy) HasTarget() bool {
	return p.FileOfInterest != "" || p.URLOfInterest != ""
}

// IsAPIExcluded reports whether api is on the hook exclusion list.
func (p *Policy) IsAPIExcluded(api string) bool {
	return slices.Contains(p.ExcludedAPIs, api)
}

// AddHookExclusion appends api to the exclusion list. It returns false when
// the list is already full.
func (p *Policy) AddHookExclusion(api string) bool {
	var ok bool
	p.ExcludedAPIs, ok = appendBounded(p.ExcludedAPIs, api, ExclusionMax)
	return ok
}

// IsDumpOnAPI reports whether calls to api should trigger a caller dump.
func (p *Policy) IsDumpOnAPI(api string) bool {
	return slices.Contains(p.DumpOnAPIs, api)
}

// breakpointAddressInUse reports whether addr already occupies one of the
// numbered breakpoint slots.
func (p *Policy) breakpointAddressInUse(addr Addr) bool {
	for i := range p.Breakpoints {
		if p.Breakpoints[i].Address == addr {
			return true
		}
	}
	return false
}

func (p *Policy) returnAddressInUse(addr Addr) bool {
	return slices.Contains(p.ReturnBreakpoints[:], addr)
}

func appendBounded[T any](list []T, v T, capacity int) ([]T, bool) {
	if len(list) >= capacity {
		return list, false
	}
	return append(list, v), true
}
