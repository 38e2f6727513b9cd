package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var keys = buildKeys()

// buildKeys registers every configuration key. The split between exact and
// case-folded matching is part of the file format and must not be
// normalized.
func buildKeys() *keyTable {
	t := &keyTable{exact: map[string]setter{}, fold: map[string]setter{}}

	// Identity and paths.
	t.caseSensitive("pipe", setPath(func(p *Policy) *PathString { return &p.Pipe }))
	t.caseSensitive("logserver", setPath(func(p *Policy) *PathString { return &p.LogServer }))
	t.caseSensitive("results", setPath(func(p *Policy) *PathString { return &p.Results }))
	t.caseSensitive("pythonpath", setPath(func(p *Policy) *PathString { return &p.PythonPath }))
	t.caseSensitive("file-of-interest", setTarget)
	t.caseSensitive("referrer", setString(func(p *Policy) *string { return &p.Referrer }))
	t.caseSensitive("analyzer", setAnalyzer)
	t.caseSensitive("shutdown-mutex", setPath(func(p *Policy) *PathString { return &p.ShutdownMutex }))
	t.caseSensitive("terminate-event", setPath(func(p *Policy) *PathString { return &p.TerminateEvent }))

	// Run identity.
	t.caseSensitive("first-process", setFlag(func(p *Policy) *bool { return &p.FirstProcess }))
	t.caseSensitive("startup-time", setInt(func(p *Policy) *int { return &p.StartupTime }))
	t.caseSensitive("debug", setInt(func(p *Policy) *int { return &p.Debug }))
	t.caseSensitive("standalone", setFlag(func(p *Policy) *bool { return &p.Standalone }))
	t.caseSensitive("serial", setUint(16, func(p *Policy) *uint32 { return &p.SerialNumber }))
	t.caseSensitive("sysvol_ctimelow", setUint(16, func(p *Policy) *uint32 { return &p.SysvolCtime.Low }))
	t.caseSensitive("sysvol_ctimehigh", setUint(16, func(p *Policy) *uint32 { return &p.SysvolCtime.High }))
	t.caseSensitive("sys32_ctimelow", setUint(16, func(p *Policy) *uint32 { return &p.Sys32Ctime.Low }))
	t.caseSensitive("sys32_ctimehigh", setUint(16, func(p *Policy) *uint32 { return &p.Sys32Ctime.High }))

	// Hooking and logging behavior.
	t.caseSensitive("hook-type", setHookType)
	t.caseSensitive("disable_hook_content", setInt(func(p *Policy) *int { return &p.DisableHookContent }))
	t.caseSensitive("force-sleepskip", setForceSleepSkip)
	t.caseSensitive("full-logs", setFlag(func(p *Policy) *bool { return &p.FullLogs }))
	t.caseSensitive("force-flush", setInt(func(p *Policy) *int { return &p.ForceFlush }))
	t.caseSensitive("no-stealth", setFlag(func(p *Policy) *bool { return &p.NoStealth }))
	t.caseSensitive("buffer-max", setUint(10, func(p *Policy) *uint32 { return &p.BufferMax }))
	t.caseSensitive("large-buffer-max", setUint(10, func(p *Policy) *uint32 { return &p.LargeBufferMax }))
	t.caseSensitive("dropped-limit", setUint(10, func(p *Policy) *uint32 { return &p.DroppedLimit }))
	t.caseSensitive("ntdll-protect", setUint(10, func(p *Policy) *uint32 { return &p.NtdllProtect }))
	t.caseSensitive("ntdll-remap", setUint(10, func(p *Policy) *uint32 { return &p.NtdllRemap }))
	t.caseSensitive("file-offsets", setFlag(func(p *Policy) *bool { return &p.FileOffsets }))

	// Name lists.
	t.caseSensitive("exclude-apis", setList(':', ExclusionMax, false, func(p *Policy) *[]string { return &p.ExcludedAPIs }))
	t.caseSensitive("exclude-dlls", setList(':', ExclusionMax, false, func(p *Policy) *[]string { return &p.ExcludedDLLs }))
	t.caseSensitive("base-on-api", setList(':', ExclusionMax, false, func(p *Policy) *[]string { return &p.BaseOnAPIs }))
	t.caseSensitive("dump-on-api", setList(':', ExclusionMax, false, func(p *Policy) *[]string { return &p.DumpOnAPIs }))
	t.caseSensitive("coverage-modules", setList(':', ExclusionMax, false, func(p *Policy) *[]string { return &p.CoverageModules }))
	t.caseSensitive("dump-on-api-type", setUint(0, func(p *Policy) *uint32 { return &p.DumpOnAPIType }))
	t.caseInsensitive(setList(':', ExclusionMax, true, func(p *Policy) *[]string { return &p.TraceIntoAPIs }), "trace-into-api")
	t.caseInsensitive(setList('|', BreakpointMax, false, func(p *Policy) *[]string { return &p.Actions }), "action")

	// Breakpoints.
	for i := range SlotCount {
		n := strconv.Itoa(i)
		t.caseInsensitive(setBreakpoint(i), "bp"+n)
		t.caseInsensitive(setReturnBreakpoint(i), "br"+n)
		t.caseInsensitive(setSlotUint(i, func(b *Breakpoint) *uint32 { return &b.Count }), "count"+n)
		t.caseInsensitive(setSlotUint(i, func(b *Breakpoint) *uint32 { return &b.HitCount }), "hc"+n)
		t.caseInsensitive(setSlotUint(i, func(b *Breakpoint) *uint32 { return &b.DumpType }), "dumptype"+n)
		t.caseInsensitive(setSlotFlag(i, func(b *Breakpoint) *bool { return &b.VirtualAddress }), "bpva"+n)
		t.caseInsensitive(setSlotString(i, func(b *Breakpoint) *string { return &b.Action }), "action"+n)
		t.caseInsensitive(setSlotString(i, func(b *Breakpoint) *string { return &b.Instruction }), "instruction"+n, "instr"+n)
		t.caseInsensitive(setSlotString(i, func(b *Breakpoint) *string { return &b.TypeString }), "typestring"+n)
		if i < 3 {
			t.caseInsensitive(setBreakpointType(i), "type"+n)
		}
	}
	t.caseInsensitive(setBreakpointList, "bp")
	t.caseInsensitive(setSyscallBreakpoints, "sysbp")
	t.caseInsensitive(setUint(10, func(p *Policy) *uint32 { return &p.SyscallBPMode }), "sysbpmode")
	t.caseInsensitive(setStepOut, "step-out")
	t.caseInsensitive(setBreakOnReturn, "break-on-return")
	t.caseInsensitive(setTraceAll, "trace-all")
	t.caseInsensitive(setLimit(func(p *Policy) *uint32 { return &p.TraceDepthLimit }), "depth")
	t.caseInsensitive(setLimit(func(p *Policy) *uint32 { return &p.StepLimit }), "count")
	t.caseInsensitive(setString(func(p *Policy) *string { return &p.TypeString }), "typestring")
	t.caseInsensitive(setString(func(p *Policy) *string { return &p.ProcName0 }), "procname0")
	t.caseInsensitive(setExport, "export")
	t.caseInsensitive(setPatch, "patch")
	t.caseInsensitive(setDumpSize, "dumpsize")
	t.caseInsensitive(setSearchString, "str")

	// Logging switches.
	t.caseInsensitive(setInt(func(p *Policy) *int { return &p.LogExceptions }), "log-exceptions")
	t.caseInsensitive(setFlag(func(p *Policy) *bool { return &p.LogBreakpoints }), "log-breakpoints", "log-bps")
	t.caseInsensitive(setNoLogs, "no-logs")
	t.caseInsensitive(setFlag(func(p *Policy) *bool { return &p.DisableLogging }), "disable-logging")

	// Tracer tuning.
	t.caseInsensitive(setFlag(func(p *Policy) *bool { return &p.BaseOnAlloc }), "base-on-alloc")
	t.caseInsensitive(setFlag(func(p *Policy) *bool { return &p.BaseOnCaller }), "base-on-caller")
	t.caseInsensitive(setFlag(func(p *Policy) *bool { return &p.FakeRDTSC }), "fake-rdtsc")
	t.caseInsensitive(setFlag(func(p *Policy) *bool { return &p.NopRDTSCP }), "nop-rdtscp")
	t.caseInsensitive(setFlag(func(p *Policy) *bool { return &p.BranchTrace }), "branch-trace")
	t.caseInsensitive(setFlag(func(p *Policy) *bool { return &p.LoopSkip }), "loopskip")
	t.caseInsensitive(setFlag(func(p *Policy) *bool { return &p.BreakOnJIT }), "break-on-jit")

	// Dumping, scanning and capture.
	t.caseInsensitive(setUint(10, func(p *Policy) *uint32 { return &p.ProcDump }), "procdump")
	t.caseInsensitive(setProcMemDump, "procmemdump")
	t.caseInsensitive(setFlag(func(p *Policy) *bool { return &p.ImportReconstruction }), "import_reconstruction")
	t.caseInsensitive(setUnpacker, "unpacker")
	t.caseInsensitive(setFlag(func(p *Policy) *bool { return &p.Injection }), "injection")
	t.caseInsensitive(setFlag(func(p *Policy) *bool { return &p.DumpConfigRegion }), "dump-config-region")
	t.caseInsensitive(setFlag(func(p *Policy) *bool { return &p.DumpCrypto }), "dump-crypto")
	t.caseInsensitive(setFlag(func(p *Policy) *bool { return &p.DumpKeys }), "dump-keys")
	t.caseInsensitive(setFlag(func(p *Policy) *bool { return &p.CallerRegions }), "caller-dump")
	t.caseInsensitive(setFlag(func(p *Policy) *bool { return &p.YaraScan }), "yarascan")
	t.caseInsensitive(setFlag(func(p *Policy) *bool { return &p.AmsiDump }), "amsidump")
	t.caseInsensitive(setFlag(func(p *Policy) *bool { return &p.TLSDump }), "tlsdump")
	t.caseInsensitive(setFlag(func(p *Policy) *bool { return &p.RegDump }), "regdump")
	t.caseInsensitive(setFlag(func(p *Policy) *bool { return &p.LoaderLockScans }), "loaderlock")

	// Hook set and process handling.
	t.caseInsensitive(setFlag(func(p *Policy) *bool { return &p.MinHook }), "minhook")
	t.caseInsensitive(setFlag(func(p *Policy) *bool { return &p.ZeroHook }), "zerohook")
	t.caseInsensitive(setFlag(func(p *Policy) *bool { return &p.Syscall }), "syscall")
	t.caseInsensitive(setFlag(func(p *Policy) *bool { return &p.TerminateProcesses }), "terminate-processes")
	t.caseInsensitive(setFlag(func(p *Policy) *bool { return &p.SingleProcess }), "single-process")
	t.caseInsensitive(setFlag(func(p *Policy) *bool { return &p.PlugX }), "plugx")
	t.caseInsensitive(setPDF, "pdf")
	t.caseInsensitive(setUint(10, func(p *Policy) *uint32 { return &p.APIRateCap }), "api-rate-cap")
	t.caseInsensitive(setUint(10, func(p *Policy) *uint32 { return &p.APICap }), "api-cap")
	t.caseInsensitive(setInteractive, "interactive")

	return t
}

func flagValue(v string) bool {
	return v != "" && v[0] == '1'
}

func setFlag(field func(*Policy) *bool) setter {
	return func(_ *Parser, pol *Policy, v string) error {
		*field(pol) = flagValue(v)
		return nil
	}
}

func setString(field func(*Policy) *string) setter {
	return func(_ *Parser, pol *Policy, v string) error {
		*field(pol) = truncate(v, MaxPath-1)
		return nil
	}
}

func setPath(field func(*Policy) *PathString) setter {
	return func(_ *Parser, pol *Policy, v string) error {
		*field(pol) = NewPathString(v)
		return nil
	}
}

func setInt(field func(*Policy) *int) setter {
	return func(_ *Parser, pol *Policy, v string) error {
		n, err := parseInt(v)
		if err != nil {
			return err
		}
		*field(pol) = n
		return nil
	}
}

func setUint(base int, field func(*Policy) *uint32) setter {
	return func(_ *Parser, pol *Policy, v string) error {
		n, err := parseUint32(v, base)
		if err != nil {
			return err
		}
		*field(pol) = n
		return nil
	}
}

// setLimit accepts "all" for Unlimited or a decimal count.
func setLimit(field func(*Policy) *uint32) setter {
	return func(_ *Parser, pol *Policy, v string) error {
		if hasPrefixFold(v, "all") {
			*field(pol) = Unlimited
			return nil
		}
		n, err := parseUint32(v, 10)
		if err != nil {
			return err
		}
		*field(pol) = n
		return nil
	}
}

// setList appends every sep-delimited element of the value, empty ones
// included, dropping anything past capacity. Lists grow across repeated
// lines.
func setList(sep byte, capacity int, debugger bool, field func(*Policy) *[]string) setter {
	return func(p *Parser, pol *Policy, v string) error {
		list := field(pol)
		var dropped int
		for _, elem := range strings.Split(v, string(sep)) {
			var ok bool
			if *list, ok = appendBounded(*list, elem, capacity); !ok {
				dropped++
			}
		}
		if debugger {
			pol.Debugger = true
		}
		if dropped > 0 {
			return fmt.Errorf("%w: %d element(s) dropped", ErrListFull, dropped)
		}
		return nil
	}
}

func setSlotUint(i int, field func(*Breakpoint) *uint32) setter {
	return func(_ *Parser, pol *Policy, v string) error {
		n, err := parseUint32(v, 0)
		if err != nil {
			return err
		}
		*field(&pol.Breakpoints[i]) = n
		return nil
	}
}

func setSlotFlag(i int, field func(*Breakpoint) *bool) setter {
	return func(_ *Parser, pol *Policy, v string) error {
		*field(&pol.Breakpoints[i]) = flagValue(v)
		return nil
	}
}

func setSlotString(i int, field func(*Breakpoint) *string) setter {
	return func(_ *Parser, pol *Policy, v string) error {
		*field(&pol.Breakpoints[i]) = truncate(v, MaxPath-1)
		return nil
	}
}

// setBreakpoint handles bp0..bp3. The resolved address must not already sit
// in any of the four slots.
func setBreakpoint(i int) setter {
	return func(p *Parser, pol *Policy, v string) error {
		ref, err := p.parseAddress(v, true)
		if err != nil {
			return err
		}
		bp := &pol.Breakpoints[i]
		switch ref.kind {
		case addrZero:
			bp.Zero = true
			return nil
		case addrEntryPoint:
			pol.EntryPointRegister = true
			pol.Debugger = true
			return nil
		}
		if ref.addr == 0 {
			return fmt.Errorf("%w: zero address", ErrInvalidNumber)
		}
		if pol.breakpointAddressInUse(ref.addr) {
			return fmt.Errorf("%w: %s", ErrDuplicateAddress, ref.addr)
		}
		bp.Address = ref.addr
		pol.Debugger = true
		if ref.kind == addrSymbolic {
			bp.VirtualAddress = true
			pol.BreakOnModule = ref.module
			pol.BreakOnAPI = ref.symbol
		}
		p.logger.Debug("config: breakpoint set", "slot", i, "address", ref.addr)
		return nil
	}
}

// setReturnBreakpoint handles br0..br3.
func setReturnBreakpoint(i int) setter {
	return func(p *Parser, pol *Policy, v string) error {
		ref, err := p.parseAddress(v, false)
		if err != nil {
			return err
		}
		if ref.addr == 0 {
			return fmt.Errorf("%w: zero address", ErrInvalidNumber)
		}
		if pol.returnAddressInUse(ref.addr) {
			return fmt.Errorf("%w: %s", ErrDuplicateAddress, ref.addr)
		}
		pol.ReturnBreakpoints[i] = ref.addr
		pol.Debugger = true
		if ref.kind == addrSymbolic {
			pol.BreakOnModule = ref.module
			pol.BreakOnAPI = ref.symbol
		}
		return nil
	}
}

func setBreakpointType(i int) setter {
	return func(_ *Parser, pol *Policy, v string) error {
		var t BreakpointType
		switch {
		case hasPrefixFold(v, "w"):
			t = BreakpointWrite
		case hasPrefixFold(v, "r"):
			t = BreakpointReadWrite
		case hasPrefixFold(v, "x"):
			t = BreakpointExec
		default:
			return fmt.Errorf("unknown breakpoint type %q", v)
		}
		pol.Breakpoints[i].Type = t
		return nil
	}
}

// setBreakpointList handles the bp list key: numeric addresses with an
// optional per-element delta.
func setBreakpointList(_ *Parser, pol *Policy, v string) error {
	return appendAddresses(v, BreakpointMax, &pol.BreakpointList, pol)
}

func setSyscallBreakpoints(_ *Parser, pol *Policy, v string) error {
	return appendAddresses(v, SysbpMax, &pol.SyscallBreakpoints, pol)
}

func appendAddresses(v string, capacity int, list *[]Addr, pol *Policy) error {
	var errs []error
	for _, elem := range strings.Split(v, ":") {
		if elem == "" {
			continue
		}
		addr, err := parseAddrDelta(elem)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if addr == 0 {
			continue
		}
		var ok bool
		if *list, ok = appendBounded(*list, addr, capacity); !ok {
			errs = append(errs, fmt.Errorf("%w: %s", ErrListFull, addr))
			continue
		}
		pol.Debugger = true
	}
	return errors.Join(errs...)
}

// setStepOut places the step-out breakpoint in slot 0. Zero clears the
// slot; an address held by slots 1-3 is rejected.
func setStepOut(_ *Parser, pol *Policy, v string) error {
	n, err := parseUint(v, 0)
	if err != nil {
		return err
	}
	addr := Addr(n)
	if addr != 0 && addr != pol.Breakpoints[0].Address && pol.breakpointAddressInUse(addr) {
		return fmt.Errorf("%w: %s", ErrDuplicateAddress, addr)
	}
	pol.Debugger = true
	pol.Breakpoints[0].Address = addr
	pol.StepOut = addr != 0
	return nil
}

func setBreakOnReturn(_ *Parser, pol *Policy, v string) error {
	pol.Debugger = true
	pol.BreakOnReturn = truncate(v, MaxPath-1)
	pol.BreakOnReturnSet = true
	return nil
}

func setTraceAll(_ *Parser, pol *Policy, v string) error {
	pol.Debugger = true
	n, err := parseUint32(v, 10)
	if err != nil {
		return err
	}
	pol.TraceAll = n
	return nil
}

func setExport(_ *Parser, pol *Policy, v string) error {
	n, err := parseUint(v, 0)
	if err != nil {
		return err
	}
	pol.ExportAddress = Addr(n)
	return nil
}

// setPatch handles patch=<byte>:<address>[+-delta].
func setPatch(p *Parser, _ *Policy, v string) error {
	byteText, addrText, ok := strings.Cut(v, ":")
	if !ok {
		return errors.New("patch byte missing")
	}
	b, err := parseUint(byteText, 0)
	if err != nil {
		return err
	}
	addr, err := parseAddrDelta(addrText)
	if err != nil {
		return err
	}
	if addr == 0 {
		return fmt.Errorf("patch address invalid: %q", addrText)
	}
	if p.patcher == nil {
		return errors.New("no patcher configured")
	}
	p.logger.Debug("config: patching", "address", addr, "byte", fmt.Sprintf("0x%02x", byte(b)))
	return p.patcher.PatchByte(addr, byte(b))
}

// setDumpSize takes a numeric size or, failing that, keeps the raw text.
func setDumpSize(_ *Parser, pol *Policy, v string) error {
	if n, err := parseUint(v, 0); err == nil && n != 0 {
		pol.DumpSize = n
		return nil
	}
	pol.DumpSizeString = truncate(v, MaxPath-1)
	return nil
}

func setSearchString(_ *Parser, pol *Policy, v string) error {
	pol.SearchString = truncate(v, MaxPath-1)
	if pol.SearchString != "" {
		pol.NoLogs = 2
	}
	return nil
}

func setNoLogs(_ *Parser, pol *Policy, v string) error {
	if v == "" {
		pol.NoLogs = 0
		return nil
	}
	pol.NoLogs = v[0]
	return nil
}

// setTarget records a file target when the value carries a drive letter and
// a URL target otherwise.
func setTarget(_ *Parser, pol *Policy, v string) error {
	if len(v) <= 1 {
		return errors.New("target too short")
	}
	if v[1] == ':' {
		pol.SetFileOfInterest(NormalizePath(v))
		return nil
	}
	pol.SetURLOfInterest(v)
	return nil
}

func setAnalyzer(_ *Parser, pol *Policy, v string) error {
	pol.Analyzer = NewPathString(v)
	pol.DLLPath = pol.Analyzer.Append(`\dll\`)
	return nil
}

func setHookType(_ *Parser, pol *Policy, v string) error {
	if !hookTypeConfigurable {
		return nil
	}
	switch v {
	case "direct":
		pol.HookType = HookJmpDirect
	case "indirect":
		pol.HookType = HookJmpIndirect
	case "safe":
		pol.HookType = HookSafest
	default:
		return fmt.Errorf("unknown hook type %q", v)
	}
	return nil
}

func setForceSleepSkip(_ *Parser, pol *Policy, v string) error {
	pol.ForceSleepSkip = 0
	if flagValue(v) {
		pol.ForceSleepSkip = 1
	}
	return nil
}

func setProcMemDump(_ *Parser, pol *Policy, v string) error {
	pol.ProcMemDump = strings.EqualFold(v, "yes") || flagValue(v)
	return nil
}

func setUnpacker(_ *Parser, pol *Policy, v string) error {
	n, err := parseUint32(v, 10)
	if err != nil {
		return err
	}
	pol.Unpacker = UnpackMode(n)
	return nil
}

// setPDF enables the reader profile; in the first process it also raises
// the API rate cap.
func setPDF(_ *Parser, pol *Policy, v string) error {
	pol.PDF = flagValue(v)
	if pol.PDF && pol.FirstProcess {
		pol.APIRateCap = 2
	}
	return nil
}

// setInteractive latches: once interactive mode is on, later lines cannot
// turn it off.
func setInteractive(_ *Parser, pol *Policy, v string) error {
	if pol.Interactive == 0 && flagValue(v) {
		pol.Interactive = 1
	}
	return nil
}
